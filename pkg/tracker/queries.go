package tracker

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

type EventQuery struct {
	OrgUnit        string
	OuMode         string
	Program        string
	ProgramStage   string
	EnrolledAfter  string
	EnrolledBefore string
	Page           int
	PageSize       int

	// optional attribute filter, rendered as attr:IN:[v1,v2]
	FilterAttribute string
	FilterValues    []string
}

func (q EventQuery) params() url.Values {
	params := url.Values{}
	setIfNotEmpty(params, "orgUnit", q.OrgUnit)
	setIfNotEmpty(params, "program", q.Program)
	setIfNotEmpty(params, "programStage", q.ProgramStage)
	setIfNotEmpty(params, "enrollmentEnrolledAfter", q.EnrolledAfter)
	setIfNotEmpty(params, "enrollmentEnrolledBefore", q.EnrolledBefore)

	ouMode := q.OuMode
	if ouMode == "" {
		ouMode = OU_MODE_ALL
	}
	params.Set("ouMode", ouMode)

	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	if q.FilterAttribute != "" && len(q.FilterValues) > 0 {
		params.Set("filterAttributes", q.FilterAttribute+":IN:["+strings.Join(q.FilterValues, ",")+"]")
	}
	return params
}

type TrackedEntityQuery struct {
	OrgUnit   string
	OuMode    string
	Program   string
	Attribute string
	Values    []string
	Fields    string
}

func (q TrackedEntityQuery) params() url.Values {
	params := url.Values{}
	setIfNotEmpty(params, "orgUnit", q.OrgUnit)
	setIfNotEmpty(params, "ouMode", q.OuMode)
	setIfNotEmpty(params, "program", q.Program)

	fields := q.Fields
	if fields == "" {
		fields = "*"
	}
	params.Set("fields", fields)

	if q.Attribute != "" && len(q.Values) > 0 {
		params.Set("filter", q.Attribute+":IN:"+strings.Join(q.Values, ";"))
		// one bulk query per batch: the page has to hold every possible match
		params.Set("pageSize", strconv.Itoa(len(q.Values)))
	}
	return params
}

type LegacyEventQuery struct {
	OrgUnit  string
	OuMode   string
	Program  string
	Page     int
	PageSize int
}

func (q LegacyEventQuery) params() url.Values {
	params := url.Values{}
	setIfNotEmpty(params, "orgUnit", q.OrgUnit)
	setIfNotEmpty(params, "program", q.Program)

	ouMode := q.OuMode
	if ouMode == "" {
		ouMode = OU_MODE_ALL
	}
	params.Set("ouMode", ouMode)

	if q.Page > 0 {
		params.Set("page", strconv.Itoa(q.Page))
	}
	if q.PageSize > 0 {
		params.Set("pageSize", strconv.Itoa(q.PageSize))
	}
	return params
}

type ImportOptions struct {
	Async          bool
	ImportStrategy string
	AtomicMode     string
}

func (o ImportOptions) params() url.Values {
	params := url.Values{}
	params.Set("async", strconv.FormatBool(o.Async))
	setIfNotEmpty(params, "importStrategy", o.ImportStrategy)
	setIfNotEmpty(params, "atomicMode", o.AtomicMode)
	return params
}

// CheckOuMode accepts an empty mode (ALL) or one of the OU_MODE values.
func CheckOuMode(mode string) error {
	switch mode {
	case "", OU_MODE_ALL, OU_MODE_DESCENDANTS, OU_MODE_SELECTED:
		return nil
	}
	return fmt.Errorf("unknown ou_mode %q", mode)
}

func (o ImportOptions) Validate() error {
	switch o.ImportStrategy {
	case "", IMPORT_STRATEGY_CREATE_AND_UPDATE, IMPORT_STRATEGY_CREATE, IMPORT_STRATEGY_UPDATE:
	default:
		return fmt.Errorf("unknown import_strategy %q", o.ImportStrategy)
	}
	switch o.AtomicMode {
	case "", ATOMIC_MODE_ALL, ATOMIC_MODE_OBJECT:
	default:
		return fmt.Errorf("unknown atomic_mode %q", o.AtomicMode)
	}
	return nil
}

func setIfNotEmpty(params url.Values, key string, value string) {
	if value != "" {
		params.Set(key, value)
	}
}
