package tracker

import "encoding/json"

const (
	IMPORT_STATUS_OK      = "OK"
	IMPORT_STATUS_WARNING = "WARNING"
	IMPORT_STATUS_ERROR   = "ERROR"
)

const (
	OU_MODE_ALL         = "ALL"
	OU_MODE_DESCENDANTS = "DESCENDANTS"
	OU_MODE_SELECTED    = "SELECTED"
)

const (
	IMPORT_STRATEGY_CREATE_AND_UPDATE = "CREATE_AND_UPDATE"
	IMPORT_STRATEGY_CREATE            = "CREATE"
	IMPORT_STRATEGY_UPDATE            = "UPDATE"

	ATOMIC_MODE_ALL    = "ALL"
	ATOMIC_MODE_OBJECT = "OBJECT"
)

type UserInfo struct {
	UID       string `json:"uid,omitempty"`
	Username  string `json:"username,omitempty"`
	FirstName string `json:"firstName,omitempty"`
	Surname   string `json:"surname,omitempty"`
}

type DataValue struct {
	DataElement       string    `json:"dataElement"`
	Value             string    `json:"value"`
	CreatedAt         string    `json:"createdAt,omitempty"`
	UpdatedAt         string    `json:"updatedAt,omitempty"`
	ProvidedElsewhere *bool     `json:"providedElsewhere,omitempty"`
	CreatedBy         *UserInfo `json:"createdBy,omitempty"`
	UpdatedBy         *UserInfo `json:"updatedBy,omitempty"`
}

type Note struct {
	Note      string    `json:"note,omitempty"`
	Value     string    `json:"value"`
	StoredAt  string    `json:"storedAt,omitempty"`
	CreatedBy *UserInfo `json:"createdBy,omitempty"`
}

// Event is a program stage event as read from and written to /tracker.
// Event is empty for events that do not exist yet in the destination.
// Properties without a field here are kept in Extra and written back.
type Event struct {
	Event                string      `json:"event,omitempty"`
	Status               string      `json:"status,omitempty"`
	Program              string      `json:"program,omitempty"`
	ProgramStage         string      `json:"programStage,omitempty"`
	Enrollment           string      `json:"enrollment,omitempty"`
	TrackedEntity        string      `json:"trackedEntity,omitempty"`
	OrgUnit              string      `json:"orgUnit,omitempty"`
	OrgUnitName          string      `json:"orgUnitName,omitempty"`
	OccurredAt           string      `json:"occurredAt,omitempty"`
	ScheduledAt          string      `json:"scheduledAt,omitempty"`
	StoredBy             string      `json:"storedBy,omitempty"`
	FollowUp             bool        `json:"followup,omitempty"`
	Deleted              bool        `json:"deleted,omitempty"`
	CreatedAt            string      `json:"createdAt,omitempty"`
	UpdatedAt            string      `json:"updatedAt,omitempty"`
	AttributeOptionCombo string      `json:"attributeOptionCombo,omitempty"`
	CompletedBy          string      `json:"completedBy,omitempty"`
	CompletedAt          string      `json:"completedAt,omitempty"`
	CreatedBy            *UserInfo   `json:"createdBy,omitempty"`
	UpdatedBy            *UserInfo   `json:"updatedBy,omitempty"`
	DataValues           []DataValue `json:"dataValues"`
	Notes                []Note      `json:"notes,omitempty"`

	Extra map[string]json.RawMessage `json:"-"`
}

// LegacyEvent is the shape returned by the pre-tracker /events endpoint.
type LegacyEvent struct {
	Event                 string      `json:"event,omitempty"`
	Status                string      `json:"status,omitempty"`
	Program               string      `json:"program,omitempty"`
	ProgramStage          string      `json:"programStage,omitempty"`
	Enrollment            string      `json:"enrollment,omitempty"`
	TrackedEntityInstance string      `json:"trackedEntityInstance,omitempty"`
	OrgUnit               string      `json:"orgUnit,omitempty"`
	EventDate             string      `json:"eventDate,omitempty"`
	DueDate               string      `json:"dueDate,omitempty"`
	StoredBy              string      `json:"storedBy,omitempty"`
	CompletedBy           string      `json:"completedBy,omitempty"`
	CompletedDate         string      `json:"completedDate,omitempty"`
	AttributeOptionCombo  string      `json:"attributeOptionCombo,omitempty"`
	DataValues            []DataValue `json:"dataValues"`

	Extra map[string]json.RawMessage `json:"-"`
}

type Attribute struct {
	Attribute   string `json:"attribute"`
	Value       string `json:"value"`
	DisplayName string `json:"displayName,omitempty"`
	ValueType   string `json:"valueType,omitempty"`
	Code        string `json:"code,omitempty"`
	CreatedAt   string `json:"createdAt,omitempty"`
	UpdatedAt   string `json:"updatedAt,omitempty"`
}

type Enrollment struct {
	Enrollment    string      `json:"enrollment,omitempty"`
	TrackedEntity string      `json:"trackedEntity,omitempty"`
	Program       string      `json:"program,omitempty"`
	Status        string      `json:"status,omitempty"`
	OrgUnit       string      `json:"orgUnit,omitempty"`
	OrgUnitName   string      `json:"orgUnitName,omitempty"`
	EnrolledAt    string      `json:"enrolledAt,omitempty"`
	OccurredAt    string      `json:"occurredAt,omitempty"`
	FollowUp      bool        `json:"followUp,omitempty"`
	Deleted       bool        `json:"deleted,omitempty"`
	CreatedAt     string      `json:"createdAt,omitempty"`
	UpdatedAt     string      `json:"updatedAt,omitempty"`
	CompletedAt   string      `json:"completedAt,omitempty"`
	Events        []Event     `json:"events,omitempty"`
	Attributes    []Attribute `json:"attributes,omitempty"`
	Notes         []Note      `json:"notes,omitempty"`
}

type ProgramOwner struct {
	OrgUnit       string `json:"orgUnit"`
	TrackedEntity string `json:"trackedEntity"`
	Program       string `json:"program"`
}

type TrackedEntity struct {
	TrackedEntity      string         `json:"trackedEntity,omitempty"`
	TrackedEntityType  string         `json:"trackedEntityType,omitempty"`
	OrgUnit            string         `json:"orgUnit,omitempty"`
	Inactive           bool           `json:"inactive,omitempty"`
	Deleted            bool           `json:"deleted,omitempty"`
	PotentialDuplicate bool           `json:"potentialDuplicate,omitempty"`
	CreatedAt          string         `json:"createdAt,omitempty"`
	UpdatedAt          string         `json:"updatedAt,omitempty"`
	Attributes         []Attribute    `json:"attributes,omitempty"`
	Enrollments        []Enrollment   `json:"enrollments,omitempty"`
	ProgramOwners      []ProgramOwner `json:"programOwners,omitempty"`
}

// AttributeValue returns the value of the given attribute and whether it is set.
func (te TrackedEntity) AttributeValue(attribute string) (string, bool) {
	for _, a := range te.Attributes {
		if a.Attribute == attribute {
			return a.Value, a.Value != ""
		}
	}
	return "", false
}

type EventsPage struct {
	Page      int     `json:"page"`
	PageSize  int     `json:"pageSize"`
	Instances []Event `json:"instances"`
}

type TrackedEntitiesPage struct {
	Page      int             `json:"page"`
	PageSize  int             `json:"pageSize"`
	Instances []TrackedEntity `json:"instances"`
}

type LegacyEventsPage struct {
	Events []LegacyEvent `json:"events"`
}

// Payload is the body of POST /tracker. Only the non-empty collections are sent.
type Payload struct {
	TrackedEntities []TrackedEntity `json:"trackedEntities,omitempty"`
	Enrollments     []Enrollment    `json:"enrollments,omitempty"`
	Events          []Event         `json:"events,omitempty"`
}

func (p Payload) Size() int {
	return len(p.TrackedEntities) + len(p.Enrollments) + len(p.Events)
}

type ImportStats struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Deleted int `json:"deleted"`
	Ignored int `json:"ignored"`
	Total   int `json:"total"`
}

type ErrorReport struct {
	Message     string `json:"message"`
	ErrorCode   string `json:"errorCode"`
	TrackerType string `json:"trackerType"`
	UID         string `json:"uid"`
}

type ValidationReport struct {
	ErrorReports   []ErrorReport `json:"errorReports,omitempty"`
	WarningReports []ErrorReport `json:"warningReports,omitempty"`
}

type JobReference struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

// ImportReport covers both the synchronous import report and the
// job reference returned for async imports.
type ImportReport struct {
	Status           string           `json:"status"`
	Message          string           `json:"message,omitempty"`
	HttpStatusCode   int              `json:"httpStatusCode,omitempty"`
	Stats            ImportStats      `json:"stats"`
	ValidationReport ValidationReport `json:"validationReport"`
	Response         *JobReference    `json:"response,omitempty"`
}

func (r ImportReport) Rejected() bool {
	return r.Status == IMPORT_STATUS_ERROR || len(r.ValidationReport.ErrorReports) > 0
}
