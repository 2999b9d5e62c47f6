package permissionchecker

import (
	"crypto/subtle"
	"log/slog"
)

const (
	ACTION_READ_SYNC_RUNS   = "read-sync-runs"
	ACTION_MANAGE_SYNC_RUNS = "manage-sync-runs"
)

// APIKey is one configured client of the status api.
type APIKey struct {
	Name    string   `json:"name" yaml:"name"`
	Key     string   `json:"key" yaml:"key"`
	Actions []string `json:"actions" yaml:"actions"`
	IsAdmin bool     `json:"is_admin" yaml:"is_admin"`
}

type KeyStore interface {
	FindAPIKey(key string) (*APIKey, bool)
}

// StaticKeys is a KeyStore backed by the config file.
type StaticKeys []APIKey

func (s StaticKeys) FindAPIKey(key string) (*APIKey, bool) {
	if key == "" {
		return nil, false
	}
	for i := range s {
		if s[i].Key == "" {
			continue
		}
		if subtle.ConstantTimeCompare([]byte(s[i].Key), []byte(key)) == 1 {
			return &s[i], true
		}
	}
	return nil, false
}

var (
	Keys KeyStore
)

// IsAuthorized reports whether the api key grants at least one of the
// required actions. Admin keys are always authorized.
func IsAuthorized(key string, requiredActions []string) (string, bool) {
	if Keys == nil {
		slog.Error("key store not set")
		return "", false
	}

	apiKey, ok := Keys.FindAPIKey(key)
	if !ok {
		return "", false
	}
	if apiKey.IsAdmin {
		return apiKey.Name, true
	}

	for _, granted := range apiKey.Actions {
		for _, required := range requiredActions {
			if granted == required {
				return apiKey.Name, true
			}
		}
	}
	return apiKey.Name, false
}
