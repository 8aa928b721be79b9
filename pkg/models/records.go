package models

import "time"

// Service identifies an upstream AI provider.
type Service string

const (
	ServiceOllama       Service = "ollama"
	ServiceGoogleGemini Service = "google-gemini"
)

// Services lists every service tag the proxy accepts.
var Services = []Service{ServiceOllama, ServiceGoogleGemini}

// Valid reports whether s is a known service tag.
func (s Service) Valid() bool {
	for _, known := range Services {
		if s == known {
			return true
		}
	}
	return false
}

// ProviderKey is a credential the proxy uses to call an upstream provider.
type ProviderKey struct {
	ID        string    `json:"id"`
	Service   Service   `json:"service"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordID implements store.Record.
func (k ProviderKey) RecordID() string { return k.ID }

// ServerKey is a credential external callers present to the proxy.
type ServerKey struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Key       string    `json:"key"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordID implements store.Record.
func (k ServerKey) RecordID() string { return k.ID }

// Snippet returns a display-safe form of the key.
func (k ServerKey) Snippet() string {
	if len(k.Key) <= 4 {
		return "aicsk..."
	}
	return "aicsk..." + k.Key[len(k.Key)-4:]
}

// ModelRecord names a model available on a service.
type ModelRecord struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Service   Service   `json:"service"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecordID implements store.Record.
func (m ModelRecord) RecordID() string { return m.ID }

// ConflictPolicy decides what an import does with an id that already exists.
type ConflictPolicy string

const (
	ConflictKeep      ConflictPolicy = "keep"
	ConflictOverwrite ConflictPolicy = "overwrite"
)

// ImportStats counts the outcome of importing one collection.
type ImportStats struct {
	Added     int `json:"added"`
	Updated   int `json:"updated"`
	Conflicts int `json:"conflicts"`
}

// Bundle is the export/import document for credentials and models.
type Bundle struct {
	ProviderKeys []ProviderKey `json:"aiKeys"`
	ServerKeys   []ServerKey   `json:"serverApiKeys"`
	Models       []ModelRecord `json:"models"`
}

// ImportReport aggregates per-collection import stats.
type ImportReport struct {
	ProviderKeys ImportStats `json:"aiKeys"`
	ServerKeys   ImportStats `json:"serverApiKeys"`
	Models       ImportStats `json:"models"`
}
