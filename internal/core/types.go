package core

import "time"

type SessionStatus string

const (
	StatusProcessing SessionStatus = "processing"
	StatusCompleted  SessionStatus = "completed"
	StatusFailed     SessionStatus = "failed"
	StatusApproved   SessionStatus = "approved"
)

type VersionStatus string

const (
	VersionSuccess    VersionStatus = "success"
	VersionFailed     VersionStatus = "failed"
	VersionProcessing VersionStatus = "processing"
)

type Mode string

const (
	ModeStandard     Mode = "standard"
	ModeColdOutreach Mode = "cold_outreach"
)

// ArtifactKind names one produced document type within a session.
type ArtifactKind string

const (
	ArtifactCV          ArtifactKind = "cv"
	ArtifactCoverLetter ArtifactKind = "cover_letter"
	ArtifactColdEmail   ArtifactKind = "cold_email"
)

// Metadata keys used by the orchestrator and by stale-processing recovery.
const (
	MetaActiveHoldKey = "activeHoldKey"
	MetaHoldPlacedAt  = "holdPlacedAt"
)

// MetadataClear is the sentinel an update sets to remove a metadata key.
// An absent key preserves the stored value.
const MetadataClear = "\x00clear"

// MaxVersionsPerKind bounds the version history kept per artifact kind.
// Older entries are evicted silently, newest retained.
const MaxVersionsPerKind = 6

// GenerationVersion is one attempt's artifact content plus its outcome and
// diagnostics, keyed by generation id within a session.
type GenerationVersion struct {
	GenerationID GenerationID  `json:"generation_id"`
	Content      string        `json:"content"`
	Status       VersionStatus `json:"status"`
	PageCount    *int          `json:"page_count,omitempty"`
	ErrorMessage string        `json:"error_message,omitempty"`
	LogExcerpt   string        `json:"log_excerpt,omitempty"`
	ErrorLines   []int         `json:"error_lines,omitempty"`
	Errors       []string      `json:"errors,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// ChatLogEntry is one ordered, append-only progress history record. It feeds
// the UI history and never drives control flow.
type ChatLogEntry struct {
	ID        string         `json:"id"`
	Level     string         `json:"level"`
	Message   string         `json:"message"`
	Payload   map[string]any `json:"payload,omitempty"`
	Timestamp time.Time      `json:"ts"`
}

type Session struct {
	ID                  SessionID                           `json:"id"`
	OwnerID             OwnerID                             `json:"owner_id"`
	Status              SessionStatus                       `json:"status"`
	Company             string                              `json:"company,omitempty"`
	Role                string                              `json:"role,omitempty"`
	Artifacts           map[string]string                   `json:"artifacts,omitempty"`
	Versions            map[ArtifactKind][]GenerationVersion `json:"versions,omitempty"`
	Metadata            map[string]string                   `json:"metadata,omitempty"`
	ChatLog             []ChatLogEntry                      `json:"chat_log,omitempty"`
	Version             int                                 `json:"version"`
	ProcessingStartedAt *time.Time                          `json:"processing_started_at,omitempty"`
	ProcessingDeadline  *time.Time                          `json:"processing_deadline,omitempty"`
	CreatedAt           time.Time                           `json:"created_at"`
	UpdatedAt           time.Time                           `json:"updated_at"`
}

// Contact holds what is known about the outreach target. Enrichment fills the
// gaps in cold_outreach mode.
type Contact struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Title    string `json:"title,omitempty"`
	LinkedIn string `json:"linkedin,omitempty"`
}

// Complete reports whether enrichment has nothing left to fill in.
func (c Contact) Complete() bool {
	return c.Name != "" && c.Email != "" && c.Title != ""
}

// Empty reports whether there is no contact information at all.
func (c Contact) Empty() bool {
	return c.Name == "" && c.Email == "" && c.Title == "" && c.LinkedIn == ""
}

// GenerationRequest is the normalized input to one pipeline run.
type GenerationRequest struct {
	SessionID      SessionID    `json:"session_id"`
	GenerationID   GenerationID `json:"generation_id"`
	Company        string       `json:"company"`
	Role           string       `json:"role"`
	JobDescription string       `json:"job_description"`
	CVSource       string       `json:"cv_source"`
	Strategy       string       `json:"strategy,omitempty"`
	Contact        Contact      `json:"contact"`
	Mode           Mode         `json:"mode"`
}
