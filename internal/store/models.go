package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

var (
	ErrNotFound         = errors.New("not found")
	ErrInvalidTechnique = errors.New("invalid technique")
	ErrInvalidSession   = errors.New("invalid session")
	ErrInvalidTag       = errors.New("invalid tag")
)

// Category classifies a technique.
type Category string

const (
	CategorySubmission Category = "Submission"
	CategorySweep      Category = "Sweep"
	CategoryEscape     Category = "Escape"
	CategoryGuardPass  Category = "Guard Pass"
	CategoryTakedown   Category = "Takedown"
	CategoryDefense    Category = "Defense"
	CategoryOther      Category = "Other"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategorySubmission, CategorySweep, CategoryEscape, CategoryGuardPass,
		CategoryTakedown, CategoryDefense, CategoryOther:
		return true
	}
	return false
}

// SessionType is the kind of training performed in a session.
type SessionType string

const (
	SessionGi        SessionType = "gi"
	SessionNoGi      SessionType = "nogi"
	SessionOpenMat   SessionType = "open-mat"
	SessionWrestling SessionType = "wrestling"
)

func (t SessionType) Valid() bool {
	switch t {
	case SessionGi, SessionNoGi, SessionOpenMat, SessionWrestling:
		return true
	}
	return false
}

// TagCategory groups tags in the suggestion UI.
type TagCategory string

const (
	TagPosition  TagCategory = "position"
	TagAttribute TagCategory = "attribute"
	TagStyle     TagCategory = "style"
	TagCustom    TagCategory = "custom"
)

func (c TagCategory) Valid() bool {
	switch c {
	case TagPosition, TagAttribute, TagStyle, TagCustom:
		return true
	}
	return false
}

// MaxLinks is the number of reference URLs a technique may carry.
const MaxLinks = 10

// MaxSubmissionCount bounds a single submission's repetition count.
const MaxSubmissionCount = 100

// Technique is a move recorded in the user's library.
// SessionID is a weak reference: deleting the session clears it.
type Technique struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Category  Category  `json:"category"`
	Tags      []string  `json:"tags"`
	Notes     string    `json:"notes,omitempty"`
	Links     []string  `json:"links,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"sessionId,omitempty"`
}

// TrainingSession is a diary entry for one practice.
type TrainingSession struct {
	ID               string         `json:"id"`
	Date             time.Time      `json:"date"`
	Location         string         `json:"location,omitempty"`
	Type             SessionType    `json:"type"`
	Submissions      []string       `json:"submissions"`
	SubmissionCounts map[string]int `json:"submissionCounts"`
	Notes            string         `json:"notes,omitempty"`
	Satisfaction     int            `json:"satisfaction"`
	TechniqueIDs     []string       `json:"techniqueIds"`
}

// Tag is a label attachable to techniques. UsageCount is maintained by the
// store and equals the number of techniques carrying the tag.
type Tag struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Category   TagCategory `json:"category"`
	UsageCount int         `json:"usageCount"`
	CreatedAt  time.Time   `json:"createdAt"`
	IsCustom   bool        `json:"isCustom"`
}

// Location is a recency/frequency index used for autocomplete.
type Location struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	UsageCount int       `json:"usageCount"`
	LastUsed   time.Time `json:"lastUsed"`
}

// Counts summarizes table sizes.
type Counts struct {
	Techniques int `json:"techniques"`
	Sessions   int `json:"sessions"`
	Tags       int `json:"tags"`
	Locations  int `json:"locations"`
}

// NewID returns a fresh client-side identifier.
func NewID() string {
	return uuid.NewString()
}

// Storer defines the interface for data persistence.
// SQLiteStore is the sole implementation.
type Storer interface {
	// Schema
	EnsureSchema(ctx context.Context) error

	// Techniques
	UpsertTechnique(ctx context.Context, t *Technique) error
	GetTechnique(ctx context.Context, id string) (*Technique, error)
	GetTechniques(ctx context.Context) ([]*Technique, error)
	GetTechniquesBySession(ctx context.Context, sessionID string) ([]*Technique, error)
	GetRecentTechniques(ctx context.Context, limit int) ([]*Technique, error)
	DeleteTechnique(ctx context.Context, id string) (int, error)
	LinkTechniqueSession(ctx context.Context, techniqueID, sessionID string) error
	RelatedTechniques(ctx context.Context, id string, limit int) ([]*Technique, error)

	// Sessions
	UpsertSession(ctx context.Context, s *TrainingSession) error
	GetSession(ctx context.Context, id string) (*TrainingSession, error)
	GetSessions(ctx context.Context) ([]*TrainingSession, error)
	DeleteSession(ctx context.Context, id string) error

	// Tags
	ListTags(ctx context.Context) ([]*Tag, error)
	PopularTags(ctx context.Context, limit int) ([]*Tag, error)
	SearchTags(ctx context.Context, query string, limit int) ([]*Tag, error)
	CreateCustomTag(ctx context.Context, name string, category TagCategory) (*Tag, error)
	SeedTags(ctx context.Context, tags []Tag) (int, error)
	CleanupOrphanedTags(ctx context.Context) (int, error)

	// Locations
	UpsertLocation(ctx context.Context, name string) error
	ListLocations(ctx context.Context) ([]*Location, error)
	SearchLocations(ctx context.Context, prefix string, limit int) ([]*Location, error)

	Counts(ctx context.Context) (*Counts, error)

	// Lifecycle
	Close() error
}
