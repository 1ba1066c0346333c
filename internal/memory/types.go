package memory

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sarahrhemadayal/baseline/internal/embeddings"
	"github.com/sarahrhemadayal/baseline/internal/vectorstore"
)

// Errors returned by the store. Adapter errors are re-exported so callers
// match a single sentinel regardless of which layer failed.
var (
	ErrInvalidAction  = errors.New("invalid action")
	ErrRecordNotFound = errors.New("record not found")
	ErrInvalidFilter  = errors.New("invalid filter")

	ErrEmbeddingUnavailable = embeddings.ErrEmbeddingUnavailable
	ErrStoreUnavailable     = vectorstore.ErrStoreUnavailable
	ErrDimensionMismatch    = vectorstore.ErrDimensionMismatch
)

// ItemType is the category of a tracked item.
type ItemType string

const (
	ItemSkill          ItemType = "skill"
	ItemProject        ItemType = "project"
	ItemWorkExperience ItemType = "work_experience"
	ItemEducation      ItemType = "education"
	ItemLeadership     ItemType = "leadership"
)

// Valid reports whether t is a trackable item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemSkill, ItemProject, ItemWorkExperience, ItemEducation, ItemLeadership:
		return true
	}
	return false
}

// Record types written by ingestion into the conversation collection.
const (
	TypeSkills              = "skills"
	TypeSpeechPattern       = "speech_pattern"
	TypeConversationSummary = "conversation_summary"
	TypeUserMessage         = "user_message"
	TypeExtractedSkills     = "extracted_skills"
)

// ValidRecordType reports whether t belongs to the closed payload type set.
func ValidRecordType(t string) bool {
	if ItemType(t).Valid() {
		return true
	}
	switch t {
	case TypeSkills, TypeSpeechPattern, TypeConversationSummary, TypeUserMessage, TypeExtractedSkills:
		return true
	}
	return false
}

// Status is the lifecycle state of a tracked item.
type Status string

const (
	StatusInProgress Status = "in-progress"
	StatusComplete   Status = "complete"
)

// Payload keys.
const (
	keyUserID    = vectorstore.UserIDKey
	keyType      = "type"
	keyStatus    = "status"
	keyData      = "data"
	keyTimestamp = "timestamp"
)

// Milestone is one dated progress note.
type Milestone struct {
	Date               string   `json:"date"`
	Description        string   `json:"description"`
	ProgressPercentage *float64 `json:"progressPercentage,omitempty"`
}

// ItemData is the caller-supplied content of a tracked item.
type ItemData struct {
	Item          string      `json:"item"`
	Type          ItemType    `json:"type"`
	EmbeddingText string      `json:"embeddingText"`
	Milestones    []Milestone `json:"milestones"`
	SkillsUsed    []string    `json:"skillsUsed,omitempty"`
}

// Validate checks the fields needed to embed and store the item.
func (d *ItemData) Validate() error {
	if d == nil {
		return fmt.Errorf("%w: itemData is required", ErrInvalidAction)
	}
	if strings.TrimSpace(d.Item) == "" {
		return fmt.Errorf("%w: itemData.item is required", ErrInvalidAction)
	}
	if !d.Type.Valid() {
		return fmt.Errorf("%w: itemData.type %q is not one of skill, project, work_experience, education, leadership",
			ErrInvalidAction, d.Type)
	}
	if strings.TrimSpace(d.EmbeddingText) == "" {
		return fmt.Errorf("%w: itemData.embeddingText is required", ErrInvalidAction)
	}
	for i, m := range d.Milestones {
		if _, err := time.Parse(time.DateOnly, m.Date); err != nil {
			return fmt.Errorf("%w: milestones[%d].date %q is not YYYY-MM-DD", ErrInvalidAction, i, m.Date)
		}
		if strings.TrimSpace(m.Description) == "" {
			return fmt.Errorf("%w: milestones[%d].description is required", ErrInvalidAction, i)
		}
		if p := m.ProgressPercentage; p != nil && (*p < 0 || *p > 100) {
			return fmt.Errorf("%w: milestones[%d].progressPercentage must be between 0 and 100", ErrInvalidAction, i)
		}
	}
	return nil
}

// Record is a stored point without its vector.
type Record struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	Type      string         `json:"type"`
	Status    Status         `json:"status,omitempty"`
	Data      any            `json:"data"`
	Timestamp string         `json:"timestamp,omitempty"`
	Payload   map[string]any `json:"-"`
}

// Match is a search hit in the {id, payload, score} shape callers consume.
type Match struct {
	ID      string         `json:"id"`
	Score   float32        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Record decodes the hit's payload.
func (m Match) Record() Record {
	return recordFromPayload(m.ID, m.Payload)
}

func recordFromPayload(id string, payload map[string]any) Record {
	r := Record{ID: id, Payload: payload, Data: payload[keyData]}
	r.UserID, _ = payload[keyUserID].(string)
	r.Type, _ = payload[keyType].(string)
	if s, ok := payload[keyStatus].(string); ok {
		r.Status = Status(s)
	}
	r.Timestamp, _ = payload[keyTimestamp].(string)
	return r
}

// Entry is a pre-embedded, write-once record for the conversation collection.
type Entry struct {
	ID     string
	Type   string
	Data   any
	Vector []float32
}

// Scope picks which collection an operation reads.
type Scope int

const (
	// ScopeProgress is the tracked in-progress items collection.
	ScopeProgress Scope = iota
	// ScopeConversation is the append-only ingestion collection.
	ScopeConversation
)

// SearchOptions narrows a similarity search.
type SearchOptions struct {
	// Limit is top-K; zero uses the configured default, capped at MaxSearchLimit.
	Limit int
	Type  string
	// Status defaults to in-progress for ScopeProgress. IncludeAll drops it.
	Status     Status
	IncludeAll bool
	Scope      Scope
	// Filter holds extra conditions. It must not mention userId.
	Filter vectorstore.Filter
}

// ListOptions bounds a metadata-only scan.
type ListOptions struct {
	// Limit caps the scan; zero uses the configured default. Which records
	// fall inside the cap is backend order, not time order.
	Limit int
	// All scans every matching record and ignores Limit. Views that order
	// by time need it to see the newest records.
	All   bool
	Scope Scope
}

// MaxSearchLimit caps top-K for every search.
const MaxSearchLimit = 100

// ValidID reports whether id can key a point: a UUID or an unsigned integer.
func ValidID(id string) bool {
	if _, err := uuid.Parse(id); err == nil {
		return true
	}
	_, err := strconv.ParseUint(id, 10, 64)
	return err == nil
}

// TruncateText cuts s to at most n runes. A positive n with suffix keeps the
// result within n runes including the suffix.
func TruncateText(s string, n int, suffix string) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	keep := n - len([]rune(suffix))
	if keep < 0 {
		keep = 0
	}
	return string(runes[:keep]) + suffix
}
