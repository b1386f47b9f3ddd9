package types

import (
	"time"

	"github.com/google/uuid"
)

// IndexStatus tracks where an experience is in the ingestion lifecycle.
// The web backend polls it to mark submissions "indexed" or "failed".
type IndexStatus string

const (
	StatusUnknown IndexStatus = "unknown"
	StatusPending IndexStatus = "pending"
	StatusIndexed IndexStatus = "indexed"
	StatusFailed  IndexStatus = "failed"
)

// Round is one interview round inside an experience.
type Round struct {
	Number      int
	Type        string
	Name        string
	DurationMin int
	Mode        string
	Description string
	Difficulty  string
}

// Question is one interview question inside an experience.
type Question struct {
	Text       string
	Type       string
	Topic      string
	Subtopic   string
	Difficulty string
	Approach   string
}

// Experience is the canonical record owned by the relational store.
// The service treats it as read-only input to the ingestion pipeline.
type Experience struct {
	ID              uuid.UUID
	CompanyName     string
	Role            string
	InterviewYear   int
	InterviewMonth  int
	OfferStatus     string
	DifficultyLevel int
	Overall         string
	PreparationTime string
	Tips            string
	Rounds          []Round
	Questions       []Question
}

// Chunk is a bounded span of the flattened experience document, the unit
// of retrieval. Company, Role and Year are denormalized for filtering and
// attribution. Offsets are rune positions into the source document.
type Chunk struct {
	ID           uuid.UUID
	ExperienceID uuid.UUID
	Index        int
	Text         string
	StartOffset  int
	EndOffset    int
	Company      string
	Role         string
	Year         int
}

// QueryState is the per-request state machine of the query service.
type QueryState string

const (
	StateReceived     QueryState = "received"
	StateEmbedding    QueryState = "embedding"
	StateRetrieving   QueryState = "retrieving"
	StateSynthesizing QueryState = "synthesizing"
	StateCompleted    QueryState = "completed"
	StateFailed       QueryState = "failed"
	StateTimedOut     QueryState = "timed_out"
)

// Source attributes one retrieved chunk in a query response.
type Source struct {
	ChunkID      string  `json:"chunk_id"`
	ExperienceID string  `json:"source_experience_id"`
	Score        float64 `json:"score"`
	Snippet      string  `json:"snippet"`
	Company      string  `json:"company,omitempty"`
	Role         string  `json:"role,omitempty"`
	Year         int     `json:"year,omitempty"`
}

// Trends is a lightweight aggregate attached to multi-source answers.
type Trends struct {
	CompaniesMentioned []string `json:"companies_mentioned"`
	YearRange          []int    `json:"year_range,omitempty"`
	TotalExperiences   int      `json:"total_experiences"`
}

// QueryResult is the query record produced per request. The caller owns
// its persistence; the service keeps no per-request state.
type QueryResult struct {
	Query                string     `json:"query"`
	Company              string     `json:"company,omitempty"`
	Year                 int        `json:"year,omitempty"`
	Answer               string     `json:"answer"`
	Sources              []Source   `json:"sources"`
	Confidence           float64    `json:"confidence"`
	InsufficientEvidence bool       `json:"insufficient_evidence"`
	Trends               *Trends    `json:"trends,omitempty"`
	State                QueryState `json:"state"`
	LatencyMS            int64      `json:"latency_ms"`
	Timestamp            time.Time  `json:"timestamp"`
}
