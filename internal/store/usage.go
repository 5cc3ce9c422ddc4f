package store

// Usage counters.
type UsageKind string

const (
	UsageKindAI      UsageKind = "ai"
	UsageKindStorage UsageKind = "storage"
)

// Usage event categories used for statistics bucketing.
const (
	CategoryChat  = "chat"
	CategoryImage = "image"
	CategoryOther = "other"
)

// Usage event outcomes.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

type Account struct {
	ID            string
	Tier          string
	AIUsed        int
	AIResetTs     int64
	StorageUsedMB int
	CreatedTs     int64
	UpdatedTs     int64
}

type FindAccount struct {
	ID string
}

type UpsertAccount struct {
	ID   string
	Tier string
	// AIResetTs is only used when the account is created.
	AIResetTs int64
	NowTs     int64
}

type ResetAIUsage struct {
	ID              string
	ExpectedResetTs int64
	NextResetTs     int64
	NowTs           int64
}

type IncrementUsage struct {
	ID    string
	Kind  UsageKind
	Units int
	Limit int
	NowTs int64
}

// UsageEvent is one row of the append-only usage log.
type UsageEvent struct {
	ID               string
	AccountID        string
	Category         string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	QuotaUnits       int
	Status           string
	LatencyMs        int64
	CreatedTs        int64
}

// FindUsageEvent filters the log; CreatedTs bounds are [From, To).
type FindUsageEvent struct {
	AccountID *string
	FromTs    *int64
	ToTs      *int64
}
