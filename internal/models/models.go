package models

// Role values accepted on a GenericMessage.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// DefaultTemperature is applied when a caller does not specify one.
const DefaultTemperature = 0.7

// Message represents a single conversational message in the generic schema.
type Message struct {
	Role    string
	Content string
}

// RequestConfig is the canonical representation of one unit of chat work.
// It is treated as immutable once dispatched.
type RequestConfig struct {
	Messages          []Message
	Stream            bool
	Temperature       float64
	MaxTokens         int
	ModelOverride     string
	PreferredProvider string
}

// Clone returns a deep copy so adapters can never alias the caller's slice.
func (r RequestConfig) Clone() RequestConfig {
	out := r
	out.Messages = make([]Message, len(r.Messages))
	copy(out.Messages, r.Messages)
	return out
}

// Marker identifies synthetic deltas that bracket a reasoning run.
type Marker int

const (
	MarkerNone Marker = iota
	MarkerReasoningOpen
	MarkerReasoningClose
)

// StreamDelta is one ordered event of a streamed response.
type StreamDelta struct {
	Content        string
	Done           bool
	ReasoningPhase bool
	Marker         Marker
	Usage          *Usage
}

// IsMarker reports whether the delta is a synthetic reasoning boundary.
func (d StreamDelta) IsMarker() bool { return d.Marker != MarkerNone }

// CompletionResult is the terminal shape of a non-streaming call.
type CompletionResult struct {
	Content       string
	Usage         Usage
	ModelID       string
	ReasoningText string
	ProviderID    string
}

// Usage records token accounting information.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Tier is an account subscription level.
type Tier string

const (
	TierFree       Tier = "free"
	TierPro        Tier = "pro"
	TierEnterprise Tier = "enterprise"
)

// Rank orders tiers; unknown tiers rank below free.
func (t Tier) Rank() int {
	switch t {
	case TierFree:
		return 1
	case TierPro:
		return 2
	case TierEnterprise:
		return 3
	default:
		return 0
	}
}

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool { return t.Rank() > 0 }

// Allows reports whether an account on t may use something requiring min.
func (t Tier) Allows(min Tier) bool { return t.Rank() >= min.Rank() }
