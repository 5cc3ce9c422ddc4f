// Package skill registers quota-costed units of AI functionality, ranks them
// against free-text intent and executes them with failures isolated into
// results.
package skill

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"docmind/internal/models"
	"docmind/internal/quota"
)

var (
	ErrSkillNotFound = errors.New("skill not found")
	ErrTierTooLow    = errors.New("subscription tier does not allow this skill")
)

// ExecutionError wraps an executor failure, including a recovered panic.
type ExecutionError struct {
	SkillID string
	Err     error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("skill %s: %v", e.SkillID, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Manifest describes a skill. It is immutable after registration.
type Manifest struct {
	ID             string      `json:"id" yaml:"id"`
	DisplayName    string      `json:"display_name" yaml:"name"`
	Description    string      `json:"description" yaml:"description"`
	Category       string      `json:"category" yaml:"category"`
	TriggerPhrases []string    `json:"trigger_phrases" yaml:"triggers"`
	QuotaCost      int         `json:"quota_cost" yaml:"quota_cost"`
	MinimumTier    models.Tier `json:"minimum_tier" yaml:"minimum_tier"`
}

// Completer is the provider path executors call into.
type Completer interface {
	Complete(ctx context.Context, req models.RequestConfig) (*models.CompletionResult, error)
}

// Context is the input handed to one execution.
type Context struct {
	AccountID string
	Tier      models.Tier
	Input     string
	Options   map[string]string
	// LLM is filled in by the registry when left nil.
	LLM Completer
}

// Option returns the named option or def.
func (c Context) Option(name, def string) string {
	if v, ok := c.Options[name]; ok && strings.TrimSpace(v) != "" {
		return v
	}
	return def
}

// Result is the uniform outcome of an execution. Err carries the typed
// failure for callers inside the process and is not serialised.
type Result struct {
	SkillID  string       `json:"skill_id"`
	Success  bool         `json:"success"`
	Output   string       `json:"output,omitempty"`
	Data     any          `json:"data,omitempty"`
	Provider string       `json:"provider,omitempty"`
	Usage    models.Usage `json:"usage"`
	Error    string       `json:"error,omitempty"`
	Err      error        `json:"-"`
}

// Executor runs a skill.
type Executor interface {
	Execute(ctx context.Context, sc Context) (Result, error)
}

// ExecutorFunc adapts a function to Executor.
type ExecutorFunc func(ctx context.Context, sc Context) (Result, error)

func (f ExecutorFunc) Execute(ctx context.Context, sc Context) (Result, error) { return f(ctx, sc) }

type entry struct {
	manifest Manifest
	exec     Executor
	seq      int
}

// Registry is a keyed upsert of manifests and executors.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry
	nextSeq int

	llm   Completer
	quota *quota.Client
	now   func() time.Time
}

// NewRegistry builds an empty registry. quotaClient may be nil to disable metering.
func NewRegistry(llm Completer, quotaClient *quota.Client) *Registry {
	return &Registry{
		entries: make(map[string]*entry),
		llm:     llm,
		quota:   quotaClient,
		now:     time.Now,
	}
}

// Register adds or replaces a skill. Replacing an id logs a warning and keeps
// the original registration position for tie-breaking.
func (r *Registry) Register(m Manifest, exec Executor) error {
	m.ID = strings.TrimSpace(m.ID)
	if m.ID == "" {
		return errors.New("skill id must not be empty")
	}
	if exec == nil {
		return fmt.Errorf("skill %s: executor must not be nil", m.ID)
	}
	if m.QuotaCost < 0 {
		return fmt.Errorf("skill %s: quota cost must not be negative", m.ID)
	}
	if m.MinimumTier == "" {
		m.MinimumTier = models.TierFree
	}
	if !m.MinimumTier.Valid() {
		return fmt.Errorf("skill %s: unknown minimum tier %q", m.ID, m.MinimumTier)
	}
	if m.DisplayName == "" {
		m.DisplayName = m.ID
	}
	m.TriggerPhrases = append([]string(nil), m.TriggerPhrases...)

	r.mu.Lock()
	defer r.mu.Unlock()

	if existing, ok := r.entries[m.ID]; ok {
		slog.Warn("overwriting registered skill", "skill", m.ID)
		existing.manifest = m
		existing.exec = exec
		return nil
	}
	r.entries[m.ID] = &entry{manifest: m, exec: exec, seq: r.nextSeq}
	r.nextSeq++
	return nil
}

// Get returns the manifest for id.
func (r *Registry) Get(id string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Manifest{}, false
	}
	return e.manifest, true
}

// List returns manifests in registration order.
func (r *Registry) List() []Manifest {
	entries := r.snapshot()
	out := make([]Manifest, len(entries))
	for i, e := range entries {
		out[i] = e.manifest
	}
	return out
}

func (r *Registry) snapshot() []entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]entry, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out
}
