package provider

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"docmind/internal/models"
)

// DefaultProbeTimeout bounds a single availability probe.
const DefaultProbeTimeout = 5 * time.Second

// Status describes one registered provider as seen by a single resolution pass.
type Status struct {
	ID          string
	DisplayName string
	Available   bool
	Preferred   bool
}

// Manager holds the ordered provider list and the sticky preferred choice.
// Configuration calls (AddProvider, SetPreferred) are expected to be rare
// relative to Chat; the lock keeps them safe to interleave.
type Manager struct {
	mu           sync.RWMutex
	providers    []Provider
	byID         map[string]Provider
	preferred    string
	probeTimeout time.Duration
}

// NewManager constructs an empty manager.
func NewManager() *Manager {
	return &Manager{
		byID:         make(map[string]Provider),
		probeTimeout: DefaultProbeTimeout,
	}
}

// SetProbeTimeout overrides the availability probe bound.
func (m *Manager) SetProbeTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.probeTimeout = d
}

// AddProvider appends p to the registration order.
func (m *Manager) AddProvider(p Provider) error {
	if p == nil {
		return errors.New("provider must not be nil")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.byID[p.ID()]; exists {
		return fmt.Errorf("provider %q already registered", p.ID())
	}
	m.byID[p.ID()] = p
	m.providers = append(m.providers, p)
	return nil
}

// SetPreferred makes id the sticky choice. Unknown ids are ignored with a warning.
func (m *Manager) SetPreferred(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byID[id]; !ok {
		slog.Warn("ignoring unknown preferred provider", "provider", id)
		return false
	}
	m.preferred = id
	slog.Info("preferred provider changed", "provider", id)
	return true
}

// Preferred returns the sticky provider id, or "" when unset.
func (m *Manager) Preferred() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.preferred
}

// Providers probes every provider and reports its status in registration order.
func (m *Manager) Providers(ctx context.Context) []Status {
	list, preferred, _ := m.snapshot()
	out := make([]Status, 0, len(list))
	for _, p := range list {
		out = append(out, Status{
			ID:          p.ID(),
			DisplayName: p.DisplayName(),
			Available:   m.probe(ctx, p),
			Preferred:   p.ID() == preferred,
		})
	}
	return out
}

// CurrentProvider resolves the provider to use: the override when available,
// then the sticky preferred provider when available, then the first available
// provider in registration order. It returns nil when nothing is available.
func (m *Manager) CurrentProvider(ctx context.Context, overrideID string) Provider {
	list, preferred, byID := m.snapshot()

	for _, id := range []string{overrideID, preferred} {
		if id == "" {
			continue
		}
		if p, ok := byID[id]; ok && m.probe(ctx, p) {
			return p
		}
	}
	for _, p := range list {
		if p.ID() == overrideID || p.ID() == preferred {
			// already probed above in this pass
			continue
		}
		if m.probe(ctx, p) {
			return p
		}
	}
	return nil
}

// Chat resolves a primary provider and attempts it. On failure the remaining
// providers are attempted once each in registration order, with no backoff.
// A streaming reply is handed back only after its first delta arrived, so a
// fallback never follows output that already reached the caller.
func (m *Manager) Chat(ctx context.Context, req models.RequestConfig, overrideID string) (*Reply, error) {
	if overrideID == "" {
		overrideID = req.PreferredProvider
	}

	primary := m.CurrentProvider(ctx, overrideID)
	if primary == nil {
		return nil, fmt.Errorf("%w: all probes failed", ErrNoProviderAvailable)
	}

	reply, lastErr := m.attempt(ctx, primary, req)
	if lastErr == nil {
		return reply, nil
	}

	list, _, _ := m.snapshot()
	for _, p := range list {
		if p.ID() == primary.ID() {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !m.probe(ctx, p) {
			slog.Debug("skipping unavailable fallback provider", "provider", p.ID())
			continue
		}
		slog.Info("failing over to next provider", "provider", p.ID())
		reply, err := m.attempt(ctx, p, req)
		if err == nil {
			return reply, nil
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%w: %w", ErrNoProviderAvailable, lastErr)
}

func (m *Manager) attempt(ctx context.Context, p Provider, req models.RequestConfig) (*Reply, error) {
	reply, err := p.Chat(ctx, req.Clone())
	if err != nil {
		slog.Warn("provider chat failed", "provider", p.ID(), "err", err)
		return nil, err
	}
	if reply == nil || (reply.Stream == nil && reply.Result == nil) {
		err := &Error{Provider: p.ID(), Message: "provider returned an empty reply"}
		slog.Warn("provider chat failed", "provider", p.ID(), "err", err)
		return nil, err
	}
	reply.ProviderID = p.ID()
	if reply.Result != nil {
		reply.Result.ProviderID = p.ID()
	}
	if reply.Stream == nil {
		return reply, nil
	}

	first, err := reply.Stream.Recv()
	if err != nil && !errors.Is(err, io.EOF) {
		_ = reply.Stream.Close()
		slog.Warn("provider stream failed before first delta", "provider", p.ID(), "err", err)
		return nil, err
	}
	reply.Stream = &primedStream{first: first, firstErr: err, Stream: reply.Stream}
	return reply, nil
}

func (m *Manager) probe(ctx context.Context, p Provider) (ok bool) {
	m.mu.RLock()
	timeout := m.probeTimeout
	m.mu.RUnlock()

	defer func() {
		if r := recover(); r != nil {
			slog.Error("availability probe panicked", "provider", p.ID(), "panic", r)
			ok = false
		}
	}()

	probeCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return p.IsAvailable(probeCtx)
}

func (m *Manager) snapshot() ([]Provider, string, map[string]Provider) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	list := make([]Provider, len(m.providers))
	copy(list, m.providers)
	byID := make(map[string]Provider, len(m.byID))
	for id, p := range m.byID {
		byID[id] = p
	}
	return list, m.preferred, byID
}

// primedStream replays the delta pulled during failover before delegating.
type primedStream struct {
	Stream
	first    models.StreamDelta
	firstErr error
	replayed bool
}

func (s *primedStream) Recv() (models.StreamDelta, error) {
	if !s.replayed {
		s.replayed = true
		return s.first, s.firstErr
	}
	return s.Stream.Recv()
}
