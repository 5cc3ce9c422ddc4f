package router

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"docmind/internal/models"
	"docmind/internal/provider"
	"docmind/internal/quota"
	"docmind/internal/store"
	"docmind/internal/translator"
)

// DefaultChatCost is the AI-call allowance one chat request consumes.
const DefaultChatCost = 1

// Router dispatches metered chat work: validate, gate on quota, hand the
// request to the provider manager, then record usage on completion.
type Router struct {
	manager *provider.Manager
	quota   *quota.Client
	now     func() time.Time
}

// New constructs a router. quota may be nil, in which case nothing is metered.
func New(manager *provider.Manager, quotaClient *quota.Client) *Router {
	return &Router{manager: manager, quota: quotaClient, now: time.Now}
}

// Manager exposes the provider manager for status and preference calls.
func (r *Router) Manager() *provider.Manager {
	return r.manager
}

// Call is one unit of chat work on behalf of an account.
type Call struct {
	AccountID string
	Category  string
	// QuotaCost defaults to DefaultChatCost when zero.
	QuotaCost int
	Request   models.RequestConfig
	// ProviderOverride takes precedence over Request.PreferredProvider.
	ProviderOverride string
}

// Chat validates and dispatches call. A streaming reply is metered when its
// terminal delta is delivered; a non-streaming reply is metered before return.
func (r *Router) Chat(ctx context.Context, call Call) (*provider.Reply, error) {
	if err := translator.ValidateRequestConfig(call.Request); err != nil {
		return nil, err
	}
	if call.QuotaCost == 0 {
		call.QuotaCost = DefaultChatCost
	}
	if call.Category == "" {
		call.Category = store.CategoryChat
	}

	if r.metered(call) {
		if _, err := r.quota.Check(ctx, call.AccountID, call.QuotaCost); err != nil {
			return nil, err
		}
	}

	start := r.now()
	reply, err := r.manager.Chat(ctx, call.Request, call.ProviderOverride)
	if err != nil {
		r.record(ctx, call, nil, false, r.now().Sub(start))
		return nil, fmt.Errorf("chat request: %w", err)
	}

	if reply.Stream != nil {
		reply.Stream = &meteredStream{
			Stream: reply.Stream,
			finish: func(usage *models.Usage, ok bool) {
				if ok {
					r.consume(ctx, call)
				}
				r.record(ctx, call, usage, ok, r.now().Sub(start))
			},
		}
		return reply, nil
	}

	r.consume(ctx, call)
	r.record(ctx, call, &reply.Result.Usage, true, r.now().Sub(start))
	return reply, nil
}

// Complete runs an unmetered, non-streaming request. Skill executors use it;
// the skill registry meters the skill as a whole.
func (r *Router) Complete(ctx context.Context, req models.RequestConfig) (*models.CompletionResult, error) {
	if err := translator.ValidateRequestConfig(req); err != nil {
		return nil, err
	}
	req.Stream = false
	reply, err := r.manager.Chat(ctx, req, "")
	if err != nil {
		return nil, err
	}
	if reply.Result == nil {
		// a provider may still hand back a stream
		if reply.Stream == nil {
			return nil, &provider.Error{Provider: reply.ProviderID, Message: "provider returned an empty reply"}
		}
		res, err := provider.Collect(reply.Stream)
		if err != nil {
			return nil, err
		}
		res.ProviderID = reply.ProviderID
		return res, nil
	}
	return reply.Result, nil
}

func (r *Router) metered(call Call) bool {
	return r.quota != nil && call.AccountID != ""
}

func (r *Router) consume(ctx context.Context, call Call) {
	if !r.metered(call) {
		return
	}
	ctx = context.WithoutCancel(ctx)
	if err := r.quota.Consume(ctx, call.AccountID, call.QuotaCost); err != nil {
		slog.Warn("quota consume after completion failed", "account", call.AccountID, "err", err)
	}
}

func (r *Router) record(ctx context.Context, call Call, usage *models.Usage, ok bool, latency time.Duration) {
	if !r.metered(call) {
		return
	}
	rec := quota.Record{
		AccountID: call.AccountID,
		Category:  call.Category,
		Success:   ok,
		Latency:   latency,
	}
	if ok {
		rec.QuotaUnits = call.QuotaCost
	}
	if usage != nil {
		rec.PromptTokens = usage.PromptTokens
		rec.CompletionTokens = usage.CompletionTokens
		rec.TotalTokens = usage.TotalTokens
	}
	if err := r.quota.RecordUsage(context.WithoutCancel(ctx), rec); err != nil {
		slog.Warn("recording usage failed", "account", call.AccountID, "err", err)
	}
}

// meteredStream invokes finish exactly once: with ok=true when the terminal
// delta is delivered, with ok=false on a stream error or an early Close.
type meteredStream struct {
	provider.Stream
	finish func(usage *models.Usage, ok bool)
	once   sync.Once
}

func (s *meteredStream) Recv() (models.StreamDelta, error) {
	delta, err := s.Stream.Recv()
	switch {
	case err == nil && delta.Done:
		s.once.Do(func() { s.finish(delta.Usage, true) })
	case err != nil && !errors.Is(err, io.EOF):
		s.once.Do(func() { s.finish(nil, false) })
	}
	return delta, err
}

func (s *meteredStream) Close() error {
	s.once.Do(func() { s.finish(nil, false) })
	return s.Stream.Close()
}
