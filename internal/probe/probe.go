// Package probe checks JSON endpoints through a jsonrest client and journals
// every outcome.
package probe

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"jsonrest/internal/journal"
	"jsonrest/internal/shared"
	"jsonrest/pkg/jsonrest"
)

// Target is one probed path on the client's endpoint.
type Target struct {
	Name   string
	Path   string
	Params jsonrest.Params
}

// Getter is the part of *jsonrest.Client the prober uses.
type Getter interface {
	Get(ctx context.Context, path string, params jsonrest.Params, headers jsonrest.Headers) (*jsonrest.Response, error)
}

// Transition is reported when a target changes between up and down.
type Transition struct {
	Target string
	Up     bool
	Entry  journal.Entry
}

// Notifier receives transitions.
type Notifier interface {
	Notify(ctx context.Context, t Transition) error
}

// Config wires a Prober.
type Config struct {
	Client   Getter
	Store    journal.Store
	Notifier Notifier
	Logger   *slog.Logger
}

// Prober runs checks. Safe for concurrent use across targets: calls on the
// shared client are serialized, since a jsonrest client carries one request
// at a time.
type Prober struct {
	client   Getter
	store    journal.Store
	notifier Notifier
	log      *slog.Logger
	now      func() time.Time
	// inflight holds a token while the client is in use.
	inflight chan struct{}

	mu   sync.Mutex
	last map[string]bool
}

// New builds a Prober. Notifier may be nil.
func New(cfg Config) *Prober {
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Prober{
		client:   cfg.Client,
		store:    cfg.Store,
		notifier: cfg.Notifier,
		log:      log.With("component", "probe"),
		now:      time.Now,
		inflight: make(chan struct{}, 1),
		last:     make(map[string]bool),
	}
}

// Restore loads the last known state of every target from the journal so a
// restart does not report a transition for a target that stayed down.
func (p *Prober) Restore(ctx context.Context) error {
	latest, err := p.store.Latest(ctx)
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, e := range latest {
		p.last[e.Target] = e.Up
	}
	p.log.Info("probe state restored", "targets", len(latest))
	return nil
}

// Check probes t once, records the outcome and notifies on a transition.
// The returned error is only set when the entry could not be recorded; a
// down target is reported through Entry.Up.
func (p *Prober) Check(ctx context.Context, t Target) (journal.Entry, error) {
	rid := uuid.NewString()
	select {
	case p.inflight <- struct{}{}:
	case <-ctx.Done():
		return journal.Entry{Target: t.Name, Path: t.Path, RequestID: rid}, ctx.Err()
	}
	start := p.now()
	resp, err := p.client.Get(ctx, t.Path, t.Params, jsonrest.Headers{"X-Request-ID": rid})
	<-p.inflight

	e := journal.Entry{
		Target:    t.Name,
		Path:      t.Path,
		Latency:   p.now().Sub(start),
		RequestID: rid,
		CheckedAt: start.UTC(),
	}
	fill(&e, resp, err)

	if ctx.Err() != nil {
		// shutting down: the outcome says nothing about the target
		return e, ctx.Err()
	}

	id, recErr := p.store.Record(ctx, e)
	if recErr != nil {
		p.log.Error("recording probe result failed", "target", t.Name, "error", recErr)
		return e, recErr
	}
	e.ID = id

	lvl := slog.LevelInfo
	if !e.Up {
		lvl = slog.LevelWarn
	}
	p.log.Log(ctx, lvl, "probe checked",
		"target", t.Name, "status", e.Status, "up", e.Up,
		"attempts", e.Attempts, "latency", e.Latency, "request_id", rid)

	if changed := p.swap(t.Name, e.Up); changed {
		p.notify(ctx, Transition{Target: t.Name, Up: e.Up, Entry: e})
	}
	return e, nil
}

// State reports the last observed state of target.
func (p *Prober) State(target string) (up, known bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	up, known = p.last[target]
	return up, known
}

// swap stores up and reports a transition. The first observation of an up
// target is not a transition; a first observation of a down one is.
func (p *Prober) swap(target string, up bool) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	prev, known := p.last[target]
	p.last[target] = up
	if !known {
		return !up
	}
	return prev != up
}

func (p *Prober) notify(ctx context.Context, t Transition) {
	if p.notifier == nil {
		return
	}
	if err := p.notifier.Notify(ctx, t); err != nil {
		p.log.Error("probe notification failed", "target", t.Target, "up", t.Up, "error", err)
	}
}

func fill(e *journal.Entry, resp *jsonrest.Response, err error) {
	if err == nil {
		e.Status = resp.Code
		e.Up = resp.Success()
		e.Attempts = resp.Attempts
		return
	}
	// the root cause reads better in the journal than the wrapped chain
	e.Error = shared.Cause(err).Error()
	e.Kind = jsonrest.KindOf(err).String()
	e.Attempts = 1

	var exhausted *jsonrest.ExhaustedError
	var propagated *jsonrest.PropagatedError
	switch {
	case errors.As(err, &exhausted):
		e.Attempts = exhausted.Attempts
		e.Kind = exhausted.Kind.String()
	case errors.As(err, &propagated):
		e.Attempts = propagated.Attempt
		e.Kind = propagated.Kind.String()
	}
}
