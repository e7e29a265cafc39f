// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/jeranaias/docchat/internal/decoder"
	"github.com/jeranaias/docchat/internal/logger"
	"github.com/jeranaias/docchat/internal/model"
	"github.com/jeranaias/docchat/internal/session"
)

// ErrorNotice is the only failure text a user ever sees.
const ErrorNotice = "Sorry, I encountered an error processing your request."

// DefaultTurnTimeout bounds a turn when Options leaves it unset.
const DefaultTurnTimeout = 120 * time.Second

const defaultReadBuffer = 4096

var (
	// ErrEmptySubmission rejects blank input.
	ErrEmptySubmission = errors.New("submission is empty")

	// ErrTurnInProgress rejects input while a turn is running.
	ErrTurnInProgress = errors.New("a turn is already in progress")

	// ErrTurnFailed wraps the cause of a turn that ended in ErrorNotice.
	ErrTurnFailed = errors.New("turn failed")

	// ErrTurnTimeout is the cause recorded when a turn runs out of time.
	ErrTurnTimeout = errors.New("turn timed out")

	// errUserCancel marks a turn stopped through Cancel.
	errUserCancel = errors.New("turn cancelled")
)

// Transport opens a streamed answer for a question. client.Client
// satisfies it.
type Transport interface {
	Query(ctx context.Context, text string) (io.ReadCloser, error)
}

// Options tunes an Orchestrator.
type Options struct {
	// TurnTimeout bounds a whole turn. Zero means DefaultTurnTimeout and a
	// negative value disables the limit.
	TurnTimeout time.Duration

	// ReadBufferSize is the chunk size read from the transport.
	ReadBufferSize int
}

// Orchestrator runs chat turns against a Transport and records them in a
// session.
type Orchestrator struct {
	session   *session.State
	transport Transport
	timeout   time.Duration
	bufSize   int
	cancelMgr *cancelManager

	mu        sync.Mutex
	state     State
	listeners []func(State)
	lastStats decoder.Stats
}

// New creates an orchestrator writing into sess.
func New(sess *session.State, transport Transport, opts Options) *Orchestrator {
	if opts.TurnTimeout == 0 {
		opts.TurnTimeout = DefaultTurnTimeout
	}
	if opts.ReadBufferSize <= 0 {
		opts.ReadBufferSize = defaultReadBuffer
	}
	return &Orchestrator{
		session:   sess,
		transport: transport,
		timeout:   opts.TurnTimeout,
		bufSize:   opts.ReadBufferSize,
		cancelMgr: newCancelManager(),
	}
}

// Session returns the session the orchestrator writes into.
func (o *Orchestrator) Session() *session.State {
	return o.session
}

// State returns the current lifecycle state.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// OnStateChange registers fn to be called after every transition. fn runs
// on the turn's goroutine.
func (o *Orchestrator) OnStateChange(fn func(State)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.listeners = append(o.listeners, fn)
}

// LastStats returns the decoder counters of the most recent turn.
func (o *Orchestrator) LastStats() decoder.Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.lastStats
}

// Cancel stops the running turn. Its partial answer is dropped and no
// message is added. It reports whether a turn was running.
func (o *Orchestrator) Cancel() bool {
	return o.cancelMgr.cancel(errUserCancel)
}

// Submit runs one turn for text and blocks until it ends.
//
// It returns ErrEmptySubmission or ErrTurnInProgress without touching the
// session. A turn stopped by cancelling ctx or by Cancel returns
// context.Canceled. A failed turn, including one whose ctx deadline passed,
// returns an error wrapping ErrTurnFailed; by then ErrorNotice has already
// been recorded as the assistant's answer.
func (o *Orchestrator) Submit(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptySubmission
	}

	o.mu.Lock()
	if o.state != Idle {
		o.mu.Unlock()
		return ErrTurnInProgress
	}
	o.state = Sending
	turnCtx, cancel := context.WithCancelCause(ctx)
	o.cancelMgr.set(cancel)
	o.mu.Unlock()
	defer o.cancelMgr.clear()

	turnID := logger.NewID()
	log := slog.With("turn", turnID, "session", o.session.ID())
	start := time.Now()

	o.session.AppendMessage(model.RoleUser, text)
	if _, ok := o.session.InFlight(); ok {
		log.Warn("TURN_STALE_PARTIAL_DISCARDED")
		o.session.DiscardInFlight()
	}
	if err := o.session.BeginAssistantTurn(); err != nil {
		return o.fail(log, err)
	}

	o.notify(Sending)
	log.Info("TURN_START", "query_len", len(text))

	runCtx := turnCtx
	if o.timeout > 0 {
		var stop context.CancelFunc
		runCtx, stop = context.WithTimeoutCause(turnCtx, o.timeout, ErrTurnTimeout)
		defer stop()
	}

	stats, err := o.stream(runCtx, text)

	o.mu.Lock()
	o.lastStats = stats
	o.mu.Unlock()

	userCancel := errors.Is(context.Cause(turnCtx), errUserCancel)
	switch {
	case err == nil && !userCancel:
		o.setState(Finalizing)
		if cerr := o.session.CommitInFlight(); cerr != nil {
			return o.fail(log, cerr)
		}
		o.setState(Idle)
		log.Info("TURN_COMPLETE",
			"duration", time.Since(start).Round(time.Millisecond),
			"bytes", stats.Bytes,
			"fragments", stats.Fragments,
			"anomalies", stats.Anomalies(),
		)
		return nil

	case userCancel || errors.Is(ctx.Err(), context.Canceled):
		o.session.DiscardInFlight()
		o.setState(Idle)
		log.Info("TURN_CANCELLED", "duration", time.Since(start).Round(time.Millisecond))
		return context.Canceled

	default:
		return o.fail(log, err)
	}
}

// fail takes the Failed branch: drop the partial answer and record the
// notice in its place.
func (o *Orchestrator) fail(log *slog.Logger, cause error) error {
	o.setState(Failed)
	log.Error("TURN_FAILED", "error", cause)

	if _, ok := o.session.InFlight(); ok {
		o.session.DiscardInFlight()
	}
	o.session.AppendMessage(model.RoleAssistant, ErrorNotice)
	o.setState(Idle)
	return fmt.Errorf("%w: %w", ErrTurnFailed, cause)
}

// stream reads the answer until EOF, appending decoded fragments to the
// in-flight message.
func (o *Orchestrator) stream(ctx context.Context, text string) (decoder.Stats, error) {
	dec := decoder.New()

	body, err := o.transport.Query(ctx, text)
	if err != nil {
		return dec.Stats(), causeOf(ctx, err)
	}
	defer body.Close()

	buf := make([]byte, o.bufSize)
	streaming := false
	for {
		n, rerr := body.Read(buf)
		if n > 0 {
			if !streaming {
				streaming = true
				o.setState(Streaming)
			}
			if err := o.appendAll(dec.Decode(buf[:n])); err != nil {
				return dec.Stats(), err
			}
		}
		if rerr == io.EOF {
			return dec.Stats(), o.appendAll(dec.Flush())
		}
		if rerr != nil {
			return dec.Stats(), causeOf(ctx, rerr)
		}
	}
}

func (o *Orchestrator) appendAll(fragments []string) error {
	for _, f := range fragments {
		if err := o.session.AppendToInFlight(f); err != nil {
			return err
		}
	}
	return nil
}

// causeOf prefers the context's cause, so a timeout reads as
// ErrTurnTimeout rather than a bare transport error.
func causeOf(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); cause != nil {
			return fmt.Errorf("%w (%v)", cause, err)
		}
	}
	return err
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.notify(s)
}

func (o *Orchestrator) notify(s State) {
	o.mu.Lock()
	listeners := make([]func(State), len(o.listeners))
	copy(listeners, o.listeners)
	o.mu.Unlock()

	for _, fn := range listeners {
		fn(s)
	}
}
