// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/docchat/internal/model"
)

// ErrInvalidState is returned when an operation does not match the current
// in-flight slot.
var ErrInvalidState = errors.New("session: invalid state")

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is a point-in-time copy of the session transcript.
type Snapshot struct {
	// Version increases by one on every mutation.
	Version uint64

	// Messages is the committed log. The slice is owned by the snapshot.
	Messages []model.Message

	// InFlight holds the partial assistant text when HasInFlight is set.
	InFlight    string
	HasInFlight bool
}

// Transcript returns the log followed by the in-flight message, if any.
func (s Snapshot) Transcript() []model.Entry {
	entries := make([]model.Entry, 0, len(s.Messages)+1)
	for _, m := range s.Messages {
		entries = append(entries, model.Entry{Message: m})
	}
	if s.HasInFlight {
		entries = append(entries, model.Entry{
			Message: model.NewMessage(model.RoleAssistant, s.InFlight),
			Partial: true,
		})
	}
	return entries
}

// LastAssistant returns the content of the most recent committed assistant
// message.
func (s Snapshot) LastAssistant() (string, bool) {
	for i := len(s.Messages) - 1; i >= 0; i-- {
		if s.Messages[i].Role == model.RoleAssistant {
			return s.Messages[i].Content, true
		}
	}
	return "", false
}

// =============================================================================
// STATE
// =============================================================================

// Observer receives a snapshot after each mutation.
type Observer func(Snapshot)

// State is the chat log plus the optional in-flight assistant message.
// It is safe for concurrent use; observers are called outside the lock.
type State struct {
	mu sync.Mutex

	id       string
	version  uint64
	messages []model.Message

	inFlight    strings.Builder
	hasInFlight bool

	nextObserver int
	observers    map[int]Observer
}

// New creates an empty session.
func New() *State {
	return &State{
		id:        "sess_" + uuid.NewString(),
		observers: make(map[int]Observer),
	}
}

// ID returns the session identifier, used for log correlation.
func (s *State) ID() string {
	return s.id
}

// Subscribe registers fn to be called after every mutation. The returned
// function removes the subscription.
func (s *State) Subscribe(fn Observer) func() {
	s.mu.Lock()
	id := s.nextObserver
	s.nextObserver++
	s.observers[id] = fn
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.observers, id)
			s.mu.Unlock()
		})
	}
}

// Snapshot returns the current transcript.
func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Messages returns a copy of the committed log.
func (s *State) Messages() []model.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Len returns the number of committed messages.
func (s *State) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.messages)
}

// InFlight returns the partial assistant text and whether a turn is active.
func (s *State) InFlight() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight.String(), s.hasInFlight
}

// =============================================================================
// MUTATIONS
// =============================================================================

// AppendMessage commits a message to the log and returns the new log length.
func (s *State) AppendMessage(role model.Role, content string) int {
	s.mu.Lock()
	s.messages = append(s.messages, model.NewMessage(role, content))
	n := len(s.messages)
	snap, obs := s.mutatedLocked()
	s.mu.Unlock()

	notify(obs, snap)
	return n
}

// BeginAssistantTurn opens an empty in-flight assistant message.
func (s *State) BeginAssistantTurn() error {
	s.mu.Lock()
	if s.hasInFlight {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.hasInFlight = true
	s.inFlight.Reset()
	snap, obs := s.mutatedLocked()
	s.mu.Unlock()

	notify(obs, snap)
	return nil
}

// AppendToInFlight concatenates fragment onto the in-flight message.
func (s *State) AppendToInFlight(fragment string) error {
	s.mu.Lock()
	if !s.hasInFlight {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.inFlight.WriteString(fragment)
	snap, obs := s.mutatedLocked()
	s.mu.Unlock()

	notify(obs, snap)
	return nil
}

// CommitInFlight moves the in-flight message into the log and clears the slot.
func (s *State) CommitInFlight() error {
	s.mu.Lock()
	if !s.hasInFlight {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.messages = append(s.messages, model.NewMessage(model.RoleAssistant, s.inFlight.String()))
	s.clearInFlightLocked()
	snap, obs := s.mutatedLocked()
	s.mu.Unlock()

	notify(obs, snap)
	return nil
}

// DiscardInFlight clears the slot without committing.
func (s *State) DiscardInFlight() error {
	s.mu.Lock()
	if !s.hasInFlight {
		s.mu.Unlock()
		return ErrInvalidState
	}
	s.clearInFlightLocked()
	snap, obs := s.mutatedLocked()
	s.mu.Unlock()

	notify(obs, snap)
	return nil
}

// =============================================================================
// HELPERS
// =============================================================================

func (s *State) clearInFlightLocked() {
	s.hasInFlight = false
	s.inFlight.Reset()
}

// mutatedLocked bumps the version and returns what observers need.
func (s *State) mutatedLocked() (Snapshot, []Observer) {
	s.version++
	obs := make([]Observer, 0, len(s.observers))
	for _, fn := range s.observers {
		obs = append(obs, fn)
	}
	return s.snapshotLocked(), obs
}

func (s *State) snapshotLocked() Snapshot {
	msgs := make([]model.Message, len(s.messages))
	copy(msgs, s.messages)
	return Snapshot{
		Version:     s.version,
		Messages:    msgs,
		InFlight:    s.inFlight.String(),
		HasInFlight: s.hasInFlight,
	}
}

func notify(obs []Observer, snap Snapshot) {
	for _, fn := range obs {
		fn(snap)
	}
}
