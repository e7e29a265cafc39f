// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeranaias/docchat/internal/model"
)

func TestNew(t *testing.T) {
	s := New()

	if !strings.HasPrefix(s.ID(), "sess_") {
		t.Errorf("ID() = %q, want sess_ prefix", s.ID())
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d, want 0", s.Len())
	}
	if _, ok := s.InFlight(); ok {
		t.Error("new session should have no in-flight message")
	}
}

func TestAppendMessageReturnsLength(t *testing.T) {
	s := New()

	assert.Equal(t, 1, s.AppendMessage(model.RoleUser, "one"))
	assert.Equal(t, 2, s.AppendMessage(model.RoleAssistant, "two"))
	assert.Equal(t, 3, s.AppendMessage(model.RoleUser, "three"))
}

func TestBeginAssistantTurnTwice(t *testing.T) {
	s := New()

	require.NoError(t, s.BeginAssistantTurn())
	err := s.BeginAssistantTurn()
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("second BeginAssistantTurn() error = %v, want ErrInvalidState", err)
	}

	require.NoError(t, s.DiscardInFlight())
	assert.NoError(t, s.BeginAssistantTurn(), "begin after discard should succeed")

	require.NoError(t, s.CommitInFlight())
	assert.NoError(t, s.BeginAssistantTurn(), "begin after commit should succeed")
}

func TestInFlightOperationsWithoutTurn(t *testing.T) {
	s := New()

	assert.ErrorIs(t, s.AppendToInFlight("x"), ErrInvalidState)
	assert.ErrorIs(t, s.CommitInFlight(), ErrInvalidState)
	assert.ErrorIs(t, s.DiscardInFlight(), ErrInvalidState)
	assert.Equal(t, 0, s.Len())
}

func TestCommitInFlight(t *testing.T) {
	s := New()
	s.AppendMessage(model.RoleUser, "What is the capital of France?")

	require.NoError(t, s.BeginAssistantTurn())
	for _, frag := range []string{"Paris", " is", " the capital."} {
		require.NoError(t, s.AppendToInFlight(frag))
	}

	partial, ok := s.InFlight()
	require.True(t, ok)
	assert.Equal(t, "Paris is the capital.", partial)

	require.NoError(t, s.CommitInFlight())

	want := []model.Message{
		{Role: model.RoleUser, Content: "What is the capital of France?"},
		{Role: model.RoleAssistant, Content: "Paris is the capital."},
	}
	assert.Equal(t, want, s.Messages())

	_, ok = s.InFlight()
	assert.False(t, ok, "in-flight slot should be cleared after commit")
}

func TestDiscardInFlight(t *testing.T) {
	s := New()
	s.AppendMessage(model.RoleUser, "Hello")

	require.NoError(t, s.BeginAssistantTurn())
	require.NoError(t, s.AppendToInFlight("partial"))
	require.NoError(t, s.DiscardInFlight())

	assert.Equal(t, 1, s.Len())
	_, ok := s.InFlight()
	assert.False(t, ok)

	// A fresh turn starts empty.
	require.NoError(t, s.BeginAssistantTurn())
	text, _ := s.InFlight()
	assert.Empty(t, text)
}

func TestMessagesAreImmutable(t *testing.T) {
	s := New()
	s.AppendMessage(model.RoleUser, "first")
	s.AppendMessage(model.RoleAssistant, "second")

	got := s.Messages()
	got[0].Content = "mutated"
	got = append(got, model.NewMessage(model.RoleUser, "extra"))

	again := s.Messages()
	assert.Equal(t, "first", again[0].Content)
	assert.Len(t, again, 2)
	assert.Equal(t, again, s.Messages(), "repeated reads should be identical")

	snap := s.Snapshot()
	snap.Messages[1].Content = "changed"
	assert.Equal(t, "second", s.Messages()[1].Content)
}

func TestCommittedOrderPreserved(t *testing.T) {
	s := New()
	for i := 0; i < 5; i++ {
		s.AppendMessage(model.RoleUser, strings.Repeat("q", i+1))
		require.NoError(t, s.BeginAssistantTurn())
		require.NoError(t, s.AppendToInFlight(strings.Repeat("a", i+1)))
		require.NoError(t, s.CommitInFlight())
	}

	msgs := s.Messages()
	require.Len(t, msgs, 10)
	for i := 0; i < 5; i++ {
		assert.Equal(t, model.RoleUser, msgs[2*i].Role)
		assert.Equal(t, strings.Repeat("q", i+1), msgs[2*i].Content)
		assert.Equal(t, model.RoleAssistant, msgs[2*i+1].Role)
		assert.Equal(t, strings.Repeat("a", i+1), msgs[2*i+1].Content)
	}
}

func TestSubscribeNotifiesEveryMutation(t *testing.T) {
	s := New()

	var snaps []Snapshot
	cancel := s.Subscribe(func(snap Snapshot) {
		snaps = append(snaps, snap)
	})

	s.AppendMessage(model.RoleUser, "Hi")
	require.NoError(t, s.BeginAssistantTurn())
	require.NoError(t, s.AppendToInFlight("Hel"))
	require.NoError(t, s.AppendToInFlight("lo"))
	require.NoError(t, s.CommitInFlight())

	require.Len(t, snaps, 5)
	for i, snap := range snaps {
		assert.Equal(t, uint64(i+1), snap.Version)
	}
	assert.Equal(t, "Hel", snaps[2].InFlight)
	assert.True(t, snaps[3].HasInFlight)
	assert.False(t, snaps[4].HasInFlight)
	assert.Len(t, snaps[4].Messages, 2)

	// Failed operations do not notify.
	_ = s.CommitInFlight()
	assert.Len(t, snaps, 5)

	cancel()
	cancel()
	s.AppendMessage(model.RoleUser, "after")
	assert.Len(t, snaps, 5, "no notifications after cancel")
}

func TestObserverMayReadState(t *testing.T) {
	s := New()

	var seen int
	s.Subscribe(func(Snapshot) {
		seen = s.Len()
	})

	s.AppendMessage(model.RoleUser, "x")
	assert.Equal(t, 1, seen)
}

func TestSnapshotTranscript(t *testing.T) {
	s := New()
	s.AppendMessage(model.RoleUser, "Q")
	require.NoError(t, s.BeginAssistantTurn())
	require.NoError(t, s.AppendToInFlight("A"))

	entries := s.Snapshot().Transcript()
	require.Len(t, entries, 2)
	assert.False(t, entries[0].Partial)
	assert.True(t, entries[1].Partial)
	assert.Equal(t, model.RoleAssistant, entries[1].Role)
	assert.Equal(t, "A", entries[1].Content)

	_, ok := s.Snapshot().LastAssistant()
	assert.False(t, ok, "partial message is not a committed answer")

	require.NoError(t, s.CommitInFlight())
	last, ok := s.Snapshot().LastAssistant()
	assert.True(t, ok)
	assert.Equal(t, "A", last)
}

func TestConcurrentReadsDuringTurn(t *testing.T) {
	s := New()
	s.AppendMessage(model.RoleUser, "go")
	require.NoError(t, s.BeginAssistantTurn())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				_ = s.Snapshot().Transcript()
			}
		}()
	}

	for i := 0; i < 100; i++ {
		require.NoError(t, s.AppendToInFlight("."))
	}
	wg.Wait()

	text, _ := s.InFlight()
	assert.Len(t, text, 100)
}
