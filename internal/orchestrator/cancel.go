// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package orchestrator

import (
	"context"
	"sync"
)

// cancelManager holds the active turn's cancel function. Cancel is called
// from UI goroutines while the turn runs on its own.
type cancelManager struct {
	mu         sync.Mutex
	cancelFunc context.CancelCauseFunc
}

func newCancelManager() *cancelManager {
	return &cancelManager{}
}

// set stores the cancel function for a new turn.
func (cm *cancelManager) set(fn context.CancelCauseFunc) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.cancelFunc = fn
}

// cancel invokes the stored function with cause and clears it. Safe to call
// with no turn running.
func (cm *cancelManager) cancel(cause error) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc == nil {
		return false
	}
	cm.cancelFunc(cause)
	cm.cancelFunc = nil
	return true
}

// clear releases the turn's context without marking it cancelled by the
// user.
func (cm *cancelManager) clear() {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.cancelFunc != nil {
		cm.cancelFunc(context.Canceled)
		cm.cancelFunc = nil
	}
}
