// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"sync"

	"github.com/google/uuid"
)

// BackgroundTaskCoordinator asks the host to keep the process awake
// while an upload is in flight. Tokens come from Register and are
// handed back to End. Implementations must be safe to call from any
// goroutine.
type BackgroundTaskCoordinator interface {
	RegisterBackgroundTask() uuid.UUID
	// EndBackgroundTaskIfActive releases the token. It returns false
	// for a token that is unknown or already ended.
	EndBackgroundTaskIfActive(token uuid.UUID) bool
}

// NOPBackgroundTaskCoordinator is for hosts that never suspend.
type NOPBackgroundTaskCoordinator struct{}

func (NOPBackgroundTaskCoordinator) RegisterBackgroundTask() uuid.UUID { return uuid.New() }

func (NOPBackgroundTaskCoordinator) EndBackgroundTaskIfActive(uuid.UUID) bool { return false }

// TrackedBackgroundTaskCoordinator records outstanding tokens and
// tells the host when each one begins and ends.
type TrackedBackgroundTaskCoordinator struct {
	onBegin func(uuid.UUID)
	onEnd   func(uuid.UUID)

	mu     sync.Mutex
	active map[uuid.UUID]struct{}
}

// NewTrackedBackgroundTaskCoordinator returns a coordinator. Either
// hook may be nil. Hooks run with no lock held.
func NewTrackedBackgroundTaskCoordinator(onBegin, onEnd func(uuid.UUID)) *TrackedBackgroundTaskCoordinator {
	return &TrackedBackgroundTaskCoordinator{
		onBegin: onBegin,
		onEnd:   onEnd,
		active:  make(map[uuid.UUID]struct{}),
	}
}

func (c *TrackedBackgroundTaskCoordinator) RegisterBackgroundTask() uuid.UUID {
	token := uuid.New()
	c.mu.Lock()
	c.active[token] = struct{}{}
	c.mu.Unlock()
	if c.onBegin != nil {
		c.onBegin(token)
	}
	return token
}

func (c *TrackedBackgroundTaskCoordinator) EndBackgroundTaskIfActive(token uuid.UUID) bool {
	c.mu.Lock()
	_, ok := c.active[token]
	delete(c.active, token)
	c.mu.Unlock()
	if !ok {
		return false
	}
	if c.onEnd != nil {
		c.onEnd(token)
	}
	return true
}

// Active returns the number of outstanding tokens.
func (c *TrackedBackgroundTaskCoordinator) Active() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.active)
}
