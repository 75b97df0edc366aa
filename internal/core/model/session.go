// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package model

import (
	"context"
	"errors"
	"sync"
	"time"
)

// SessionState is the single state variable of a generation session.
type SessionState string

const (
	StateIdle      SessionState = "idle"
	StateRunning   SessionState = "running"
	StateCancelled SessionState = "cancelled"
	StateFinished  SessionState = "finished"
	StateFailed    SessionState = "failed"
)

// ErrSessionRunning is returned when a start or reset arrives while a run is
// in progress.
var ErrSessionRunning = errors.New("a generation is already running for this session")

// Session holds one user's current run: state, progress and the results
// appended so far. Only the orchestrator writes to a running session; every
// other caller reads snapshots.
//
// Terminal transitions (Finish, MarkCancelled, Fail) are ignored unless the
// session is running, so a stale run cannot overwrite a newer one.
type Session struct {
	mu        sync.RWMutex
	state     SessionState
	requestID string
	variant   string
	progress  int
	results   []Record
	failure   *Failure
	warnings  []string
	cancel    context.CancelFunc
	startedAt time.Time
	updatedAt time.Time
}

// SessionSnapshot is a consistent copy of a session for readers.
type SessionSnapshot struct {
	State     SessionState `json:"state"`
	RequestID string       `json:"request_id,omitempty"`
	Variant   string       `json:"variant,omitempty"`
	Progress  int          `json:"progress"`
	Results   []Record     `json:"results"`
	Failure   *Failure     `json:"failure,omitempty"`
	Warnings  []string     `json:"warnings,omitempty"`
	StartedAt time.Time    `json:"started_at,omitempty"`
	UpdatedAt time.Time    `json:"updated_at,omitempty"`
}

func NewSession() *Session {
	return &Session{state: StateIdle}
}

// Begin moves the session into running for a new request. Results and
// failure from a previous run are discarded. cancel is invoked by Cancel and
// once the run reaches a terminal state.
func (s *Session) Begin(requestID string, variant string, cancel context.CancelFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return ErrSessionRunning
	}
	now := time.Now()
	s.state = StateRunning
	s.requestID = requestID
	s.variant = variant
	s.progress = 0
	s.results = nil
	s.failure = nil
	s.warnings = nil
	s.cancel = cancel
	s.startedAt = now
	s.updatedAt = now
	return nil
}

// SetProgress records progress for the running request.
func (s *Session) SetProgress(progress int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.progress = progress
	s.updatedAt = time.Now()
}

// Append publishes records as soon as they are parsed.
func (s *Session) Append(records ...Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.results = append(s.results, records...)
	s.updatedAt = time.Now()
}

// Finish marks a fully successful run.
func (s *Session) Finish() {
	s.terminate(StateFinished, 100, nil)
}

// MarkCancelled marks a user-stopped run. Results are kept, progress resets.
func (s *Session) MarkCancelled() {
	s.terminate(StateCancelled, 0, nil)
}

// Fail marks a failed run, keeping the progress reached so far.
func (s *Session) Fail(failure *Failure) {
	s.terminate(StateFailed, -1, failure)
}

func (s *Session) terminate(state SessionState, progress int, failure *Failure) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRunning {
		return
	}
	s.state = state
	if progress >= 0 {
		s.progress = progress
	}
	s.failure = failure
	s.updatedAt = time.Now()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
}

// Cancel signals the running request to stop. It returns false when nothing
// is running. The state changes once the orchestrator observes the signal.
func (s *Session) Cancel() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateRunning || s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Reset clears a finished, cancelled or failed session back to idle.
func (s *Session) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateRunning {
		return ErrSessionRunning
	}
	s.state = StateIdle
	s.requestID = ""
	s.variant = ""
	s.progress = 0
	s.results = nil
	s.failure = nil
	s.warnings = nil
	s.updatedAt = time.Now()
	return nil
}

// Warn attaches a note to the current request, e.g. a credit settlement that
// failed after the run ended. It is ignored once the session has moved on to
// another request.
func (s *Session) Warn(requestID string, message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.requestID != requestID {
		return
	}
	s.warnings = append(s.warnings, message)
	s.updatedAt = time.Now()
}

func (s *Session) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Result returns the record at index from the current result list.
func (s *Session) Result(index int) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if index < 0 || index >= len(s.results) {
		return nil, false
	}
	return s.results[index], true
}

func (s *Session) Snapshot() SessionSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	results := make([]Record, len(s.results))
	copy(results, s.results)
	var warnings []string
	if len(s.warnings) > 0 {
		warnings = append(warnings, s.warnings...)
	}
	return SessionSnapshot{
		State:     s.state,
		RequestID: s.requestID,
		Variant:   s.variant,
		Progress:  s.progress,
		Results:   results,
		Failure:   s.failure,
		Warnings:  warnings,
		StartedAt: s.startedAt,
		UpdatedAt: s.updatedAt,
	}
}
