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

package services

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// GenerationService owns one session per user and dispatches requests to
// the orchestrator of the requested variant. Runs execute in their own
// goroutine; callers observe them through snapshots.
type GenerationService struct {
	mu             sync.Mutex
	sessions       map[string]*model.Session
	orchestrators  map[string]*Orchestrator
	defaultVariant string
	ledger         Ledger
	requests       RequestRegistry
	running        sync.WaitGroup
}

func NewGenerationService(defaultVariant string, ledger Ledger, orchestrators ...*Orchestrator) *GenerationService {
	out := &GenerationService{
		sessions:       make(map[string]*model.Session),
		orchestrators:  make(map[string]*Orchestrator, len(orchestrators)),
		defaultVariant: defaultVariant,
		ledger:         ledger,
		requests:       NewMemoryRequestRegistry(DefaultRequestTTL),
	}
	for _, o := range orchestrators {
		out.orchestrators[o.Name()] = o
	}
	return out
}

// UseRequestRegistry replaces the in-process registry of started request
// ids, e.g. with a RedisRequestRegistry shared by all replicas.
func (s *GenerationService) UseRequestRegistry(requests RequestRegistry) {
	s.requests = requests
}

// Session returns the user's session, creating an idle one on first use.
func (s *GenerationService) Session(userID string) *model.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[userID]
	if !ok {
		session = model.NewSession()
		s.sessions[userID] = session
	}
	return session
}

// Start validates and charges req, then runs it in the background. The run
// outlives ctx; it is stopped through Cancel.
//
// A request id can be started once per user. Replaying it, e.g. a Pub/Sub
// redelivery of a request that is already running or done, is refused with
// a validation failure wrapping ErrDuplicateRequest and never re-run.
//
// Errors:
//   - a validation *model.Failure (bad input, unknown variant, insufficient
//     credit wrapped around ErrInsufficientCredit, duplicate request);
//   - model.ErrSessionRunning when the user already has a run in progress;
//   - ledger errors.
func (s *GenerationService) Start(ctx context.Context, req *model.GenerationRequest) error {
	if req.UserID == "" {
		return model.NewValidationFailure("missing user id")
	}
	if req.RequestID == "" {
		req.RequestID = uuid.NewString()
	}
	if req.Variant == "" {
		req.Variant = s.defaultVariant
	}
	orchestrator, ok := s.orchestrators[req.Variant]
	if !ok {
		return model.NewValidationFailure(fmt.Sprintf("unknown variant %q", req.Variant))
	}

	session := s.Session(req.UserID)
	if session.State() == model.StateRunning {
		return model.ErrSessionRunning
	}
	claimed, err := s.requests.Claim(ctx, req.UserID, req.RequestID)
	if err != nil {
		return err
	}
	if !claimed {
		return duplicateRequest(req.RequestID)
	}
	if err := orchestrator.Prepare(ctx, req); err != nil {
		s.release(ctx, req)
		return err
	}

	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if err := session.Begin(req.RequestID, req.Variant, cancel); err != nil {
		cancel()
		orchestrator.Abandon(context.WithoutCancel(ctx), req)
		s.release(ctx, req)
		return err
	}

	s.running.Add(1)
	go func() {
		defer s.running.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.ErrorContext(runCtx, "generation panicked", "request_id", req.RequestID, "panic", r)
				session.Fail(&model.Failure{Kind: model.FailureUnknown, Message: fmt.Sprintf("%s%v", model.UnknownPrefix, r)})
			}
		}()
		orchestrator.Run(runCtx, session, req)
	}()
	return nil
}

// release frees the claim of a request that never began running, so a
// later delivery of the same request can start it.
func (s *GenerationService) release(ctx context.Context, req *model.GenerationRequest) {
	if err := s.requests.Release(context.WithoutCancel(ctx), req.UserID, req.RequestID); err != nil {
		slog.ErrorContext(ctx, "failed to release request claim", "request_id", req.RequestID, "error", err)
	}
}

// Cancel stops the user's running request. It returns false when nothing is
// running.
func (s *GenerationService) Cancel(userID string) bool {
	return s.Session(userID).Cancel()
}

// Reset clears the user's last result. It fails with
// model.ErrSessionRunning while a run is in progress.
func (s *GenerationService) Reset(userID string) error {
	return s.Session(userID).Reset()
}

func (s *GenerationService) Snapshot(userID string) model.SessionSnapshot {
	return s.Session(userID).Snapshot()
}

func (s *GenerationService) Balance(ctx context.Context, userID string) (int, error) {
	return s.ledger.Balance(ctx, userID)
}

// Variants lists the configured variant names in order.
func (s *GenerationService) Variants() []string {
	out := make([]string, 0, len(s.orchestrators))
	for name := range s.orchestrators {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Stats returns the run counters of every variant.
func (s *GenerationService) Stats() map[string]StatsSnapshot {
	out := make(map[string]StatsSnapshot, len(s.orchestrators))
	for name, o := range s.orchestrators {
		out[name] = o.Stats()
	}
	return out
}

// Wait blocks until every started run has ended.
func (s *GenerationService) Wait() {
	s.running.Wait()
}

// CancelAll stops every running session, used on shutdown.
func (s *GenerationService) CancelAll() {
	s.mu.Lock()
	sessions := make([]*model.Session, 0, len(s.sessions))
	for _, session := range s.sessions {
		sessions = append(sessions, session)
	}
	s.mu.Unlock()
	for _, session := range sessions {
		session.Cancel()
	}
}
