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
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jaycherian/gcp-go-script-factory/internal/cloud"
	"github.com/jaycherian/gcp-go-script-factory/internal/core/model"
)

// UnitGenerator produces the records for one model call. It is implemented
// by workflow.ScriptUnitWorkflow.
type UnitGenerator interface {
	Generate(ctx context.Context, unit *model.UnitRequest) ([]model.Record, error)
}

// Recorder persists the records of a finished run.
type Recorder interface {
	Record(ctx context.Context, req *model.GenerationRequest, records []model.Record) error
}

// VariantStats counts runs of one variant since start-up.
type VariantStats struct {
	Started   atomic.Int64
	Finished  atomic.Int64
	Cancelled atomic.Int64
	Failed    atomic.Int64
	Records   atomic.Int64

	// SettlementErrors counts debits and refunds that could not be applied
	// after a run ended.
	SettlementErrors atomic.Int64
}

// StatsSnapshot is the JSON view of VariantStats.
type StatsSnapshot struct {
	Started          int64 `json:"started"`
	Finished         int64 `json:"finished"`
	Cancelled        int64 `json:"cancelled"`
	Failed           int64 `json:"failed"`
	Records          int64 `json:"records"`
	SettlementErrors int64 `json:"settlement_errors"`
}

func (s *VariantStats) Snapshot() StatsSnapshot {
	return StatsSnapshot{
		Started:          s.Started.Load(),
		Finished:         s.Finished.Load(),
		Cancelled:        s.Cancelled.Load(),
		Failed:           s.Failed.Load(),
		Records:          s.Records.Load(),
		SettlementErrors: s.SettlementErrors.Load(),
	}
}

// Orchestrator runs generation requests for one variant. It validates and
// charges a request, drives the model calls, publishes progress and records
// to the session and settles the ledger once the run ends.
type Orchestrator struct {
	name      string
	variant   cloud.Variant
	limits    cloud.Limits
	generator UnitGenerator
	ledger    Ledger
	recorder  Recorder
	sleep     func(ctx context.Context, d time.Duration) error
	stats     VariantStats
}

// OrchestratorOption customises an Orchestrator.
type OrchestratorOption func(*Orchestrator)

// WithSleeper replaces the inter-unit wait.
func WithSleeper(sleep func(ctx context.Context, d time.Duration) error) OrchestratorOption {
	return func(o *Orchestrator) { o.sleep = sleep }
}

// WithRecorder persists finished runs through recorder.
func WithRecorder(recorder Recorder) OrchestratorOption {
	return func(o *Orchestrator) { o.recorder = recorder }
}

func NewOrchestrator(
	name string,
	variant cloud.Variant,
	limits cloud.Limits,
	generator UnitGenerator,
	ledger Ledger,
	opts ...OrchestratorOption) *Orchestrator {

	out := &Orchestrator{
		name:      name,
		variant:   variant,
		limits:    limits,
		generator: generator,
		ledger:    ledger,
		sleep:     cloud.SleepContext,
	}
	for _, opt := range opts {
		opt(out)
	}
	return out
}

func (o *Orchestrator) Name() string          { return o.name }
func (o *Orchestrator) Variant() cloud.Variant { return o.variant }
func (o *Orchestrator) Stats() StatsSnapshot  { return o.stats.Snapshot() }

// Prepare normalizes and validates req, checks the caller's balance and,
// for optimistic variants, debits the full cost. Every rejection is a
// validation *model.Failure and leaves the ledger untouched.
func (o *Orchestrator) Prepare(ctx context.Context, req *model.GenerationRequest) error {
	req.Normalize()
	limits := model.Limits{
		MaxDuration:  o.limits.MaxDuration,
		MaxShotCount: o.limits.MaxShotCount,
		MaxBatchSize: o.limits.MaxBatchSize,
	}
	if err := req.Validate(o.variant.Kind, limits, o.enforceCeiling()); err != nil {
		return err
	}

	cost := o.variant.Cost(req.BatchSize)
	if o.variant.RequireCredit {
		balance, err := o.ledger.Balance(ctx, req.UserID)
		if err != nil {
			return err
		}
		if balance < cost {
			return insufficientCredit(cost, balance)
		}
	}
	if o.optimistic() && cost > 0 {
		balance, err := o.ledger.Debit(ctx, req.UserID, cost, DebitKey(req.RequestID))
		if errors.Is(err, ErrInsufficientCredit) {
			return insufficientCredit(cost, balance)
		}
		if errors.Is(err, ErrAlreadyApplied) {
			return duplicateRequest(req.RequestID)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func insufficientCredit(cost int, balance int) *model.Failure {
	return &model.Failure{
		Kind:    model.FailureValidation,
		Message: fmt.Sprintf(InsufficientCreditMessage, cost, balance),
		Err:     ErrInsufficientCredit,
	}
}

func duplicateRequest(requestID string) *model.Failure {
	return &model.Failure{
		Kind:    model.FailureValidation,
		Message: fmt.Sprintf("request %s was already processed", requestID),
		Err:     ErrDuplicateRequest,
	}
}

// enforceCeiling reports whether duration and shot ceilings apply. Script
// variants always enforce them; only storyboards, which take neither
// input, may opt out.
func (o *Orchestrator) enforceCeiling() bool {
	return o.variant.EnforceCeiling || o.variant.Kind == model.KindScript
}

func (o *Orchestrator) optimistic() bool {
	return o.variant.DebitMode == cloud.DebitOptimistic
}

// Run executes a prepared request against session, which must already be
// running. It never panics out and always leaves the session in a terminal
// state.
func (o *Orchestrator) Run(ctx context.Context, session *model.Session, req *model.GenerationRequest) {
	spanCtx, span := otel.Tracer(o.name).Start(ctx, "generation-run")
	defer span.End()
	span.SetAttributes(
		attribute.String("request.id", req.RequestID),
		attribute.String("variant", o.name),
		attribute.Int("batch.size", req.BatchSize))
	o.stats.Started.Add(1)

	completed, err := o.execute(spanCtx, session, req)
	o.stats.Records.Add(int64(completed))

	// Settlement must happen even though the run context is done.
	settleCtx := context.WithoutCancel(spanCtx)
	switch failure := model.ClassifyFailure(err); {
	case err == nil:
		session.Finish()
		o.stats.Finished.Add(1)
		span.SetStatus(codes.Ok, "finished")
		slog.InfoContext(spanCtx, "generation finished", "request_id", req.RequestID, "variant", o.name, "records", completed)
		if o.variant.DebitMode == cloud.DebitOnSuccess {
			o.settle(settleCtx, session, req, o.debit(settleCtx, req, o.variant.Cost(completed)))
		}
		o.persist(settleCtx, req, session.Snapshot().Results)
	case failure.Kind == model.FailureCancelled:
		session.MarkCancelled()
		o.stats.Cancelled.Add(1)
		span.SetStatus(codes.Ok, "cancelled")
		slog.InfoContext(spanCtx, "generation cancelled", "request_id", req.RequestID, "variant", o.name, "records", completed)
		if o.optimistic() {
			o.settle(settleCtx, session, req, o.refund(settleCtx, req, o.unusedCost(req, completed)))
		}
	default:
		session.Fail(failure)
		o.stats.Failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, string(failure.Kind))
		slog.ErrorContext(spanCtx, "generation failed", "request_id", req.RequestID, "variant", o.name, "kind", failure.Kind, "error", err)
		if o.optimistic() {
			o.settle(settleCtx, session, req, o.refund(settleCtx, req, o.variant.Cost(req.BatchSize)))
		}
	}
}

// execute runs the model calls of req. A panic in a generator is turned
// into an error so the run is still settled.
func (o *Orchestrator) execute(ctx context.Context, session *model.Session, req *model.GenerationRequest) (completed int, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.ErrorContext(ctx, "generation panicked", "request_id", req.RequestID, "variant", o.name, "panic", r)
			err = fmt.Errorf("generation panicked: %v", r)
		}
	}()
	if o.variant.Mode == cloud.ModeSingleCall {
		return o.runSingleCall(ctx, session, req)
	}
	return o.runPerUnit(ctx, session, req)
}

// settle records a debit or refund that could not be applied on the session
// and in the stats. The run's outcome is left as it is.
func (o *Orchestrator) settle(ctx context.Context, session *model.Session, req *model.GenerationRequest, err error) {
	if err == nil {
		return
	}
	o.stats.SettlementErrors.Add(1)
	session.Warn(req.RequestID, model.SettlementWarning)
}

// runPerUnit issues one call per unit, publishing each record as it
// arrives.
func (o *Orchestrator) runPerUnit(ctx context.Context, session *model.Session, req *model.GenerationRequest) (int, error) {
	total := req.BatchSize
	for i := 0; i < total; i++ {
		if err := ctx.Err(); err != nil {
			return i, err
		}
		session.SetProgress(model.Progress(i, total))

		records, err := o.generator.Generate(ctx, req.Unit(i, 1))
		// A result that arrives after a cancel is discarded.
		if ctx.Err() != nil {
			return i, ctx.Err()
		}
		if err != nil {
			return i, err
		}
		if len(records) == 0 {
			return i, fmt.Errorf("%w: API response was empty or malformed", model.ErrMalformedResponse)
		}
		session.Append(records[0])
		session.SetProgress(model.Progress(i+1, total))

		if i < total-1 {
			if err := o.sleep(ctx, o.limits.InterUnitDelay()); err != nil {
				return i + 1, err
			}
		}
	}
	return total, nil
}

// runSingleCall asks for every record in one call.
func (o *Orchestrator) runSingleCall(ctx context.Context, session *model.Session, req *model.GenerationRequest) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	records, err := o.generator.Generate(ctx, req.Unit(0, req.BatchSize))
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	if len(records) > req.BatchSize {
		records = records[:req.BatchSize]
	}
	session.Append(records...)
	return len(records), nil
}

// unusedCost is the part of an optimistic debit not covered by completed
// units. A single call produces all records at once, so a cancelled call
// refunds everything.
func (o *Orchestrator) unusedCost(req *model.GenerationRequest, completed int) int {
	if o.variant.Mode == cloud.ModeSingleCall {
		return o.variant.Cost(req.BatchSize)
	}
	return o.variant.Cost(req.BatchSize - completed)
}

// Abandon returns an optimistic debit for a request that was prepared but
// never run.
func (o *Orchestrator) Abandon(ctx context.Context, req *model.GenerationRequest) {
	if o.optimistic() {
		_ = o.refund(ctx, req, o.variant.Cost(req.BatchSize))
	}
}

// debit and refund return an error only when the ledger was left without
// the intended change. A key that was applied before is logged and treated
// as settled.
func (o *Orchestrator) debit(ctx context.Context, req *model.GenerationRequest, amount int) error {
	if amount <= 0 {
		return nil
	}
	balance, err := o.ledger.Debit(ctx, req.UserID, amount, DebitKey(req.RequestID))
	switch {
	case errors.Is(err, ErrAlreadyApplied):
		slog.WarnContext(ctx, "debit already applied", "request_id", req.RequestID, "user_id", req.UserID, "balance", balance)
		return nil
	case err != nil:
		slog.ErrorContext(ctx, "failed to debit credits", "request_id", req.RequestID, "user_id", req.UserID, "amount", amount, "error", err)
		return err
	}
	slog.InfoContext(ctx, "credits debited", "request_id", req.RequestID, "user_id", req.UserID, "amount", amount, "balance", balance)
	return nil
}

func (o *Orchestrator) refund(ctx context.Context, req *model.GenerationRequest, amount int) error {
	if amount <= 0 {
		return nil
	}
	balance, err := o.ledger.Credit(ctx, req.UserID, amount, RefundKey(req.RequestID))
	switch {
	case errors.Is(err, ErrAlreadyApplied):
		slog.WarnContext(ctx, "refund already applied", "request_id", req.RequestID, "user_id", req.UserID, "balance", balance)
		return nil
	case err != nil:
		slog.ErrorContext(ctx, "failed to refund credits", "request_id", req.RequestID, "user_id", req.UserID, "amount", amount, "error", err)
		return err
	}
	slog.InfoContext(ctx, "credits refunded", "request_id", req.RequestID, "user_id", req.UserID, "amount", amount, "balance", balance)
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, req *model.GenerationRequest, records []model.Record) {
	if o.recorder == nil || len(records) == 0 {
		return
	}
	if err := o.recorder.Record(ctx, req, records); err != nil {
		slog.ErrorContext(ctx, "failed to persist history", "request_id", req.RequestID, "error", err)
	}
}
