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
	"strings"
)

// FailureKind classifies why a run or a start request did not succeed.
type FailureKind string

const (
	FailureValidation FailureKind = "validation"
	FailureCancelled  FailureKind = "cancelled"
	FailureConnection FailureKind = "connection"
	FailureUnknown    FailureKind = "unknown"
)

// User-facing messages.
const (
	CancelledMessage  = "หยุดการทำงานแล้ว (Stopped by user)"
	ConnectionMessage = "การเชื่อมต่อหลุด/ข้อมูลไม่สมบูรณ์! โปรดลองใหม่อีกครั้ง หรือลดจำนวน Shot/ความยาวลง"
	APIKeyHint        = "ตรวจสอบ API Key หรือการตั้งค่าโมเดล"
	UnknownPrefix     = "เกิดข้อผิดพลาด: "
	SettlementWarning = "ปรับยอดเครดิตไม่สำเร็จ (credit settlement failed)"
)

var (
	// ErrMalformedResponse marks model output that could not be turned into
	// records.
	ErrMalformedResponse = errors.New("malformed model response")
	// ErrTransport marks a failed call to the model or another remote
	// endpoint.
	ErrTransport = errors.New("transport failure")
)

// connectionSignatures are substrings that mark an error message as a
// transport or format problem.
var connectionSignatures = []string{"JSON", "aborted", "400", "500"}

// Failure is the user-facing error attached to a session or returned from a
// rejected start.
type Failure struct {
	Kind    FailureKind `json:"kind"`
	Message string      `json:"message"`
	Err     error       `json:"-"`
}

func (f *Failure) Error() string {
	if f.Err != nil {
		return f.Message + ": " + f.Err.Error()
	}
	return f.Message
}

func (f *Failure) Unwrap() error {
	return f.Err
}

// NewValidationFailure reports a request that was rejected before any call.
func NewValidationFailure(message string) *Failure {
	return &Failure{Kind: FailureValidation, Message: message}
}

// ClassifyFailure maps err onto a Failure. Existing failures are returned as
// is; cancellation is recognised through context.Canceled.
func ClassifyFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var failure *Failure
	if errors.As(err, &failure) {
		return failure
	}
	if errors.Is(err, context.Canceled) {
		return &Failure{Kind: FailureCancelled, Message: CancelledMessage, Err: err}
	}

	msg := err.Error()
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrTransport) || containsAny(msg, connectionSignatures) {
		out := &Failure{Kind: FailureConnection, Message: ConnectionMessage, Err: err}
		if strings.Contains(msg, "400") {
			out.Message = ConnectionMessage + " (" + APIKeyHint + ")"
		}
		return out
	}
	return &Failure{Kind: FailureUnknown, Message: UnknownPrefix + msg, Err: err}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
