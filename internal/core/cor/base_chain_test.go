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

package cor_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jaycherian/gcp-go-script-factory/internal/core/cor"
)

// appendCommand appends its suffix to the string input.
type appendCommand struct {
	cor.BaseCommand
	suffix string
	calls  int
	fail   bool
	onRun  func()
}

func newAppendCommand(name, suffix string) *appendCommand {
	return &appendCommand{BaseCommand: *cor.NewBaseCommand(name), suffix: suffix}
}

func (a *appendCommand) Execute(context cor.Context) {
	a.calls++
	if a.onRun != nil {
		a.onRun()
	}
	if a.fail {
		a.Fail(context, errors.New(a.GetName()+" failed"))
		return
	}
	in := context.Get(a.GetInputParam()).(string)
	a.Succeed(context, in+a.suffix)
}

func TestChainPassesOutputToNextCommand(t *testing.T) {
	first := newAppendCommand("first", "-a")
	second := newAppendCommand("second", "-b")
	chain := cor.NewBaseChain("append")
	chain.AddCommand(first).AddCommand(second)

	chCtx := cor.NewContextWithInput(context.Background(), "in")
	chain.Execute(chCtx)

	require.NoError(t, chCtx.Err())
	assert.Equal(t, "in-a-b", chCtx.Get(cor.CtxIn))
	assert.Nil(t, chCtx.Get(cor.CtxOut))
}

func TestChainStopsOnFailure(t *testing.T) {
	first := newAppendCommand("first", "-a")
	first.fail = true
	second := newAppendCommand("second", "-b")
	chain := cor.NewBaseChain("append")
	chain.AddCommand(first).AddCommand(second)

	chCtx := cor.NewContextWithInput(context.Background(), "in")
	chain.Execute(chCtx)

	assert.True(t, chCtx.HasErrors())
	assert.EqualError(t, chCtx.Err(), "first failed")
	assert.Equal(t, 0, second.calls)
}

func TestChainContinueOnFailure(t *testing.T) {
	first := newAppendCommand("first", "-a")
	first.fail = true
	second := newAppendCommand("second", "-b")
	chain := cor.NewBaseChain("append")
	chain.ContinueOnFailure(true)
	chain.AddCommand(first).AddCommand(second)

	// The failed command produced no output so the input carries forward.
	chCtx := cor.NewContextWithInput(context.Background(), "in")
	chain.Execute(chCtx)

	assert.Equal(t, 1, second.calls)
	assert.Len(t, chCtx.GetErrors(), 1)
}

func TestChainStopsWhenContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	first := newAppendCommand("first", "-a")
	first.onRun = cancel
	second := newAppendCommand("second", "-b")
	chain := cor.NewBaseChain("append")
	chain.AddCommand(first).AddCommand(second)

	chCtx := cor.NewContextWithInput(ctx, "in")
	chain.Execute(chCtx)

	assert.Equal(t, 1, first.calls)
	assert.Equal(t, 0, second.calls)
	assert.ErrorIs(t, chCtx.Err(), context.Canceled)
	assert.Equal(t, ctx, chCtx.GetContext())
}

func TestContextErrorsKeepInsertionOrder(t *testing.T) {
	chCtx := cor.NewBaseContext()
	assert.NoError(t, chCtx.Err())

	chCtx.AddError("b", errors.New("second"))
	chCtx.AddError("a", errors.New("first"))
	chCtx.AddError("b", errors.New("second again"))

	assert.EqualError(t, chCtx.Err(), "second again\nfirst")
}

func TestBaseCommandIsExecutable(t *testing.T) {
	cmd := newAppendCommand("cmd", "")
	assert.False(t, cmd.IsExecutable(cor.NewBaseContext()))
	assert.True(t, cmd.IsExecutable(cor.NewContextWithInput(context.Background(), "x")))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.False(t, cmd.IsExecutable(cor.NewContextWithInput(ctx, "x")))
}
