// Copyright © 2025 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package harness

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuardRunsSequentially(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, h.StepOneBlock(ctx))
	}
	assert.Equal(t, int64(10), h.Height())
}

func TestGuardRejectsConcurrentOperation(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)
	cancelCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Park the handle in an unbounded search that will never match
	searchDone := make(chan error, 1)
	go func() {
		_, err := h.StepUntilEvent(cancelCtx, &EventDescriptor{Name: "Nothing.Ever"})
		searchDone <- err
	}()

	// Wait until the guard is held
	for h.guard.busy.Load() == nil {
		time.Sleep(1 * time.Millisecond)
	}

	err := h.StepOneBlock(ctx)
	require.Error(t, err)
	assert.Regexp(t, "CH010400", err)
	assert.Regexp(t, "StepUntilEvent", err)
	assert.Regexp(t, "StepOneBlock", err)
	assert.Regexp(t, "ForkJoin", err)
	assert.Regexp(t, "guard_test.go", err)

	cancel()
	assert.Regexp(t, "CH010000", <-searchDone)
}

func TestGuardReleasedOnFailure(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)

	err := h.UnsafeSetHeight(ctx, -1)
	assert.Regexp(t, "CH010401", err)

	// The failed operation released the guard
	require.NoError(t, h.StepOneBlock(ctx))
}

func TestCallSiteUnknownBeyondStack(t *testing.T) {
	assert.Equal(t, "unknown", callSite(1000))
}
