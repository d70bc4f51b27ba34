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
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestForkJoinThreeBranches(t *testing.T) {
	ctx, h, _, store := newTestHarness(t)

	addEvent(t, store, 10, 0, 0, "0xaaaa", "Transfers", "Sent", `{}`)
	addEvent(t, store, 12, 0, 0, "0xbbbb", "Transfers", "Received", `{}`)
	addEvent(t, store, 11, 0, 0, "0xcccc", "Governance", "Proposed", `{}`)

	waitFor := func(name string) Branch[*EventRecord] {
		return func(ctx context.Context, branch *Handle) (*EventRecord, error) {
			return branch.StepUntilEvent(ctx, &EventDescriptor{Name: name})
		}
	}

	preFork := h.Height()
	results, err := ForkJoin(ctx, h,
		waitFor("Transfers.Sent"),
		waitFor("Transfers.Received"),
		waitFor("Governance.Proposed"),
	)
	require.NoError(t, err)

	// Results in input order regardless of completion order
	require.Len(t, results, 3)
	assert.Equal(t, int64(10), results[0].BlockHeight)
	assert.Equal(t, int64(12), results[1].BlockHeight)
	assert.Equal(t, int64(11), results[2].BlockHeight)

	// Parent joins to the maximum branch height
	assert.Equal(t, int64(12), h.Height())
	assert.GreaterOrEqual(t, h.Height(), preFork)
}

func TestForkJoinNoBranches(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)
	_, err := ForkJoin[int](ctx, h)
	assert.Regexp(t, "CH010407", err)
}

func TestForkJoinKeepsAllSiblingFailures(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)

	_, err := ForkJoin(ctx, h,
		func(ctx context.Context, branch *Handle) (int, error) { return 0, fmt.Errorf("first bang") },
		func(ctx context.Context, branch *Handle) (int, error) { return 1, nil },
		func(ctx context.Context, branch *Handle) (int, error) { return 0, fmt.Errorf("second bang") },
	)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "first bang")
	assert.Contains(t, err.Error(), "second bang")

	// A failed join does not advance the parent
	assert.Equal(t, int64(5), h.Height())
}

func TestForkJoinBranchesRunConcurrently(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)

	// Each branch blocks until every other branch has started
	started := make(chan struct{}, 3)
	release := make(chan struct{})
	results, err := ForkJoin(ctx, h,
		rendezvousBranch(1, started, release),
		rendezvousBranch(2, started, release),
		rendezvousBranch(3, started, release),
	)
	require.NoError(t, err)
	assert.Equal(t, []int{1, 2, 3}, results)
}

func rendezvousBranch(n int, started chan struct{}, release chan struct{}) Branch[int] {
	return func(ctx context.Context, branch *Handle) (int, error) {
		started <- struct{}{}
		if n == 3 {
			// Last one in frees everyone
			for i := 0; i < 3; i++ {
				<-started
			}
			close(release)
		}
		<-release
		return n, nil
	}
}

func TestForkJoinGuardsTheParent(t *testing.T) {
	ctx, h, _, _ := newTestHarness(t)

	_, err := ForkJoin(ctx, h, func(ctx context.Context, branch *Handle) (int, error) {
		// The parent handle is busy for the whole fork/join
		err := h.StepOneBlock(ctx)
		assert.Regexp(t, "CH010400", err)
		// The branch's own handle is free
		return 0, branch.StepOneBlock(ctx)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(6), h.Height())
}
