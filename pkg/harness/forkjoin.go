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
	"errors"
	"fmt"
	"sync"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/kaleido-io/chainharness/internal/msgs"
)

// Branch is one concurrent continuation in a ForkJoin. It receives a cloned
// handle owned exclusively by this branch, so operations inside the branch
// run under their own guard.
type Branch[T any] func(ctx context.Context, h *Handle) (T, error)

// ForkJoin runs the branches concurrently, each on a clone of h, and waits
// for all of them. Results come back in input order regardless of completion
// order. On completion h's height becomes the maximum any branch reached, so
// code after the join never observes the chain less far along than a branch
// did. Errors from all failed branches are joined, not just the first.
func ForkJoin[T any](ctx context.Context, h *Handle, branches ...Branch[T]) (results []T, err error) {
	err = h.guard.run(h.ctx(ctx), "ForkJoin", func(ctx context.Context) error {
		results, err = forkJoinLocked(ctx, h, branches)
		return err
	})
	return results, err
}

func forkJoinLocked[T any](ctx context.Context, h *Handle, branches []Branch[T]) ([]T, error) {
	if len(branches) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgHarnessNoBranches)
	}
	log.L(ctx).Debugf("Forking %d branches at height %d", len(branches), h.Height())

	results := make([]T, len(branches))
	errs := make([]error, len(branches))
	handles := make([]*Handle, len(branches))
	var wg sync.WaitGroup
	for i, fn := range branches {
		i, fn := i, fn
		handles[i] = h.clone().WithLogField("branch", fmt.Sprintf("%d", i))
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = fn(handles[i].ctx(ctx), handles[i])
		}()
	}
	wg.Wait()

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	maxHeight := h.Height()
	for _, branch := range handles {
		if bh := branch.Height(); bh > maxHeight {
			maxHeight = bh
		}
	}
	h.clock.advanceTo(maxHeight)
	log.L(ctx).Debugf("Joined %d branches, height now %d", len(branches), maxHeight)
	return results, nil
}
