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
	"sort"
	"strings"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/kaleido-io/chainharness/internal/confutil"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"github.com/kaleido-io/chainharness/pkg/eventlog"
)

// ExpectEvent searches strictly the single block at the handle's current
// height. A miss is not an error: the result is nil, and callers needing
// "eventually" semantics use StepUntilEvent instead.
func (h *Handle) ExpectEvent(ctx context.Context, ed *EventDescriptor) (found *EventRecord, err error) {
	err = h.guard.run(h.ctx(ctx), "ExpectEvent", func(ctx context.Context) error {
		found, err = h.expectEventLocked(ctx, ed, "")
		return err
	})
	return found, err
}

// StepUntilEvent polls the event log from the current height forward, with no
// upper bound, until the descriptor matches; the handle's height advances to
// the match. Cancellation is via the context - there is no built-in timeout.
func (h *Handle) StepUntilEvent(ctx context.Context, ed *EventDescriptor) (found *EventRecord, err error) {
	err = h.guard.run(h.ctx(ctx), "StepUntilEvent", func(ctx context.Context) error {
		_, found, err = h.stepUntilAnyLocked(ctx, map[string]*EventDescriptor{ed.Name: ed}, "")
		return err
	})
	return found, err
}

// StepUntilOneEventOf is StepUntilEvent over a keyed set of descriptors,
// returning as soon as ANY one matches, with the key that matched. When one
// poll round finds several, the earliest in chain order wins.
func (h *Handle) StepUntilOneEventOf(ctx context.Context, descriptors map[string]*EventDescriptor) (key string, found *EventRecord, err error) {
	err = h.guard.run(h.ctx(ctx), "StepUntilOneEventOf", func(ctx context.Context) error {
		key, found, err = h.stepUntilAnyLocked(ctx, descriptors, "")
		return err
	})
	return key, found, err
}

type keyedRecord struct {
	key    string
	record *EventRecord
}

// StepUntilAllEventsOf waits for every descriptor in the set, each on its own
// forked branch, and returns the matches keyed like the input. The handle
// ends at the maximum height any branch reached.
func (h *Handle) StepUntilAllEventsOf(ctx context.Context, descriptors map[string]*EventDescriptor) (found map[string]*EventRecord, err error) {
	err = h.guard.run(h.ctx(ctx), "StepUntilAllEventsOf", func(ctx context.Context) error {
		if len(descriptors) == 0 {
			return i18n.NewError(ctx, msgs.MsgHarnessNoDescriptors)
		}
		branches := make([]Branch[*keyedRecord], 0, len(descriptors))
		for _, key := range sortedKeys(descriptors) {
			key := key
			ed := descriptors[key]
			branches = append(branches, func(ctx context.Context, branch *Handle) (*keyedRecord, error) {
				record, err := branch.StepUntilEvent(ctx, ed)
				if err != nil {
					return nil, err
				}
				return &keyedRecord{key: key, record: record}, nil
			})
		}
		results, err := forkJoinLocked(ctx, h, branches)
		if err != nil {
			return err
		}
		found = make(map[string]*EventRecord, len(results))
		for _, r := range results {
			found[r.key] = r.record
		}
		return nil
	})
	return found, err
}

func (h *Handle) expectEventLocked(ctx context.Context, ed *EventDescriptor, txHash string) (*EventRecord, error) {
	if err := ed.compile(ctx); err != nil {
		return nil, err
	}
	height := h.Height()
	events, err := h.env.events.QueryEvents(ctx, ed.query(height, confutil.P(height+1), txHash))
	if err != nil {
		return nil, err
	}
	for _, ev := range events {
		if ed.matches(ctx, ev) {
			return newEventRecord(ev), nil
		}
	}
	return nil, nil
}

// stepUntilAnyLocked is the unbounded search loop shared by the StepUntil*
// operations and the submission/governance flows. It polls at the configured
// interval, logs a heartbeat on long waits, and advances the clock to the
// height of the match it returns.
func (h *Handle) stepUntilAnyLocked(ctx context.Context, descriptors map[string]*EventDescriptor, txHash string) (string, *EventRecord, error) {
	if len(descriptors) == 0 {
		return "", nil, i18n.NewError(ctx, msgs.MsgHarnessNoDescriptors)
	}
	keys := sortedKeys(descriptors)
	for _, key := range keys {
		if err := descriptors[key].compile(ctx); err != nil {
			return "", nil, err
		}
	}
	from := h.Height()
	log.L(ctx).Debugf("Searching for %s from height %d", searchTarget(keys, descriptors), from)

	poll := time.NewTicker(h.env.conf.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.env.conf.heartbeatInterval)
	defer heartbeat.Stop()
	started := time.Now()

	for {
		var bestKey string
		var best *eventlog.ChainEvent
		for _, key := range keys {
			ed := descriptors[key]
			events, err := h.env.events.QueryEvents(ctx, ed.query(from, nil, txHash))
			if err != nil {
				return "", nil, err
			}
			for _, ev := range events {
				if ed.matches(ctx, ev) {
					if best == nil || chainOrderBefore(ev, best) {
						bestKey, best = key, ev
					}
					break
				}
			}
		}
		if best != nil {
			h.clock.advanceTo(best.BlockNumber)
			log.L(ctx).Debugf("Matched %s at height %d", best.QualifiedName(), best.BlockNumber)
			return bestKey, newEventRecord(best), nil
		}
		select {
		case <-poll.C:
		case <-heartbeat.C:
			head, _ := h.env.chain.CurrentBlockHeight(ctx)
			log.L(ctx).Infof("Still searching for %s from height %d (chain head %d, waited %.0fs)",
				searchTarget(keys, descriptors), from, head, time.Since(started).Seconds())
		case <-ctx.Done():
			return "", nil, i18n.NewError(ctx, msgs.MsgContextCanceled)
		}
	}
}

func chainOrderBefore(a, b *eventlog.ChainEvent) bool {
	if a.BlockNumber != b.BlockNumber {
		return a.BlockNumber < b.BlockNumber
	}
	if a.TransactionIndex != b.TransactionIndex {
		return a.TransactionIndex < b.TransactionIndex
	}
	return a.LogIndex < b.LogIndex
}

func sortedKeys(descriptors map[string]*EventDescriptor) []string {
	keys := make([]string, 0, len(descriptors))
	for key := range descriptors {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func searchTarget(keys []string, descriptors map[string]*EventDescriptor) string {
	names := make([]string, len(keys))
	for i, key := range keys {
		names[i] = descriptors[key].Name
	}
	return strings.Join(names, "|")
}
