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
	"path/filepath"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/kaleido-io/chainharness/internal/msgs"
)

type opInfo struct {
	name     string
	callSite string
	since    time.Time
}

// guard detects two operations racing on one handle. It is a programmer-error
// detector, not a lock: a second entry fails immediately rather than waiting.
type guard struct {
	busy atomic.Pointer[opInfo]
}

// run executes fn holding the single busy slot. The call site captured is the
// caller of the exported operation that invoked run (two frames up).
func (g *guard) run(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	entry := &opInfo{
		name:     op,
		callSite: callSite(2),
		since:    time.Now(),
	}
	if !g.busy.CompareAndSwap(nil, entry) {
		cur := g.busy.Load()
		if cur == nil {
			// The other operation finished between the CAS and the load - still
			// a race in the caller's code, report what we know
			cur = &opInfo{name: "unknown", callSite: "unknown"}
		}
		log.L(ctx).Errorf("Reentrant use of handle: '%s' (%s, running %.2fs) vs '%s' (%s)",
			cur.name, cur.callSite, time.Since(cur.since).Seconds(), op, entry.callSite)
		return i18n.NewError(ctx, msgs.MsgHarnessReentrantCall, cur.name, cur.callSite, op, entry.callSite)
	}
	defer g.busy.Store(nil)
	return fn(ctx)
}

func callSite(skip int) string {
	_, file, line, ok := runtime.Caller(skip + 1)
	if !ok {
		return "unknown"
	}
	return fmt.Sprintf("%s:%d", filepath.Base(file), line)
}
