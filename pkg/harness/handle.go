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

// Package harness is the event-driven orchestration engine for integration
// tests against a block-producing ledger. A Handle tracks a logical clock of
// how far the test has observed the chain, submits operations, and advances
// the clock forward until expected events appear. One handle supports exactly
// one operation at a time; concurrent waits fork the handle with ForkJoin.
package harness

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"github.com/kaleido-io/chainharness/pkg/chainclient"
	"github.com/kaleido-io/chainharness/pkg/eventlog"
)

// Capabilities is an open bag of context some operations need, keyed by the
// Capability* constants. Extra keys are carried untouched for test code.
type Capabilities map[string]string

const (
	// CapabilitySigningIdentity is the default signer for Submit
	CapabilitySigningIdentity = "signingIdentity"
)

func (c Capabilities) merged(extra Capabilities) Capabilities {
	m := make(Capabilities, len(c)+len(extra))
	for k, v := range c {
		m[k] = v
	}
	for k, v := range extra {
		m[k] = v
	}
	return m
}

// environment is the state shared by a handle and everything cloned from it:
// the collaborators, resolved config, and the per-signing-identity ordering
// mutexes that serialize submission across branches sharing one signer.
type environment struct {
	chain  chainclient.ChainClient
	events eventlog.Store
	conf   *resolvedConfig

	signersLock sync.Mutex
	signers     map[string]*sync.Mutex
}

func (env *environment) signerMutex(identity string) *sync.Mutex {
	env.signersLock.Lock()
	defer env.signersLock.Unlock()
	mu := env.signers[identity]
	if mu == nil {
		mu = &sync.Mutex{}
		env.signers[identity] = mu
	}
	return mu
}

type logicalClock struct {
	height atomic.Int64
}

// advanceTo moves the clock forward only. Callers run under the guard, so a
// plain load+store would do, but Height() is readable from outside operations.
func (c *logicalClock) advanceTo(height int64) {
	for {
		cur := c.height.Load()
		if height <= cur || c.height.CompareAndSwap(cur, height) {
			return
		}
	}
}

// Handle is the single source of truth for how far one test scenario has
// observed the ledger. Derived handles from WithLogField/With share the clock
// and the guard; only clone (via ForkJoin) gets an independent timeline.
type Handle struct {
	env       *environment
	clock     *logicalClock
	guard     *guard
	caps      Capabilities
	logFields map[string]string
}

// New creates a handle whose clock starts at the ledger's current height.
func New(ctx context.Context, conf *Config, chain chainclient.ChainClient, events eventlog.Store, caps Capabilities) (*Handle, error) {
	height, err := chain.CurrentBlockHeight(ctx)
	if err != nil {
		return nil, err
	}
	h := &Handle{
		env: &environment{
			chain:   chain,
			events:  events,
			conf:    resolveConfig(conf),
			signers: make(map[string]*sync.Mutex),
		},
		clock: &logicalClock{},
		guard: &guard{},
		caps:  caps.merged(nil),
	}
	h.clock.height.Store(height)
	log.L(h.ctx(ctx)).Infof("New handle at block height %d", height)
	return h, nil
}

// ctx applies the handle's log fields for operations on this handle.
func (h *Handle) ctx(ctx context.Context) context.Context {
	for k, v := range h.logFields {
		ctx = log.WithLogField(ctx, k, v)
	}
	return ctx
}

func (h *Handle) Height() int64 {
	return h.clock.height.Load()
}

func (h *Handle) Capability(key string) string {
	return h.caps[key]
}

// StepOneBlock advances the tracked height by exactly one, without checking
// the real ledger. A bounded search after this may target a block that does
// not exist yet - callers use it when they know the chain has moved on.
func (h *Handle) StepOneBlock(ctx context.Context) error {
	return h.guard.run(h.ctx(ctx), "StepOneBlock", func(ctx context.Context) error {
		newHeight := h.clock.height.Add(1)
		log.L(ctx).Debugf("Stepped one block to height %d", newHeight)
		return nil
	})
}

// UnsafeSetHeight overrides the tracked height, bypassing the normal "only
// operations advance the clock" discipline. Moving backwards is still
// refused: bounded searches rely on the height never decreasing.
func (h *Handle) UnsafeSetHeight(ctx context.Context, height int64) error {
	return h.guard.run(h.ctx(ctx), "UnsafeSetHeight", func(ctx context.Context) error {
		cur := h.clock.height.Load()
		if height < cur {
			return i18n.NewError(ctx, msgs.MsgHarnessHeightRegression, cur, height)
		}
		h.clock.height.Store(height)
		log.L(ctx).Warnf("Height set directly from %d to %d", cur, height)
		return nil
	})
}

// WithLogField returns a handle sharing this handle's clock and guard, with
// an extra field on all its log lines. The original is not modified.
func (h *Handle) WithLogField(key, value string) *Handle {
	nh := *h
	nh.logFields = make(map[string]string, len(h.logFields)+1)
	for k, v := range h.logFields {
		nh.logFields[k] = v
	}
	nh.logFields[key] = value
	return &nh
}

// With returns a handle sharing this handle's clock and guard, with extra
// capabilities merged over the existing ones.
func (h *Handle) With(caps Capabilities) *Handle {
	nh := *h
	nh.caps = h.caps.merged(caps)
	return &nh
}

// clone produces an independent handle at the same height with the same
// capabilities, with its own clock and guard. ForkJoin is the only caller:
// an un-joined independent timeline would break the monotonic clock.
func (h *Handle) clone() *Handle {
	nh := *h
	nh.clock = &logicalClock{}
	nh.clock.height.Store(h.Height())
	nh.guard = &guard{}
	return &nh
}
