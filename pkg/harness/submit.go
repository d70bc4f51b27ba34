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
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"github.com/kaleido-io/chainharness/pkg/chainclient"
)

// BuildOperation produces the operation to submit, given the connected chain
// client (for callers that need to query the chain while building).
type BuildOperation func(ctx context.Context, chain chainclient.ChainClient) (*chainclient.Operation, error)

type SubmitRequest struct {
	Build BuildOperation
	// SigningIdentity overrides the handle's CapabilitySigningIdentity
	SigningIdentity string
	// Unsigned skips signing and the per-signer ordering step
	Unsigned bool
	// ExpectedEvent, when set, is searched for in the inclusion block,
	// restricted to events caused by this submission's transaction
	ExpectedEvent *EventDescriptor
}

type SubmissionResult struct {
	TransactionHash ethtypes.HexBytes0xPrefix `json:"transactionHash"`
	BlockHeight     int64                     `json:"blockHeight"`
	CausedEvent     *EventRecord              `json:"causedEvent,omitempty"`
}

// Submit builds and submits an operation, waits for it to be included, and
// advances the handle's height to the inclusion block. A rejected or reverted
// operation is returned as a decoded error without advancing the height, and
// is never retried. With ExpectedEvent set, the caused event's payload comes
// back on the result, and its absence from the inclusion block is an error.
func (h *Handle) Submit(ctx context.Context, req *SubmitRequest) (res *SubmissionResult, err error) {
	err = h.guard.run(h.ctx(ctx), "Submit", func(ctx context.Context) error {
		res, err = h.submitLocked(ctx, req)
		return err
	})
	return res, err
}

// StepToTransaction waits for a transaction submitted outside this handle to
// be included, then advances the height to its inclusion block, exactly as
// Submit would have.
func (h *Handle) StepToTransaction(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (res *SubmissionResult, err error) {
	err = h.guard.run(h.ctx(ctx), "StepToTransaction", func(ctx context.Context) error {
		res, err = h.stepToTransactionLocked(ctx, hash)
		return err
	})
	return res, err
}

func (h *Handle) submitLocked(ctx context.Context, req *SubmitRequest) (*SubmissionResult, error) {
	if req.ExpectedEvent != nil {
		if err := req.ExpectedEvent.compile(ctx); err != nil {
			return nil, err
		}
	}

	op, err := req.Build(ctx, h.env.chain)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgHarnessBuildFailed)
	}

	var stream chainclient.InclusionStream
	if req.Unsigned {
		stream, err = h.env.chain.SubmitUnsigned(ctx, op)
	} else {
		signer := req.SigningIdentity
		if signer == "" {
			signer = h.caps[CapabilitySigningIdentity]
		}
		if signer == "" {
			return nil, i18n.NewError(ctx, msgs.MsgHarnessNoSigningIdentity)
		}
		op.SigningIdentity = signer
		// The ordering mutex serializes transaction numbering for branches
		// sharing one signer. Held for the submission only - waiting for
		// inclusion can proceed concurrently.
		mu := h.env.signerMutex(signer)
		mu.Lock()
		stream, err = h.env.chain.Submit(ctx, op)
		mu.Unlock()
	}
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	included, err := h.awaitInclusion(ctx, stream)
	if err != nil {
		return nil, err
	}

	h.clock.advanceTo(included.BlockHeight)
	log.L(ctx).Infof("Operation %s.%s included as %s at height %d", op.Module, op.Name, included.TransactionHash, included.BlockHeight)

	res := &SubmissionResult{
		TransactionHash: included.TransactionHash,
		BlockHeight:     included.BlockHeight,
	}
	if req.ExpectedEvent != nil {
		caused, err := h.expectEventLocked(ctx, req.ExpectedEvent, included.TransactionHash.String())
		if err != nil {
			return nil, err
		}
		if caused == nil {
			return nil, i18n.NewError(ctx, msgs.MsgHarnessCausedEventNotFound,
				included.TransactionHash, included.BlockHeight, req.ExpectedEvent.Name)
		}
		res.CausedEvent = caused
	}
	return res, nil
}

// awaitInclusion consumes the notification stream until the transaction is in
// a block. A failed status is decoded through the chain client.
func (h *Handle) awaitInclusion(ctx context.Context, stream chainclient.InclusionStream) (*chainclient.InclusionUpdate, error) {
	for {
		iu, err := stream.Next(ctx)
		if err != nil {
			return nil, err
		}
		switch iu.Status {
		case chainclient.StatusFailed:
			decoded := h.env.chain.DecodeFailure(ctx, iu.RawError)
			return nil, i18n.NewError(ctx, msgs.MsgHarnessOperationFailed, decoded)
		case chainclient.StatusIncluded, chainclient.StatusFinalized:
			return iu, nil
		default:
			log.L(ctx).Debugf("Ignoring inclusion status '%s' for %s", iu.Status, iu.TransactionHash)
		}
	}
}

func (h *Handle) stepToTransactionLocked(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (*SubmissionResult, error) {
	poll := time.NewTicker(h.env.conf.pollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(h.env.conf.heartbeatInterval)
	defer heartbeat.Stop()
	started := time.Now()
	for {
		height, err := h.env.chain.BlockHeightOfTransaction(ctx, hash)
		if err == nil {
			h.clock.advanceTo(height)
			log.L(ctx).Infof("Stepped to transaction %s at height %d", hash, height)
			return &SubmissionResult{TransactionHash: hash, BlockHeight: height}, nil
		}
		select {
		case <-poll.C:
		case <-heartbeat.C:
			head, _ := h.env.chain.CurrentBlockHeight(ctx)
			log.L(ctx).Infof("Still waiting for transaction %s (chain head %d, waited %.0fs): %s",
				hash, head, time.Since(started).Seconds(), err)
		case <-ctx.Done():
			return nil, i18n.NewError(ctx, msgs.MsgContextCanceled)
		}
	}
}
