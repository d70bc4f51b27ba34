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

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/chainharness/internal/msgs"
)

// GovernanceRequest describes a two-phase propose/execute flow. The proposal
// transaction emits a ProposedEvent carrying a correlation id; execution
// happens later, in a different transaction, and emits an ExecutedEvent for
// the same id.
type GovernanceRequest struct {
	Build BuildOperation
	// SigningIdentity overrides the handle's CapabilitySigningIdentity
	SigningIdentity string
	// ProposedEvent matches the event emitted when the proposal is recorded
	ProposedEvent *EventDescriptor
	// ExecutedEvent matches the event emitted when the proposal executes
	ExecutedEvent *EventDescriptor
	// ProposalID extracts the correlation id from a matched event's payload.
	// It runs on the ProposedEvent to learn the id, and on ExecutedEvent
	// candidates to correlate them.
	ProposalID func(payload *fftypes.JSONAny) (string, error)
	// ExecutionFailure, when set, inspects the ExecutedEvent payload and
	// returns a non-empty message if the governed operation itself failed
	ExecutionFailure func(payload *fftypes.JSONAny) string
}

// GovernanceProposal records the two milestones of a completed flow.
type GovernanceProposal struct {
	ProposalID          string                    `json:"proposalId"`
	ProposalTransaction ethtypes.HexBytes0xPrefix `json:"proposalTransaction"`
	ProposedAtHeight    int64                     `json:"proposedAtHeight"`
	ExecutedAtHeight    int64                     `json:"executedAtHeight"`
	ExecutedPayload     *fftypes.JSONAny          `json:"executedPayload,omitempty"`
}

// SubmitGovernance submits the proposal operation, waits for its Proposed
// event to learn the proposal id, then waits for the Executed event for that
// id, advancing the handle's height through both milestones. A failure
// reported inside the Executed event payload is the governed operation
// failing, and is surfaced as an error rather than swallowed.
func (h *Handle) SubmitGovernance(ctx context.Context, req *GovernanceRequest) (prop *GovernanceProposal, err error) {
	err = h.guard.run(h.ctx(ctx), "SubmitGovernance", func(ctx context.Context) error {
		prop, err = h.submitGovernanceLocked(ctx, req)
		return err
	})
	return prop, err
}

func (h *Handle) submitGovernanceLocked(ctx context.Context, req *GovernanceRequest) (*GovernanceProposal, error) {
	// No caused-event shortcut here: the Proposed event is not always in the
	// inclusion block, so it gets an unbounded search of its own, correlated
	// by the proposal transaction hash.
	res, err := h.submitLocked(ctx, &SubmitRequest{
		Build:           req.Build,
		SigningIdentity: req.SigningIdentity,
	})
	if err != nil {
		return nil, err
	}

	_, proposed, err := h.stepUntilAnyLocked(ctx,
		map[string]*EventDescriptor{req.ProposedEvent.Name: req.ProposedEvent},
		res.TransactionHash.String())
	if err != nil {
		return nil, err
	}
	proposalID, err := req.ProposalID(proposed.Payload)
	if err != nil {
		return nil, i18n.WrapError(ctx, err, msgs.MsgHarnessProposalIDExtract, res.TransactionHash)
	}
	log.L(ctx).Infof("Proposal %s recorded at height %d", proposalID, proposed.BlockHeight)

	executedDescriptor := &EventDescriptor{
		Name:   req.ExecutedEvent.Name,
		Schema: req.ExecutedEvent.Schema,
		Predicate: func(payload *fftypes.JSONAny) bool {
			if req.ExecutedEvent.Predicate != nil && !req.ExecutedEvent.Predicate(payload) {
				return false
			}
			id, err := req.ProposalID(payload)
			return err == nil && id == proposalID
		},
	}
	_, executed, err := h.stepUntilAnyLocked(ctx,
		map[string]*EventDescriptor{executedDescriptor.Name: executedDescriptor}, "")
	if err != nil {
		return nil, err
	}
	if req.ExecutionFailure != nil {
		if failure := req.ExecutionFailure(executed.Payload); failure != "" {
			return nil, i18n.NewError(ctx, msgs.MsgHarnessGovernanceExecFailed, proposalID, failure)
		}
	}
	log.L(ctx).Infof("Proposal %s executed at height %d", proposalID, executed.BlockHeight)

	return &GovernanceProposal{
		ProposalID:          proposalID,
		ProposalTransaction: res.TransactionHash,
		ProposedAtHeight:    proposed.BlockHeight,
		ExecutedAtHeight:    executed.BlockHeight,
		ExecutedPayload:     executed.Payload,
	}, nil
}
