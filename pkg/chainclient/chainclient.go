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

// Package chainclient defines the boundary to the ledger node: operation
// submission, inclusion notification, and block height queries. The harness
// core depends only on the interfaces here; pkg/chainclient/rpcchain provides
// the JSON/RPC implementation.
package chainclient

import (
	"context"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
)

type InclusionStatus string

const (
	// The transaction made it into a block
	StatusIncluded InclusionStatus = "included"
	// The block containing the transaction is final
	StatusFinalized InclusionStatus = "finalized"
	// The transaction was rejected or reverted
	StatusFailed InclusionStatus = "failed"
)

// Operation is a single action submitted to the ledger, addressed to a module
// by name. SigningIdentity is resolved by the node's signing subsystem; it is
// empty for unsigned submission.
type Operation struct {
	Module          string           `json:"module"`
	Name            string           `json:"name"`
	Params          *fftypes.JSONAny `json:"params,omitempty"`
	SigningIdentity string           `json:"signingIdentity,omitempty"`
}

type InclusionUpdate struct {
	Status          InclusionStatus           `json:"status"`
	BlockHeight     int64                     `json:"blockHeight"`
	TransactionHash ethtypes.HexBytes0xPrefix `json:"transactionHash"`
	RawError        *fftypes.JSONAny          `json:"rawError,omitempty"`
}

func (iu *InclusionUpdate) Terminal() bool {
	return iu.Status == StatusFinalized || iu.Status == StatusFailed
}

// InclusionStream delivers status updates for one submitted operation, in
// order, ending with a terminal status. Next blocks until an update is
// available or the context is canceled. Close releases any node subscription.
type InclusionStream interface {
	Next(ctx context.Context) (*InclusionUpdate, error)
	Close()
}

type ChainClient interface {
	// Submit signs and submits the operation as op.SigningIdentity
	Submit(ctx context.Context, op *Operation) (InclusionStream, error)
	// SubmitUnsigned submits without a signature, for operations the chain accepts from anyone
	SubmitUnsigned(ctx context.Context, op *Operation) (InclusionStream, error)
	CurrentBlockHeight(ctx context.Context) (int64, error)
	// BlockHeightOfTransaction returns the inclusion height of a transaction
	// already known to the node, or an error if the node has not seen it
	BlockHeightOfTransaction(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (int64, error)
	// DecodeFailure renders a raw node error payload as a human-readable string
	DecodeFailure(ctx context.Context, rawError *fftypes.JSONAny) string
}
