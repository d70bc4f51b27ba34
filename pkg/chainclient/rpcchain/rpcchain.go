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

// Package rpcchain implements the chain client boundary over the node's
// JSON/RPC interface, with inclusion notification built on receipt polling.
// Transient transport failures are retried here; the harness core never
// retries.
package rpcchain

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/chainharness/internal/confutil"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"github.com/kaleido-io/chainharness/internal/retry"
	"github.com/kaleido-io/chainharness/pkg/chainclient"
)

type Config struct {
	URL string `yaml:"url"`
	// ReceiptPollInterval is how often inclusion streams re-check for a receipt
	ReceiptPollInterval *string             `yaml:"receiptPollInterval"`
	Retry               retry.ConfigWithMax `yaml:"retry"`
}

type rpcChain struct {
	client      *resty.Client
	retry       *retry.Retry
	receiptPoll time.Duration
}

func NewChainClient(ctx context.Context, conf *Config) (chainclient.ChainClient, error) {
	if conf.URL == "" {
		return nil, i18n.NewError(ctx, msgs.MsgChainClientHTTPURLMissing)
	}
	return &rpcChain{
		client:      resty.New().SetBaseURL(conf.URL),
		retry:       retry.NewRetryLimited(&conf.Retry),
		receiptPoll: confutil.DurationMin(conf.ReceiptPollInterval, 1*time.Millisecond, "250ms"),
	}, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
}

type rpcError struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

type rpcResponse struct {
	JSONRPC string           `json:"jsonrpc"`
	ID      string           `json:"id"`
	Result  *fftypes.JSONAny `json:"result,omitempty"`
	Error   *rpcError        `json:"error,omitempty"`
}

// call performs one JSON/RPC request, retrying transport-level failures.
// An error object from the node is definitive and never retried.
func (rc *rpcChain) call(ctx context.Context, method string, params []any, result any) error {
	if params == nil {
		params = []any{}
	}
	var rpcRes rpcResponse
	err := rc.retry.Do(ctx, func(attempt int) (bool, error) {
		rpcRes = rpcResponse{}
		res, err := rc.client.R().
			SetContext(ctx).
			SetBody(&rpcRequest{
				JSONRPC: "2.0",
				ID:      uuid.NewString(),
				Method:  method,
				Params:  params,
			}).
			SetResult(&rpcRes).
			SetError(&rpcRes).
			Post("/")
		if err != nil {
			return true, i18n.WrapError(ctx, err, msgs.MsgChainClientRPCFailed, method)
		}
		if res.IsError() {
			return true, i18n.NewError(ctx, msgs.MsgChainClientRPCFailed, fmt.Sprintf("%s [%d]", method, res.StatusCode()))
		}
		return false, nil
	})
	if err != nil {
		return err
	}
	if rpcRes.Error != nil {
		return i18n.NewError(ctx, msgs.MsgChainClientRPCError, rpcRes.Error.Message)
	}
	if result != nil && rpcRes.Result != nil {
		if err := json.Unmarshal(rpcRes.Result.Bytes(), result); err != nil {
			return i18n.WrapError(ctx, err, msgs.MsgChainClientRPCFailed, method)
		}
	}
	return nil
}

func (rc *rpcChain) Submit(ctx context.Context, op *chainclient.Operation) (chainclient.InclusionStream, error) {
	return rc.submit(ctx, op)
}

func (rc *rpcChain) SubmitUnsigned(ctx context.Context, op *chainclient.Operation) (chainclient.InclusionStream, error) {
	return rc.submit(ctx, op)
}

type sendResult struct {
	TransactionHash ethtypes.HexBytes0xPrefix `json:"transactionHash"`
}

func (rc *rpcChain) submit(ctx context.Context, op *chainclient.Operation) (chainclient.InclusionStream, error) {
	var sent sendResult
	if err := rc.call(ctx, "ch_sendOperation", []any{op}, &sent); err != nil {
		return nil, err
	}
	if len(sent.TransactionHash) == 0 {
		return nil, i18n.NewError(ctx, msgs.MsgChainClientSubmitMissingHash)
	}
	log.L(ctx).Debugf("Submitted %s.%s as %s", op.Module, op.Name, sent.TransactionHash)
	return &pollingStream{
		rc:     rc,
		hash:   sent.TransactionHash,
		closed: make(chan struct{}),
	}, nil
}

func (rc *rpcChain) CurrentBlockHeight(ctx context.Context) (int64, error) {
	var height ethtypes.HexUint64
	if err := rc.call(ctx, "ch_blockHeight", nil, &height); err != nil {
		return -1, err
	}
	return int64(height), nil
}

func (rc *rpcChain) BlockHeightOfTransaction(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (int64, error) {
	r, err := rc.getReceipt(ctx, hash)
	if err != nil {
		return -1, err
	}
	if r == nil {
		return -1, i18n.NewError(ctx, msgs.MsgChainClientMissingTransaction, hash)
	}
	return int64(r.BlockHeight), nil
}

// DecodeFailure renders the node's raw error payload. The node reports
// structured {code,message} errors; anything else comes back as-is.
func (rc *rpcChain) DecodeFailure(ctx context.Context, rawError *fftypes.JSONAny) string {
	if rawError == nil {
		return "unknown failure (no error data returned)"
	}
	var structured rpcError
	if err := json.Unmarshal(rawError.Bytes(), &structured); err == nil && structured.Message != "" {
		return structured.Message
	}
	return rawError.String()
}

type receipt struct {
	BlockHeight ethtypes.HexUint64 `json:"blockHeight"`
	Success     bool               `json:"success"`
	Finalized   bool               `json:"finalized"`
	Error       *fftypes.JSONAny   `json:"error,omitempty"`
}

// getReceipt returns nil without error while the transaction is pending.
func (rc *rpcChain) getReceipt(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (*receipt, error) {
	var r *receipt
	if err := rc.call(ctx, "ch_transactionReceipt", []any{hash}, &r); err != nil {
		return nil, err
	}
	return r, nil
}

// pollingStream delivers inclusion updates for one transaction by polling its
// receipt: included (or failed) once a receipt appears, then finalized once
// the receipt reports it.
type pollingStream struct {
	rc       *rpcChain
	hash     ethtypes.HexBytes0xPrefix
	done     atomic.Bool
	included bool
	closed   chan struct{}
}

func (ps *pollingStream) Next(ctx context.Context) (*chainclient.InclusionUpdate, error) {
	if ps.done.Load() {
		return nil, i18n.NewError(ctx, msgs.MsgChainClientInclusionStreamDone, ps.hash)
	}
	for {
		r, err := ps.rc.getReceipt(ctx, ps.hash)
		if err != nil {
			return nil, err
		}
		if r != nil {
			iu := &chainclient.InclusionUpdate{
				BlockHeight:     int64(r.BlockHeight),
				TransactionHash: ps.hash,
			}
			switch {
			case !r.Success:
				iu.Status = chainclient.StatusFailed
				iu.RawError = r.Error
				ps.done.Store(true)
				return iu, nil
			case !ps.included:
				iu.Status = chainclient.StatusIncluded
				ps.included = true
				return iu, nil
			case r.Finalized:
				iu.Status = chainclient.StatusFinalized
				ps.done.Store(true)
				return iu, nil
			}
		}
		select {
		case <-time.After(ps.rc.receiptPoll):
		case <-ps.closed:
			return nil, i18n.NewError(ctx, msgs.MsgChainClientInclusionStreamDone, ps.hash)
		case <-ctx.Done():
			return nil, i18n.NewError(ctx, msgs.MsgContextCanceled)
		}
	}
}

func (ps *pollingStream) Close() {
	if ps.done.CompareAndSwap(false, true) {
		close(ps.closed)
	}
}
