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
	"encoding/json"
	"fmt"
	"sync"
	"testing"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/chainharness/internal/confutil"
	"github.com/kaleido-io/chainharness/internal/persistence"
	"github.com/kaleido-io/chainharness/pkg/chainclient"
	"github.com/kaleido-io/chainharness/pkg/eventlog"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

// fakeStream replays a fixed sequence of inclusion updates.
type fakeStream struct {
	updates []*chainclient.InclusionUpdate
	next    int
}

func (fs *fakeStream) Next(ctx context.Context) (*chainclient.InclusionUpdate, error) {
	if fs.next >= len(fs.updates) {
		return nil, fmt.Errorf("pop")
	}
	iu := fs.updates[fs.next]
	fs.next++
	return iu, nil
}

func (fs *fakeStream) Close() {}

type fakeChain struct {
	lock      sync.Mutex
	head      int64
	submit    func(ctx context.Context, op *chainclient.Operation) (chainclient.InclusionStream, error)
	txHeights map[string]int64
}

func (fc *fakeChain) Submit(ctx context.Context, op *chainclient.Operation) (chainclient.InclusionStream, error) {
	return fc.submit(ctx, op)
}

func (fc *fakeChain) SubmitUnsigned(ctx context.Context, op *chainclient.Operation) (chainclient.InclusionStream, error) {
	return fc.submit(ctx, op)
}

func (fc *fakeChain) CurrentBlockHeight(ctx context.Context) (int64, error) {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	return fc.head, nil
}

func (fc *fakeChain) BlockHeightOfTransaction(ctx context.Context, hash ethtypes.HexBytes0xPrefix) (int64, error) {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	height, ok := fc.txHeights[hash.String()]
	if !ok {
		return -1, fmt.Errorf("unknown transaction %s", hash)
	}
	return height, nil
}

func (fc *fakeChain) DecodeFailure(ctx context.Context, rawError *fftypes.JSONAny) string {
	var structured struct {
		Message string `json:"message"`
	}
	if rawError != nil && json.Unmarshal(rawError.Bytes(), &structured) == nil && structured.Message != "" {
		return structured.Message
	}
	return rawError.String()
}

func (fc *fakeChain) setTXHeight(hash string, height int64) {
	fc.lock.Lock()
	defer fc.lock.Unlock()
	if fc.txHeights == nil {
		fc.txHeights = map[string]int64{}
	}
	fc.txHeights[hash] = height
}

func includedStream(hash string, height int64) chainclient.InclusionStream {
	return &fakeStream{updates: []*chainclient.InclusionUpdate{{
		Status:          chainclient.StatusIncluded,
		BlockHeight:     height,
		TransactionHash: ethtypes.MustNewHexBytes0xPrefix(hash),
	}}}
}

func failedStream(hash string, rawError string) chainclient.InclusionStream {
	return &fakeStream{updates: []*chainclient.InclusionUpdate{{
		Status:          chainclient.StatusFailed,
		TransactionHash: ethtypes.MustNewHexBytes0xPrefix(hash),
		RawError:        fftypes.JSONAnyPtr(rawError),
	}}}
}

// newTestHarness wires a handle over a fake chain at height 5, and a real
// sqlite-backed event log the tests write directly to.
func newTestHarness(t *testing.T) (context.Context, *Handle, *fakeChain, eventlog.Store) {
	logrus.SetLevel(logrus.DebugLevel)
	ctx := context.Background()
	p, done, err := persistence.NewUnitTestPersistence(ctx, "../../db/migrations/sqlite")
	require.NoError(t, err)
	t.Cleanup(done)
	store := eventlog.NewStore(p)
	chain := &fakeChain{head: 5}
	h, err := New(ctx, &Config{
		PollInterval:      confutil.P("1ms"),
		HeartbeatInterval: confutil.P("1s"),
	}, chain, store, Capabilities{CapabilitySigningIdentity: "alice"})
	require.NoError(t, err)
	return ctx, h, chain, store
}

func addEvent(t *testing.T, store eventlog.Store, block, txIdx, logIdx int64, txHash, module, name, payload string) {
	t.Helper()
	err := store.AddEvents(context.Background(), &eventlog.ChainEvent{
		BlockNumber:      block,
		TransactionIndex: txIdx,
		LogIndex:         logIdx,
		TransactionHash:  txHash,
		Module:           module,
		Name:             name,
		Payload:          fftypes.JSONAnyPtr(payload),
	})
	require.NoError(t, err)
}
