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

package eventlog

import (
	"context"
	"testing"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/kaleido-io/chainharness/internal/confutil"
	"github.com/kaleido-io/chainharness/internal/persistence"
	"github.com/kaleido-io/chainharness/internal/persistence/mockpersistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (context.Context, Store) {
	ctx := context.Background()
	p, done, err := persistence.NewUnitTestPersistence(ctx, "../../db/migrations/sqlite")
	require.NoError(t, err)
	t.Cleanup(done)
	return ctx, NewStore(p)
}

func testEvents() []*ChainEvent {
	return []*ChainEvent{
		{BlockNumber: 10, TransactionIndex: 0, LogIndex: 0, TransactionHash: "0xaaaa", Module: "Transfers", Name: "Sent", Payload: fftypes.JSONAnyPtr(`{"amount":100}`)},
		{BlockNumber: 10, TransactionIndex: 0, LogIndex: 1, TransactionHash: "0xaaaa", Module: "Transfers", Name: "Received", Payload: fftypes.JSONAnyPtr(`{"amount":100}`)},
		{BlockNumber: 10, TransactionIndex: 1, LogIndex: 0, TransactionHash: "0xbbbb", Module: "Governance", Name: "Proposed", Payload: fftypes.JSONAnyPtr(`{"id":42}`)},
		{BlockNumber: 12, TransactionIndex: 0, LogIndex: 0, TransactionHash: "0xcccc", Module: "Governance", Name: "Executed", Payload: fftypes.JSONAnyPtr(`{"id":42}`)},
	}
}

func TestAddAndQueryEvents(t *testing.T) {
	ctx, s := newTestStore(t)

	err := s.AddEvents(ctx, testEvents()...)
	require.NoError(t, err)

	// Re-adding the same chain positions is a no-op
	err = s.AddEvents(ctx, testEvents()...)
	require.NoError(t, err)

	// Exact block, chain order
	events, err := s.QueryEvents(ctx, &EventQuery{From: 10, To: confutil.P(int64(11))})
	require.NoError(t, err)
	require.Len(t, events, 3)
	assert.Equal(t, "Transfers.Sent", events[0].QualifiedName())
	assert.Equal(t, "Transfers.Received", events[1].QualifiedName())
	assert.Equal(t, "Governance.Proposed", events[2].QualifiedName())
	assert.JSONEq(t, `{"amount":100}`, events[0].Payload.String())

	// Name without module
	events, err = s.QueryEvents(ctx, &EventQuery{From: 0, Name: "Executed"})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(12), events[0].BlockNumber)

	// Module + name + tx hash
	events, err = s.QueryEvents(ctx, &EventQuery{From: 10, Module: "Transfers", Name: "Sent", TransactionHash: "0xaaaa"})
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Wrong tx hash filters the match out
	events, err = s.QueryEvents(ctx, &EventQuery{From: 10, Module: "Transfers", Name: "Sent", TransactionHash: "0xbbbb"})
	require.NoError(t, err)
	assert.Empty(t, events)

	// Limit
	events, err = s.QueryEvents(ctx, &EventQuery{From: 0, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, events, 2)
}

func TestAddEventsEmpty(t *testing.T) {
	ctx, s := newTestStore(t)
	assert.NoError(t, s.AddEvents(ctx))
}

func TestQueryInvalidRange(t *testing.T) {
	ctx, s := newTestStore(t)
	_, err := s.QueryEvents(ctx, &EventQuery{From: 10, To: confutil.P(int64(10))})
	assert.Regexp(t, "CH010300", err)
}

func TestAddEventsInsertFail(t *testing.T) {
	mp, err := mockpersistence.NewSQLMockProvider()
	require.NoError(t, err)
	s := NewStore(mp.P)
	mp.Mock.ExpectBegin()
	err = s.AddEvents(context.Background(), testEvents()...)
	assert.Regexp(t, "CH010301", err)
}

func TestQueryEventsSelectFail(t *testing.T) {
	mp, err := mockpersistence.NewSQLMockProvider()
	require.NoError(t, err)
	s := NewStore(mp.P)
	_, err = s.QueryEvents(context.Background(), &EventQuery{From: 0})
	assert.Error(t, err)
}
