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

// Package eventlog is the queryable log of decoded chain events that the
// harness polls. Events are keyed by their position in the chain
// (block, transaction index, log index) so re-indexing the same block is
// idempotent.
package eventlog

import (
	"context"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
)

type ChainEvent struct {
	BlockNumber      int64            `json:"blockNumber"      gorm:"primaryKey"`
	TransactionIndex int64            `json:"transactionIndex" gorm:"primaryKey"`
	LogIndex         int64            `json:"logIndex"         gorm:"primaryKey"`
	TransactionHash  string           `json:"transactionHash"`
	Module           string           `json:"module"`
	Name             string           `json:"name"`
	Payload          *fftypes.JSONAny `json:"payload,omitempty" gorm:"serializer:json"`
	Recorded         int64            `json:"recorded"          gorm:"autoCreateTime:nano"`
}

func (ChainEvent) TableName() string {
	return "chain_events"
}

// QualifiedName is the full "Module.Name" form events are matched against.
func (ev *ChainEvent) QualifiedName() string {
	return ev.Module + "." + ev.Name
}

// EventQuery selects events by chain position and name. From is inclusive,
// To exclusive; a nil To means no upper bound. Empty string fields are not
// filtered on.
type EventQuery struct {
	From            int64
	To              *int64
	Module          string
	Name            string
	TransactionHash string
	Limit           int
}

type Store interface {
	// AddEvents records decoded events, ignoring any already stored at the same chain position
	AddEvents(ctx context.Context, events ...*ChainEvent) error
	// QueryEvents returns matching events in chain order
	QueryEvents(ctx context.Context, q *EventQuery) ([]*ChainEvent, error)
}
