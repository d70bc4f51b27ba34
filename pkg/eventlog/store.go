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

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"github.com/kaleido-io/chainharness/internal/persistence"
	"gorm.io/gorm/clause"
)

type store struct {
	p persistence.Persistence
}

func NewStore(p persistence.Persistence) Store {
	return &store{p: p}
}

func (s *store) AddEvents(ctx context.Context, events ...*ChainEvent) error {
	if len(events) == 0 {
		return nil
	}
	err := s.p.DB().
		WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(events).
		Error
	if err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgEventLogWriteFailed)
	}
	log.L(ctx).Debugf("Stored %d events (first %s at block %d)", len(events), events[0].QualifiedName(), events[0].BlockNumber)
	return nil
}

func (s *store) QueryEvents(ctx context.Context, q *EventQuery) ([]*ChainEvent, error) {
	if q.To != nil && *q.To <= q.From {
		return nil, i18n.NewError(ctx, msgs.MsgEventLogInvalidHeightRange, q.From, *q.To)
	}
	db := s.p.DB().
		WithContext(ctx).
		Where("block_number >= ?", q.From)
	if q.To != nil {
		db = db.Where("block_number < ?", *q.To)
	}
	if q.Module != "" {
		db = db.Where("module = ?", q.Module)
	}
	if q.Name != "" {
		db = db.Where("name = ?", q.Name)
	}
	if q.TransactionHash != "" {
		db = db.Where("transaction_hash = ?", q.TransactionHash)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}
	var events []*ChainEvent
	err := db.
		Order("block_number").
		Order("transaction_index").
		Order("log_index").
		Find(&events).
		Error
	if err != nil {
		return nil, err
	}
	return events, nil
}
