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
	"strings"

	"github.com/hyperledger/firefly-common/pkg/fftypes"
	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/hyperledger/firefly-common/pkg/log"
	"github.com/hyperledger/firefly-signer/pkg/ethtypes"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"github.com/kaleido-io/chainharness/pkg/eventlog"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// EventName is the structured form of an event descriptor's name. The suffix
// form ".Name" leaves Module empty and matches the name in any module.
type EventName struct {
	Module string
	Name   string
}

func ParseEventName(ctx context.Context, s string) (*EventName, error) {
	dot := strings.LastIndex(s, ".")
	if dot < 0 {
		return nil, i18n.NewError(ctx, msgs.MsgHarnessInvalidEventName, s)
	}
	en := &EventName{
		Module: s[0:dot],
		Name:   s[dot+1:],
	}
	if en.Name == "" || strings.Contains(en.Module, ".") {
		return nil, i18n.NewError(ctx, msgs.MsgHarnessInvalidEventName, s)
	}
	return en, nil
}

// Matches compares against a structured module/name pair, so the suffix form
// cannot partially match inside a name.
func (en *EventName) Matches(module, name string) bool {
	if en.Module != "" && en.Module != module {
		return false
	}
	return en.Name == name
}

func (en *EventName) String() string {
	return en.Module + "." + en.Name
}

// EventDescriptor is a query for one kind of event: a qualified
// "Module.Name" or suffix ".Name" name, an optional JSON schema the payload
// must validate against, and an optional predicate over the payload.
// Descriptors are stateless from the caller's perspective and safe to reuse.
type EventDescriptor struct {
	Name string
	// Schema is a JSON schema document for the payload (draft 2020-12)
	Schema string
	// Predicate runs over payloads that passed the name and schema checks
	Predicate func(payload *fftypes.JSONAny) bool

	parsed   *EventName
	compiled *jsonschema.Schema
}

func (ed *EventDescriptor) compile(ctx context.Context) (err error) {
	if ed.parsed == nil {
		if ed.parsed, err = ParseEventName(ctx, ed.Name); err != nil {
			return err
		}
	}
	if ed.Schema != "" && ed.compiled == nil {
		c := jsonschema.NewCompiler()
		c.Draft = jsonschema.Draft2020
		schemaURL := "harness://event/" + ed.Name
		if err = c.AddResource(schemaURL, strings.NewReader(ed.Schema)); err == nil {
			ed.compiled, err = c.Compile(schemaURL)
		}
		if err != nil {
			return i18n.WrapError(ctx, err, msgs.MsgHarnessEventSchemaInvalid, ed.Name)
		}
	}
	return nil
}

// query maps the descriptor onto the event log's filters. The store matches
// names exactly, so a suffix-form descriptor filters on name only.
func (ed *EventDescriptor) query(from int64, to *int64, txHash string) *eventlog.EventQuery {
	return &eventlog.EventQuery{
		From:            from,
		To:              to,
		Module:          ed.parsed.Module,
		Name:            ed.parsed.Name,
		TransactionHash: txHash,
	}
}

// matches applies the schema and predicate checks the store cannot. compile
// must have succeeded first.
func (ed *EventDescriptor) matches(ctx context.Context, ev *eventlog.ChainEvent) bool {
	if !ed.parsed.Matches(ev.Module, ev.Name) {
		return false
	}
	if ed.compiled != nil {
		var decoded any
		payload := []byte(`null`)
		if ev.Payload != nil {
			payload = ev.Payload.Bytes()
		}
		if err := json.Unmarshal(payload, &decoded); err != nil {
			log.L(ctx).Debugf("Event %s at block %d has undecodable payload: %s", ev.QualifiedName(), ev.BlockNumber, err)
			return false
		}
		if err := ed.compiled.Validate(decoded); err != nil {
			log.L(ctx).Tracef("Event %s at block %d failed schema check: %s", ev.QualifiedName(), ev.BlockNumber, err)
			return false
		}
	}
	if ed.Predicate != nil && !ed.Predicate(ev.Payload) {
		return false
	}
	return true
}

// EventRecord is a found event.
type EventRecord struct {
	Name            string                    `json:"name"`
	BlockHeight     int64                     `json:"blockHeight"`
	TransactionHash ethtypes.HexBytes0xPrefix `json:"transactionHash,omitempty"`
	Payload         *fftypes.JSONAny          `json:"payload,omitempty"`
}

func newEventRecord(ev *eventlog.ChainEvent) *EventRecord {
	er := &EventRecord{
		Name:        ev.QualifiedName(),
		BlockHeight: ev.BlockNumber,
		Payload:     ev.Payload,
	}
	if ev.TransactionHash != "" {
		er.TransactionHash = ethtypes.MustNewHexBytes0xPrefix(ev.TransactionHash)
	}
	return er
}
