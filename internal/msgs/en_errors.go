// Copyright © 2025 Kaleido, Inc.
//
// SPDX-License-Identifier: Apache-2.0
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package msgs

import (
	"fmt"
	"strings"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"golang.org/x/text/language"
)

const chainHarnessPrefix = "CH01"

var registered = false
var ffe = func(key, translation string, statusHint ...int) i18n.ErrorMessageKey {
	if !registered {
		i18n.RegisterPrefix(chainHarnessPrefix, "Chain Test Harness")
		registered = true
	}
	if !strings.HasPrefix(key, chainHarnessPrefix) {
		panic(fmt.Errorf("must have prefix '%s': %s", chainHarnessPrefix, key))
	}
	return i18n.FFE(language.AmericanEnglish, key, translation, statusHint...)
}

var (
	// Generic CH0100XX
	MsgContextCanceled      = ffe("CH010000", "Context canceled")
	MsgConfigFileReadError  = ffe("CH010001", "Failed to read configuration file %s")
	MsgConfigFileParseError = ffe("CH010002", "Failed to parse configuration file %s")

	// Persistence CH0101XX
	MsgPersistenceInvalidType         = ffe("CH010100", "Invalid persistence type: %s")
	MsgPersistenceMissingURI          = ffe("CH010101", "Missing database connection URI")
	MsgPersistenceInitFailed          = ffe("CH010102", "Database init failed")
	MsgPersistenceMigrationFailed     = ffe("CH010103", "Database migration failed")
	MsgPersistenceMissingMigrationDir = ffe("CH010104", "Missing database migration directory for autoMigrate")

	// Chain client CH0102XX
	MsgChainClientRPCFailed           = ffe("CH010200", "JSON/RPC request %s failed")
	MsgChainClientRPCError            = ffe("CH010201", "JSON/RPC error from node: %s")
	MsgChainClientMissingTransaction  = ffe("CH010202", "Transaction %s not known to the node")
	MsgChainClientSubmitMissingHash   = ffe("CH010203", "Node accepted the operation but returned no transaction hash")
	MsgChainClientHTTPURLMissing      = ffe("CH010204", "HTTP URL missing in configuration")
	MsgChainClientInclusionStreamDone = ffe("CH010205", "Inclusion notification stream ended before a terminal status for transaction %s")

	// Event log CH0103XX
	MsgEventLogInvalidHeightRange = ffe("CH010300", "Invalid event query height range from=%d to=%d")
	MsgEventLogWriteFailed        = ffe("CH010301", "Failed to store decoded events")

	// Harness CH0104XX
	MsgHarnessReentrantCall        = ffe("CH010400", "Handle is already busy with operation '%s' (started at %s); refusing concurrent operation '%s' (attempted at %s). Concurrent waits on one handle must run as ForkJoin branches")
	MsgHarnessHeightRegression     = ffe("CH010401", "Refusing to move tracked block height backwards from %d to %d")
	MsgHarnessOperationFailed      = ffe("CH010402", "Operation rejected by the ledger: %s")
	MsgHarnessCausedEventNotFound  = ffe("CH010403", "Transaction %s was included at block %d but did not emit expected event %s in that block")
	MsgHarnessInvalidEventName     = ffe("CH010404", "Invalid event name '%s' (must be qualified 'Module.Name', or suffix form '.Name')")
	MsgHarnessEventSchemaInvalid   = ffe("CH010405", "Payload schema for event descriptor %s is invalid")
	MsgHarnessNoSigningIdentity    = ffe("CH010406", "No signing identity supplied on the request, and none in the handle capabilities")
	MsgHarnessNoBranches           = ffe("CH010407", "At least one branch function is required")
	MsgHarnessNoDescriptors        = ffe("CH010408", "At least one event descriptor is required")
	MsgHarnessGovernanceExecFailed = ffe("CH010409", "Governance proposal %s executed, but the governed operation failed: %s")
	MsgHarnessProposalIDExtract    = ffe("CH010410", "Failed to extract proposal id from submission result for transaction %s")
	MsgHarnessBuildFailed          = ffe("CH010411", "Operation builder failed")
)
