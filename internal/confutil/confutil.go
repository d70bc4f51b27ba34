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

package confutil

import (
	"context"
	"os"
	"time"

	"github.com/hyperledger/firefly-common/pkg/i18n"
	"github.com/kaleido-io/chainharness/internal/msgs"
	"gopkg.in/yaml.v3"
)

func Int(iVal *int, def int) int {
	if iVal == nil {
		return def
	}
	return *iVal
}

func IntMin(iVal *int, min int, def int) int {
	if iVal == nil || *iVal < min {
		return def
	}
	return *iVal
}

func Int64(iVal *int64, def int64) int64 {
	if iVal == nil {
		return def
	}
	return *iVal
}

func Int64Min(iVal *int64, min int64, def int64) int64 {
	if iVal == nil || *iVal < min {
		return def
	}
	return *iVal
}

func Float64Min(fVal *float64, min float64, def float64) float64 {
	if fVal == nil || *fVal < min {
		return def
	}
	return *fVal
}

func Bool(bVal *bool, def bool) bool {
	if bVal == nil {
		return def
	}
	return *bVal
}

func StringNotEmpty(sVal *string, def string) string {
	if sVal == nil || *sVal == "" {
		return def
	}
	return *sVal
}

// Duration parses the configured value, falling back to the supplied default
// for unset or unparsable values. Defaults are compile-time constants, so a
// bad default is a programming error and panics via time.ParseDuration.
func Duration(sVal *string, def string) time.Duration {
	if sVal != nil {
		if d, err := time.ParseDuration(*sVal); err == nil {
			return d
		}
	}
	d, err := time.ParseDuration(def)
	if err != nil {
		panic(err)
	}
	return d
}

func DurationMin(sVal *string, min time.Duration, def string) time.Duration {
	d := Duration(sVal, def)
	if d < min {
		return Duration(nil, def)
	}
	return d
}

func P[T any](v T) *T {
	return &v
}

func ReadAndParseYAMLFile(ctx context.Context, filePath string, config interface{}) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgConfigFileReadError, filePath)
	}
	if err := yaml.Unmarshal(data, config); err != nil {
		return i18n.WrapError(ctx, err, msgs.MsgConfigFileParseError, filePath)
	}
	return nil
}
