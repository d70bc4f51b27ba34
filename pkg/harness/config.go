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
	"time"

	"github.com/kaleido-io/chainharness/internal/confutil"
)

type Config struct {
	// PollInterval is how often unbounded searches re-query the event log
	PollInterval *string `yaml:"pollInterval"`
	// HeartbeatInterval is how often a long unbounded search logs progress
	HeartbeatInterval *string `yaml:"heartbeatInterval"`
}

var Defaults = &Config{
	PollInterval:      confutil.P("250ms"),
	HeartbeatInterval: confutil.P("30s"),
}

type resolvedConfig struct {
	pollInterval      time.Duration
	heartbeatInterval time.Duration
}

func resolveConfig(conf *Config) *resolvedConfig {
	if conf == nil {
		conf = Defaults
	}
	return &resolvedConfig{
		pollInterval:      confutil.DurationMin(conf.PollInterval, 1*time.Millisecond, *Defaults.PollInterval),
		heartbeatInterval: confutil.DurationMin(conf.HeartbeatInterval, 1*time.Second, *Defaults.HeartbeatInterval),
	}
}
