// Copyright 2018 The Chubao Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or
// implied. See the License for the specific language governing
// permissions and limitations under the License.

package config

import "testing"

func TestConfigGetStringAndInt64(t *testing.T) {
	cfg := LoadConfigString(`{
		"logDir": "/var/log/curvebs-client", # where to rotate logs
		"chunkserverOPMaxRetry": 5
	}`)

	if got := cfg.GetString("logDir"); got != "/var/log/curvebs-client" {
		t.Fatalf("expected logDir to survive comment stripping, got %q", got)
	}
	if got := cfg.GetInt64("chunkserverOPMaxRetry"); got != 5 {
		t.Fatalf("expected 5, got %d", got)
	}
	if got := cfg.GetInt64("missing"); got != 0 {
		t.Fatalf("expected 0 for a missing key, got %d", got)
	}
}

func TestConfigUnmarshalLeavesAbsentFieldsUntouched(t *testing.T) {
	type options struct {
		ChunkserverOPMaxRetry uint32 `json:"chunkserverOPMaxRetry"`
		MaxInflightRequests   int64  `json:"maxInflightRequests"`
	}

	cfg := LoadConfigString(`{"chunkserverOPMaxRetry": 7}`)
	opt := options{ChunkserverOPMaxRetry: 3, MaxInflightRequests: 4096}

	if err := cfg.Unmarshal(&opt); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if opt.ChunkserverOPMaxRetry != 7 {
		t.Fatalf("expected the present field to be overwritten to 7, got %d", opt.ChunkserverOPMaxRetry)
	}
	if opt.MaxInflightRequests != 4096 {
		t.Fatalf("expected the absent field to keep its default of 4096, got %d", opt.MaxInflightRequests)
	}
}
