// Copyright 2025 The Crystal Authors. All Rights Reserved.
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

package logsink

import (
	"context"
	"fmt"
	"time"
)

// Options holds the knobs needed to build any supported sink.
type Options struct {
	RedisAddr      string
	RedisMarkerTTL time.Duration
}

// Build constructs a Sink for the given selector:
//   - "", "mock": in-memory sink (default)
//   - "logging": prints instead of persisting
//   - "redis": idempotent Redis sink; uses a real client when RedisAddr is
//     set, otherwise falls back to a logging client
func Build(ctx context.Context, adapter string, opts Options) (Sink, error) {
	switch adapter {
	case "", "mock":
		return NewMockSink(), nil
	case "logging":
		return LoggingSink{}, nil
	case "redis":
		var evaler RedisEvaler
		if opts.RedisAddr != "" {
			evaler = NewGoRedisEvaler(opts.RedisAddr)
		} else {
			evaler = LoggingRedisEvaler{}
		}
		return NewRedisSink(ctx, evaler, opts.RedisMarkerTTL), nil
	default:
		return nil, fmt.Errorf("logsink: unknown adapter %q", adapter)
	}
}
