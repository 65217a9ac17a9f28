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

// RedisEvaler abstracts the minimal surface needed from a Redis client.
// Implementations may wrap github.com/redis/go-redis/v9's Cmdable.Eval or
// any equivalent.
type RedisEvaler interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (interface{}, error)
}

// RedisSink applies epoch commits idempotently:
// 1) SETNX marker:<node>:<epoch> 1
// 2) If set -> HSET summary:<node>:<epoch> n_ta/hops
// 3) EXPIRE the marker for leak protection.
// If SETNX fails (already applied), it returns without writing again.
type RedisSink struct {
	client    RedisEvaler
	ctx       context.Context
	markerTTL time.Duration
}

// NewRedisSink returns a sink bound to client, with the given marker TTL
// (defaulting to 24h, guarding against unbounded marker growth).
func NewRedisSink(ctx context.Context, client RedisEvaler, markerTTL time.Duration) *RedisSink {
	if markerTTL <= 0 {
		markerTTL = 24 * time.Hour
	}
	return &RedisSink{client: client, ctx: ctx, markerTTL: markerTTL}
}

const commitEpochScript = `
local summaryKey = KEYS[1]
local markerKey = KEYS[2]
local nTA = tonumber(ARGV[1])
local hops = tonumber(ARGV[2])
local ttlSeconds = tonumber(ARGV[3])
local set = redis.call('SETNX', markerKey, 1)
if set == 1 then
  redis.call('HSET', summaryKey, 'n_ta', nTA, 'hops', hops)
  if ttlSeconds and ttlSeconds > 0 then
    redis.call('EXPIRE', markerKey, ttlSeconds)
  end
  return 1
else
  return 0
end
`

func summaryKey(node uint16, epoch uint16) string {
	return fmt.Sprintf("crystal:summary:%d:%d", node, epoch)
}

func markerKey(node uint16, epoch uint16) string {
	return fmt.Sprintf("crystal:marker:%d:%d", node, epoch)
}

func (r *RedisSink) CommitEpoch(s EpochSummary) error {
	keys := []string{summaryKey(s.NodeID, s.Epoch), markerKey(s.NodeID, s.Epoch)}
	args := []interface{}{s.NTA, s.Hops, int(r.markerTTL.Seconds())}
	if _, err := r.client.Eval(r.ctx, commitEpochScript, keys, args...); err != nil {
		return fmt.Errorf("redis eval node=%d epoch=%d: %w", s.NodeID, s.Epoch, err)
	}
	return nil
}
