// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package runner

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const RedisPrefix = "PHASERUNNER:"

// RedisSink mirrors scenario state into a Redis hash scoped to one run, so that
// actors driven from other processes can read handed-off values.
type RedisSink struct {
	rdb *redis.Client
	key string
	ttl time.Duration
}

// NewRedisSink connects to redisURL (redis://...) and scopes writes to runID.
func NewRedisSink(ctx context.Context, redisURL, runID string, ttl time.Duration) (*RedisSink, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("redis.ParseURL: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &RedisSink{rdb: rdb, key: StateKey(runID), ttl: ttl}, nil
}

// StateKey is the hash holding the state of runID.
func StateKey(runID string) string {
	return RedisPrefix + runID + ":state"
}

func (r *RedisSink) Put(ctx context.Context, key, value string) error {
	pipe := r.rdb.TxPipeline()
	pipe.HSet(ctx, r.key, key, value)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

func (r *RedisSink) Clear(ctx context.Context) error {
	return r.rdb.Del(ctx, r.key).Err()
}

// Lookup reads one mirrored value. ok is false when the key was never written.
func (r *RedisSink) Lookup(ctx context.Context, key string) (value string, ok bool, err error) {
	v, err := r.rdb.HGet(ctx, r.key, key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

// All returns every mirrored value of the run.
func (r *RedisSink) All(ctx context.Context) (map[string]string, error) {
	return r.rdb.HGetAll(ctx, r.key).Result()
}

func (r *RedisSink) Close() error {
	return r.rdb.Close()
}
