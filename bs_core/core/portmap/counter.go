/*
 * Copyright 2018-present Open Networking Foundation

 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at

 * http://www.apache.org/licenses/LICENSE-2.0

 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package portmap

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/opencord/voltha-lib-go/v7/pkg/db/kvstore"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	// CounterName is the identity of the shared counter within the KV store.
	CounterName = "ecord-port-counter"

	counterLockName = CounterName + "-lock"

	// counterBase is where numbering starts when the counter key does not
	// exist yet.  Callers must treat the counter as monotonic-but-opaque
	// and never assume a specific starting value.
	counterBase = 1
)

// Counter hands out cluster-unique, monotonically increasing virtual port
// numbers.  The value lives in the shared KV store; updates are serialized
// across cluster members with the store's distributed lock, and locally with
// a mutex.  Numbers are never released, so gaps after removals are expected.
type Counter struct {
	backend *db.Backend
	timeout time.Duration
	lock    sync.Mutex
}

func NewCounter(backend *db.Backend, timeout time.Duration) *Counter {
	return &Counter{backend: backend, timeout: timeout}
}

// Next atomically reads-and-increments the shared counter, returning a value
// never returned before by any cluster member for this counter's lifetime.
// There is no rollback; a number handed out is consumed even if the caller
// fails afterwards.
func (c *Counter) Next(ctx context.Context) (uint64, error) {
	c.lock.Lock()
	defer c.lock.Unlock()

	if err := c.backend.Client.AcquireLock(ctx, counterLockName, c.timeout); err != nil {
		return 0, status.Errorf(codes.Unavailable, "counter-lock-unavailable: %s", err)
	}
	defer func() {
		if err := c.backend.Client.ReleaseLock(counterLockName); err != nil {
			logger.Errorw(ctx, "failed-to-release-counter-lock", log.Fields{"error": err})
		}
	}()

	kvp, err := c.backend.Get(ctx, CounterName)
	if err != nil {
		return 0, status.Errorf(codes.Unavailable, "counter-read-failed: %s", err)
	}

	next := uint64(counterBase)
	if kvp != nil {
		value, err := kvstore.ToByte(kvp.Value)
		if err != nil {
			return 0, status.Errorf(codes.Internal, "unexpected-counter-value: %s", err)
		}
		if next, err = strconv.ParseUint(string(value), 10, 64); err != nil {
			return 0, status.Errorf(codes.Internal, "unexpected-counter-value-%s", value)
		}
	}

	if err := c.backend.Put(ctx, CounterName, strconv.FormatUint(next+1, 10)); err != nil {
		return 0, status.Errorf(codes.Unavailable, "counter-update-failed: %s", err)
	}
	logger.Debugw(ctx, "allocated-virtual-port-number", log.Fields{"number": next})
	return next, nil
}
