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

// Package mocks provides in-process fakes for the external collaborators of
// the big switch core, for use in tests.
package mocks

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/opencord/voltha-lib-go/v7/pkg/db/kvstore"
)

// KVClient is an in-memory kvstore.Client.  It is safe for concurrent use
// and supports prefix watches, so it can stand in for etcd in tests.
type KVClient struct {
	lock sync.Mutex
	data map[string][]byte
	// held distributed locks, by lock name
	locks map[string]chan struct{}
	// registered watch channels, by watched key
	watches map[string][]watchEntry

	// NextPutError and friends inject a single failure into the next matching
	// operation; tests set them to exercise error paths.
	NextPutError    error
	NextGetError    error
	NextListError   error
	NextDeleteError error
}

type watchEntry struct {
	ch         chan *kvstore.Event
	withPrefix bool
}

func NewKVClient() *KVClient {
	return &KVClient{
		data:    make(map[string][]byte),
		locks:   make(map[string]chan struct{}),
		watches: make(map[string][]watchEntry),
	}
}

func (c *KVClient) List(ctx context.Context, key string) (map[string]*kvstore.KVPair, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.NextListError; err != nil {
		c.NextListError = nil
		return nil, err
	}
	pairs := make(map[string]*kvstore.KVPair)
	for k, v := range c.data {
		if strings.HasPrefix(k, key) {
			pairs[k] = kvstore.NewKVPair(k, v, "", 0, 0)
		}
	}
	return pairs, nil
}

func (c *KVClient) GetWithPrefix(ctx context.Context, prefix string) (map[string]*kvstore.KVPair, error) {
	return c.List(ctx, prefix)
}

func (c *KVClient) GetWithPrefixKeysOnly(ctx context.Context, prefix string) ([]string, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	var keys []string
	for k := range c.data {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	return keys, nil
}

func (c *KVClient) KeyExists(ctx context.Context, key string) (bool, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	_, have := c.data[key]
	return have, nil
}

func (c *KVClient) Get(ctx context.Context, key string) (*kvstore.KVPair, error) {
	c.lock.Lock()
	defer c.lock.Unlock()
	if err := c.NextGetError; err != nil {
		c.NextGetError = nil
		return nil, err
	}
	v, have := c.data[key]
	if !have {
		return nil, nil
	}
	return kvstore.NewKVPair(key, v, "", 0, 0), nil
}

func (c *KVClient) Put(ctx context.Context, key string, value interface{}) error {
	c.lock.Lock()
	if err := c.NextPutError; err != nil {
		c.NextPutError = nil
		c.lock.Unlock()
		return err
	}
	val, err := kvstore.ToByte(value)
	if err != nil {
		c.lock.Unlock()
		return err
	}
	c.data[key] = val
	targets := c.matchingWatches(key)
	c.lock.Unlock()

	c.notify(targets, kvstore.NewEvent(kvstore.PUT, []byte(key), val, 0))
	return nil
}

func (c *KVClient) Delete(ctx context.Context, key string) error {
	c.lock.Lock()
	if err := c.NextDeleteError; err != nil {
		c.NextDeleteError = nil
		c.lock.Unlock()
		return err
	}
	delete(c.data, key)
	targets := c.matchingWatches(key)
	c.lock.Unlock()

	c.notify(targets, kvstore.NewEvent(kvstore.DELETE, []byte(key), nil, 0))
	return nil
}

func (c *KVClient) DeleteWithPrefix(ctx context.Context, prefixKey string) error {
	c.lock.Lock()
	var deleted []string
	for k := range c.data {
		if strings.HasPrefix(k, prefixKey) {
			deleted = append(deleted, k)
			delete(c.data, k)
		}
	}
	targetsByKey := make(map[string][]chan *kvstore.Event, len(deleted))
	for _, k := range deleted {
		targetsByKey[k] = c.matchingWatches(k)
	}
	c.lock.Unlock()

	for _, k := range deleted {
		c.notify(targetsByKey[k], kvstore.NewEvent(kvstore.DELETE, []byte(k), nil, 0))
	}
	return nil
}

func (c *KVClient) Watch(ctx context.Context, key string, withPrefix bool) chan *kvstore.Event {
	c.lock.Lock()
	defer c.lock.Unlock()
	ch := make(chan *kvstore.Event, 64)
	c.watches[key] = append(c.watches[key], watchEntry{ch: ch, withPrefix: withPrefix})
	return ch
}

func (c *KVClient) CloseWatch(ctx context.Context, key string, ch chan *kvstore.Event) {
	c.lock.Lock()
	defer c.lock.Unlock()
	entries := c.watches[key]
	for i, entry := range entries {
		if entry.ch == ch {
			c.watches[key] = append(entries[:i], entries[i+1:]...)
			close(ch)
			return
		}
	}
}

// matchingWatches must be called with the lock held; the returned channels
// are notified after the lock is released.
func (c *KVClient) matchingWatches(key string) []chan *kvstore.Event {
	var targets []chan *kvstore.Event
	for watched, entries := range c.watches {
		for _, entry := range entries {
			if (entry.withPrefix && strings.HasPrefix(key, watched)) || key == watched {
				targets = append(targets, entry.ch)
			}
		}
	}
	return targets
}

func (c *KVClient) notify(targets []chan *kvstore.Event, event *kvstore.Event) {
	for _, ch := range targets {
		ch <- event
	}
}

func (c *KVClient) Reserve(ctx context.Context, key string, value interface{}, ttl time.Duration) (interface{}, error) {
	if err := c.Put(ctx, key, value); err != nil {
		return nil, err
	}
	return value, nil
}

func (c *KVClient) ReleaseReservation(ctx context.Context, key string) error {
	return c.Delete(ctx, key)
}

func (c *KVClient) ReleaseAllReservations(ctx context.Context) error {
	return nil
}

func (c *KVClient) RenewReservation(ctx context.Context, key string) error {
	return nil
}

func (c *KVClient) AcquireLock(ctx context.Context, lockName string, timeout time.Duration) error {
	c.lock.Lock()
	sem, have := c.locks[lockName]
	if !have {
		sem = make(chan struct{}, 1)
		c.locks[lockName] = sem
	}
	c.lock.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case sem <- struct{}{}:
		return nil
	case <-timer.C:
		return context.DeadlineExceeded
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *KVClient) ReleaseLock(lockName string) error {
	c.lock.Lock()
	sem, have := c.locks[lockName]
	c.lock.Unlock()
	if have {
		select {
		case <-sem:
		default:
		}
	}
	return nil
}

func (c *KVClient) IsConnectionUp(ctx context.Context) bool {
	return true
}

func (c *KVClient) Close(ctx context.Context) {
}
