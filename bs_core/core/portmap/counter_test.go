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
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/opencord/bigswitch/bs_core/mocks"
	"github.com/stretchr/testify/assert"
)

func TestCounterMonotonic(t *testing.T) {
	ctx := context.Background()
	counter := NewCounter(newTestBackend(mocks.NewKVClient()), 5*time.Second)

	previous, err := counter.Next(ctx)
	assert.NoError(t, err)
	for i := 0; i < 10; i++ {
		n, err := counter.Next(ctx)
		assert.NoError(t, err)
		assert.Greater(t, n, previous)
		previous = n
	}
}

func TestCounterSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	backend := newTestBackend(kvClient)

	first := NewCounter(backend, 5*time.Second)
	n1, err := first.Next(ctx)
	assert.NoError(t, err)

	// a fresh counter over the same store must continue, not restart
	second := NewCounter(backend, 5*time.Second)
	n2, err := second.Next(ctx)
	assert.NoError(t, err)
	assert.Greater(t, n2, n1)
}

func TestCounterConcurrentUnique(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(mocks.NewKVClient())

	// two counters over the same store stand in for two cluster members
	counters := []*Counter{
		NewCounter(backend, 5*time.Second),
		NewCounter(backend, 5*time.Second),
	}

	const perCounter = 20
	results := make(chan uint64, len(counters)*perCounter)
	var wg sync.WaitGroup
	for _, counter := range counters {
		wg.Add(1)
		go func(c *Counter) {
			defer wg.Done()
			for i := 0; i < perCounter; i++ {
				n, err := c.Next(ctx)
				assert.NoError(t, err)
				results <- n
			}
		}(counter)
	}
	wg.Wait()
	close(results)

	var numbers []uint64
	for n := range results {
		numbers = append(numbers, n)
	}
	assert.Equal(t, len(counters)*perCounter, len(numbers))

	sort.Slice(numbers, func(i, j int) bool { return numbers[i] < numbers[j] })
	for i := 1; i < len(numbers); i++ {
		assert.NotEqual(t, numbers[i-1], numbers[i], "number handed out twice")
	}
}

func TestCounterStoreFailure(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	counter := NewCounter(newTestBackend(kvClient), 5*time.Second)

	kvClient.NextGetError = errors.New("store-down")
	_, err := counter.Next(ctx)
	assert.Error(t, err)

	// failure must not wedge the counter
	n, err := counter.Next(ctx)
	assert.NoError(t, err)
	assert.NotZero(t, n)
}
