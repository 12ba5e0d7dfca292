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
	"testing"
	"time"

	"github.com/opencord/bigswitch/bs_core/mocks"
	"github.com/opencord/bigswitch/topology"
	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/stretchr/testify/assert"
)

func newTestBackend(kvClient *mocks.KVClient) *db.Backend {
	return &db.Backend{
		Client:     kvClient,
		StoreType:  "etcd",
		Timeout:    5 * time.Second,
		PathPrefix: "service/bigswitch",
	}
}

func cpoint(device string, port uint64) topology.ConnectPoint {
	return topology.ConnectPoint{DeviceID: topology.DeviceID(device), Port: topology.PortNumber(port)}
}

func TestLoaderCreateAndLock(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	loader := NewLoader(newTestBackend(kvClient))
	assert.NoError(t, loader.Load(ctx))

	cp := cpoint("of:0000000000000001", 3)
	assert.False(t, loader.Contains(ctx, cp))

	handle, created, err := loader.LockOrCreate(ctx, cp, 7)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(7), handle.Number())
	handle.Unlock()

	assert.True(t, loader.Contains(ctx, cp))

	// second create must return the existing mapping
	handle, created, err = loader.LockOrCreate(ctx, cp, 99)
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(7), handle.Number())
	handle.Unlock()

	// the mapping went through to the store
	kvp, err := kvClient.Get(ctx, "service/bigswitch/ecord-port-map/of:0000000000000001/3")
	assert.NoError(t, err)
	assert.NotNil(t, kvp)
}

func TestLoaderCreateRevertsOnStoreFailure(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	loader := NewLoader(newTestBackend(kvClient))
	assert.NoError(t, loader.Load(ctx))

	cp := cpoint("of:0000000000000001", 3)
	kvClient.NextPutError = errors.New("store-down")

	_, _, err := loader.LockOrCreate(ctx, cp, 7)
	assert.Error(t, err)
	// failed write must not leave a cached mapping behind
	assert.False(t, loader.Contains(ctx, cp))

	// store recovered; the create must succeed now
	handle, created, err := loader.LockOrCreate(ctx, cp, 8)
	assert.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, uint64(8), handle.Number())
	handle.Unlock()
}

func TestLoaderDelete(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	loader := NewLoader(newTestBackend(kvClient))
	assert.NoError(t, loader.Load(ctx))

	cp := cpoint("of:0000000000000001", 3)
	handle, _, err := loader.LockOrCreate(ctx, cp, 7)
	assert.NoError(t, err)
	assert.NoError(t, handle.Delete(ctx))

	assert.False(t, loader.Contains(ctx, cp))
	_, have, err := loader.Lock(ctx, cp)
	assert.NoError(t, err)
	assert.False(t, have)

	kvp, err := kvClient.Get(ctx, "service/bigswitch/ecord-port-map/of:0000000000000001/3")
	assert.NoError(t, err)
	assert.Nil(t, kvp)
}

func TestLoaderLoadRebuildsFromStore(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	backend := newTestBackend(kvClient)

	first := NewLoader(backend)
	assert.NoError(t, first.Load(ctx))
	handle, _, err := first.LockOrCreate(ctx, cpoint("of:0001", 1), 1)
	assert.NoError(t, err)
	handle.Unlock()
	handle, _, err = first.LockOrCreate(ctx, cpoint("of:0002", 2), 2)
	assert.NoError(t, err)
	handle.Unlock()

	// a fresh loader over the same store must observe the same content
	second := NewLoader(backend)
	assert.NoError(t, second.Load(ctx))
	assert.True(t, second.Contains(ctx, cpoint("of:0001", 1)))
	assert.True(t, second.Contains(ctx, cpoint("of:0002", 2)))

	handle, have, err := second.Lock(ctx, cpoint("of:0002", 2))
	assert.NoError(t, err)
	assert.True(t, have)
	assert.Equal(t, uint64(2), handle.Number())
	handle.Unlock()
}

func TestLoaderReadsThroughToPeerMappings(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(mocks.NewKVClient())

	// two loaders over one store stand in for two cluster members, both up
	// before either writes
	memberA := NewLoader(backend)
	assert.NoError(t, memberA.Load(ctx))
	memberB := NewLoader(backend)
	assert.NoError(t, memberB.Load(ctx))

	cp := cpoint("of:0001", 3)
	handle, created, err := memberA.LockOrCreate(ctx, cp, 5)
	assert.NoError(t, err)
	assert.True(t, created)
	handle.Unlock()

	// B never saw the write locally but must still observe it
	assert.True(t, memberB.Contains(ctx, cp))

	handle, have, err := memberB.Lock(ctx, cp)
	assert.NoError(t, err)
	assert.True(t, have)
	assert.Equal(t, uint64(5), handle.Number())
	handle.Unlock()

	// and must not create a second number for the same connect point
	handle, created, err = memberB.LockOrCreate(ctx, cp, 6)
	assert.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, uint64(5), handle.Number())
	handle.Unlock()
}

func TestLoaderWatchFoldsInPeerChanges(t *testing.T) {
	ctx := context.Background()
	backend := newTestBackend(mocks.NewKVClient())

	memberA := NewLoader(backend)
	assert.NoError(t, memberA.Load(ctx))
	memberB := NewLoader(backend)
	assert.NoError(t, memberB.Load(ctx))
	memberB.Watch(ctx)
	defer memberB.CloseWatch(ctx)

	cp := cpoint("of:0001", 3)
	handle, _, err := memberA.LockOrCreate(ctx, cp, 5)
	assert.NoError(t, err)
	handle.Unlock()

	// the peer's write must end up in B's cache, and so in its snapshots
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, have := memberB.ListIDs()[cp]; have {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("peer mapping never reached the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}

	// as must the peer's removal
	handle, have, err := memberA.Lock(ctx, cp)
	assert.NoError(t, err)
	assert.True(t, have)
	assert.NoError(t, handle.Delete(ctx))

	for {
		if _, have := memberB.ListIDs()[cp]; !have {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("peer removal never reached the cache")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestLoaderLoadIgnoresGarbageEntries(t *testing.T) {
	ctx := context.Background()
	kvClient := mocks.NewKVClient()
	backend := newTestBackend(kvClient)

	assert.NoError(t, backend.Put(ctx, PortMapName+"/of:0001/1", "42"))
	assert.NoError(t, backend.Put(ctx, PortMapName+"/garbage", "x"))

	loader := NewLoader(backend)
	assert.NoError(t, loader.Load(ctx))
	assert.True(t, loader.Contains(ctx, cpoint("of:0001", 1)))
	assert.Equal(t, 1, len(loader.ListIDs()))
}

func TestLoaderListIDsSnapshot(t *testing.T) {
	ctx := context.Background()
	loader := NewLoader(newTestBackend(mocks.NewKVClient()))
	assert.NoError(t, loader.Load(ctx))

	for i := uint64(1); i <= 3; i++ {
		handle, _, err := loader.LockOrCreate(ctx, cpoint("of:0001", i), i)
		assert.NoError(t, err)
		handle.Unlock()
	}

	ids := loader.ListIDs()
	assert.Equal(t, 3, len(ids))

	// mutating the map after the snapshot must not change the snapshot
	handle, have, err := loader.Lock(ctx, cpoint("of:0001", 2))
	assert.NoError(t, err)
	assert.True(t, have)
	assert.NoError(t, handle.Delete(ctx))
	assert.Equal(t, 3, len(ids))
	assert.Equal(t, 2, len(loader.ListIDs()))
}
