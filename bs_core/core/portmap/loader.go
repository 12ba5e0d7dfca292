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

// Package portmap persists the connect point to virtual port number relation
// in the cluster KV store.  The relation is the single source of truth for
// which physical ports are currently virtualized; every cluster member
// observes the same logical content.
package portmap

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"github.com/opencord/bigswitch/topology"
	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/opencord/voltha-lib-go/v7/pkg/db/kvstore"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// PortMapName is the identity of the shared map within the KV store.
const PortMapName = "ecord-port-map"

// Loader hides all low-level locking & synchronization related to port
// mapping updates.  Mutations are written through to the KV store before the
// local cache is updated, so a mapping is only ever observed after it is
// durable.  Reads that miss the cache fall through to the store, and a prefix
// watch folds writes made by other cluster members into the cache, so every
// member observes the same logical content.
type Loader struct {
	backend *db.Backend
	// this lock protects the mappings map, it does not protect individual mappings
	lock     sync.RWMutex
	mappings map[topology.ConnectPoint]*chunk

	watchCancel context.CancelFunc
	watchCh     chan *kvstore.Event
	watchDone   chan struct{}
}

// chunk keeps a virtual port number and the lock for its connect point
type chunk struct {
	// this lock is used to synchronize all access to the entry, and also to the "deleted" variable
	lock    sync.Mutex
	deleted bool

	vport uint64
}

func NewLoader(backend *db.Backend) *Loader {
	return &Loader{
		backend:  backend,
		mappings: make(map[topology.ConnectPoint]*chunk),
	}
}

func mapPath(cp topology.ConnectPoint) string {
	return PortMapName + "/" + cp.String()
}

// Load queries existing mappings from the kv,
// and should only be called once when first created.
func (loader *Loader) Load(ctx context.Context) error {
	loader.lock.Lock()
	defer loader.lock.Unlock()

	kvpairs, err := loader.backend.List(ctx, PortMapName)
	if err != nil {
		logger.Errorw(ctx, "failed-to-list-port-mappings-from-kv-store", log.Fields{"error": err})
		return status.Errorf(codes.Unavailable, "failed-to-list-port-mappings: %s", err)
	}
	for key, kvp := range kvpairs {
		value, err := kvstore.ToByte(kvp.Value)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-port-mapping", log.Fields{"key": key, "error": err})
			continue
		}
		cp, vport, err := parseMapping(key, value)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-port-mapping", log.Fields{"key": key, "error": err})
			continue
		}
		loader.mappings[cp] = &chunk{vport: vport}
	}
	logger.Infow(ctx, "loaded-port-mappings", log.Fields{"count": len(loader.mappings)})
	return nil
}

// Watch opens a prefix watch on the shared map and keeps the local cache
// coherent with mappings written by other cluster members.
func (loader *Loader) Watch(ctx context.Context) {
	watchCtx, cancel := context.WithCancel(context.Background())
	loader.watchCancel = cancel
	loader.watchCh = loader.backend.Client.Watch(watchCtx, loader.backend.PathPrefix+"/"+PortMapName, true)
	loader.watchDone = make(chan struct{})
	go loader.watchMappings(watchCtx)
}

// CloseWatch stops folding remote updates into the cache.
func (loader *Loader) CloseWatch(ctx context.Context) {
	if loader.watchCancel == nil {
		return
	}
	loader.backend.Client.CloseWatch(ctx, loader.backend.PathPrefix+"/"+PortMapName, loader.watchCh)
	loader.watchCancel()
	<-loader.watchDone
}

func (loader *Loader) watchMappings(ctx context.Context) {
	defer close(loader.watchDone)
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-loader.watchCh:
			if !ok {
				return
			}
			loader.applyWatchEvent(ctx, event)
		}
	}
}

func (loader *Loader) applyWatchEvent(ctx context.Context, event *kvstore.Event) {
	key, err := kvstore.ToString(event.Key)
	if err != nil {
		logger.Warnw(ctx, "ignoring-mapping-event-with-bad-key", log.Fields{"error": err})
		return
	}

	switch event.EventType {
	case kvstore.PUT:
		value, err := kvstore.ToByte(event.Value)
		if err != nil {
			logger.Warnw(ctx, "ignoring-mapping-event-with-bad-value", log.Fields{"key": key, "error": err})
			return
		}
		cp, vport, err := parseMapping(key, value)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-port-mapping", log.Fields{"key": key, "error": err})
			return
		}
		loader.applyPut(ctx, cp, vport)
	case kvstore.DELETE:
		cp, err := connectPointFromMapKey(key)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-port-mapping", log.Fields{"key": key, "error": err})
			return
		}
		loader.applyDelete(cp)
	case kvstore.CONNECTIONDOWN:
		logger.Warn(ctx, "port-map-watch-connection-down")
	}
}

// applyPut folds a store write, local or remote, into the cache.  A write
// that disagrees with a cached number is a lost duplicate-add race; the store
// is authoritative, so last write wins.
func (loader *Loader) applyPut(ctx context.Context, cp topology.ConnectPoint, vport uint64) {
	loader.lock.Lock()
	entry, have := loader.mappings[cp]
	if !have {
		loader.mappings[cp] = &chunk{vport: vport}
		loader.lock.Unlock()
		return
	}
	loader.lock.Unlock()

	entry.lock.Lock()
	if entry.deleted {
		entry.lock.Unlock()
		loader.applyPut(ctx, cp, vport)
		return
	}
	if entry.vport != vport {
		logger.Warnw(ctx, "mapping-overwritten-by-peer", log.Fields{"connect-point": cp, "old": entry.vport, "new": vport})
		entry.vport = vport
	}
	entry.lock.Unlock()
}

// applyDelete folds a store removal into the cache.
func (loader *Loader) applyDelete(cp topology.ConnectPoint) {
	loader.lock.Lock()
	entry, have := loader.mappings[cp]
	if !have {
		loader.lock.Unlock()
		return
	}
	delete(loader.mappings, cp)
	loader.lock.Unlock()

	entry.lock.Lock()
	entry.deleted = true
	entry.lock.Unlock()
}

func connectPointFromMapKey(key string) (topology.ConnectPoint, error) {
	// keys come back fully qualified; the connect point is everything after the map name
	idx := strings.Index(key, PortMapName+"/")
	if idx < 0 {
		return topology.ConnectPoint{}, status.Errorf(codes.Internal, "key-outside-port-map-%s", key)
	}
	return topology.ParseConnectPoint(key[idx+len(PortMapName)+1:])
}

func parseMapping(key string, value []byte) (topology.ConnectPoint, uint64, error) {
	cp, err := connectPointFromMapKey(key)
	if err != nil {
		return topology.ConnectPoint{}, 0, err
	}
	vport, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return topology.ConnectPoint{}, 0, err
	}
	return cp, vport, nil
}

// LockOrCreate locks the mapping for this connect point if it exists, either
// locally or in the shared store, or creates it with the provided virtual
// port number if it does not.
func (loader *Loader) LockOrCreate(ctx context.Context, cp topology.ConnectPoint, vport uint64) (*Handle, bool, error) {
	// try to use read lock instead of full lock if possible
	if handle, have, err := loader.Lock(ctx, cp); err != nil {
		return nil, false, err
	} else if have {
		return handle, false, nil
	}

	loader.lock.Lock()
	entry, have := loader.mappings[cp]
	if !have {
		entry := &chunk{vport: vport}
		loader.mappings[cp] = entry
		entry.lock.Lock()
		loader.lock.Unlock()

		if err := loader.backend.Put(ctx, mapPath(cp), strconv.FormatUint(vport, 10)); err != nil {
			// revert the map
			loader.lock.Lock()
			delete(loader.mappings, cp)
			loader.lock.Unlock()

			entry.deleted = true
			entry.lock.Unlock()
			return nil, false, status.Errorf(codes.Unavailable, "failed-to-persist-mapping-%v: %s", cp, err)
		}
		return &Handle{loader: loader, chunk: entry, cp: cp}, true, nil
	}
	loader.lock.Unlock()

	entry.lock.Lock()
	if entry.deleted {
		entry.lock.Unlock()
		return loader.LockOrCreate(ctx, cp, vport)
	}
	return &Handle{loader: loader, chunk: entry, cp: cp}, false, nil
}

// Lock acquires the lock for this connect point, and returns a handle which
// can be used to access the mapping until it's unlocked.
// This handle ensures that the mapping cannot be accessed if the lock is not held.
// A cache miss reads through to the shared store, so a mapping persisted by
// another cluster member is found even before the watch has folded it in.
// Returns false if the mapping is not present anywhere.
func (loader *Loader) Lock(ctx context.Context, cp topology.ConnectPoint) (*Handle, bool, error) {
	loader.lock.RLock()
	entry, have := loader.mappings[cp]
	loader.lock.RUnlock()

	if !have {
		vport, found, err := loader.fetch(ctx, cp)
		if err != nil {
			return nil, false, err
		}
		if !found {
			return nil, false, nil
		}
		loader.applyPut(ctx, cp, vport)
		return loader.Lock(ctx, cp)
	}

	entry.lock.Lock()
	if entry.deleted {
		entry.lock.Unlock()
		return loader.Lock(ctx, cp)
	}
	return &Handle{loader: loader, chunk: entry, cp: cp}, true, nil
}

// fetch reads a single mapping from the shared store.
func (loader *Loader) fetch(ctx context.Context, cp topology.ConnectPoint) (uint64, bool, error) {
	kvp, err := loader.backend.Get(ctx, mapPath(cp))
	if err != nil {
		return 0, false, status.Errorf(codes.Unavailable, "failed-to-fetch-mapping-%v: %s", cp, err)
	}
	if kvp == nil {
		return 0, false, nil
	}
	value, err := kvstore.ToByte(kvp.Value)
	if err != nil {
		return 0, false, status.Errorf(codes.Internal, "unexpected-mapping-value-%v: %s", cp, err)
	}
	vport, err := strconv.ParseUint(string(value), 10, 64)
	if err != nil {
		return 0, false, status.Errorf(codes.Internal, "unexpected-mapping-value-%v: %s", cp, value)
	}
	return vport, true, nil
}

// Contains reports whether a mapping currently exists for the connect point,
// consulting the shared store on a cache miss.
func (loader *Loader) Contains(ctx context.Context, cp topology.ConnectPoint) bool {
	loader.lock.RLock()
	_, have := loader.mappings[cp]
	loader.lock.RUnlock()
	if have {
		return true
	}

	_, found, err := loader.fetch(ctx, cp)
	if err != nil {
		logger.Warnw(ctx, "mapping-lookup-failed", log.Fields{"connect-point": cp, "error": err})
		return false
	}
	return found
}

// Handle is allocated for each Lock() call, all modifications are made using it, and it is invalidated by Unlock()
// This enforces correct Lock()-Usage()-Unlock() ordering.
type Handle struct {
	loader *Loader
	chunk  *chunk
	cp     topology.ConnectPoint
}

// Number returns the virtual port number assigned to the locked connect
// point.  The number is immutable for the lifetime of the mapping.
func (h *Handle) Number() uint64 {
	return h.chunk.vport
}

// Delete removes the mapping from the kv
func (h *Handle) Delete(ctx context.Context) error {
	if err := h.loader.backend.Delete(ctx, mapPath(h.cp)); err != nil {
		return status.Errorf(codes.Unavailable, "couldnt-delete-mapping-from-store-%v: %s", h.cp, err)
	}
	h.chunk.deleted = true

	h.loader.lock.Lock()
	delete(h.loader.mappings, h.cp)
	h.loader.lock.Unlock()

	h.Unlock()
	return nil
}

// Unlock releases the lock on the mapping
func (h *Handle) Unlock() {
	if h.chunk != nil {
		h.chunk.lock.Unlock()
		h.chunk = nil // attempting to access the mapping through this handle in future will panic
	}
}

// ListIDs returns a snapshot of all the currently cached connect points
func (loader *Loader) ListIDs() map[topology.ConnectPoint]struct{} {
	loader.lock.RLock()
	defer loader.lock.RUnlock()
	// copy the IDs so caller can safely iterate
	ret := make(map[topology.ConnectPoint]struct{}, len(loader.mappings))
	for cp := range loader.mappings {
		ret[cp] = struct{}{}
	}
	return ret
}
