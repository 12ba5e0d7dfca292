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

// Package topostore serves the physical topology out of the cluster KV store.
// Discovery agents publish device, port and edge point documents under the
// "topology" key space; this package answers lookups from those documents and
// converts store watch notifications into topology events for local
// listeners.
package topostore

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/opencord/bigswitch/topology"
	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/opencord/voltha-lib-go/v7/pkg/db/kvstore"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	devicePathPrefix = "topology/devices"
	portPathPrefix   = "topology/ports"
	edgePathPrefix   = "topology/edge"
)

// deviceDoc is the wire form of a device document, as written by the
// discovery agents.
type deviceDoc struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// portDoc is the wire form of a port document.
type portDoc struct {
	Number      uint64            `json:"number"`
	Enabled     bool              `json:"enabled"`
	Type        string            `json:"type"`
	Speed       uint64            `json:"speed"`
	Annotations map[string]string `json:"annotations,omitempty"`
}

// Service implements both topology collaborator interfaces on top of the KV
// store.  Lookups always hit the store; there is no local cache, the store is
// the source of truth.
type Service struct {
	backend *db.Backend

	lock            sync.RWMutex
	deviceListeners []topology.DeviceListener
	edgeListeners   []topology.EdgePortListener

	cancel    context.CancelFunc
	portCh    chan *kvstore.Event
	edgeCh    chan *kvstore.Event
	knownPort map[topology.ConnectPoint]struct{}
	wg        sync.WaitGroup
}

func NewService(backend *db.Backend) *Service {
	return &Service{
		backend:   backend,
		knownPort: make(map[topology.ConnectPoint]struct{}),
	}
}

// Start opens watches on the port and edge point key spaces and begins
// dispatching topology events.
func (s *Service) Start(ctx context.Context) error {
	// seed the seen-port set so a republication of a port that predates this
	// process is classified as an update, not an add
	kvpairs, err := s.backend.List(ctx, portPathPrefix)
	if err != nil {
		return status.Errorf(codes.Unavailable, "failed-to-list-ports: %s", err)
	}
	for key := range kvpairs {
		cp, err := connectPointFromKey(key, portPathPrefix)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-port-document", log.Fields{"key": key, "error": err})
			continue
		}
		s.knownPort[cp] = struct{}{}
	}

	watchCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.portCh = s.backend.Client.Watch(watchCtx, s.fullPath(portPathPrefix), true)
	s.edgeCh = s.backend.Client.Watch(watchCtx, s.fullPath(edgePathPrefix), true)

	s.wg.Add(2)
	go s.watchPorts(watchCtx)
	go s.watchEdgePoints(watchCtx)

	logger.Info(ctx, "topology-store-started")
	return nil
}

// Stop closes the watches and waits for the dispatch goroutines to drain.
func (s *Service) Stop(ctx context.Context) {
	if s.cancel == nil {
		return
	}
	s.backend.Client.CloseWatch(ctx, s.fullPath(portPathPrefix), s.portCh)
	s.backend.Client.CloseWatch(ctx, s.fullPath(edgePathPrefix), s.edgeCh)
	s.cancel()
	s.wg.Wait()
	logger.Info(ctx, "topology-store-stopped")
}

func (s *Service) fullPath(key string) string {
	return s.backend.PathPrefix + "/" + key
}

// GetDevice returns the device published under the topology key space.
func (s *Service) GetDevice(ctx context.Context, id topology.DeviceID) (*topology.Device, error) {
	kvp, err := s.backend.Get(ctx, devicePathPrefix+"/"+string(id))
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed-to-fetch-device-%s: %s", id, err)
	}
	if kvp == nil {
		return nil, status.Errorf(codes.NotFound, "device-%s-not-found", id)
	}
	value, err := kvstore.ToByte(kvp.Value)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "invalid-device-document-%s: %s", id, err)
	}
	var doc deviceDoc
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, status.Errorf(codes.Internal, "invalid-device-document-%s: %s", id, err)
	}
	return &topology.Device{ID: topology.DeviceID(doc.ID), Type: parseDeviceType(doc.Type)}, nil
}

// GetPort returns the port published under the topology key space.
func (s *Service) GetPort(ctx context.Context, cp topology.ConnectPoint) (*topology.Port, error) {
	kvp, err := s.backend.Get(ctx, portPathPrefix+"/"+cp.String())
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed-to-fetch-port-%v: %s", cp, err)
	}
	if kvp == nil {
		return nil, status.Errorf(codes.NotFound, "port-%v-not-found", cp)
	}
	value, err := kvstore.ToByte(kvp.Value)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "invalid-port-document-%v: %s", cp, err)
	}
	port, err := parsePortDoc(value)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "invalid-port-document-%v: %s", cp, err)
	}
	return port, nil
}

// GetEdgePoints lists all currently published edge points.
func (s *Service) GetEdgePoints(ctx context.Context) ([]topology.ConnectPoint, error) {
	kvpairs, err := s.backend.List(ctx, edgePathPrefix)
	if err != nil {
		return nil, status.Errorf(codes.Unavailable, "failed-to-list-edge-points: %s", err)
	}
	points := make([]topology.ConnectPoint, 0, len(kvpairs))
	for key := range kvpairs {
		cp, err := connectPointFromKey(key, edgePathPrefix)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-edge-point", log.Fields{"key": key, "error": err})
			continue
		}
		points = append(points, cp)
	}
	return points, nil
}

// Devices returns the device service view. The listener registration methods
// of the two collaborator interfaces share names, so each gets its own view
// type over the common service.
func (s *Service) Devices() topology.DeviceService {
	return deviceView{s}
}

// EdgePorts returns the edge port service view.
func (s *Service) EdgePorts() topology.EdgePortService {
	return edgeView{s}
}

type deviceView struct {
	s *Service
}

func (v deviceView) GetDevice(ctx context.Context, id topology.DeviceID) (*topology.Device, error) {
	return v.s.GetDevice(ctx, id)
}

func (v deviceView) GetPort(ctx context.Context, cp topology.ConnectPoint) (*topology.Port, error) {
	return v.s.GetPort(ctx, cp)
}

func (v deviceView) AddListener(listener topology.DeviceListener) {
	v.s.lock.Lock()
	defer v.s.lock.Unlock()
	for _, l := range v.s.deviceListeners {
		if l == listener {
			return
		}
	}
	v.s.deviceListeners = append(v.s.deviceListeners, listener)
}

func (v deviceView) RemoveListener(listener topology.DeviceListener) {
	v.s.lock.Lock()
	defer v.s.lock.Unlock()
	for i, l := range v.s.deviceListeners {
		if l == listener {
			v.s.deviceListeners = append(v.s.deviceListeners[:i], v.s.deviceListeners[i+1:]...)
			return
		}
	}
}

type edgeView struct {
	s *Service
}

func (v edgeView) GetEdgePoints(ctx context.Context) ([]topology.ConnectPoint, error) {
	return v.s.GetEdgePoints(ctx)
}

func (v edgeView) AddListener(listener topology.EdgePortListener) {
	v.s.lock.Lock()
	defer v.s.lock.Unlock()
	for _, l := range v.s.edgeListeners {
		if l == listener {
			return
		}
	}
	v.s.edgeListeners = append(v.s.edgeListeners, listener)
}

func (v edgeView) RemoveListener(listener topology.EdgePortListener) {
	v.s.lock.Lock()
	defer v.s.lock.Unlock()
	for i, l := range v.s.edgeListeners {
		if l == listener {
			v.s.edgeListeners = append(v.s.edgeListeners[:i], v.s.edgeListeners[i+1:]...)
			return
		}
	}
}

// watchPorts converts port document changes into device events.  Events from
// a single watch stream are dispatched in arrival order.
func (s *Service) watchPorts(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.portCh:
			if !ok {
				return
			}
			s.handlePortEvent(ctx, event)
		}
	}
}

func (s *Service) handlePortEvent(ctx context.Context, event *kvstore.Event) {
	key, err := kvstore.ToString(event.Key)
	if err != nil {
		logger.Warnw(ctx, "ignoring-port-event-with-bad-key", log.Fields{"error": err})
		return
	}
	cp, err := connectPointFromKey(key, portPathPrefix)
	if err != nil {
		logger.Warnw(ctx, "ignoring-port-event-outside-key-space", log.Fields{"key": key, "error": err})
		return
	}

	switch event.EventType {
	case kvstore.PUT:
		value, err := kvstore.ToByte(event.Value)
		if err != nil {
			logger.Warnw(ctx, "ignoring-port-event-with-bad-value", log.Fields{"key": key, "error": err})
			return
		}
		port, err := parsePortDoc(value)
		if err != nil {
			logger.Warnw(ctx, "ignoring-unparsable-port-document", log.Fields{"key": key, "error": err})
			return
		}
		eventType := topology.PortUpdated
		if _, seen := s.knownPort[cp]; !seen {
			s.knownPort[cp] = struct{}{}
			eventType = topology.PortAdded
		}
		s.notifyDeviceListeners(topology.DeviceEvent{
			Type:   eventType,
			Device: &topology.Device{ID: cp.DeviceID},
			Port:   port,
		})
	case kvstore.DELETE:
		delete(s.knownPort, cp)
		s.notifyDeviceListeners(topology.DeviceEvent{
			Type:   topology.PortRemoved,
			Device: &topology.Device{ID: cp.DeviceID},
			Port:   &topology.Port{Number: cp.Port},
		})
	case kvstore.CONNECTIONDOWN:
		logger.Warn(ctx, "topology-watch-connection-down")
	}
}

// watchEdgePoints converts edge point key changes into edge port events.
func (s *Service) watchEdgePoints(ctx context.Context) {
	defer s.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-s.edgeCh:
			if !ok {
				return
			}
			s.handleEdgeEvent(ctx, event)
		}
	}
}

func (s *Service) handleEdgeEvent(ctx context.Context, event *kvstore.Event) {
	key, err := kvstore.ToString(event.Key)
	if err != nil {
		logger.Warnw(ctx, "ignoring-edge-event-with-bad-key", log.Fields{"error": err})
		return
	}
	cp, err := connectPointFromKey(key, edgePathPrefix)
	if err != nil {
		logger.Warnw(ctx, "ignoring-edge-event-outside-key-space", log.Fields{"key": key, "error": err})
		return
	}

	switch event.EventType {
	case kvstore.PUT:
		s.notifyEdgeListeners(topology.EdgePortEvent{Type: topology.EdgePortAdded, Subject: cp})
	case kvstore.DELETE:
		s.notifyEdgeListeners(topology.EdgePortEvent{Type: topology.EdgePortRemoved, Subject: cp})
	case kvstore.CONNECTIONDOWN:
		logger.Warn(ctx, "topology-watch-connection-down")
	}
}

func (s *Service) notifyDeviceListeners(event topology.DeviceEvent) {
	s.lock.RLock()
	listeners := make([]topology.DeviceListener, len(s.deviceListeners))
	copy(listeners, s.deviceListeners)
	s.lock.RUnlock()
	for _, l := range listeners {
		l.HandleDeviceEvent(event)
	}
}

func (s *Service) notifyEdgeListeners(event topology.EdgePortEvent) {
	s.lock.RLock()
	listeners := make([]topology.EdgePortListener, len(s.edgeListeners))
	copy(listeners, s.edgeListeners)
	s.lock.RUnlock()
	for _, l := range listeners {
		l.HandleEdgePortEvent(event)
	}
}

// connectPointFromKey extracts the connect point from a fully qualified store
// key, e.g. "service/bigswitch/topology/edge/of:0001/3".
func connectPointFromKey(key, prefix string) (topology.ConnectPoint, error) {
	idx := strings.Index(key, prefix+"/")
	if idx < 0 {
		return topology.ConnectPoint{}, status.Errorf(codes.Internal, "key-outside-%s: %s", prefix, key)
	}
	return topology.ParseConnectPoint(key[idx+len(prefix)+1:])
}

func parsePortDoc(value []byte) (*topology.Port, error) {
	var doc portDoc
	if err := json.Unmarshal(value, &doc); err != nil {
		return nil, err
	}
	return &topology.Port{
		Number:      topology.PortNumber(doc.Number),
		Enabled:     doc.Enabled,
		Type:        parsePortType(doc.Type),
		Speed:       doc.Speed,
		Annotations: doc.Annotations,
	}, nil
}

func parseDeviceType(s string) topology.DeviceType {
	switch s {
	case "SWITCH":
		return topology.DeviceTypeSwitch
	case "ROUTER":
		return topology.DeviceTypeRouter
	case "OLT":
		return topology.DeviceTypeOLT
	case "ONU":
		return topology.DeviceTypeONU
	case "VIRTUAL":
		return topology.DeviceTypeVirtual
	default:
		return topology.DeviceTypeOther
	}
}

func parsePortType(s string) topology.PortType {
	switch s {
	case "COPPER":
		return topology.PortTypeCopper
	case "FIBER":
		return topology.PortTypeFiber
	case "VIRTUAL":
		return topology.PortTypeVirtual
	default:
		return topology.PortTypeOther
	}
}
