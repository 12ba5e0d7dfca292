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
package mocks

import (
	"context"
	"sync"

	"github.com/opencord/bigswitch/topology"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Topology is an in-memory topology with programmable content.  Tests mutate
// it with the Add/Set/Remove helpers and push events at registered listeners
// with the Fire helpers, which run the listener callbacks synchronously.
type Topology struct {
	lock       sync.Mutex
	devices    map[topology.DeviceID]*topology.Device
	ports      map[topology.ConnectPoint]*topology.Port
	edgePoints map[topology.ConnectPoint]struct{}

	deviceListeners []topology.DeviceListener
	edgeListeners   []topology.EdgePortListener
}

func NewTopology() *Topology {
	return &Topology{
		devices:    make(map[topology.DeviceID]*topology.Device),
		ports:      make(map[topology.ConnectPoint]*topology.Port),
		edgePoints: make(map[topology.ConnectPoint]struct{}),
	}
}

func (t *Topology) AddDevice(device *topology.Device) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.devices[device.ID] = device
}

func (t *Topology) RemoveDevice(id topology.DeviceID) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.devices, id)
}

func (t *Topology) SetPort(cp topology.ConnectPoint, port *topology.Port) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.ports[cp] = port
}

func (t *Topology) RemovePort(cp topology.ConnectPoint) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.ports, cp)
}

func (t *Topology) AddEdgePoint(cp topology.ConnectPoint) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.edgePoints[cp] = struct{}{}
}

func (t *Topology) RemoveEdgePoint(cp topology.ConnectPoint) {
	t.lock.Lock()
	defer t.lock.Unlock()
	delete(t.edgePoints, cp)
}

// FireEdgeEvent delivers an edge port event to all registered listeners.
func (t *Topology) FireEdgeEvent(eventType topology.EdgePortEventType, cp topology.ConnectPoint) {
	t.lock.Lock()
	listeners := make([]topology.EdgePortListener, len(t.edgeListeners))
	copy(listeners, t.edgeListeners)
	t.lock.Unlock()
	for _, l := range listeners {
		l.HandleEdgePortEvent(topology.EdgePortEvent{Type: eventType, Subject: cp})
	}
}

// FireDeviceEvent delivers a device event to all registered listeners.
func (t *Topology) FireDeviceEvent(event topology.DeviceEvent) {
	t.lock.Lock()
	listeners := make([]topology.DeviceListener, len(t.deviceListeners))
	copy(listeners, t.deviceListeners)
	t.lock.Unlock()
	for _, l := range listeners {
		l.HandleDeviceEvent(event)
	}
}

// Devices returns the device service view over the fake topology.
func (t *Topology) Devices() topology.DeviceService {
	return fakeDeviceService{t}
}

// EdgePorts returns the edge port service view over the fake topology.
func (t *Topology) EdgePorts() topology.EdgePortService {
	return fakeEdgeService{t}
}

type fakeDeviceService struct {
	t *Topology
}

func (s fakeDeviceService) GetDevice(ctx context.Context, id topology.DeviceID) (*topology.Device, error) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	device, have := s.t.devices[id]
	if !have {
		return nil, status.Errorf(codes.NotFound, "device-%s-not-found", id)
	}
	return device, nil
}

func (s fakeDeviceService) GetPort(ctx context.Context, cp topology.ConnectPoint) (*topology.Port, error) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	port, have := s.t.ports[cp]
	if !have {
		return nil, status.Errorf(codes.NotFound, "port-%v-not-found", cp)
	}
	return port, nil
}

func (s fakeDeviceService) AddListener(listener topology.DeviceListener) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	s.t.deviceListeners = append(s.t.deviceListeners, listener)
}

func (s fakeDeviceService) RemoveListener(listener topology.DeviceListener) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	for i, l := range s.t.deviceListeners {
		if l == listener {
			s.t.deviceListeners = append(s.t.deviceListeners[:i], s.t.deviceListeners[i+1:]...)
			return
		}
	}
}

type fakeEdgeService struct {
	t *Topology
}

func (s fakeEdgeService) GetEdgePoints(ctx context.Context) ([]topology.ConnectPoint, error) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	points := make([]topology.ConnectPoint, 0, len(s.t.edgePoints))
	for cp := range s.t.edgePoints {
		points = append(points, cp)
	}
	return points, nil
}

func (s fakeEdgeService) AddListener(listener topology.EdgePortListener) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	s.t.edgeListeners = append(s.t.edgeListeners, listener)
}

func (s fakeEdgeService) RemoveListener(listener topology.EdgePortListener) {
	s.t.lock.Lock()
	defer s.t.lock.Unlock()
	for i, l := range s.t.edgeListeners {
		if l == listener {
			s.t.edgeListeners = append(s.t.edgeListeners[:i], s.t.edgeListeners[i+1:]...)
			return
		}
	}
}
