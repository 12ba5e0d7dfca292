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
package topostore

import (
	"context"
	"testing"
	"time"

	"github.com/opencord/bigswitch/bs_core/mocks"
	"github.com/opencord/bigswitch/topology"
	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/stretchr/testify/assert"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type edgeEventRecorder struct {
	events chan topology.EdgePortEvent
}

func (r *edgeEventRecorder) HandleEdgePortEvent(event topology.EdgePortEvent) {
	r.events <- event
}

type deviceEventRecorder struct {
	events chan topology.DeviceEvent
}

func (r *deviceEventRecorder) HandleDeviceEvent(event topology.DeviceEvent) {
	r.events <- event
}

func newTestService() (*Service, *db.Backend) {
	backend := &db.Backend{
		Client:     mocks.NewKVClient(),
		StoreType:  "etcd",
		Timeout:    5 * time.Second,
		PathPrefix: "service/bigswitch",
	}
	return NewService(backend), backend
}

func receiveEdgeEvent(t *testing.T, r *edgeEventRecorder) topology.EdgePortEvent {
	select {
	case event := <-r.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for edge event")
		return topology.EdgePortEvent{}
	}
}

func receiveDeviceEvent(t *testing.T, r *deviceEventRecorder) topology.DeviceEvent {
	select {
	case event := <-r.events:
		return event
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for device event")
		return topology.DeviceEvent{}
	}
}

func TestServiceLookups(t *testing.T) {
	ctx := context.Background()
	service, backend := newTestService()

	assert.NoError(t, backend.Put(ctx, "topology/devices/of:0001", `{"id":"of:0001","type":"SWITCH"}`))
	assert.NoError(t, backend.Put(ctx, "topology/ports/of:0001/3",
		`{"number":3,"enabled":true,"type":"FIBER","speed":10000,"annotations":{"portName":"eth3"}}`))
	assert.NoError(t, backend.Put(ctx, "topology/edge/of:0001/3", ""))

	device, err := service.GetDevice(ctx, "of:0001")
	assert.NoError(t, err)
	assert.Equal(t, topology.DeviceTypeSwitch, device.Type)

	port, err := service.GetPort(ctx, topology.ConnectPoint{DeviceID: "of:0001", Port: 3})
	assert.NoError(t, err)
	assert.True(t, port.Enabled)
	assert.Equal(t, topology.PortTypeFiber, port.Type)
	assert.Equal(t, uint64(10000), port.Speed)
	assert.Equal(t, "eth3", port.Annotations["portName"])

	points, err := service.GetEdgePoints(ctx)
	assert.NoError(t, err)
	assert.Equal(t, []topology.ConnectPoint{{DeviceID: "of:0001", Port: 3}}, points)
}

func TestServiceLookupsNotFound(t *testing.T) {
	ctx := context.Background()
	service, _ := newTestService()

	_, err := service.GetDevice(ctx, "of:0404")
	assert.Equal(t, codes.NotFound, status.Code(err))

	_, err = service.GetPort(ctx, topology.ConnectPoint{DeviceID: "of:0404", Port: 1})
	assert.Equal(t, codes.NotFound, status.Code(err))
}

func TestServiceEdgeWatch(t *testing.T) {
	ctx := context.Background()
	service, backend := newTestService()
	recorder := &edgeEventRecorder{events: make(chan topology.EdgePortEvent, 8)}
	service.EdgePorts().AddListener(recorder)

	assert.NoError(t, service.Start(ctx))
	defer service.Stop(ctx)

	cp := topology.ConnectPoint{DeviceID: "of:0001", Port: 3}
	assert.NoError(t, backend.Put(ctx, "topology/edge/of:0001/3", ""))
	event := receiveEdgeEvent(t, recorder)
	assert.Equal(t, topology.EdgePortAdded, event.Type)
	assert.Equal(t, cp, event.Subject)

	assert.NoError(t, backend.Delete(ctx, "topology/edge/of:0001/3"))
	event = receiveEdgeEvent(t, recorder)
	assert.Equal(t, topology.EdgePortRemoved, event.Type)
	assert.Equal(t, cp, event.Subject)
}

func TestServicePortWatchPreexistingPort(t *testing.T) {
	ctx := context.Background()
	service, backend := newTestService()
	recorder := &deviceEventRecorder{events: make(chan topology.DeviceEvent, 8)}
	service.Devices().AddListener(recorder)

	// the port document predates this process
	assert.NoError(t, backend.Put(ctx, "topology/ports/of:0001/3", `{"number":3,"enabled":true}`))

	assert.NoError(t, service.Start(ctx))
	defer service.Stop(ctx)

	// its first attribute change must be an update, not an add
	assert.NoError(t, backend.Put(ctx, "topology/ports/of:0001/3", `{"number":3,"enabled":false}`))
	event := receiveDeviceEvent(t, recorder)
	assert.Equal(t, topology.PortUpdated, event.Type)
	assert.False(t, event.Port.Enabled)
}

func TestServicePortWatch(t *testing.T) {
	ctx := context.Background()
	service, backend := newTestService()
	recorder := &deviceEventRecorder{events: make(chan topology.DeviceEvent, 8)}
	service.Devices().AddListener(recorder)

	assert.NoError(t, service.Start(ctx))
	defer service.Stop(ctx)

	// first publication of a port is an add, republication an update
	assert.NoError(t, backend.Put(ctx, "topology/ports/of:0001/3", `{"number":3,"enabled":true}`))
	event := receiveDeviceEvent(t, recorder)
	assert.Equal(t, topology.PortAdded, event.Type)
	assert.Equal(t, topology.DeviceID("of:0001"), event.Device.ID)
	assert.True(t, event.Port.Enabled)

	assert.NoError(t, backend.Put(ctx, "topology/ports/of:0001/3", `{"number":3,"enabled":false}`))
	event = receiveDeviceEvent(t, recorder)
	assert.Equal(t, topology.PortUpdated, event.Type)
	assert.False(t, event.Port.Enabled)

	assert.NoError(t, backend.Delete(ctx, "topology/ports/of:0001/3"))
	event = receiveDeviceEvent(t, recorder)
	assert.Equal(t, topology.PortRemoved, event.Type)
	assert.Equal(t, topology.PortNumber(3), event.Port.Number)
}
