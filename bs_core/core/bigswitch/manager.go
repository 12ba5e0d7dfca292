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

// Package bigswitch listens for edge and port changes in the underlying data
// path and exposes a big switch abstraction: every qualifying physical edge
// port appears as a numbered port of one logical switch, with port numbers
// assigned exactly once across the cluster and kept stable in the shared KV
// store.
package bigswitch

import (
	"context"
	"sync"
	"time"

	"github.com/opencord/bigswitch/bs_core/core/portmap"
	"github.com/opencord/bigswitch/topology"
	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"github.com/opencord/voltha-lib-go/v7/pkg/probe"
)

// Manager reacts to topology change notifications, keeps the port mapping
// consistent and republishes the changes as big switch events.
type Manager struct {
	deviceService topology.DeviceService
	edgeService   topology.EdgePortService
	portLoader    *portmap.Loader
	portCounter   *portmap.Counter
	publisher     *Publisher

	// serializes topology event handling; the absence-check-then-allocate
	// sequence must not race with itself on this instance
	handlerLock sync.Mutex
}

func NewManager(deviceService topology.DeviceService, edgeService topology.EdgePortService, backend *db.Backend, timeout time.Duration) *Manager {
	return &Manager{
		deviceService: deviceService,
		edgeService:   edgeService,
		portLoader:    portmap.NewLoader(backend),
		portCounter:   portmap.NewCounter(backend, timeout),
		publisher:     NewPublisher(),
	}
}

// Start loads the shared mapping, reconciles it against the currently known
// edge points and subscribes to both topology feeds.
func (m *Manager) Start(ctx context.Context) error {
	logger.Info(ctx, "starting-big-switch-manager")

	if err := m.portLoader.Load(ctx); err != nil {
		return err
	}
	if err := m.buildPorts(ctx); err != nil {
		return err
	}
	mappedPorts.Set(float64(len(m.portLoader.ListIDs())))

	m.portLoader.Watch(ctx)
	m.publisher.Start(ctx)
	m.edgeService.AddListener(m)
	m.deviceService.AddListener(m)

	probe.UpdateStatusFromContext(ctx, "bigswitch-manager", probe.ServiceStatusRunning)
	logger.Info(ctx, "big-switch-manager-started")
	return nil
}

// Stop unsubscribes from the topology feeds and drains the publisher.  The
// shared mapping is left as-is; it survives in the KV store.
func (m *Manager) Stop(ctx context.Context) {
	logger.Info(ctx, "stopping-big-switch-manager")
	m.edgeService.RemoveListener(m)
	m.deviceService.RemoveListener(m)
	m.portLoader.CloseWatch(ctx)
	m.publisher.Stop(ctx)
	probe.UpdateStatusFromContext(ctx, "bigswitch-manager", probe.ServiceStatusStopped)
	logger.Info(ctx, "big-switch-manager-stopped")
}

// Subscribe registers a listener for big switch events.
func (m *Manager) Subscribe(listener Listener) {
	m.publisher.Subscribe(listener)
}

// Unsubscribe removes a listener.
func (m *Manager) Unsubscribe(listener Listener) {
	m.publisher.Unsubscribe(listener)
}

// ListPorts returns a descriptor for every currently mapped connect point,
// computed fresh from the live topology.  Connect points whose physical port
// vanished since the last event are skipped with a diagnostic.
func (m *Manager) ListPorts(ctx context.Context) ([]Descriptor, error) {
	cps := m.portLoader.ListIDs()
	ret := make([]Descriptor, 0, len(cps))
	for cp := range cps {
		handle, have, err := m.portLoader.Lock(ctx, cp)
		if err != nil {
			logger.Warnw(ctx, "skipping-unresolvable-port", log.Fields{"connect-point": cp, "error": err})
			continue
		}
		if !have {
			continue
		}
		vport := handle.Number()
		handle.Unlock()

		desc, err := m.translate(ctx, cp, vport)
		if err != nil {
			logger.Warnw(ctx, "skipping-unresolvable-port", log.Fields{"connect-point": cp, "error": err})
			translationFailures.Inc()
			continue
		}
		ret = append(ret, desc)
	}
	return ret, nil
}

// HandleEdgePortEvent implements topology.EdgePortListener.  It is invoked
// on the edge port service's dispatch goroutine(s).
func (m *Manager) HandleEdgePortEvent(event topology.EdgePortEvent) {
	ctx := context.Background()
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()

	logger.Debugw(ctx, "edge-event", log.Fields{"subject": event.Subject, "type": event.Type})
	switch event.Type {
	case topology.EdgePortAdded:
		if !m.isRelevant(ctx, event.Subject.DeviceID) {
			return
		}
		if err := m.addPort(ctx, event.Subject, true); err != nil {
			logger.Errorw(ctx, "edge-port-add-failed", log.Fields{"connect-point": event.Subject, "error": err})
		}
	case topology.EdgePortRemoved:
		// no device guard here: the device may already be gone from the
		// topology view, and an unmapped point makes the removal a no-op
		// anyway.  A leaked mapping would otherwise survive until restart.
		if err := m.removePort(ctx, event.Subject); err != nil {
			logger.Errorw(ctx, "edge-port-remove-failed", log.Fields{"connect-point": event.Subject, "error": err})
		}
	}
}

// HandleDeviceEvent implements topology.DeviceListener.  Only port attribute
// updates on already-mapped connect points are of interest; everything else
// is ignored (edge eligibility changes arrive via the edge port service).
func (m *Manager) HandleDeviceEvent(event topology.DeviceEvent) {
	ctx := context.Background()
	m.handlerLock.Lock()
	defer m.handlerLock.Unlock()

	logger.Debugw(ctx, "device-event", log.Fields{"device": event.Device, "port": event.Port, "type": event.Type})
	// Only listen for real devices
	if event.Device == nil || event.Device.Type == topology.DeviceTypeVirtual {
		return
	}

	if event.Type != topology.PortUpdated || event.Port == nil {
		return
	}

	// Update if state of an existing edge changed
	cp := topology.ConnectPoint{DeviceID: event.Device.ID, Port: event.Port.Number}
	handle, have, err := m.portLoader.Lock(ctx, cp)
	if err != nil {
		logger.Warnw(ctx, "dropping-port-update", log.Fields{"connect-point": cp, "error": err})
		return
	}
	if !have {
		return
	}
	vport := handle.Number()
	handle.Unlock()

	desc, err := m.translate(ctx, cp, vport)
	if err != nil {
		logger.Warnw(ctx, "dropping-port-update", log.Fields{"connect-point": cp, "error": err})
		translationFailures.Inc()
		return
	}
	m.publisher.Post(ctx, PortUpdated, desc)
}

// isRelevant reports whether the owning device should feed the big switch.
// Virtual devices never do.
func (m *Manager) isRelevant(ctx context.Context, id topology.DeviceID) bool {
	device, err := m.deviceService.GetDevice(ctx, id)
	if err != nil {
		logger.Warnw(ctx, "device-lookup-failed", log.Fields{"device-id": id, "error": err})
		return false
	}
	return device.Type != topology.DeviceTypeVirtual
}

// addPort maps the connect point to a fresh virtual port number unless it is
// already mapped.  The absence check and the store write are distinct KV
// round trips; a cluster-concurrent duplicate add resolves as last write
// wins, at worst burning an unused number.
func (m *Manager) addPort(ctx context.Context, cp topology.ConnectPoint, postEvent bool) error {
	handle, have, err := m.portLoader.Lock(ctx, cp)
	if err != nil {
		return err
	}
	if have {
		// already mapped, here or by another cluster member; must not
		// allocate a second number
		logger.Debugw(ctx, "connect-point-already-mapped", log.Fields{"connect-point": cp, "number": handle.Number()})
		handle.Unlock()
		return nil
	}

	vport, err := m.portCounter.Next(ctx)
	if err != nil {
		return err
	}
	handle, created, err := m.portLoader.LockOrCreate(ctx, cp, vport)
	if err != nil {
		return err
	}
	number := handle.Number()
	handle.Unlock()
	if !created {
		// lost a race to another writer; the allocated number stays unused
		return nil
	}
	mappedPorts.Inc()
	logger.Infow(ctx, "edge-port-mapped", log.Fields{"connect-point": cp, "number": number})

	if postEvent {
		desc, err := m.translate(ctx, cp, number)
		if err != nil {
			// port vanished between event and lookup; the event is dropped
			logger.Warnw(ctx, "dropping-port-added-event", log.Fields{"connect-point": cp, "error": err})
			translationFailures.Inc()
			return nil
		}
		m.publisher.Post(ctx, PortAdded, desc)
	}
	return nil
}

// removePort withdraws the mapping.  The descriptor is translated before the
// removal since the physical port attributes may already be gone; when they
// are, a best-effort descriptor carrying the last-known identity is emitted.
func (m *Manager) removePort(ctx context.Context, cp topology.ConnectPoint) error {
	handle, have, err := m.portLoader.Lock(ctx, cp)
	if err != nil {
		return err
	}
	if !have {
		return nil
	}
	vport := handle.Number()

	desc, err := m.translate(ctx, cp, vport)
	if err != nil {
		logger.Debugw(ctx, "removed-port-attributes-unavailable", log.Fields{"connect-point": cp, "error": err})
		desc = Descriptor{Number: vport, ConnectPoint: cp}
	}

	if err := handle.Delete(ctx); err != nil {
		handle.Unlock()
		return err
	}
	mappedPorts.Dec()
	logger.Infow(ctx, "edge-port-unmapped", log.Fields{"connect-point": cp, "number": vport})

	m.publisher.Post(ctx, PortRemoved, desc)
	return nil
}

// buildPorts assigns numbers to edge points not already present in the
// shared store.  Existing entries are left untouched, so running this twice
// (or restarting) never renumbers a port.
func (m *Manager) buildPorts(ctx context.Context) error {
	points, err := m.edgeService.GetEdgePoints(ctx)
	if err != nil {
		return err
	}
	for _, cp := range points {
		if !m.isRelevant(ctx, cp.DeviceID) {
			continue
		}
		if err := m.addPort(ctx, cp, false); err != nil {
			return err
		}
	}
	return nil
}
