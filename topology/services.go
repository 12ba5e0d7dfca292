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
package topology

import (
	"context"
)

// DeviceEventType enumerates the device/port change notifications delivered
// by the device topology service.
type DeviceEventType int

const (
	DeviceAdded DeviceEventType = iota
	DeviceAvailabilityChanged
	DeviceRemoved
	DeviceSuspended
	DeviceUpdated
	PortAdded
	PortRemoved
	PortStatsUpdated
	PortUpdated
)

func (t DeviceEventType) String() string {
	switch t {
	case DeviceAdded:
		return "DEVICE_ADDED"
	case DeviceAvailabilityChanged:
		return "DEVICE_AVAILABILITY_CHANGED"
	case DeviceRemoved:
		return "DEVICE_REMOVED"
	case DeviceSuspended:
		return "DEVICE_SUSPENDED"
	case DeviceUpdated:
		return "DEVICE_UPDATED"
	case PortAdded:
		return "PORT_ADDED"
	case PortRemoved:
		return "PORT_REMOVED"
	case PortStatsUpdated:
		return "PORT_STATS_UPDATED"
	case PortUpdated:
		return "PORT_UPDATED"
	default:
		return "UNKNOWN"
	}
}

// DeviceEvent describes a device or port change.  Port is nil for the
// device-level event types.
type DeviceEvent struct {
	Type   DeviceEventType
	Device *Device
	Port   *Port
}

// DeviceListener receives device/port change notifications.  Callbacks are
// invoked on the delivering service's dispatch goroutine(s) and may run
// concurrently for different subjects.
type DeviceListener interface {
	HandleDeviceEvent(event DeviceEvent)
}

// DeviceService is the device topology collaborator.  Lookups may involve a
// round trip to the discovery layer.
type DeviceService interface {
	// GetDevice returns the device with the given id, or a NotFound error.
	GetDevice(ctx context.Context, id DeviceID) (*Device, error)
	// GetPort returns the live port at the given connect point, or a
	// NotFound error if the device or port is no longer known.
	GetPort(ctx context.Context, cp ConnectPoint) (*Port, error)
	AddListener(listener DeviceListener)
	RemoveListener(listener DeviceListener)
}

// EdgePortEventType enumerates edge port notifications.
type EdgePortEventType int

const (
	EdgePortAdded EdgePortEventType = iota
	EdgePortRemoved
)

func (t EdgePortEventType) String() string {
	if t == EdgePortAdded {
		return "EDGE_PORT_ADDED"
	}
	return "EDGE_PORT_REMOVED"
}

// EdgePortEvent announces that a connect point gained or lost edge port
// status.
type EdgePortEvent struct {
	Type    EdgePortEventType
	Subject ConnectPoint
}

// EdgePortListener receives edge port notifications.
type EdgePortListener interface {
	HandleEdgePortEvent(event EdgePortEvent)
}

// EdgePortService is the edge port detection collaborator; it decides which
// physical ports are eligible for virtualization.
type EdgePortService interface {
	// GetEdgePoints returns a snapshot of the currently known edge points.
	GetEdgePoints(ctx context.Context) ([]ConnectPoint, error)
	AddListener(listener EdgePortListener)
	RemoveListener(listener EdgePortListener)
}
