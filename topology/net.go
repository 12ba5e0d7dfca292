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

// Package topology holds the physical network model consumed by the big
// switch core, plus the collaborator interfaces through which the model is
// obtained.  The implementations of those interfaces (device discovery, edge
// port detection) live outside this repository.
package topology

import (
	"fmt"
	"strconv"
	"strings"
)

// DeviceID uniquely identifies a physical device in the topology.
type DeviceID string

// PortNumber identifies a port on a device.
type PortNumber uint64

func (p PortNumber) String() string {
	return strconv.FormatUint(uint64(p), 10)
}

// ConnectPoint identifies a physical attachment point as a device/port pair.
// It is a comparable value type and is used as a map key throughout the core.
type ConnectPoint struct {
	DeviceID DeviceID   `json:"device_id"`
	Port     PortNumber `json:"port"`
}

func (cp ConnectPoint) String() string {
	return string(cp.DeviceID) + "/" + cp.Port.String()
}

// ParseConnectPoint parses the "<device-id>/<port-number>" form produced by
// ConnectPoint.String.  The device id may itself contain slashes; the port
// number is everything after the last one.
func ParseConnectPoint(s string) (ConnectPoint, error) {
	idx := strings.LastIndex(s, "/")
	if idx <= 0 || idx == len(s)-1 {
		return ConnectPoint{}, fmt.Errorf("invalid-connect-point-%s", s)
	}
	port, err := strconv.ParseUint(s[idx+1:], 10, 64)
	if err != nil {
		return ConnectPoint{}, fmt.Errorf("invalid-port-number-in-%s", s)
	}
	return ConnectPoint{DeviceID: DeviceID(s[:idx]), Port: PortNumber(port)}, nil
}

// DeviceType classifies a device in the topology.
type DeviceType int

const (
	DeviceTypeSwitch DeviceType = iota
	DeviceTypeRouter
	DeviceTypeOLT
	DeviceTypeONU
	DeviceTypeOther
	// DeviceTypeVirtual marks devices synthesized by a virtualization layer.
	// Their ports are never eligible for the big switch.
	DeviceTypeVirtual
)

func (t DeviceType) String() string {
	switch t {
	case DeviceTypeSwitch:
		return "SWITCH"
	case DeviceTypeRouter:
		return "ROUTER"
	case DeviceTypeOLT:
		return "OLT"
	case DeviceTypeONU:
		return "ONU"
	case DeviceTypeVirtual:
		return "VIRTUAL"
	default:
		return "OTHER"
	}
}

// Device is the topology view of a physical (or virtual) device.
type Device struct {
	ID   DeviceID
	Type DeviceType
}

// PortType classifies the medium of a physical port.
type PortType int

const (
	PortTypeCopper PortType = iota
	PortTypeFiber
	PortTypeVirtual
	PortTypeOther
)

func (t PortType) String() string {
	switch t {
	case PortTypeCopper:
		return "COPPER"
	case PortTypeFiber:
		return "FIBER"
	case PortTypeVirtual:
		return "VIRTUAL"
	default:
		return "OTHER"
	}
}

// MarshalText renders the port type symbolically when serialized.
func (t PortType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Port is the live view of a physical port.  Annotations are free-form
// key/value pairs attached by the discovery layer.
type Port struct {
	Number      PortNumber
	Enabled     bool
	Type        PortType
	Speed       uint64 // Mbps
	Annotations map[string]string
}
