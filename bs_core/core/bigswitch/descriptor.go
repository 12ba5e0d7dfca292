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
package bigswitch

import (
	"context"

	"github.com/opencord/bigswitch/topology"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Descriptor is the big switch view of a virtualized port: the stable
// virtual port number combined with the live attributes of the underlying
// physical port.  Descriptors are never persisted; they are recomputed on
// demand and safe to retain.
type Descriptor struct {
	// Number is the virtual port number exposed to big switch consumers.
	Number uint64 `json:"number"`
	// ConnectPoint identifies the physical attachment behind the port.
	ConnectPoint topology.ConnectPoint `json:"connect_point"`
	Enabled      bool                  `json:"enabled"`
	Type         topology.PortType     `json:"type"`
	Speed        uint64                `json:"speed"`
	Annotations  map[string]string     `json:"annotations,omitempty"`
}

// translate converts a mapped connect point to its virtual port descriptor
// using the port's live attributes.  Read-only; fails with a NotFound status
// when the physical port no longer exists in the topology view.
func (m *Manager) translate(ctx context.Context, cp topology.ConnectPoint, vport uint64) (Descriptor, error) {
	port, err := m.deviceService.GetPort(ctx, cp)
	if err != nil {
		return Descriptor{}, status.Errorf(codes.NotFound, "physical-port-unavailable-%v: %s", cp, err)
	}
	// key-for-key copy so the descriptor never aliases topology state
	annotations := make(map[string]string, len(port.Annotations))
	for k, v := range port.Annotations {
		annotations[k] = v
	}
	return Descriptor{
		Number:       vport,
		ConnectPoint: cp,
		Enabled:      port.Enabled,
		Type:         port.Type,
		Speed:        port.Speed,
		Annotations:  annotations,
	}, nil
}
