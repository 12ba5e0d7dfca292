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
package core

import (
	"context"

	"github.com/opencord/bigswitch/bs_core/config"
	"github.com/opencord/bigswitch/bs_core/core/bigswitch"
	"github.com/opencord/bigswitch/bs_core/core/topostore"
	"github.com/opencord/bigswitch/topology"
	"github.com/opencord/voltha-lib-go/v7/pkg/db"
	"github.com/opencord/voltha-lib-go/v7/pkg/db/kvstore"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"github.com/opencord/voltha-lib-go/v7/pkg/probe"
)

// Core represents the big switch core service.  It owns the KV store
// connection and the big switch manager; the topology collaborators are
// passed in by the caller.
type Core struct {
	instanceID    string
	config        *config.BSCoreFlags
	deviceService topology.DeviceService
	edgeService   topology.EdgePortService

	kvClient    kvstore.Client
	backend     *db.Backend
	topoService *topostore.Service
	manager     *bigswitch.Manager
	kafkaSink   *bigswitch.KafkaSink
}

func NewCore(instanceID string, cf *config.BSCoreFlags, deviceService topology.DeviceService, edgeService topology.EdgePortService) *Core {
	return &Core{
		instanceID:    instanceID,
		config:        cf,
		deviceService: deviceService,
		edgeService:   edgeService,
	}
}

// Start brings up the core services in dependency order: KV store first,
// then the optional kafka sink, then the manager (whose startup runs the
// reconciliation pass against the shared store).
func (core *Core) Start(ctx context.Context) error {
	logger.Info(ctx, "starting-core-services", log.Fields{"coreId": core.instanceID})

	kvClient, err := newKVClient(ctx, core.config.KVStoreType, core.config.KVStoreAddress, core.config.KVStoreTimeout)
	if err != nil {
		logger.Errorw(ctx, "failed-to-create-kv-client", log.Fields{"error": err})
		return err
	}
	core.kvClient = kvClient

	// Wait until connection to KV Store is up
	if err := waitUntilKVStoreReachableOrMaxTries(ctx, kvClient, core.config.MaxConnectionRetries, core.config.ConnectionRetryInterval); err != nil {
		logger.Errorw(ctx, "unable-to-connect-to-kv-store", log.Fields{"error": err})
		return err
	}

	core.backend = &db.Backend{
		Client:                  kvClient,
		StoreType:               core.config.KVStoreType,
		Address:                 core.config.KVStoreAddress,
		Timeout:                 core.config.KVStoreTimeout,
		LivenessChannelInterval: core.config.LiveProbeInterval / 2,
		PathPrefix:              core.config.KVStoreDataPrefix,
	}
	go monitorKVStoreLiveness(ctx, core.backend, core.config.LiveProbeInterval, core.config.NotLiveProbeInterval)

	// When no topology collaborators are injected, serve the topology out of
	// the KV store, where the discovery agents publish it.
	if core.deviceService == nil || core.edgeService == nil {
		core.topoService = topostore.NewService(core.backend)
		if err := core.topoService.Start(ctx); err != nil {
			logger.Errorw(ctx, "failed-to-start-topology-store", log.Fields{"error": err})
			return err
		}
		core.deviceService = core.topoService.Devices()
		core.edgeService = core.topoService.EdgePorts()
	}

	core.manager = bigswitch.NewManager(core.deviceService, core.edgeService, core.backend, core.config.KVStoreTimeout)

	if core.config.KafkaClusterAddress != "" {
		core.kafkaSink = bigswitch.NewKafkaSink(core.config.KafkaClusterAddress, core.config.EventTopic)
		if err := core.kafkaSink.Start(ctx); err != nil {
			logger.Errorw(ctx, "failed-to-start-kafka-event-sink", log.Fields{"error": err})
			return err
		}
		core.manager.Subscribe(core.kafkaSink)
		probe.UpdateStatusFromContext(ctx, "kafka-event-sink", probe.ServiceStatusRunning)
	}

	if err := core.manager.Start(ctx); err != nil {
		logger.Errorw(ctx, "failed-to-start-big-switch-manager", log.Fields{"error": err})
		return err
	}

	logger.Info(ctx, "core-services-started")
	return nil
}

// Stop tears the services down in reverse order.
func (core *Core) Stop(ctx context.Context) {
	logger.Info(ctx, "stopping-core-services")
	if core.manager != nil {
		core.manager.Stop(ctx)
	}
	if core.kafkaSink != nil {
		core.kafkaSink.Stop(ctx)
	}
	if core.topoService != nil {
		core.topoService.Stop(ctx)
	}
	if core.kvClient != nil {
		stopKVClient(ctx, core.kvClient)
	}
	logger.Info(ctx, "core-services-stopped")
}

// Manager exposes the big switch manager for northbound consumers
// (subscriptions and the ListPorts query).
func (core *Core) Manager() *bigswitch.Manager {
	return core.manager
}
