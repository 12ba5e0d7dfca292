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
package config

import (
	"flag"
	"time"
)

// Big switch core service default constants
const (
	EtcdStoreName                  = "etcd"
	defaultKVStoreType             = EtcdStoreName
	defaultKVStoreAddress          = "127.0.0.1:2379"
	defaultKVStoreTimeout          = 5 * time.Second
	defaultKVStoreDataPrefix       = "service/bigswitch"
	defaultKafkaClusterAddress     = "" // empty disables the kafka event sink
	defaultEventTopic              = "bigswitch.events"
	defaultLogLevel                = "WARN"
	defaultBanner                  = false
	defaultDisplayVersionOnly      = false
	defaultMaxConnectionRetries    = -1 // retries forever
	defaultConnectionRetryInterval = 2 * time.Second
	defaultLiveProbeInterval       = 60 * time.Second
	defaultNotLiveProbeInterval    = 5 * time.Second // Probe more frequently when not alive
	defaultProbeAddress            = ":8080"
	defaultMetricsAddress          = ":8081"
)

// BSCoreFlags represents the set of configurations used by the big switch
// core service
type BSCoreFlags struct {
	// Command line parameters
	KVStoreType             string
	KVStoreAddress          string
	KVStoreTimeout          time.Duration
	KVStoreDataPrefix       string
	KafkaClusterAddress     string
	EventTopic              string
	LogLevel                string
	Banner                  bool
	DisplayVersionOnly      bool
	MaxConnectionRetries    int
	ConnectionRetryInterval time.Duration
	LiveProbeInterval       time.Duration
	NotLiveProbeInterval    time.Duration
	ProbeAddress            string
	MetricsAddress          string
}

// NewBSCoreFlags returns a new big switch core config
func NewBSCoreFlags() *BSCoreFlags {
	var bsCoreFlag = BSCoreFlags{ // Default values
		KVStoreType:             defaultKVStoreType,
		KVStoreAddress:          defaultKVStoreAddress,
		KVStoreTimeout:          defaultKVStoreTimeout,
		KVStoreDataPrefix:       defaultKVStoreDataPrefix,
		KafkaClusterAddress:     defaultKafkaClusterAddress,
		EventTopic:              defaultEventTopic,
		LogLevel:                defaultLogLevel,
		Banner:                  defaultBanner,
		DisplayVersionOnly:      defaultDisplayVersionOnly,
		MaxConnectionRetries:    defaultMaxConnectionRetries,
		ConnectionRetryInterval: defaultConnectionRetryInterval,
		LiveProbeInterval:       defaultLiveProbeInterval,
		NotLiveProbeInterval:    defaultNotLiveProbeInterval,
		ProbeAddress:            defaultProbeAddress,
		MetricsAddress:          defaultMetricsAddress,
	}
	return &bsCoreFlag
}

// ParseCommandArguments parses the arguments when running the big switch core
// service
func (cf *BSCoreFlags) ParseCommandArguments() {

	help := "KV store type"
	flag.StringVar(&cf.KVStoreType, "kv_store_type", defaultKVStoreType, help)

	help = "KV store address"
	flag.StringVar(&cf.KVStoreAddress, "kv_store_address", defaultKVStoreAddress, help)

	help = "The default timeout when making a kv store request"
	flag.DurationVar(&cf.KVStoreTimeout, "kv_store_request_timeout", defaultKVStoreTimeout, help)

	help = "KV store data prefix"
	flag.StringVar(&cf.KVStoreDataPrefix, "kv_store_data_prefix", defaultKVStoreDataPrefix, help)

	help = "Kafka - Cluster messaging address (empty disables the event sink)"
	flag.StringVar(&cf.KafkaClusterAddress, "kafka_cluster_address", defaultKafkaClusterAddress, help)

	help = "Topic onto which big switch events are published"
	flag.StringVar(&cf.EventTopic, "event_topic", defaultEventTopic, help)

	help = "Log level"
	flag.StringVar(&cf.LogLevel, "log_level", defaultLogLevel, help)

	help = "Show startup banner log lines"
	flag.BoolVar(&cf.Banner, "banner", defaultBanner, help)

	help = "Show version information and exit"
	flag.BoolVar(&cf.DisplayVersionOnly, "version", defaultDisplayVersionOnly, help)

	help = "The number of retries to connect to a dependent component"
	flag.IntVar(&cf.MaxConnectionRetries, "max_connection_retries", defaultMaxConnectionRetries, help)

	help = "The time between each connection retry attempt"
	flag.DurationVar(&cf.ConnectionRetryInterval, "connection_retry_interval", defaultConnectionRetryInterval, help)

	help = "The time between liveness probes while in a live state"
	flag.DurationVar(&cf.LiveProbeInterval, "live_probe_interval", defaultLiveProbeInterval, help)

	help = "The time between liveness probes while in a not live state"
	flag.DurationVar(&cf.NotLiveProbeInterval, "not_live_probe_interval", defaultNotLiveProbeInterval, help)

	help = "The address on which to listen to answer liveness and readiness probe queries over HTTP"
	flag.StringVar(&cf.ProbeAddress, "probe_address", defaultProbeAddress, help)

	help = "The address on which to serve prometheus metrics over HTTP"
	flag.StringVar(&cf.MetricsAddress, "metrics_address", defaultMetricsAddress, help)

	flag.Parse()
}
