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
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mappedPorts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bigswitch",
		Name:      "mapped_ports",
		Help:      "Number of connect points currently mapped to virtual ports",
	})

	eventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bigswitch",
		Name:      "events_published_total",
		Help:      "Number of big switch events delivered to listeners, by type",
	}, []string{"type"})

	translationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bigswitch",
		Name:      "translation_failures_total",
		Help:      "Number of descriptor translations dropped because the physical port vanished",
	})
)
