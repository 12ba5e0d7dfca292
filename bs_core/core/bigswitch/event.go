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
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
)

// EventType enumerates the big switch port lifecycle events.
type EventType int

const (
	PortAdded EventType = iota
	PortRemoved
	PortUpdated
)

func (t EventType) String() string {
	switch t {
	case PortAdded:
		return "PORT_ADDED"
	case PortRemoved:
		return "PORT_REMOVED"
	default:
		return "PORT_UPDATED"
	}
}

// MarshalText renders the event type symbolically when events are serialized
// for external consumers.
func (t EventType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// Event is a big switch port lifecycle notification, carrying the virtual
// port descriptor valid at emission time.
type Event struct {
	ID       string     `json:"id"`
	Type     EventType  `json:"type"`
	Port     Descriptor `json:"port"`
	RaisedTs int64      `json:"raised_ts"`
}

// Listener receives big switch events.  Callbacks run on the publisher's
// dispatch goroutine and should not block for long.
type Listener interface {
	HandleEvent(event Event)
}

// Publisher delivers events to all registered listeners.  A single dispatch
// goroutine drains a buffered queue, so delivery order matches post order for
// this process.  Registration and removal are race-free with concurrent
// posting: each event is delivered against a snapshot of the listener set,
// so a listener added mid-delivery either sees the in-flight event or not,
// and never twice.
type Publisher struct {
	eventQueue chan Event

	// this lock protects the listener list, not delivery
	lock      sync.RWMutex
	listeners []Listener

	started  bool
	stopOnce sync.Once
	stopped  chan struct{}
	drained  chan struct{}
}

func NewPublisher() *Publisher {
	return &Publisher{
		eventQueue: make(chan Event, 100),
		stopped:    make(chan struct{}),
		drained:    make(chan struct{}),
	}
}

// Start launches the dispatch goroutine.
func (p *Publisher) Start(ctx context.Context) {
	p.started = true
	go p.dispatch(ctx)
}

// Stop stops delivery after draining events already queued.  Posts arriving
// after Stop are dropped.
func (p *Publisher) Stop(ctx context.Context) {
	p.stopOnce.Do(func() {
		close(p.stopped)
		if !p.started {
			close(p.drained)
		}
	})
	<-p.drained
}

// Subscribe registers a listener.  Registering the same listener twice is a
// no-op, so no listener can ever receive a duplicate delivery.
func (p *Publisher) Subscribe(listener Listener) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for _, l := range p.listeners {
		if l == listener {
			return
		}
	}
	p.listeners = append(p.listeners, listener)
}

// Unsubscribe removes a previously registered listener.
func (p *Publisher) Unsubscribe(listener Listener) {
	p.lock.Lock()
	defer p.lock.Unlock()
	for i, l := range p.listeners {
		if l == listener {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

// Post enqueues an event for delivery to all currently registered listeners.
func (p *Publisher) Post(ctx context.Context, eventType EventType, port Descriptor) {
	event := Event{
		ID:       uuid.New().String(),
		Type:     eventType,
		Port:     port,
		RaisedTs: time.Now().UnixNano(),
	}
	// once stopped the dispatch goroutine is gone, so an enqueue that still
	// fits in the buffer would be silently lost.  Check first and drop loudly.
	select {
	case <-p.stopped:
		logger.Warnw(ctx, "publisher-stopped-dropping-event", log.Fields{"type": eventType, "port": port.ConnectPoint})
		return
	default:
	}
	select {
	case p.eventQueue <- event:
	case <-p.stopped:
		logger.Warnw(ctx, "publisher-stopped-dropping-event", log.Fields{"type": eventType, "port": port.ConnectPoint})
	}
}

func (p *Publisher) dispatch(ctx context.Context) {
	for {
		select {
		case event := <-p.eventQueue:
			p.deliver(ctx, event)
		case <-p.stopped:
			// drain whatever was posted before the stop, then exit
			for {
				select {
				case event := <-p.eventQueue:
					p.deliver(ctx, event)
				default:
					close(p.drained)
					return
				}
			}
		}
	}
}

func (p *Publisher) deliver(ctx context.Context, event Event) {
	p.lock.RLock()
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.lock.RUnlock()

	logger.Debugw(ctx, "delivering-event", log.Fields{"id": event.ID, "type": event.Type, "listeners": len(listeners)})
	for _, listener := range listeners {
		listener.HandleEvent(event)
	}
	eventsPublished.WithLabelValues(event.Type.String()).Inc()
}
