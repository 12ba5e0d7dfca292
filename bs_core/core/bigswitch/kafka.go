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
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/cenkalti/backoff/v3"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
)

// KafkaSink republishes big switch events onto a kafka topic for consumers
// outside the process.  It is an ordinary listener; events are JSON encoded
// and keyed by connect point so per-port ordering survives partitioning.
type KafkaSink struct {
	address  string
	topic    string
	producer sarama.AsyncProducer
}

func NewKafkaSink(address, topic string) *KafkaSink {
	return &KafkaSink{address: address, topic: topic}
}

// Start connects to the kafka cluster, retrying with exponential backoff
// until connected or the context is cancelled.
func (s *KafkaSink) Start(ctx context.Context) error {
	connect := func() error {
		config := sarama.NewConfig()
		config.Producer.RequiredAcks = sarama.WaitForLocal
		config.Producer.Return.Errors = true
		config.Producer.Retry.Max = 6
		config.Producer.Retry.Backoff = 30 * time.Millisecond
		config.Producer.Flush.Frequency = 5 * time.Millisecond

		producer, err := sarama.NewAsyncProducer([]string{s.address}, config)
		if err != nil {
			logger.Warnw(ctx, "kafka-unreachable", log.Fields{"address": s.address, "error": err})
			return err
		}
		s.producer = producer
		return nil
	}

	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until the context says otherwise
	if err := backoff.Retry(connect, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}

	go s.drainErrors(ctx)
	logger.Infow(ctx, "kafka-event-sink-started", log.Fields{"address": s.address, "topic": s.topic})
	return nil
}

// Stop closes the producer, flushing buffered messages.
func (s *KafkaSink) Stop(ctx context.Context) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Close(); err != nil {
		logger.Warnw(ctx, "kafka-producer-close-failed", log.Fields{"error": err})
	}
}

// HandleEvent implements Listener.
func (s *KafkaSink) HandleEvent(event Event) {
	ctx := context.Background()
	body, err := json.Marshal(event)
	if err != nil {
		logger.Errorw(ctx, "event-encode-failed", log.Fields{"id": event.ID, "error": err})
		return
	}
	s.producer.Input() <- &sarama.ProducerMessage{
		Topic: s.topic,
		Key:   sarama.StringEncoder(event.Port.ConnectPoint.String()),
		Value: sarama.ByteEncoder(body),
	}
}

func (s *KafkaSink) drainErrors(ctx context.Context) {
	// the channel closes when the producer does
	for perr := range s.producer.Errors() {
		logger.Warnw(ctx, "event-publish-failed", log.Fields{"topic": s.topic, "error": perr.Err})
	}
}
