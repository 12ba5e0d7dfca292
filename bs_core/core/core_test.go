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
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/opencord/bigswitch/bs_core/config"
	"github.com/opencord/bigswitch/bs_core/mocks"
	"github.com/opencord/voltha-lib-go/v7/pkg/probe"
	"github.com/phayes/freeport"
	"github.com/stretchr/testify/assert"
)

func TestNewKVClientUnsupportedType(t *testing.T) {
	_, err := newKVClient(context.Background(), "unsupported", "127.0.0.1:2379", 5*time.Second)
	assert.Error(t, err)
}

func TestCoreStartFailsOnUnsupportedKVStore(t *testing.T) {
	cf := config.NewBSCoreFlags()
	cf.KVStoreType = "unsupported"
	core := NewCore("test-core", cf, nil, nil)
	assert.Error(t, core.Start(context.Background()))
}

func TestWaitUntilKVStoreReachable(t *testing.T) {
	// the mock client always reports the connection as up
	err := waitUntilKVStoreReachableOrMaxTries(context.Background(), mocks.NewKVClient(), 1, time.Millisecond)
	assert.NoError(t, err)
}

func TestStopKVClient(t *testing.T) {
	// must release reservations and close without blocking
	done := make(chan struct{})
	go func() {
		stopKVClient(context.Background(), mocks.NewKVClient())
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stopKVClient did not return")
	}
}

func TestProbeEndpoint(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	port, err := freeport.GetFreePort()
	assert.NoError(t, err)
	address := fmt.Sprintf("127.0.0.1:%d", port)

	p := &probe.Probe{}
	go p.ListenAndServe(ctx, address)

	// health reports 200 only once a registered service is running
	p.RegisterService(ctx, "kv-store")
	probeCtx := context.WithValue(ctx, probe.ProbeContextKey, p)
	probe.UpdateStatusFromContext(probeCtx, "kv-store", probe.ServiceStatusRunning)

	// the listener needs a moment to come up
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err := http.Get("http://" + address + "/healthz")
		if err == nil {
			resp.Body.Close()
			assert.Equal(t, http.StatusOK, resp.StatusCode)
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("probe endpoint never came up: %s", err)
		}
		time.Sleep(10 * time.Millisecond)
	}
}
