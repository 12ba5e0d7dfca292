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

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/opencord/bigswitch/bs_core/config"
	c "github.com/opencord/bigswitch/bs_core/core"
	"github.com/opencord/bigswitch/bs_core/version"
	"github.com/opencord/voltha-lib-go/v7/pkg/log"
	"github.com/opencord/voltha-lib-go/v7/pkg/probe"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func waitForExit(ctx context.Context) int {
	signalChannel := make(chan os.Signal, 1)
	signal.Notify(signalChannel,
		syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT)

	s := <-signalChannel
	switch s {
	case syscall.SIGHUP,
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGQUIT:
		logger.Infow(ctx, "closing-signal-received", log.Fields{"signal": s})
		return 0
	default:
		logger.Infow(ctx, "unexpected-signal-received", log.Fields{"signal": s})
		return 1
	}
}

func printBanner() {
	fmt.Println("  ____  _       ____          _ _       _     ")
	fmt.Println(" | __ )(_) __ _/ ___|_      _(_) |_ ___| |__  ")
	fmt.Println(" |  _ \\| |/ _` \\___ \\ \\ /\\ / / | __/ __| '_ \\ ")
	fmt.Println(" | |_) | | (_| |___) \\ V  V /| | || (__| | | |")
	fmt.Println(" |____/|_|\\__, |____/ \\_/\\_/ |_|\\__\\___|_| |_|")
	fmt.Println("          |___/                               ")
}

func printVersion() {
	fmt.Println("Big Switch Core")
	fmt.Println(version.VersionInfo.String("  "))
}

func main() {
	start := time.Now()

	cf := config.NewBSCoreFlags()
	cf.ParseCommandArguments()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set the instance ID as the hostname
	instanceID, err := os.Hostname()
	if err != nil || instanceID == "" {
		logger.Fatal(ctx, "hostname-not-set")
	}

	logLevel, err := log.StringToLogLevel(cf.LogLevel)
	if err != nil {
		logger.Fatalf(ctx, "cannot-convert-log-level: %s:%s", cf.LogLevel, err)
	}

	// Setup default logger - applies for packages that do not have specific logger set
	if _, err := log.SetDefaultLogger(log.JSON, logLevel, log.Fields{"instanceId": instanceID}); err != nil {
		logger.With(log.Fields{"error": err}).Fatal(ctx, "cannot-setup-logging")
	}

	// Update all loggers (provisioned via init) with a common field
	if err := log.UpdateAllLoggers(log.Fields{"instanceId": instanceID}); err != nil {
		logger.With(log.Fields{"error": err}).Fatal(ctx, "cannot-setup-logging")
	}

	// Update all loggers to log level specified as input parameter
	log.SetAllLogLevel(logLevel)

	defer func() {
		if err := log.CleanUp(); err != nil {
			logger.Errorw(ctx, "unable-to-flush-any-buffered-log-entries", log.Fields{"error": err})
		}
	}()

	// Print version / build information and exit
	if cf.DisplayVersionOnly {
		printVersion()
		return
	}

	if cf.Banner {
		printBanner()
	}

	logger.Infow(ctx, "big-switch-core-config", log.Fields{"config": *cf})

	/*
	 * Create and start the liveness and readiness container management probes. This
	 * is done in the main function so just in case the main starts multiple other
	 * objects there can be a single probe end point for the process.
	 */
	p := &probe.Probe{}
	go p.ListenAndServe(ctx, cf.ProbeAddress)
	p.RegisterService(ctx, "kv-store", "bigswitch-manager")

	// Serve prometheus metrics next to the probe
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(cf.MetricsAddress, metricsMux); err != nil {
			logger.Errorw(ctx, "metrics-server-stopped", log.Fields{"error": err})
		}
	}()

	// Add the probe to the context to pass to all the services started
	probeCtx := context.WithValue(ctx, probe.ProbeContextKey, p)

	core := c.NewCore(instanceID, cf, nil, nil)
	go func() {
		if err := core.Start(probeCtx); err != nil {
			logger.Fatalw(probeCtx, "failed-to-start-big-switch-core", log.Fields{"error": err})
		}
	}()

	code := waitForExit(ctx)
	logger.Infow(ctx, "received-a-closing-signal", log.Fields{"code": code})

	// Cleanup before leaving
	core.Stop(probeCtx)

	elapsed := time.Since(start)
	logger.Infow(ctx, "big-switch-core-run-time", log.Fields{"core": instanceID, "time": elapsed / time.Second})
}
