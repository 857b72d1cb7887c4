/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package main

import (
	"context"
	"flag"
	"net"
	"os"
	"os/signal"
	"runtime"

	log "github.com/sirupsen/logrus"
	syscall "golang.org/x/sys/unix"

	"github.com/clockforge/sntp/ntp/responder/checker"
	"github.com/clockforge/sntp/ntp/responder/server"
	"github.com/clockforge/sntp/ntp/responder/stats"
)

func main() {
	s := server.Server{}

	var (
		ip         string
		configFile string
		logLevel   string
	)

	flag.StringVar(&logLevel, "loglevel", "info", "Set a log level. Can be: debug, info, warning, error")
	flag.StringVar(&ip, "ip", "0.0.0.0", "IP to listen on")
	flag.StringVar(&s.Config.RefID, "refid", "SNTP", "Reference ID of the server")
	flag.IntVar(&s.Config.Port, "port", 123, "Port to run service on. Ports below 1024 need elevated privileges")
	flag.IntVar(&s.Config.MonitoringPort, "monitoringport", 0, "Port to run monitoring server on")
	flag.IntVar(&s.Config.Stratum, "stratum", 2, "Stratum of the server")
	flag.IntVar(&s.Config.Workers, "workers", runtime.NumCPU(), "How many workers (routines) to run")
	flag.DurationVar(&s.Config.ExtraOffset, "extraoffset", 0, "Extra offset to apply to served time")
	flag.StringVar(&configFile, "config", "", "Path to a YAML config file overriding the flags")

	flag.Parse()

	switch logLevel {
	case "debug":
		log.SetLevel(log.DebugLevel)
	case "info":
		log.SetLevel(log.InfoLevel)
	case "warning":
		log.SetLevel(log.WarnLevel)
	case "error":
		log.SetLevel(log.ErrorLevel)
	default:
		log.Fatalf("Unrecognized log level: %v", logLevel)
	}

	s.Config.IP = net.ParseIP(ip)
	if s.Config.IP == nil {
		log.Fatalf("Invalid ip address %q", ip)
	}
	if configFile != "" {
		if err := s.Config.Load(configFile); err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	}
	s.Config.SetDefaultIP()
	if err := s.Config.Validate(); err != nil {
		log.Fatalf("Config is invalid: %v", err)
	}

	// Monitoring
	st := &stats.JSONStats{}
	if s.Config.MonitoringPort != 0 {
		go st.Start(s.Config.MonitoringPort)
	}
	s.Stats = st

	s.Checker = &checker.SimpleChecker{
		ExpectedListeners: 1,
		ExpectedWorkers:   int64(s.Config.Workers),
	}

	// context is used in server in case work needs to be interrupted internally
	ctx, cancelFunc := context.WithCancel(context.Background())
	defer cancelFunc()

	// Handle interrupt for graceful shutdown
	sigStop := make(chan os.Signal, 1)
	signal.Notify(sigStop, syscall.SIGINT)
	signal.Notify(sigStop, syscall.SIGQUIT)
	signal.Notify(sigStop, syscall.SIGTERM)

	go func() {
		sig := <-sigStop
		log.Warningf("Got %s, graceful shutdown", sig)
		cancelFunc()
	}()

	if err := s.Start(ctx, cancelFunc); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
