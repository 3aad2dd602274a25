// Copyright (C) NHR@FAU, University Erlangen-Nuremberg.
// All rights reserved. This file is part of cc-backend.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command aggregatord runs the metrics aggregation engine as a standalone
// process: a gocron-driven Default cycle, an optional NATS publish sink,
// and a small introspection HTTP surface.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	cclog "github.com/ClusterCockpit/cc-lib/v2/ccLogger"
	"github.com/go-co-op/gocron/v2"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ClusterCockpit/cc-metrics-agg/pkg/aggregation"
	"github.com/ClusterCockpit/cc-metrics-agg/pkg/httpapi"
	"github.com/ClusterCockpit/cc-metrics-agg/pkg/natssink"
	"github.com/ClusterCockpit/cc-metrics-agg/pkg/nats"
)

type appConfig struct {
	DefaultCycleInterval string `json:"defaultCycleInterval"`
	ListenAddress        string `json:"listenAddress"`
	Nats                 struct {
		Address string `json:"address"`
		Subject string `json:"subject"`
	} `json:"nats"`
}

func loadConfig(path string) appConfig {
	cfg := appConfig{
		DefaultCycleInterval: "60s",
		ListenAddress:        ":8083",
	}
	if path == "" {
		return cfg
	}
	data, err := os.ReadFile(path)
	if err != nil {
		cclog.Warnf("[AGGREGATOR]> could not read config %q, using defaults: %s", path, err.Error())
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		cclog.Abortf("[AGGREGATOR]> invalid config %q: %s\n", path, err.Error())
	}
	return cfg
}

func main() {
	configPath := flag.String("config", "", "path to aggregatord JSON configuration")
	flag.Parse()

	cfg := loadConfig(*configPath)
	interval, err := time.ParseDuration(cfg.DefaultCycleInterval)
	if err != nil {
		cclog.Abortf("[AGGREGATOR]> could not parse defaultCycleInterval %q: %s\n", cfg.DefaultCycleInterval, err.Error())
	}

	var sink aggregation.Sink = aggregation.NopSink{}
	if cfg.Nats.Address != "" {
		rawNatsConfig, err := json.Marshal(nats.NatsConfig{Address: cfg.Nats.Address})
		if err != nil {
			cclog.Abortf("[AGGREGATOR]> could not marshal nats config: %s\n", err.Error())
		}
		if err := nats.Init(rawNatsConfig); err != nil {
			cclog.Abortf("[AGGREGATOR]> invalid nats config: %s\n", err.Error())
		}
		nats.Connect()
		if client := nats.GetClient(); client != nil {
			subject := cfg.Nats.Subject
			if subject == "" {
				subject = "aggregated-metrics"
			}
			sink = natssink.New(client, subject)
			defer client.Close()
		}
	}

	manager := aggregation.NewManager(
		aggregation.WithSink(sink),
		aggregation.WithSelfMetrics(prometheus.DefaultRegisterer),
	)

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		cclog.Abortf("[AGGREGATOR]> could not create scheduler: %s\n", err.Error())
	}

	if _, err := scheduler.NewJob(gocron.DurationJob(interval), gocron.NewTask(func() {
		now := time.Now()
		summary := manager.Flush(aggregation.Default, now)
		manager.PublishSummary(summary)
		cclog.Debugf("[AGGREGATOR]> default cycle boundary at %s: %d non-persistent, %d persistent",
			now.Format(time.RFC3339), len(summary.NonPersistentAggregates), len(summary.PersistentAggregates))
	})); err != nil {
		cclog.Abortf("[AGGREGATOR]> could not register default cycle job: %s\n", err.Error())
	}

	router := mux.NewRouter()
	httpapi.Mount(router, "/api", manager)
	router.Handle("/metrics", promhttp.Handler())

	server := &http.Server{Addr: cfg.ListenAddress, Handler: router}

	scheduler.Start()
	go func() {
		cclog.Infof("[AGGREGATOR]> listening on %s", cfg.ListenAddress)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			cclog.Errorf("[AGGREGATOR]> http server error: %s", err.Error())
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	cclog.Info("[AGGREGATOR]> shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	server.Shutdown(ctx)

	summary := manager.Stop(aggregation.Default, time.Now())
	manager.PublishSummary(summary)

	if err := scheduler.Shutdown(); err != nil {
		cclog.Errorf("[AGGREGATOR]> scheduler shutdown error: %s", err.Error())
	}
}
