// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Command droidenv serves a demo environment over the standalone HTTP
// API, backed by the in-memory fake device and a scripted task.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"go.droidenv.dev/env"
	"go.droidenv.dev/env/coordinator"
	"go.droidenv.dev/env/logging"
	"go.droidenv.dev/env/simulator"
	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/standalone"
	"go.droidenv.dev/env/telemetry"
	"go.droidenv.dev/env/tensor"
)

type options struct {
	LogLevel       string  `long:"log-level" default:"info" description:"log level"`
	Addr           string  `long:"addr" default:"0.0.0.0:8080" description:"listen address for the standalone API"`
	ScreenHeight   int     `long:"screen-height" default:"84" description:"fake device screen height"`
	ScreenWidth    int     `long:"screen-width" default:"84" description:"fake device screen width"`
	ScreenChannels int     `long:"screen-channels" default:"3" description:"fake device channel count"`
	EpisodeSteps   int     `long:"episode-steps" default:"100" description:"steps per demo episode"`
	StepTimeoutSec int     `long:"step-timeout-sec" default:"10" description:"step timeout in seconds, 0 disables"`
	MaxStepsPerSec float64 `long:"max-steps-per-sec" default:"5" description:"interaction pacing"`
	Seed           int64   `long:"seed" description:"fake device RNG seed, 0 means time-seeded"`
}

func main() {
	// Optional .env with the same flag names in env-var form.
	_ = godotenv.Load()

	opts := getCLIArgs()
	logging.SetLogLevel(opts.LogLevel)

	sim := simulator.NewFake(simulator.ScreenDimensions{
		Height:   opts.ScreenHeight,
		Width:    opts.ScreenWidth,
		Channels: opts.ScreenChannels,
	}, opts.Seed)
	task := newDemoTask(opts.EpisodeSteps)

	coord, err := coordinator.New(sim, task, coordinator.Config{
		StepTimeout:    time.Duration(opts.StepTimeoutSec) * time.Second,
		MaxStepsPerSec: opts.MaxStepsPerSec,
		ForceLaunch:    true,
	})
	if err != nil {
		log.WithError(err).Fatal("failed to start coordinator")
	}

	e, err := env.New(coord, task, []specs.Spec{
		{Name: "score", DType: tensor.Float32},
	})
	if err != nil {
		log.WithError(err).Fatal("failed to construct environment")
	}
	defer e.Close()

	prometheus.MustRegister(telemetry.NewCollector(e.Ledger()))

	ctx, cancel := context.WithCancel(context.Background())
	router := standalone.NewHTTPRouter(standalone.NewServer(e), cancel)
	server := &http.Server{Addr: opts.Addr, Handler: router}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Infof("standalone API listening on %s", opts.Addr)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		select {
		case <-ctx.Done():
		case sig := <-sigCh:
			log.Infof("received %s, shutting down", sig)
		}
		shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
		defer done()
		return server.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		log.WithError(err).Error("server exited with error")
	}
}

func getCLIArgs() options {
	var opts options
	parser := flags.NewParser(&opts, flags.IgnoreUnknown)
	if _, err := parser.ParseArgs(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("Failed to parse command line arguments:", os.Args)
	}
	return opts
}
