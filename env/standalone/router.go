// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package standalone exposes a debug/driver HTTP surface over an
// environment: reset, step, specs, telemetry and internal state. The
// environment core is single-caller, so the server serializes every
// request through one mutex; it is the external mutual-exclusion
// wrapper the core requires.
package standalone

import (
	"context"
	"net/http"
	"sync"

	"github.com/go-chi/chi"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"go.droidenv.dev/env"
)

// Server wraps an Env for HTTP access.
type Server struct {
	mu  sync.Mutex
	env *env.Env
}

// NewServer builds a Server over e.
func NewServer(e *env.Env) *Server {
	return &Server{env: e}
}

// NewHTTPRouter wires the standalone endpoints. shutdownFunc is invoked
// after a /shutdown request has closed the environment.
func NewHTTPRouter(srv *Server, shutdownFunc context.CancelFunc) *chi.Mux {
	r := chi.NewRouter()
	r.Use(accessLogDecorator)

	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) { PingHandler(w, r) })
	r.Post("/reset", func(w http.ResponseWriter, r *http.Request) { ResetHandler(w, r, srv) })
	r.Post("/step", func(w http.ResponseWriter, r *http.Request) { StepHandler(w, r, srv) })
	r.Get("/specs", func(w http.ResponseWriter, r *http.Request) { SpecsHandler(w, r, srv) })
	r.Get("/extras", func(w http.ResponseWriter, r *http.Request) { ExtrasHandler(w, r, srv) })
	r.Get("/telemetry", func(w http.ResponseWriter, r *http.Request) { TelemetryHandler(w, r, srv) })
	r.Get("/internalState", func(w http.ResponseWriter, r *http.Request) { InternalStateHandler(w, r, srv) })
	r.Post("/shutdown", func(w http.ResponseWriter, r *http.Request) { ShutdownHandler(w, r, srv, shutdownFunc) })
	r.Handle("/metrics", promhttp.Handler())
	return r
}
