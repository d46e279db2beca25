// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package standalone

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/go-chi/render"
	log "github.com/sirupsen/logrus"

	"go.droidenv.dev/env/specs"
	"go.droidenv.dev/env/tensor"
	"go.droidenv.dev/env/timestep"
)

// stepAPIRequest carries one agent action over the wire.
type stepAPIRequest struct {
	ActionType    int32     `json:"actionType"`
	TouchPosition []float32 `json:"touchPosition"`
}

type errorReply struct {
	ErrorMessage string `json:"errorMessage"`
}

// PingHandler answers liveness probes.
func PingHandler(w http.ResponseWriter, r *http.Request) {
	w.Write([]byte("pong"))
}

// ResetHandler starts a new episode.
func ResetHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ts, err := s.env.Reset()
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, &errorReply{ErrorMessage: err.Error()})
		return
	}
	render.JSON(w, r, describeTimeStep(ts, s.env.EpisodeID()))
}

// StepHandler advances the episode by one action.
func StepHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	req := stepAPIRequest{}
	if err := readBodyAndUnmarshalJSON(r, &req); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, &errorReply{ErrorMessage: err.Error()})
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ts, err := s.env.Step(buildAction(req))
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, &errorReply{ErrorMessage: err.Error()})
		return
	}
	render.JSON(w, r, describeTimeStep(ts, s.env.EpisodeID()))
}

// SpecsHandler describes the three schemas.
func SpecsHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	render.JSON(w, r, map[string]map[string]specDescription{
		"action":      describeSchema(s.env.ActionSpec()),
		"observation": describeSchema(s.env.ObservationSpec()),
		"taskExtras":  describeSchema(s.env.TaskExtrasSpec()),
	})
}

// ExtrasHandler returns the validated task extras. ?latestOnly=false
// returns the full accumulated sequences.
func ExtrasHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	latestOnly := r.URL.Query().Get("latestOnly") != "false"

	s.mu.Lock()
	defer s.mu.Unlock()

	extras, err := s.env.TaskExtras(latestOnly)
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, &errorReply{ErrorMessage: err.Error()})
		return
	}
	out := make(map[string]valueDescription, len(extras))
	for k, v := range extras {
		out[k] = describeValue(v)
	}
	render.JSON(w, r, out)
}

// TelemetryHandler flushes the environment counters.
func TelemetryHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	render.JSON(w, r, s.env.Logs())
}

// InternalStateHandler describes the lifecycle state machine.
func InternalStateHandler(w http.ResponseWriter, r *http.Request, s *Server) {
	s.mu.Lock()
	defer s.mu.Unlock()

	render.JSON(w, r, map[string]string{
		"state":     s.env.State().String(),
		"episodeId": s.env.EpisodeID(),
	})
}

// ShutdownHandler closes the environment and then invokes shutdownFunc.
func ShutdownHandler(w http.ResponseWriter, r *http.Request, s *Server, shutdownFunc context.CancelFunc) {
	s.mu.Lock()
	s.env.Close()
	s.mu.Unlock()

	w.Write([]byte("shutting down"))
	if shutdownFunc != nil {
		shutdownFunc()
	}
}

func accessLogDecorator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		log.Debugf("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
	})
}

func readBodyAndUnmarshalJSON(r *http.Request, dst interface{}) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, dst)
}

func buildAction(req stepAPIRequest) map[string]tensor.Tensor {
	pos := req.TouchPosition
	if len(pos) != 2 {
		pos = []float32{0, 0}
	}
	return map[string]tensor.Tensor{
		specs.KeyActionType:    tensor.Int32Scalar(req.ActionType),
		specs.KeyTouchPosition: tensor.Float32Vector(pos[0], pos[1]),
	}
}

// specDescription is the JSON form of one schema entry.
type specDescription struct {
	DType string  `json:"dtype"`
	Shape []int   `json:"shape,omitempty"`
	Min   float64 `json:"min,omitempty"`
	Max   float64 `json:"max,omitempty"`
}

// valueDescription is the JSON form of one tensor value.
type valueDescription struct {
	DType  string    `json:"dtype"`
	Shape  []int     `json:"shape,omitempty"`
	Values []float64 `json:"values"`
}

// timeStepDescription is the JSON form of a TimeStep. Pixel payloads
// are summarized by shape, not serialized.
type timeStepDescription struct {
	StepType    string                     `json:"stepType"`
	Reward      float64                    `json:"reward"`
	Discount    float64                    `json:"discount"`
	EpisodeID   string                     `json:"episodeId"`
	Observation map[string]specDescription `json:"observation"`
}

func describeSchema(schema map[string]specs.Spec) map[string]specDescription {
	out := make(map[string]specDescription, len(schema))
	for name, s := range schema {
		d := specDescription{DType: s.DType.String(), Shape: s.Shape}
		if s.Bounded {
			d.Min, d.Max = s.Min, s.Max
		}
		out[name] = d
	}
	return out
}

func describeValue(t tensor.Tensor) valueDescription {
	return valueDescription{
		DType:  t.DType().String(),
		Shape:  t.Shape(),
		Values: t.Floats(),
	}
}

func describeTimeStep(ts timestep.TimeStep, episodeID string) timeStepDescription {
	obs := make(map[string]specDescription, len(ts.Observation))
	for name, t := range ts.Observation {
		obs[name] = specDescription{DType: t.DType().String(), Shape: t.Shape()}
	}
	return timeStepDescription{
		StepType:    ts.StepType.String(),
		Reward:      ts.Reward,
		Discount:    ts.Discount,
		EpisodeID:   episodeID,
		Observation: obs,
	}
}
