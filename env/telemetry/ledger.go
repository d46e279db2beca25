// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

// Package telemetry accumulates lifetime and per-episode counters for
// the environment. Counters are keyed by an explicit (scope, metric)
// pair enumerated at construction, not by assembled strings; names are
// only rendered at flush time.
package telemetry

import (
	"fmt"

	log "github.com/sirupsen/logrus"

	"go.droidenv.dev/env/actions"
)

// Scope identifies the lifetime of a counter group.
type Scope int

const (
	// Total counters are never reset.
	Total Scope = iota
	// Episode counters are zeroed at every episode boundary.
	Episode
)

// String returns the prefix under which the scope's counters are
// exported at flush time.
func (s Scope) String() string {
	switch s {
	case Total:
		return "droidenv_total"
	case Episode:
		return "droidenv_episode"
	default:
		return fmt.Sprintf("Scope(%d)", int(s))
	}
}

// Scopes returns every counter scope.
func Scopes() []Scope {
	return []Scope{Total, Episode}
}

// Exported names of the lifetime-only counters.
const (
	RestartCountKey      = "restart_count"
	TimeoutResetCountKey = "reset_count_step_timeout"
)

// Ledger holds the environment counters. It is not safe for concurrent
// use; the environment is single-caller by contract.
type Ledger struct {
	steps         map[Scope]int64
	actionCounts  map[Scope]map[actions.ActionType]int64
	restarts      int64
	timeoutResets int64
}

// NewLedger returns a Ledger with every counter present and zeroed,
// enumerated from the static action-type set.
func NewLedger() *Ledger {
	l := &Ledger{
		steps:        make(map[Scope]int64, len(Scopes())),
		actionCounts: make(map[Scope]map[actions.ActionType]int64, len(Scopes())),
	}
	for _, scope := range Scopes() {
		l.steps[scope] = 0
		counts := make(map[actions.ActionType]int64, len(actions.All()))
		for _, at := range actions.All() {
			counts[at] = 0
		}
		l.actionCounts[scope] = counts
	}
	return l
}

// RecordStep increments the step counter and the counter for the given
// action type in both scopes.
func (l *Ledger) RecordStep(at actions.ActionType) {
	for _, scope := range Scopes() {
		l.steps[scope]++
		l.actionCounts[scope][at]++
	}
}

// RecordRestart counts an unexpected backend restart. Lifetime only.
func (l *Ledger) RecordRestart() {
	l.restarts++
}

// RecordTimeoutReset counts an episode ended by a step timeout.
// Lifetime only.
func (l *Ledger) RecordTimeoutReset() {
	l.timeoutResets++
}

// BeginEpisode zeroes every episode-scoped counter. Total-scoped
// counters are untouched.
func (l *Ledger) BeginEpisode() {
	l.steps[Episode] = 0
	for at := range l.actionCounts[Episode] {
		l.actionCounts[Episode][at] = 0
	}
}

// Steps returns the step count for a scope.
func (l *Ledger) Steps(scope Scope) int64 {
	return l.steps[scope]
}

// ActionCount returns the count for one action type in a scope.
func (l *Ledger) ActionCount(scope Scope, at actions.ActionType) int64 {
	return l.actionCounts[scope][at]
}

// Restarts returns the lifetime restart count.
func (l *Ledger) Restarts() int64 {
	return l.restarts
}

// TimeoutResets returns the lifetime timeout-reset count.
func (l *Ledger) TimeoutResets() int64 {
	return l.timeoutResets
}

// Flush renders every counter into a flat map merged with the backend
// counters, adding a per-action-type ratio for each scope with at least
// one recorded step. The returned map never aliases ledger storage.
func (l *Ledger) Flush(backend map[string]float64) map[string]float64 {
	out := make(map[string]float64, 2+len(backend)+len(Scopes())*(1+2*len(actions.All())))
	out[RestartCountKey] = float64(l.restarts)
	out[TimeoutResetCountKey] = float64(l.timeoutResets)
	for _, scope := range Scopes() {
		out[fmt.Sprintf("%s_steps", scope)] = float64(l.steps[scope])
		for _, at := range actions.All() {
			out[fmt.Sprintf("%s_action_type_%s", scope, at)] = float64(l.actionCounts[scope][at])
		}
	}
	for k, v := range backend {
		out[k] = v
	}
	for _, scope := range Scopes() {
		steps := l.steps[scope]
		if steps == 0 {
			log.Warnf("%s_steps is 0, skipping ratio counters", scope)
			continue
		}
		for _, at := range actions.All() {
			out[fmt.Sprintf("%s_action_type_ratio_%s", scope, at)] =
				float64(l.actionCounts[scope][at]) / float64(steps)
		}
	}
	return out
}
