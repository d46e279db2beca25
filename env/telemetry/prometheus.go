// Copyright The droidenv Authors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"

	"go.droidenv.dev/env/actions"
)

// Collector exposes a Ledger's counters as Prometheus metrics. It reads
// the ledger on every scrape, so it must be scraped from the same
// goroutine discipline as the environment itself (the ledger is
// unsynchronized).
type Collector struct {
	ledger *Ledger

	stepsDesc         *prometheus.Desc
	actionDesc        *prometheus.Desc
	restartsDesc      *prometheus.Desc
	timeoutResetsDesc *prometheus.Desc
}

// NewCollector builds a Collector over ledger.
func NewCollector(ledger *Ledger) *Collector {
	return &Collector{
		ledger: ledger,
		stepsDesc: prometheus.NewDesc(
			"droidenv_steps",
			"Steps taken, by counter scope.",
			[]string{"scope"}, nil),
		actionDesc: prometheus.NewDesc(
			"droidenv_action_type_count",
			"Steps taken per action type, by counter scope.",
			[]string{"scope", "action_type"}, nil),
		restartsDesc: prometheus.NewDesc(
			"droidenv_restarts_total",
			"Unexpected backend restarts.",
			nil, nil),
		timeoutResetsDesc: prometheus.NewDesc(
			"droidenv_timeout_resets_total",
			"Episodes ended by a step timeout.",
			nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.stepsDesc
	ch <- c.actionDesc
	ch <- c.restartsDesc
	ch <- c.timeoutResetsDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, scope := range Scopes() {
		ch <- prometheus.MustNewConstMetric(
			c.stepsDesc, prometheus.GaugeValue,
			float64(c.ledger.Steps(scope)), scope.String())
		for _, at := range actions.All() {
			ch <- prometheus.MustNewConstMetric(
				c.actionDesc, prometheus.GaugeValue,
				float64(c.ledger.ActionCount(scope, at)), scope.String(), at.String())
		}
	}
	ch <- prometheus.MustNewConstMetric(
		c.restartsDesc, prometheus.CounterValue, float64(c.ledger.Restarts()))
	ch <- prometheus.MustNewConstMetric(
		c.timeoutResetsDesc, prometheus.CounterValue, float64(c.ledger.TimeoutResets()))
}
