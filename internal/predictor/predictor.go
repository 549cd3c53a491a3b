// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package predictor implements Galactic predictive scheduling (spec §4.7):
// an exponential-moving-average tangent update over each strand's measured
// exec-time/CPU-usage/wait-time/response-time quantities, feeding a
// gradient-descent priority adjustment.
//
// The EMA/gradient bookkeeping here operates directly on host-observed
// timings (strand.ExecStats), not on internal/numeric's Galactic type: that
// type models the hyper-dual value a compiled Seraphim program manipulates
// through CIR_GALACTIC_PREDICT, a distinct (language-level) concern from
// this scheduler-internal statistic.
package predictor

import (
	"math"

	"github.com/shirou/gopsutil/process"

	"github.com/seraphlang/seraph/internal/strand"
)

// defaultAlpha is the EMA smoothing factor for the tangent update (spec:
// "α default 0.1").
const defaultAlpha = 0.1

// toleranceFraction is the fraction of target a prediction may miss by
// before triggering a gradient step (spec: "20% of target").
const toleranceFraction = 0.20

// cooldownTicks separates successive priority changes (spec: "a cooldown
// of 100 ticks separates priority changes").
const cooldownTicks = 100

const (
	minEta = 0.001
	maxEta = 0.5
)

// convergedTangent / convergedAccum / convergedAccuracy are the three
// joint conditions spec §4.7 defines for "converged".
const (
	convergedTangent  = 0.05
	convergedAccum    = 0.1
	convergedAccuracy = 0.90
)

// Config tunes one Predictor; zero value is not valid, use NewConfig.
type Config struct {
	Alpha   float64 // EMA smoothing factor
	Eta     float64 // gradient-descent learning rate, clamped to [0.001, 0.5]
	Horizon float64 // Δt used in the Predict step
}

// NewConfig returns the spec's default tuning.
func NewConfig(horizon float64) Config {
	return Config{Alpha: defaultAlpha, Eta: 0.05, Horizon: horizon}
}

// quantityIndex names one of the four tracked Galactic_Exec_Stats fields.
type quantityIndex int

const (
	QuantityExecTime quantityIndex = iota
	QuantityCPUUsage
	QuantityWaitTime
	QuantityResponseTime
)

func fieldOf(st *strand.ExecStats, q quantityIndex) *[4]float64 {
	switch q {
	case QuantityCPUUsage:
		return &st.CPUUsage
	case QuantityWaitTime:
		return &st.WaitTime
	case QuantityResponseTime:
		return &st.ResponseTime
	default:
		return &st.ExecTime
	}
}

// updateTangent applies the EMA tangent update and replaces the primal
// (spec: "tangent := (1-α)·tangent + α·(new - old)").
func updateTangent(q *[4]float64, measured, alpha float64) {
	old := q[0]
	q[0] = measured
	q[1] = (1-alpha)*q[1] + alpha*(measured-old)
}

// predict computes primal + tangent*horizon (spec: "Predict").
func predict(q [4]float64, horizon float64) float64 {
	return q[0] + q[1]*horizon
}

// Observe records one quantum-completion measurement for quantity q on st,
// running the full EMA-update → predict → gradient-step pipeline (spec
// §4.7's full paragraph), and returns the updated config (Eta may have
// adapted).
func Observe(st *strand.Strand, cfg Config, q quantityIndex, measured, target, accuracy float64, chronon uint64) Config {
	field := fieldOf(st, q)
	updateTangent(field, measured, cfg.Alpha)

	predicted := predict(*field, cfg.Horizon)
	miss := predicted - target
	tolerance := toleranceFraction * math.Abs(target)

	if math.Abs(miss) > tolerance && chronon-st.Stats.LastAdjust >= cooldownTicks {
		direction := 1.0
		if field[1] < 0 {
			direction = -1.0
		}
		st.Stats.AccumDelta += -cfg.Eta * miss * direction

		if math.Abs(st.Stats.AccumDelta) >= 1.0 {
			delta := int(math.Round(st.Stats.AccumDelta))
			st.Stats.Priority += delta
			st.Stats.AccumDelta = 0
			st.Stats.LastAdjust = chronon
		}
	}

	cfg.Eta = adaptEta(cfg.Eta, accuracy)
	return cfg
}

// adaptEta raises the learning rate by 10% when accuracy is poor (<60%)
// and drops it by 10% when accuracy is very good (>90%), clamped to
// [0.001, 0.5] (spec §4.7).
func adaptEta(eta, accuracy float64) float64 {
	switch {
	case accuracy < 0.60:
		eta *= 1.10
	case accuracy > 0.90:
		eta *= 0.90
	}
	if eta < minEta {
		eta = minEta
	}
	if eta > maxEta {
		eta = maxEta
	}
	return eta
}

// Converged reports whether st's Galactic exec-time statistics satisfy
// spec §4.7's joint convergence criteria.
func Converged(st *strand.Strand, accuracy float64) bool {
	return math.Abs(st.Stats.ExecTime[1]) < convergedTangent &&
		math.Abs(st.Stats.AccumDelta) < convergedAccum &&
		accuracy > convergedAccuracy
}

// CPUSampler samples the host process's cumulative CPU time, bridging
// gopsutil's process.TimesStat into the CPUUsage quantity Observe expects
// (measured deltas in seconds between successive calls).
type CPUSampler struct {
	proc *process.Process
	last float64
}

// NewCPUSampler opens a sampler for the given OS process id.
func NewCPUSampler(pid int32) (*CPUSampler, error) {
	p, err := process.NewProcess(pid)
	if err != nil {
		return nil, err
	}
	return &CPUSampler{proc: p}, nil
}

// SampleDelta returns the CPU seconds (user+system) consumed since the
// previous call (zero on the first call).
func (c *CPUSampler) SampleDelta() (float64, error) {
	times, err := c.proc.Times()
	if err != nil {
		return 0, err
	}
	total := times.User + times.System
	delta := total - c.last
	c.last = total
	if delta < 0 {
		delta = 0
	}
	return delta, nil
}
