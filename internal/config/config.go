// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.
//
// SERAPH is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.

// Package config loads the SERAPH compiler driver's TOML configuration,
// following the teacher's own choice of naoina/toml for node configuration.
package config

import (
	"io"
	"os"

	"github.com/naoina/toml"
)

// Arch selects a code generation target.
type Arch string

const (
	ArchX64   Arch = "x86-64"
	ArchRV64  Arch = "rv64imac"
)

// Config is the driver's top-level configuration.
type Config struct {
	Target struct {
		Arch Arch `toml:"arch"`
	} `toml:"target"`

	Optimize struct {
		ConstantFold bool `toml:"constant_fold"`
		DeadCode     bool `toml:"dead_code"`
	} `toml:"optimize"`

	Atlas struct {
		Path          string `toml:"path"`
		SizeBytes     uint64 `toml:"size_bytes"`
	} `toml:"atlas"`

	Scheduler struct {
		QuantumTicks  uint64 `toml:"quantum_ticks"`
		PredictorRate float64 `toml:"predictor_learning_rate"`
	} `toml:"scheduler"`

	Debug struct {
		CaptureStacks bool `toml:"capture_stacks"`
	} `toml:"debug"`
}

// Default returns a Config populated with SERAPH's documented defaults.
func Default() Config {
	var c Config
	c.Target.Arch = ArchX64
	c.Optimize.ConstantFold = true
	c.Optimize.DeadCode = true
	c.Atlas.SizeBytes = 1 << 20 // 1 MiB, matching spec §8 scenario 5
	c.Scheduler.QuantumTicks = 1
	c.Scheduler.PredictorRate = 0.1 // alpha default per spec §4.7
	return c
}

// Load reads and parses a TOML config file, starting from Default() so
// unspecified fields keep their documented defaults.
func Load(path string) (Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return Config{}, err
	}
	defer f.Close()
	return Decode(f)
}

// Decode parses TOML config from r, starting from Default().
func Decode(r io.Reader) (Config, error) {
	c := Default()
	data, err := io.ReadAll(r)
	if err != nil {
		return Config{}, err
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return Config{}, err
	}
	return c, nil
}
