// Copyright 2024 The SERAPH Authors
// This file is part of SERAPH.

package predictor

import (
	"math"
	"testing"

	"github.com/seraphlang/seraph/internal/strand"
)

func TestUpdateTangentTracksRisingTrend(t *testing.T) {
	var q [4]float64
	updateTangent(&q, 10, defaultAlpha)
	updateTangent(&q, 20, defaultAlpha)
	updateTangent(&q, 30, defaultAlpha)
	if q[1] <= 0 {
		t.Fatalf("expected a positive tangent for a rising trend, got %f", q[1])
	}
}

func TestObserveAdjustsPriorityWhenMissExceedsTolerance(t *testing.T) {
	s := &strand.Strand{}
	cfg := NewConfig(10)
	// Force a large, consistent miss: target far below what's measured.
	for i := 0; i < 50; i++ {
		cfg = Observe(s, cfg, QuantityExecTime, 100, 10, 0.5, uint64(i*200))
	}
	if s.Stats.Priority == 0 {
		t.Fatalf("expected priority to have adjusted after repeated large misses")
	}
}

func TestObserveRespectsCooldown(t *testing.T) {
	s := &strand.Strand{}
	cfg := NewConfig(10)
	// Warm up the tangent and force a priority change once chronon reaches
	// 100 (the end of the first cooldown window); the loop stops before 200.
	var cur uint64
	for cur = 0; cur < 200; cur += 20 {
		cfg = Observe(s, cfg, QuantityExecTime, 100, 10, 0.5, cur)
	}
	adjustedAt := s.Stats.LastAdjust
	if adjustedAt == 0 {
		t.Fatalf("expected at least one priority adjustment by chronon 200")
	}
	priorityAfterFirst := s.Stats.Priority

	// A second large miss arriving inside the cooldown window must not
	// adjust priority again.
	Observe(s, cfg, QuantityExecTime, 100, 10, 0.5, adjustedAt+1)
	if s.Stats.Priority != priorityAfterFirst {
		t.Fatalf("expected no further adjustment within the cooldown window, priority changed from %d to %d", priorityAfterFirst, s.Stats.Priority)
	}
}

func TestAdaptEtaRaisesOnPoorAccuracyAndLowersOnGood(t *testing.T) {
	raised := adaptEta(0.05, 0.3)
	if raised <= 0.05 {
		t.Fatalf("expected eta to rise for poor accuracy, got %f", raised)
	}
	lowered := adaptEta(0.05, 0.95)
	if lowered >= 0.05 {
		t.Fatalf("expected eta to drop for good accuracy, got %f", lowered)
	}
}

func TestAdaptEtaClampsToRange(t *testing.T) {
	if got := adaptEta(0.49, 0.1); got > maxEta {
		t.Fatalf("expected eta clamped to max %f, got %f", maxEta, got)
	}
	if got := adaptEta(0.0011, 0.95); got < minEta {
		t.Fatalf("expected eta clamped to min %f, got %f", minEta, got)
	}
}

func TestConvergedRequiresAllThreeConditions(t *testing.T) {
	s := &strand.Strand{}
	s.Stats.ExecTime[1] = 0.01
	s.Stats.AccumDelta = 0.01
	if !Converged(s, 0.95) {
		t.Fatalf("expected converged given small tangent/accum and high accuracy")
	}
	if Converged(s, 0.5) {
		t.Fatalf("expected not converged when accuracy is low")
	}
}

func TestPredictExtrapolatesLinearly(t *testing.T) {
	q := [4]float64{10, 2, 0, 0}
	got := predict(q, 5)
	want := 20.0
	if math.Abs(got-want) > 1e-9 {
		t.Fatalf("expected predicted %f, got %f", want, got)
	}
}
