package grid

import (
	"math"
	"testing"
)

func baseConfig() Config {
	return Config{
		Levels:             5,
		Strength:           1.0,
		OuterPriceDistance: 0.02,
		MinBufferPct:       0.002,
		MaxBufferPct:       0.01,
		ReissueThreshold:   0.005,
		EnforceFullGrid:    false,
	}
}

func TestPlanNonCrossingInvariant(t *testing.T) {
	tests := []struct {
		name               string
		outerPriceDistance float64
		minBuffer          float64
	}{
		{"normal spacing", 0.02, 0.002},
		{"tight spacing stays separated", 0.0001, 0.0001},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseConfig()
			cfg.OuterPriceDistance = tt.outerPriceDistance
			cfg.MinBufferPct = tt.minBuffer
			plan := Plan(cfg, "BTCUSDT", 50000, 0.001, false, 0, false, 0)

			maxLong := maxOf(plan.LevelsLong)
			minShort := minOf(plan.LevelsShort)
			if maxLong >= minShort {
				t.Errorf("non-crossing invariant violated: max(long)=%v >= min(short)=%v", maxLong, minShort)
			}
		})
	}
}

func TestPlanScenario1InitialEntry(t *testing.T) {
	// Scenario 1 from spec §8.
	cfg := baseConfig()
	plan := PlanWithNotional(cfg, "BTCUSDT", 50000, 0.001,
		false, 0, 10000,
		false, 0, 10000,
	)

	if len(plan.LevelsLong) != 5 || len(plan.LevelsShort) != 5 {
		t.Fatalf("expected 5 levels per side, got long=%d short=%d", len(plan.LevelsLong), len(plan.LevelsShort))
	}

	// Long levels descend from just under 50000 (~49900 per spec).
	if plan.LevelsLong[0] <= plan.LevelsLong[len(plan.LevelsLong)-1] {
		t.Errorf("expected long levels to descend, got %v", plan.LevelsLong)
	}
	if plan.LevelsLong[0] > 49910 || plan.LevelsLong[0] < 49850 {
		t.Errorf("expected innermost long level near 49900, got %v", plan.LevelsLong[0])
	}

	// Short levels ascend from just over 50000 (~50100 per spec).
	if plan.LevelsShort[0] >= plan.LevelsShort[len(plan.LevelsShort)-1] {
		t.Errorf("expected short levels to ascend, got %v", plan.LevelsShort)
	}
	if plan.LevelsShort[0] < 50090 || plan.LevelsShort[0] > 50150 {
		t.Errorf("expected innermost short level near 50100, got %v", plan.LevelsShort[0])
	}

	totalLong := 0.0
	for i, a := range plan.AmountsLong {
		totalLong += a * plan.LevelsLong[i]
	}
	if totalLong > 10000*1.05 || totalLong < 10000*0.85 {
		t.Errorf("expected long notional near 10000, got %v", totalLong)
	}
}

func TestDynamicBufferGrowsWithDistanceFromEntry(t *testing.T) {
	cfg := baseConfig()
	atEntry := DynamicBuffer(cfg, 50000, 50000, true)
	far := DynamicBuffer(cfg, 49500, 50000, true)
	if far <= atEntry {
		t.Errorf("expected buffer to grow as price moves from entry: at-entry=%v far=%v", atEntry, far)
	}
	if far > cfg.MaxBufferPct {
		t.Errorf("buffer exceeded max: %v > %v", far, cfg.MaxBufferPct)
	}
}

func TestDynamicBufferFlatUsesMin(t *testing.T) {
	cfg := baseConfig()
	buf := DynamicBuffer(cfg, 50000, 0, false)
	if buf != cfg.MinBufferPct {
		t.Errorf("expected flat-side buffer = min (%v), got %v", cfg.MinBufferPct, buf)
	}
}

func TestEvaluateReissueThresholdOnlyWhenFlat(t *testing.T) {
	// Scenario 3 from spec §8: reissue_threshold=0.005, price moves
	// 50000 -> 50260.
	d := EvaluateReissue(false, 0, 50260, 0, 50000, 0.005, 0)
	if !d.Reissue || !d.ThresholdReissue {
		t.Fatalf("expected threshold reissue to fire, got %+v", d)
	}
	if math.Abs(d.NewAnchor-50260) > 1e-9 {
		t.Errorf("expected anchor updated to 50260, got %v", d.NewAnchor)
	}
}

func TestEvaluateReissueNoDoubleFireBelowThreshold(t *testing.T) {
	d := EvaluateReissue(false, 0, 50100, 0, 50000, 0.005, 0)
	if d.Reissue {
		t.Errorf("expected no reissue below threshold, got %+v", d)
	}
}

func TestEvaluateReissueBufferMoved(t *testing.T) {
	// Scenario 4 from spec §8.
	d := EvaluateReissue(true, 0.01, 49500, 50000, 0, 0, 0.0045*50000)
	if !d.Reissue || !d.BufferMovedReissue {
		t.Fatalf("expected buffer-moved reissue, got %+v", d)
	}
}

func TestEvaluateReissueIgnoredWhenInPositionAndWithinBuffer(t *testing.T) {
	d := EvaluateReissue(true, 0.01, 49990, 50000, 0, 0, 100)
	if d.Reissue {
		t.Errorf("expected no reissue within buffer distance, got %+v", d)
	}
}
