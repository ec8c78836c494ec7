package pipeline

import (
	"math"
	"testing"
)

func bundleWith(mutate func(*Bundle)) *Bundle {
	b := &Bundle{
		Name:        "test",
		Keys:        map[string]string{"temp_c": "water_temperature"},
		Calibration: map[string]Calibration{},
		Smoothing:   map[string]*Smoother{},
		Ranges:      map[string]Range{},
	}
	if mutate != nil {
		mutate(b)
	}
	return b
}

func TestConditionCalibrationExact(t *testing.T) {
	cases := []struct {
		name          string
		slope, offset float64
		raw, want     float64
	}{
		{"identity", 1, 0, 25, 25},
		{"fahrenheit", 1.8, 32, 25, 77.0},
		{"offset only", 1, -0.5, 10, 9.5},
		{"negative", 1.8, 32, -40, -40},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := bundleWith(func(b *Bundle) {
				b.Calibration["water_temperature"] = Calibration{Slope: tc.slope, Offset: tc.offset}
			})
			values, rejected := b.Condition(map[string]float64{"temp_c": tc.raw})
			if len(rejected) != 0 {
				t.Fatalf("unexpected rejections: %v", rejected)
			}
			got, ok := values["water_temperature"]
			if !ok {
				t.Fatal("water_temperature missing from output")
			}
			if got != tc.want {
				t.Errorf("calibrate(%v): got %v, want %v", tc.raw, got, tc.want)
			}
		})
	}
}

func TestConditionUnmappedFieldsDropped(t *testing.T) {
	b := bundleWith(nil)
	values, rejected := b.Condition(map[string]float64{
		"temp_c":   20,
		"checksum": 123,
	})
	if len(values) != 1 {
		t.Errorf("expected 1 value, got %d: %v", len(values), values)
	}
	if _, ok := values["checksum"]; ok {
		t.Error("unmapped raw field leaked into output")
	}
	if len(rejected) != 0 {
		t.Errorf("unmapped fields must not count as rejections, got %v", rejected)
	}
}

func TestSmoothingAlphaOnePassThrough(t *testing.T) {
	s := &Smoother{Alpha: 1}
	for _, v := range []float64{40, 60, -3.5, 0, 1e9} {
		if got := s.Apply(v); got != v {
			t.Errorf("alpha=1: Apply(%v) = %v, want pass-through", v, got)
		}
	}
}

func TestSmoothingFirstValuePrimes(t *testing.T) {
	b := bundleWith(func(b *Bundle) {
		b.Keys = map[string]string{"humidity": "air_humidity"}
		b.Smoothing["air_humidity"] = &Smoother{Alpha: 0.5}
	})

	// First read primes the state outright: no warm-up lag.
	values, _ := b.Condition(map[string]float64{"humidity": 40})
	if got := values["air_humidity"]; got != 40 {
		t.Errorf("first smoothed value: got %v, want 40", got)
	}

	// Second read: 0.5*60 + 0.5*40 = 50.
	values, _ = b.Condition(map[string]float64{"humidity": 60})
	if got := values["air_humidity"]; got != 50.0 {
		t.Errorf("second smoothed value: got %v, want 50.0", got)
	}
}

func TestSmoothingConstantInputConverged(t *testing.T) {
	s := &Smoother{Alpha: 0.3}
	if got := s.Apply(21.5); got != 21.5 {
		t.Fatalf("first value: got %v, want 21.5", got)
	}
	for i := 0; i < 10; i++ {
		if got := s.Apply(21.5); got != 21.5 {
			t.Errorf("constant input iteration %d: got %v, want 21.5", i, got)
		}
	}
}

func TestRangeBoundsInclusive(t *testing.T) {
	b := bundleWith(func(b *Bundle) {
		b.Ranges["water_temperature"] = Range{Min: 32, Max: 120}
	})

	for _, v := range []float64{32, 120, 77} {
		values, rejected := b.Condition(map[string]float64{"temp_c": v})
		if _, ok := values["water_temperature"]; !ok {
			t.Errorf("value %v inside [32,120] was dropped", v)
		}
		if len(rejected) != 0 {
			t.Errorf("value %v: unexpected rejections %v", v, rejected)
		}
	}

	for _, v := range []float64{31, 121} {
		values, rejected := b.Condition(map[string]float64{"temp_c": v})
		if _, ok := values["water_temperature"]; ok {
			t.Errorf("value %v outside [32,120] was accepted", v)
		}
		if len(rejected) != 1 || rejected[0] != "water_temperature" {
			t.Errorf("value %v: rejected = %v, want [water_temperature]", v, rejected)
		}
	}
}

func TestRangeDropKeepsSmoothingState(t *testing.T) {
	b := bundleWith(func(b *Bundle) {
		b.Smoothing["water_temperature"] = &Smoother{Alpha: 0.5}
		b.Ranges["water_temperature"] = Range{Min: 0, Max: 50}
	})

	// Prime with 20.
	values, _ := b.Condition(map[string]float64{"temp_c": 20})
	if got := values["water_temperature"]; got != 20 {
		t.Fatalf("prime: got %v, want 20", got)
	}

	// Spike to 200: smoothed = 0.5*200 + 0.5*20 = 110, out of range, dropped.
	values, rejected := b.Condition(map[string]float64{"temp_c": 200})
	if _, ok := values["water_temperature"]; ok {
		t.Fatal("out-of-range spike was not dropped")
	}
	if len(rejected) != 1 {
		t.Fatalf("expected 1 rejection, got %v", rejected)
	}

	// Smoothing state advanced through the spike: next value folds into the
	// post-spike state (0.5*30 + 0.5*110 = 70), not the pre-spike one.
	values, _ = b.Condition(map[string]float64{"temp_c": 30})
	if got := values["water_temperature"]; got != 70 {
		t.Errorf("post-spike value: got %v, want 70 (state not rolled back)", got)
	}
}

func TestConditionChainOrder(t *testing.T) {
	// Calibration runs before smoothing before range: a raw 25 with
	// slope=1.8 offset=32 lands on 77, inside [32,120].
	b := bundleWith(func(b *Bundle) {
		b.Calibration["water_temperature"] = Calibration{Slope: 1.8, Offset: 32}
		b.Smoothing["water_temperature"] = &Smoother{Alpha: 1}
		b.Ranges["water_temperature"] = Range{Min: 32, Max: 120}
	})

	values, _ := b.Condition(map[string]float64{"temp_c": 25})
	if got := values["water_temperature"]; got != 77.0 {
		t.Errorf("got %v, want 77.0", got)
	}

	// The same raw value without calibration is below range min and drops.
	b2 := bundleWith(func(b *Bundle) {
		b.Ranges["water_temperature"] = Range{Min: 32, Max: 120}
	})
	values, _ = b2.Condition(map[string]float64{"temp_c": 25})
	if _, ok := values["water_temperature"]; ok {
		t.Error("uncalibrated 25 should fall below range min 32")
	}
}

func TestUnboundedRangeAcceptsEverything(t *testing.T) {
	b := bundleWith(func(b *Bundle) {
		b.Ranges["water_temperature"] = Range{Min: math.Inf(-1), Max: math.Inf(1)}
	})
	for _, v := range []float64{-1e12, 0, 1e12} {
		values, _ := b.Condition(map[string]float64{"temp_c": v})
		if _, ok := values["water_temperature"]; !ok {
			t.Errorf("unbounded range dropped %v", v)
		}
	}
}
