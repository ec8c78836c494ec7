package pipeline

// Condition runs the per-key conditioning chain on one raw reading:
// key mapping, calibration, smoothing, range validation, in that order.
// Raw fields without a mapping entry are dropped silently. Values outside
// their configured range are dropped from the result, never clamped, and
// returned in rejected by telemetry key. Smoothing state is advanced even for
// rejected values so one out-of-range spike cannot bias later smoothing.
func (b *Bundle) Condition(raw map[string]float64) (values map[string]float64, rejected []string) {
	values = make(map[string]float64, len(raw))

	for rawKey, v := range raw {
		key, ok := b.Keys[rawKey]
		if !ok {
			continue
		}

		if cal, ok := b.Calibration[key]; ok {
			v = v*cal.Slope + cal.Offset
		}

		if sm, ok := b.Smoothing[key]; ok {
			v = sm.Apply(v)
		}

		if r, ok := b.Ranges[key]; ok && (v < r.Min || v > r.Max) {
			rejected = append(rejected, key)
			continue
		}

		values[key] = v
	}
	return values, rejected
}
