package driver

// Contracts for the GPIO-backed drivers. They live outside the build-tagged
// files so configuration validates identically on every platform; only the
// constructors differ per platform.

var dht22Contract = Contract{
	Required: []string{"pin"},
	Accepted: []string{"pin", "chip"},
	Coerce: map[string]Coercer{
		"pin":  AsInt,
		"chip": AsString,
	},
}

var waterFlowContract = Contract{
	Required: []string{"pin"},
	Accepted: []string{"pin", "chip", "sample_window", "sliding_window", "glitch_us", "calibration_constant"},
	Coerce: map[string]Coercer{
		"pin":                  AsInt,
		"chip":                 AsString,
		"sample_window":        AsFloat,
		"sliding_window":       AsFloat,
		"glitch_us":            AsInt,
		"calibration_constant": AsFloat,
	},
}
