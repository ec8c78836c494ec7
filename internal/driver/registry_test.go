package driver

import (
	"context"
	"reflect"
	"testing"
)

func noopConstructor(params map[string]any) (Driver, error) {
	return NewFake(Frame{Values: map[string]float64{"v": 0}}), nil
}

func TestRegistryRegisterAndLookup(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("DHT22", Registration{New: noopConstructor}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, name := range []string{"dht22", "DHT22", " dht22 "} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("Lookup(%q) failed; type names should be case-insensitive", name)
		}
	}
	if _, ok := r.Lookup("ds18b20"); ok {
		t.Error("Lookup returned a registration for an unregistered type")
	}
}

func TestRegistryRejectsBadRegistrations(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", Registration{New: noopConstructor}); err == nil {
		t.Error("empty type name should be rejected")
	}
	if err := r.Register("x", Registration{}); err == nil {
		t.Error("nil constructor should be rejected")
	}
}

func TestRegistryOverride(t *testing.T) {
	r := NewRegistry()
	first := Registration{New: noopConstructor, Contract: Contract{Accepted: []string{"a"}}}
	second := Registration{New: noopConstructor, Contract: Contract{Accepted: []string{"b"}}}
	_ = r.Register("gauge", first)
	_ = r.Register("gauge", second)

	reg, ok := r.Lookup("gauge")
	if !ok {
		t.Fatal("Lookup failed after override")
	}
	if len(reg.Contract.Accepted) != 1 || reg.Contract.Accepted[0] != "b" {
		t.Errorf("override did not replace the registration: %+v", reg.Contract)
	}
}

func TestRegistryTypesSorted(t *testing.T) {
	r := NewRegistry()
	for _, name := range []string{"zeta", "alpha", "mid"} {
		_ = r.Register(name, Registration{New: noopConstructor})
	}
	want := []string{"alpha", "mid", "zeta"}
	if got := r.Types(); !reflect.DeepEqual(got, want) {
		t.Errorf("Types: got %v, want %v", got, want)
	}
}

func TestDefaultRegistry(t *testing.T) {
	r := Default()
	for _, name := range []string{"ds18b20", "dht22", "water_flow", "ph_modbus", "static"} {
		if _, ok := r.Lookup(name); !ok {
			t.Errorf("built-in type %q not registered", name)
		}
	}
}

func TestGPIOContractsValidateOnAnyPlatform(t *testing.T) {
	// The GPIO contracts are not build-tagged, so config validation
	// behaves the same whether or not the constructor can run.
	for _, name := range []string{"dht22", "water_flow"} {
		reg, ok := Default().Lookup(name)
		if !ok {
			t.Fatalf("type %q not registered", name)
		}
		if _, err := reg.Contract.Validate(map[string]any{"pin": 17}); err != nil {
			t.Errorf("%s: pin-only params should validate, got %v", name, err)
		}
		if _, err := reg.Contract.Validate(map[string]any{}); err == nil {
			t.Errorf("%s: missing pin should fail validation", name)
		}
	}
}

func TestStaticDriver(t *testing.T) {
	reg, _ := Default().Lookup("static")
	params, err := reg.Contract.Validate(map[string]any{
		"values": map[string]any{"temperature": 21.5, "level": "80"},
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}

	d, err := reg.New(params)
	if err != nil {
		t.Fatalf("construct: %v", err)
	}
	defer d.Close()

	got, err := d.Read(context.Background())
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	want := map[string]float64{"temperature": 21.5, "level": 80}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read: got %v, want %v", got, want)
	}
}

func TestStaticDriverBadValues(t *testing.T) {
	reg, _ := Default().Lookup("static")
	if _, err := reg.New(map[string]any{"values": map[string]any{"x": "warm"}}); err == nil {
		t.Error("non-numeric value should fail construction")
	}
	if _, err := reg.New(map[string]any{"values": "nope"}); err == nil {
		t.Error("non-mapping values should fail construction")
	}
}
