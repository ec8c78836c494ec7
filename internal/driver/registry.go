package driver

import (
	"fmt"
	"log"
	"sort"
	"strings"
	"sync"
)

// Constructor builds a driver from contract-validated parameters.
type Constructor func(params map[string]any) (Driver, error)

// Registration pairs a driver constructor with its configuration contract.
type Registration struct {
	New      Constructor
	Contract Contract
}

// Registry maps sensor type names to registrations. Populated once at
// process start; safe for concurrent lookup.
type Registry struct {
	mu    sync.RWMutex
	types map[string]Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]Registration)}
}

// Register adds or overrides the registration for a sensor type.
// Type names are case-insensitive.
func (r *Registry) Register(name string, reg Registration) error {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return fmt.Errorf("sensor type name cannot be empty")
	}
	if reg.New == nil {
		return fmt.Errorf("sensor type %q: constructor cannot be nil", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.types[name]; exists {
		log.Printf("driver: overriding registration for %q", name)
	}
	r.types[name] = reg
	return nil
}

// Lookup returns the registration for a sensor type.
func (r *Registry) Lookup(name string) (Registration, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.types[strings.ToLower(strings.TrimSpace(name))]
	return reg, ok
}

// Types returns the registered type names, sorted. Used in error messages.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Default returns a registry populated with every built-in driver.
func Default() *Registry {
	r := NewRegistry()
	// Registration of built-ins cannot fail: names are literals.
	_ = r.Register("ds18b20", Registration{New: newDS18B20, Contract: ds18b20Contract})
	_ = r.Register("dht22", Registration{New: newDHT22, Contract: dht22Contract})
	_ = r.Register("water_flow", Registration{New: newWaterFlow, Contract: waterFlowContract})
	_ = r.Register("ph_modbus", Registration{New: newPHModbus, Contract: phModbusContract})
	_ = r.Register("static", Registration{New: newStatic, Contract: staticContract})
	return r
}
