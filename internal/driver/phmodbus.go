package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/simonvetter/modbus"
)

var phModbusContract = Contract{
	Required: []string{"url", "unit_id"},
	Accepted: []string{"url", "unit_id", "register", "baud_rate", "scale", "timeout_ms"},
	Coerce: map[string]Coercer{
		"url":        AsString,
		"unit_id":    AsInt,
		"register":   AsInt,
		"baud_rate":  AsInt,
		"scale":      AsFloat,
		"timeout_ms": AsInt,
	},
}

// PHModbus reads a pH probe over Modbus RTU (typically an RS-485 dongle on
// /dev/ttyUSB0). The serial connection is the hardware handle: any transport
// error closes it so the next poll starts from a fresh open, which recovers
// an exhausted file descriptor or a re-plugged adapter without operator
// action.
type PHModbus struct {
	unitID   uint8
	register uint16
	scale    float64

	client *modbus.ModbusClient
	open   bool
}

func newPHModbus(params map[string]any) (Driver, error) {
	timeout := time.Duration(intParam(params, "timeout_ms", 500)) * time.Millisecond
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     stringParam(params, "url", ""),
		Speed:   uint(intParam(params, "baud_rate", 9600)),
		Timeout: timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("modbus client: %w", err)
	}

	scale := floatParam(params, "scale", 0.01)
	if scale <= 0 {
		return nil, fmt.Errorf("scale must be positive")
	}

	return &PHModbus{
		unitID:   uint8(intParam(params, "unit_id", 1)),
		register: uint16(intParam(params, "register", 0)),
		scale:    scale,
		client:   client,
	}, nil
}

// Read returns the probe value under the raw key "ph".
func (p *PHModbus) Read(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if !p.open {
		if err := p.client.Open(); err != nil {
			return nil, fmt.Errorf("open modbus connection: %w", err)
		}
		p.open = true
	}

	if err := p.client.SetUnitId(p.unitID); err != nil {
		return nil, p.failStale(fmt.Errorf("set unit id %d: %w", p.unitID, err))
	}

	raw, err := p.client.ReadRegister(p.register, modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, p.failStale(fmt.Errorf("read register %d: %w", p.register, err))
	}

	return map[string]float64{"ph": float64(raw) * p.scale}, nil
}

// failStale tears the serial handle down so the next poll reopens it, and
// tags the error so callers log the rebuild distinctly.
func (p *PHModbus) failStale(err error) error {
	if p.open {
		p.client.Close()
		p.open = false
	}
	return fmt.Errorf("%v: %w", err, ErrStale)
}

// Close shuts the serial connection. Idempotent.
func (p *PHModbus) Close() error {
	if !p.open {
		return nil
	}
	p.open = false
	return p.client.Close()
}
