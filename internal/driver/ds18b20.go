package driver

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const w1BaseDir = "/sys/bus/w1/devices"

var ds18b20Contract = Contract{
	Accepted: []string{"id", "path"},
	Coerce: map[string]Coercer{
		"id":   AsString,
		"path": AsString,
	},
}

// DS18B20 reads a 1-Wire temperature sensor through the kernel w1 driver.
// The device file is the hardware handle; it is resolved lazily so a sensor
// plugged in after boot is discovered on the next poll.
type DS18B20 struct {
	id         string
	baseDir    string
	deviceFile string
}

func newDS18B20(params map[string]any) (Driver, error) {
	d := &DS18B20{
		id:      stringParam(params, "id", ""),
		baseDir: w1BaseDir,
	}

	if path := stringParam(params, "path", ""); path != "" {
		norm := strings.TrimRight(path, "/")
		if info, err := os.Stat(norm); err == nil && !info.IsDir() {
			// Full path to a w1_slave file: discovery is skipped.
			d.deviceFile = norm
		} else {
			d.baseDir = norm
		}
	}

	// With neither id nor an explicit file, the first family-28 device under
	// baseDir is discovered at read time.
	if d.id != "" && d.deviceFile == "" {
		d.deviceFile = filepath.Join(d.baseDir, d.id, "w1_slave")
	}
	return d, nil
}

// Read returns the current temperature in Celsius under the raw key
// "temperature".
func (d *DS18B20) Read(ctx context.Context) (map[string]float64, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	file, err := d.resolveDeviceFile()
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}

	temp, err := parseW1Slave(string(data))
	if err != nil {
		return nil, err
	}
	return map[string]float64{"temperature": temp}, nil
}

// Close releases nothing: the kernel owns the bus. Kept for the Driver
// contract and safe to call repeatedly.
func (d *DS18B20) Close() error {
	return nil
}

func (d *DS18B20) resolveDeviceFile() (string, error) {
	if d.deviceFile != "" {
		return d.deviceFile, nil
	}
	// Family code 28 is the DS18B20.
	candidates, err := filepath.Glob(filepath.Join(d.baseDir, "28-*", "w1_slave"))
	if err != nil || len(candidates) == 0 {
		return "", fmt.Errorf("no ds18b20 device found under %s", d.baseDir)
	}
	d.deviceFile = candidates[0]
	return d.deviceFile, nil
}

// parseW1Slave extracts the temperature from a w1_slave payload:
//
//	4b 46 7f ff 0c 10 ... : crc=8e YES
//	4b 46 7f ff 0c 10 ... t=23187
func parseW1Slave(payload string) (float64, error) {
	lines := strings.Split(strings.TrimSpace(payload), "\n")
	if len(lines) < 2 {
		return 0, fmt.Errorf("short w1_slave payload")
	}
	if !strings.HasSuffix(strings.TrimSpace(lines[0]), "YES") {
		return 0, fmt.Errorf("crc check failed")
	}
	pos := strings.Index(lines[1], "t=")
	if pos == -1 {
		return 0, fmt.Errorf("temperature field not found")
	}
	milli, err := strconv.ParseFloat(strings.TrimSpace(lines[1][pos+2:]), 64)
	if err != nil {
		return 0, fmt.Errorf("malformed temperature value")
	}
	return milli / 1000.0, nil
}
