//go:build !linux

package driver

import "errors"

// The GPIO-backed drivers need the Linux GPIO character device. On other
// platforms their constructors fail at build time so configuration errors
// still surface before any polling starts.

func newDHT22(params map[string]any) (Driver, error) {
	return nil, errors.New("dht22: not supported on this platform (requires Linux)")
}

func newWaterFlow(params map[string]any) (Driver, error) {
	return nil, errors.New("water_flow: not supported on this platform (requires Linux)")
}
