package serialmux

import (
	"go.bug.st/serial"
)

// NewRealTapMux creates a TapMux instance backed by a real serial port at the
// given path using the provided serial options.
func NewRealTapMux(path string, opts PortOptions) (*TapMux[serial.Port], error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}

	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, err
	}

	return NewTapMux[serial.Port](port), nil
}

// ListPorts returns the serial device paths available on the host.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
