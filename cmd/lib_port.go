package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.bug.st/serial"

	"github.com/grblmini/gms/grbl"
	"github.com/grblmini/gms/serialtcp"
)

var ErrPortOrAddressRequired = errors.New("either --port-name or --address must be set")

// serialTCPDialTimeout bounds how long connecting to a serve bridge may
// take before the open attempt is reported as failed.
const serialTCPDialTimeout = 10 * time.Second

var portName string
var defaultPortName = ""

var address string
var defaultAddress = ""

func AddPortFlags(cmd *cobra.Command) {
	cmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open")
	cmd.PersistentFlags().StringVarP(&address, "address", "a", defaultAddress, "TCP address of a serial bridge to connect to instead of a local port")
}

// GetOpenPortFn maps the port flags to a port opener: --port-name opens a
// local device, --address dials a serve bridge. Exactly one must be set.
func GetOpenPortFn() (grbl.OpenPortFn, error) {
	if portName != "" && address != "" {
		return nil, fmt.Errorf("flags --port-name and --address can not be set simultaneously")
	}

	if portName != "" {
		return func(ctx context.Context, mode *serial.Mode) (serial.Port, error) {
			return serial.Open(portName, mode)
		}, nil
	}

	if address != "" {
		return func(ctx context.Context, mode *serial.Mode) (serial.Port, error) {
			return serialtcp.Dial(ctx, address, serialTCPDialTimeout)
		}, nil
	}

	return nil, ErrPortOrAddressRequired
}

func init() {
	resetFlagsFns = append(resetFlagsFns, func() {
		portName = defaultPortName
		address = defaultAddress
	})
}
