package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"

	"github.com/fornellas/slogxt/log"
)

var PortsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) error {
		logger := log.MustLogger(cmd.Context())

		ports, err := enumerator.GetDetailedPortsList()
		if err != nil {
			// Not every platform supports detailed enumeration.
			logger.Debug("Detailed enumeration failed, falling back to plain list", "err", err)
			names, listErr := serial.GetPortsList()
			if listErr != nil {
				return errors.Join(err, listErr)
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}

		if len(ports) == 0 {
			logger.Info("No serial ports found")
			return nil
		}

		for _, port := range ports {
			if port.IsUSB {
				fmt.Printf("%s\tUSB %s:%s\t%s\n", port.Name, port.VID, port.PID, port.SerialNumber)
			} else {
				fmt.Println(port.Name)
			}
		}
		return nil
	}),
}

func init() {
	RootCmd.AddCommand(PortsCmd)
}
