package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"

	"github.com/spf13/cobra"
	"go.bug.st/serial"
	"golang.org/x/sync/errgroup"

	"github.com/fornellas/slogxt/log"
)

var listenAddress string
var defaultListenAddress = "127.0.0.1:9999"

// handleServeConnection pipes one TCP client to the serial port until
// either side closes. Each copier closes both ends on exit so the other
// one unblocks; the shutdown races this produces surface as
// net.ErrClosed, which is the normal outcome, not a failure.
func handleServeConnection(ctx context.Context, conn net.Conn, port string) error {
	logger := log.MustLogger(ctx)

	if tcpConn, ok := conn.(*net.TCPConn); ok {
		if err := tcpConn.SetNoDelay(true); err != nil {
			return fmt.Errorf("failed to set TCP no delay: %w", err)
		}
	}

	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	logger.Info("Opening serial port")
	serialPort, err := serial.Open(port, mode)
	if err != nil {
		return fmt.Errorf("failed to open: %s: %w", port, err)
	}

	closeBoth := func() {
		conn.Close()
		serialPort.Close()
	}

	logger.Info("Copying I/O")
	var g errgroup.Group
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(conn, serialPort)
		return err
	})
	g.Go(func() error {
		defer closeBoth()
		_, err := io.Copy(serialPort, conn)
		return err
	})

	err = g.Wait()
	logger.Info("Connection closed")
	if errors.Is(err, net.ErrClosed) {
		return nil
	}
	return err
}

var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start a TCP server connected to a serial port.",
	Long:  "Opens serial port and a TCP server, and pipes communication between both, so any other command can reach the machine with --address. There's NO security implemented, this can only be used in secure networks at your own risk.",
	Args:  cobra.NoArgs,
	Run: GetRunFn(func(cmd *cobra.Command, args []string) (err error) {
		ctx, logger := log.MustWithAttrs(
			cmd.Context(),
			"port-name", portName,
			"listen-address", listenAddress,
		)
		cmd.SetContext(ctx)

		logger.Info("Listening")
		listener, err := net.Listen("tcp", listenAddress)
		if err != nil {
			return fmt.Errorf("failed to listen: %s: %w", listenAddress, err)
		}
		defer func() { err = errors.Join(err, listener.Close()) }()

		for {
			logger.Info("Accepting connection")
			conn, err := listener.Accept()
			if err != nil {
				logger.Error("Failed to accept connection", "error", err)
				continue
			}
			connCtx, connLogger := log.MustWithGroupAttrs(
				ctx,
				"Connection",
				"LocalAddr", conn.LocalAddr(),
				"RemoteAddr", conn.RemoteAddr(),
			)
			connLogger.Info("Accepted")

			if err := handleServeConnection(connCtx, conn, portName); err != nil {
				connLogger.Error("Failed to handle connection", "error", err)
			}
		}
	}),
}

func init() {
	ServeCmd.PersistentFlags().StringVarP(&portName, "port-name", "p", defaultPortName, "Serial port name to open")
	if err := ServeCmd.MarkPersistentFlagRequired("port-name"); err != nil {
		panic(err)
	}
	ServeCmd.PersistentFlags().StringVar(&listenAddress, "listen-address", defaultListenAddress, "TCP address to listen on (host:port)")
	ServeCmd.PersistentFlags().IntVar(&baudRate, "baud", defaultBaudRate, "Serial baud rate")

	RootCmd.AddCommand(ServeCmd)

	resetFlagsFns = append(resetFlagsFns, func() {
		listenAddress = defaultListenAddress
	})
}
