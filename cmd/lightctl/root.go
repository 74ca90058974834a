package main

import (
	"time"

	"github.com/spf13/cobra"
)

var (
	// Link flags
	portName string
	baudRate int
	tcpAddr  string
	timeout  time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "lightctl",
	Short: "Lighting node host tool",
	Long: `lightctl frames commands for a lighting node, sends them over a serial
or TCP link and decodes the responses.

Connection modes:
  Serial: --port /dev/ttyUSB0 [--baud 115200]
  TCP:    --tcp 10.0.0.5:4000

The watch command reads the event stream of a running lightnode daemon
instead and needs only --url.`,
	Version:       "1.0.0",
	SilenceUsage:  true,
	SilenceErrors: false,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")
	rootCmd.PersistentFlags().StringVar(&tcpAddr, "tcp", "", "TCP address of a serial bridge (host:port)")
	rootCmd.PersistentFlags().DurationVarP(&timeout, "timeout", "t", 2*time.Second, "How long to wait for responses")
}
