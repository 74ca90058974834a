package main

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"lightnode/internal/protocol"
)

var (
	sendAddr  int
	sendName  string
	sendValue int
	sendHost  string
)

var sendCmd = &cobra.Command{
	Use:   "send [BODY]",
	Short: "Send one command frame and print the responses",
	Long: `Send one command and print every response line received before the
timeout expires.

The command is either a raw seven-character body:
  lightctl send ADSPL50 --addr 3 -p /dev/ttyUSB0
or a grammar name with its parameter:
  lightctl send --name set_percentage --value 50 -p /dev/ttyUSB0
  lightctl send --name set_host_address --host 00AB --tcp bridge:4000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().IntVarP(&sendAddr, "addr", "a", int(protocol.Broadcast), "Destination address byte")
	sendCmd.Flags().StringVarP(&sendName, "name", "n", "", "Command name (see 'lightctl commands')")
	sendCmd.Flags().IntVar(&sendValue, "value", 0, "Decimal or digit parameter")
	sendCmd.Flags().StringVar(&sendHost, "host", "", "Four-character host address parameter")
}

// buildFrame turns the send arguments into a frame.
func buildFrame(args []string, name string, value int, host string, addr int) (protocol.Frame, protocol.CommandID, error) {
	if addr < 0 || addr > 0xFF {
		return protocol.Frame{}, protocol.NoCommand, fmt.Errorf("address %d out of range", addr)
	}
	dest := byte(addr)

	if len(args) == 1 {
		if name != "" {
			return protocol.Frame{}, protocol.NoCommand, fmt.Errorf("give either BODY or --name, not both")
		}
		f, err := protocol.NewFrame(strings.ToUpper(args[0]), dest)
		if err != nil {
			return f, protocol.NoCommand, err
		}
		id := protocol.NoCommand
		if cmd, ok := protocol.Match(f); ok {
			id = cmd.ID
		}
		return f, id, nil
	}

	if name == "" {
		return protocol.Frame{}, protocol.NoCommand, fmt.Errorf("BODY or --name is required")
	}
	t, ok := protocol.LookupName(name)
	if !ok {
		return protocol.Frame{}, protocol.NoCommand, fmt.Errorf("%q: %w", name, protocol.ErrUnknownCommand)
	}
	cmd := protocol.Command{ID: t.ID, Dest: dest}
	switch t.Param {
	case protocol.ParamHex:
		a, err := protocol.ParseHostAddress(strings.ToUpper(host))
		if err != nil {
			return protocol.Frame{}, t.ID, err
		}
		cmd.Address = a
	case protocol.ParamDecimal:
		if value < 0 || value > 99 {
			return protocol.Frame{}, t.ID, fmt.Errorf("--value must be 0-99")
		}
		cmd.Value = uint8(value)
	case protocol.ParamDigit:
		if value < 0 || value > 9 {
			return protocol.Frame{}, t.ID, fmt.Errorf("--value must be 0-9")
		}
		cmd.Value = uint8(value)
	}
	f, err := cmd.Encode()
	return f, t.ID, err
}

// escapableFor returns how many payload bytes of the reply to id were
// sentinel-escaped.
func escapableFor(id protocol.CommandID) int {
	if id == protocol.CmdGetSettings {
		return 2
	}
	return 255
}

func runSend(cmd *cobra.Command, args []string) error {
	f, id, err := buildFrame(args, sendName, sendValue, sendHost, sendAddr)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	link, info, err := openLink(ctx)
	if err != nil {
		return err
	}
	defer link.Close()

	lines := newLineSplitter()
	link.OnReceive(lines.feed)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connection: %s\n", info)
	fmt.Fprintf(out, "Sending %s (%s)\n", f, id)
	if err := link.Write(ctx, f[:]); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}

	deadline := time.After(timeout)
	got := 0
	for {
		select {
		case line := <-lines.lines:
			got++
			printLine(out, line, escapableFor(id))
		case <-deadline:
			if got == 0 {
				fmt.Fprintln(out, "No response")
			}
			return nil
		}
	}
}

func printLine(out io.Writer, line []byte, escapable int) {
	r, err := protocol.DecodeResponse(line, escapable)
	if err != nil {
		fmt.Fprintf(out, "  %q (%v)\n", line, err)
		return
	}
	fmt.Fprintf(out, "  to=%s identity=%s values=%v raw=%v checksum=%#04x\n",
		r.Address, r.Identity, r.Values, r.Raw, r.Checksum())
}
