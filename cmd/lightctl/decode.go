package main

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lightnode/internal/protocol"
)

var decodeEscapable int

var decodeCmd = &cobra.Command{
	Use:   "decode HEX",
	Short: "Decode a captured response line",
	Long: `Decode one response line given as hex, for example from a logic
analyzer capture. Spaces in the hex string are ignored.

  lightctl decode "$(xxd -p capture.bin)"
  lightctl decode --escapable 2 <hex>    # get_settings reply`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := hex.DecodeString(strings.ReplaceAll(args[0], " ", ""))
		if err != nil {
			return fmt.Errorf("invalid hex: %w", err)
		}
		r, err := protocol.DecodeResponse(raw, decodeEscapable)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "Address:  %s\n", r.Address)
		fmt.Fprintf(out, "Identity: %s\n", r.Identity)
		fmt.Fprintf(out, "Values:   %v\n", r.Values)
		fmt.Fprintf(out, "Raw:      %v\n", r.Raw)
		fmt.Fprintf(out, "Checksum: %#04x\n", r.Checksum())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(decodeCmd)
	decodeCmd.Flags().IntVarP(&decodeEscapable, "escapable", "e", 255, "Number of leading payload bytes that were escaped")
}
