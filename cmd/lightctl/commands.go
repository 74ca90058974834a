package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"lightnode/internal/protocol"
	"lightnode/internal/transport"
)

var commandsCmd = &cobra.Command{
	Use:   "commands",
	Short: "List the command grammar in match order",
	RunE: func(cmd *cobra.Command, args []string) error {
		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tNAME\tBODY\tPARAM")
		for _, t := range protocol.Templates() {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", t.ID, t.Name, t.Body, paramName(t.Param))
		}
		return w.Flush()
	},
}

var portsCmd = &cobra.Command{
	Use:   "ports",
	Short: "List serial ports",
	RunE: func(cmd *cobra.Command, args []string) error {
		ports, err := transport.Ports()
		if err != nil {
			return err
		}
		if len(ports) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No serial ports found")
		}
		for _, p := range ports {
			fmt.Fprintln(cmd.OutOrStdout(), p)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(commandsCmd)
	rootCmd.AddCommand(portsCmd)
}

func paramName(k protocol.ParamKind) string {
	switch k {
	case protocol.ParamHex:
		return "hex address"
	case protocol.ParamDecimal:
		return "two digits"
	case protocol.ParamDigit:
		return "one digit"
	default:
		return "-"
	}
}
