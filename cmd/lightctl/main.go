// Command lightctl talks to a lighting node from the host side: it frames
// and sends commands, decodes responses and follows the daemon's event
// stream.
package main

import "os"

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
