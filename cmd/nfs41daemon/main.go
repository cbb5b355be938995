// Command nfs41daemon is the user-space NFSv4.1 open-state and
// OPEN/CLOSE protocol engine: it accepts upcalls from the kernel
// client module over a local socket and drives the corresponding
// OPEN/CLOSE compounds against the server.
package main

import (
	"fmt"
	"os"

	"github.com/kudingc/nfs41client/cmd/nfs41daemon/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
