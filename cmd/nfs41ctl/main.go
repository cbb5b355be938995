// Command nfs41ctl is the operator CLI for nfs41daemon: it inspects a
// running daemon's open-state table and manages its configuration.
package main

import (
	"fmt"
	"os"

	"github.com/kudingc/nfs41client/cmd/nfs41ctl/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
