// Command kestrel is a thin CLI driver over internal/engine. Each
// subcommand that works on the index builds an engine.Context, calls
// the engine, and tears the Context down again; argument parsing and
// output formatting are the only concerns that live in this tree.
package main

import (
	"fmt"
	"os"

	"github.com/kestrelkb/kestrel/cmd/kestrel/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
