// Command octorus runs the rally CLI.
package main

import (
	"fmt"
	"os"

	"github.com/octorus/octorus/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
