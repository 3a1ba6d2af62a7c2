// Command mdforge serves a markdown task workspace over stdio.
package main

import (
	"fmt"
	"os"

	"mdforge/internal/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
