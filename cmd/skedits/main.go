// Command skedits analyzes the edit history of proofread segments.
package main

import (
	"os"

	"github.com/kilupskalvis/skedits/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
