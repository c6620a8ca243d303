// Command pvfit extracts photovoltaic model parameters from I-V curves and
// serves the same operations over HTTP.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
