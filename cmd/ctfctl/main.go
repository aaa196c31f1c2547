// Package main provides the ctfctl CLI entry point.
package main

import (
	"fmt"
	"os"

	"github.com/ekocloudsec/ctfctl/internal/cli"
	"github.com/ekocloudsec/ctfctl/pkg/errors"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		if errors.IsStructural(err) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}
