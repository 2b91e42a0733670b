package main

import (
	"os"

	"github.com/telhawk-systems/eventd/cmd/eventctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
