package main

import (
	"os"

	"github.com/conneroisu/livedown/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
