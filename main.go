package main

import (
	"os"

	"github.com/adalundhe/rebound/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
