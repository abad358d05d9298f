package main

import (
	"os"

	"github.com/harlytics/harlytics/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
