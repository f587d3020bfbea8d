package main

import (
	"os"

	"github.com/landmarktitle/tessa/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
