package main

import (
	"os"

	"github.com/randalmurphal/liveinsight/cmd/liveinsight/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
