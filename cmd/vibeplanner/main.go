package main

import (
	"os"

	"github.com/La100/vibeplanner-sub001/internal/planner/cli"
)

func main() {
	if err := cli.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
