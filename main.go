package main

import (
	"os"

	"github.com/igorsilveira/clawnet/cmd/clawnet"
)

func main() {
	if err := clawnet.Execute(); err != nil {
		os.Exit(1)
	}
}
