package main

import (
	"os"

	escrowdcmder "github.com/papercomputeco/escrowd/cmd/escrowd"
)

func main() {
	cmd := escrowdcmder.NewEscrowdCmd()
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
