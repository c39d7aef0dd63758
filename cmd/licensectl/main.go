// Command licensectl is the operator tool for the license gate. It generates
// team keypairs, computes license lookup hashes, handles at-rest secrets and
// decodes downloaded artifact streams.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
