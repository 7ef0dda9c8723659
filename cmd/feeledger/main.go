// Command feeledger runs a fee engine deployment against an in-memory journal
// and replays scripted operations through it.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
