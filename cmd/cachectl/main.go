// Command cachectl is a CLI and daemon shell over internal/blobcache,
// exercising the operation queue end to end against a real on-disk
// database.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
