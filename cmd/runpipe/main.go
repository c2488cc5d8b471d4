// Command runpipe loads scope definitions from YAML files and runs, serves or
// inspects their pipelines against a checkpoint store.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
