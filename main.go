package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"stellar-swap/cmd"
)

func main() {
	// Optional; configuration also comes from env and ~/.stellar-swap.yaml.
	_ = godotenv.Load()

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
