package main

import (
	"os"

	"github.com/fyerfyer/doc-rag/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
