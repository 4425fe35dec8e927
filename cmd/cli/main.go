package main

import (
	"os"

	"github.com/aryan0dhankhar/queueline/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
