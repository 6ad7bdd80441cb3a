package main

import (
	"os"

	"github.com/muhammadegaa/reely/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
