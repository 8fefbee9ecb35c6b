package main

import (
	"os"

	"github.com/tributarydb/tributary/cmd/tributary/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
