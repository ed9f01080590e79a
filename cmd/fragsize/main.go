package main

import (
	"os"

	"github.com/chrissnell/fragsize/internal/cli"
	"github.com/chrissnell/fragsize/internal/log"
)

func main() {
	err := cli.Execute()
	log.Sync()
	if err != nil {
		os.Exit(1)
	}
}
