package main

import (
	"os"

	"ApplicationScanner/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
