package main

import (
	"os"

	"github.com/pablasso/bucle/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
