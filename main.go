package main

import (
	"os"

	"github.com/context-harness/harness/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
