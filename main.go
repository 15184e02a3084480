package main

import (
	"os"

	"github.com/conneroisu/djbridge/cmd"
)

func main() {
	os.Exit(cmd.Execute())
}
