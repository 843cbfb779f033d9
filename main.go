package main

import (
	"fmt"
	"os"

	"github.com/rgonek/confluence-space-export/cmd"
)

func main() {
	err := cmd.Execute()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
	}
	os.Exit(cmd.ExitCode(err))
}
