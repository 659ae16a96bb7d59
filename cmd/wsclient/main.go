package main

import (
	"fmt"
	"os"
)

func main() {
	cmd := newClientCommand(clientStreams{in: os.Stdin, out: os.Stdout, err: os.Stderr})
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}
