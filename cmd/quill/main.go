// Command quill is a small private blog for the terminal.
package main

import (
	"context"
	"os"

	"github.com/roach88/quill/internal/cli"
)

func main() {
	os.Exit(cli.Execute(context.Background(), os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
