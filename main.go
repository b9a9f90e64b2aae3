// Command crawler is the entry point for the polite bilingual web
// crawler's CLI.
package main

import (
	"fmt"
	"os"

	"github.com/0xhtml/crawler/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
