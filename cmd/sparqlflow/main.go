// Command sparqlflow keeps SPARQL SELECT queries current over a SQLite quad
// store.
package main

import (
	"fmt"
	"os"

	"github.com/roach88/sparqlflow/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
