// Command snipvault stores text snippets and searches them by meaning with a
// local embedding model. It serves the vault to AI agents over MCP.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
