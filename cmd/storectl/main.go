// Command storectl queries the storefront CMS from a terminal using the same
// client the server uses. Handy for checking what the API will serve before a
// deploy or after editing content.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
