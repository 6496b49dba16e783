// newsflow crawls news sources, archives raw HTML to cold storage, and
// runs the batch analysis pipeline over collected articles.
package main

import (
	"fmt"
	"os"

	"github.com/jonesrussell/newsflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
