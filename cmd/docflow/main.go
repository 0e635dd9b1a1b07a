// Command docflow runs the document-approval service and inspects its
// instances.
package main

import (
	"os"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
