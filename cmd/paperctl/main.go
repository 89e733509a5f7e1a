// Command paperctl inspects and corrects paper bankrolls directly against
// the ledger database.
package main

import (
	"errors"
	"fmt"
	"os"
)

func main() {
	root := newRootCmd()

	err := root.Execute()
	if err != nil {
		if !errors.Is(err, errLedgerMismatch) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}
