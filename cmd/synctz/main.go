// Command synctz inspects and converts SyncML time values and timezone
// definitions.
package main

import (
	"os"

	"github.com/ngrash/synctz/cmd/synctz/app"
)

func main() {
	if err := app.NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
