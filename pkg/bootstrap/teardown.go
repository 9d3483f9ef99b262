package bootstrap

import (
	"fmt"

	"github.com/llamaforge/llamaforge/pkg/download"
	"github.com/llamaforge/llamaforge/pkg/winget"
)

// Teardown uninstalls the winget-managed requirements in reverse
// installation order. Packages that are not installed are skipped, so a
// partial environment tears down cleanly.
func Teardown(verbosity download.Verbosity) error {
	for i := len(WingetIDs) - 1; i >= 0; i-- {
		id := WingetIDs[i]
		if verbosity >= download.Normal {
			fmt.Printf("- Uninstalling %s…\n", id)
		}
		if err := winget.Uninstall(id); err != nil {
			return err
		}
	}
	return nil
}
