// Package banner renders the CLI banner.
package banner

import (
	"fmt"

	"github.com/fatih/color"
)

const art = `
     _ _ _
  __| (_) |
 / _  | | |
| (_| | | |
 \__,_|_|_|
`

// Banner returns the banner text for version.
func Banner(version string) string {
	return color.CyanString(art) +
		fmt.Sprintf("  language identification %s\n", color.New(color.Faint).Sprint(version)) +
		"  happyhackingspace\n\n"
}
