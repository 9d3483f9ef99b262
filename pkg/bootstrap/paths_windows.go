//go:build windows

package bootstrap

// DefaultToolsDir receives portable tool installs (currently only ninja) and
// is what gets registered on the machine PATH.
const DefaultToolsDir = `C:\Tools`
