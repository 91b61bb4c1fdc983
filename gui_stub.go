//go:build console

package main

import "fmt"

// runEmbeddedUI is a stub for console-only builds
func runEmbeddedUI(dashboard *Dashboard) error {
	return fmt.Errorf("embedded UI not available in console build. Use the web command for external browser mode")
}
