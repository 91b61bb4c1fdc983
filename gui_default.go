//go:build !console

package main

import (
	"fmt"

	webview "github.com/webview/webview_go"
)

// runEmbeddedUI starts the dashboard server and opens it in an embedded browser window
func runEmbeddedUI(dashboard *Dashboard) error {
	ws := NewWebServer(dashboard, "localhost:0")

	url, cleanup, err := ws.StartForEmbedded()
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	defer cleanup()

	// false = no debug mode
	w := webview.New(false)
	defer w.Destroy()

	w.SetTitle(dashboard.Config().Title)
	w.SetSize(1400, 900, webview.HintNone)
	w.Navigate(url)

	// Run blocks until window is closed
	w.Run()
	return nil
}
