// Package cmd provides the command-line interface for livedown.
//
// # Available Commands
//
//   - start: Watch a markdown file and serve a live preview
//   - stop: Ask a running instance to shut down
//   - version: Print build information
//   - config show: Print the effective configuration
//
// # Command Examples
//
//	// Preview README.md on the default port and open a browser
//	livedown start README.md --open
//
//	// Use a specific browser
//	livedown start notes.md --open --browser "'google chrome' --incognito"
//
//	// Stop the instance listening on port 4000
//	livedown stop --port 4000
//
// # Configuration Integration
//
// Commands respect configuration from multiple sources in order of precedence:
//
//  1. Command-line flags (highest priority)
//  2. Environment variables (LIVEDOWN_*)
//  3. Configuration file (.livedown.yml)
//  4. Default values (lowest priority)
package cmd
