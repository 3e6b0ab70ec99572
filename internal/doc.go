// Package internal contains the implementation packages for livedown.
//
// # Package Organization
//
//   - renderer: Markdown to HTML with GitHub flavoured extensions
//   - watcher: File system monitoring of one document with debouncing
//   - websocket: Viewer registry, write pumps and the push channel handler
//   - session: One watched document and the viewers following it
//   - server: Listener lifecycle, HTTP routes and the viewer page
//   - services: Business logic behind the CLI commands
//   - browser: Launching a browser on the preview URI
//   - config, logging, errors, monitoring, version: supporting packages
//
// # Data Flow
//
// The watcher reports a settled change, the session re-reads and renders the
// document and broadcasts the HTML through the websocket registry to every
// attached viewer. Newly attached viewers are sent the last render directly.
package internal
