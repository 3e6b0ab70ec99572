package browser

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitCommandLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty", input: "", expected: nil},
		{name: "blank", input: "   ", expected: nil},
		{name: "single word", input: "firefox", expected: []string{"firefox"}},
		{name: "flags", input: "chromium --new-window", expected: []string{"chromium", "--new-window"}},
		{name: "single quoted", input: "'google chrome' --incognito", expected: []string{"google chrome", "--incognito"}},
		{name: "double quoted", input: `"google chrome" --incognito`, expected: []string{"google chrome", "--incognito"}},
		{name: "quotes inside word", input: `--profile="My Profile"`, expected: []string{"--profile=My Profile"}},
		{name: "repeated spaces", input: "a   b\tc", expected: []string{"a", "b", "c"}},
		{name: "empty quotes", input: `open ""`, expected: []string{"open", ""}},
		{name: "unterminated quote", input: "'google chrome", expected: []string{"google chrome"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SplitCommandLine(tt.input))
		})
	}
}

func TestCommand(t *testing.T) {
	const uri = "http://localhost:1337"

	tests := []struct {
		name     string
		goos     string
		command  string
		wantName string
		wantArgs []string
	}{
		{name: "linux", goos: "linux", wantName: "xdg-open", wantArgs: []string{uri}},
		{name: "darwin", goos: "darwin", wantName: "open", wantArgs: []string{uri}},
		{name: "windows", goos: "windows", wantName: "rundll32", wantArgs: []string{"url.dll,FileProtocolHandler", uri}},
		{
			name:     "custom command wins",
			goos:     "linux",
			command:  "'google chrome' --incognito",
			wantName: "google chrome",
			wantArgs: []string{"--incognito", uri},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, args, err := Command(tt.goos, uri, tt.command)
			require.NoError(t, err)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestCommandErrors(t *testing.T) {
	tests := []struct {
		name    string
		goos    string
		uri     string
		command string
	}{
		{name: "unsupported platform", goos: "plan9", uri: "http://localhost:1337"},
		{name: "file scheme", goos: "linux", uri: "file:///etc/passwd"},
		{name: "javascript scheme", goos: "linux", uri: "javascript:alert(1)"},
		{name: "missing host", goos: "linux", uri: "http://"},
		{name: "blank command", goos: "linux", uri: "http://localhost:1337", command: "  "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Command(tt.goos, tt.uri, tt.command)
			assert.Error(t, err)
		})
	}
}

func TestOpenMissingBinary(t *testing.T) {
	err := Open(context.Background(), "http://localhost:1337", "livedown-no-such-browser-binary")
	assert.Error(t, err)
}

func TestOpenOutlivesContext(t *testing.T) {
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	marker := filepath.Join(t.TempDir(), "opened")

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, Open(ctx, "http://localhost:1337", `sh -c "sleep 0.2; touch `+marker+`"`))
	cancel()

	assert.Eventually(t, func() bool {
		_, err := os.Stat(marker)
		return err == nil
	}, 5*time.Second, 20*time.Millisecond)
}

func TestOpenCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, Open(ctx, "http://localhost:1337", "sh"), context.Canceled)
}
