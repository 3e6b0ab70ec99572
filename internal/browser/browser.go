// Package browser opens the preview URI in a web browser.
package browser

import (
	"context"
	"fmt"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
)

// Open launches a browser on uri without waiting for it to exit. command, when
// not empty, is a user supplied browser command line; otherwise the platform
// opener is used. ctx only guards the launch: the browser outlives it.
func Open(ctx context.Context, uri, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	name, args, err := Command(runtime.GOOS, uri, command)
	if err != nil {
		return err
	}

	cmd := exec.Command(name, args...)
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", name, err)
	}
	// Reap the child so it does not linger as a zombie
	go func() { _ = cmd.Wait() }()
	return nil
}

// Command resolves the program and arguments that open uri on goos.
func Command(goos, uri, command string) (string, []string, error) {
	if err := validateURI(uri); err != nil {
		return "", nil, err
	}

	if command != "" {
		words := SplitCommandLine(command)
		if len(words) == 0 {
			return "", nil, fmt.Errorf("browser command %q is empty", command)
		}
		return words[0], append(words[1:], uri), nil
	}

	switch goos {
	case "linux", "freebsd", "openbsd", "netbsd":
		return "xdg-open", []string{uri}, nil
	case "darwin":
		return "open", []string{uri}, nil
	case "windows":
		return "rundll32", []string{"url.dll,FileProtocolHandler", uri}, nil
	default:
		return "", nil, fmt.Errorf("unsupported platform %q", goos)
	}
}

func validateURI(uri string) error {
	u, err := url.Parse(uri)
	if err != nil {
		return fmt.Errorf("invalid URI %q: %w", uri, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("refusing to open %q: only http and https are allowed", uri)
	}
	if u.Host == "" {
		return fmt.Errorf("refusing to open %q: missing host", uri)
	}
	return nil
}

// SplitCommandLine splits cmd on whitespace, keeping single or double quoted
// runs together and dropping the quotes:
//
//	'google chrome' --incognito  =>  ["google chrome", "--incognito"]
func SplitCommandLine(cmd string) []string {
	var (
		words   []string
		current strings.Builder
		inWord  bool
		quote   rune
	)

	for _, r := range cmd {
		switch {
		case quote != 0:
			if r == quote {
				quote = 0
				continue
			}
			current.WriteRune(r)
		case r == '\'' || r == '"':
			quote = r
			inWord = true
		case r == ' ' || r == '\t' || r == '\n' || r == '\r':
			if inWord {
				words = append(words, current.String())
				current.Reset()
				inWord = false
			}
		default:
			current.WriteRune(r)
			inWord = true
		}
	}
	if inWord {
		words = append(words, current.String())
	}
	return words
}
