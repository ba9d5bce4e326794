package browser

import (
	"errors"
	"os"
	"os/exec"
	"runtime"
)

var ErrBrowserNotFound = errors.New("no browser binary was found; install Chrome, Chromium or MS Edge, or set BINARY_PATH")

var (
	linuxPaths = []string{
		"/usr/bin/google-chrome",
		"/usr/bin/chromium",
		"/usr/bin/chromium-browser",
		"/usr/bin/microsoft-edge",
		"/usr/bin/microsoft-edge-dev",
	}
	macPaths = []string{
		"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
		"/Applications/Chromium.app/Contents/MacOS/Chromium",
		"/Applications/Microsoft Edge.app/Contents/MacOS/Microsoft Edge",
	}
	pathNames = map[string][]string{
		"linux":   {"google-chrome", "chromium", "chromium-browser", "microsoft-edge"},
		"darwin":  {"google-chrome", "chromium"},
		"windows": {"chrome", "msedge"},
	}
)

// Pathfinder locates a Chromium-family browser binary. The lookups are
// fields so discovery can be tested without a browser installed.
type Pathfinder struct {
	GOOS     string
	Exists   func(path string) bool
	LookPath func(name string) (string, error)
}

func NewPathfinder() *Pathfinder {
	return &Pathfinder{
		GOOS: runtime.GOOS,
		Exists: func(path string) bool {
			_, err := os.Stat(path)
			return err == nil
		},
		LookPath: exec.LookPath,
	}
}

// Find returns explicit when set, otherwise the first known install location
// for the OS, otherwise the first match on PATH.
func (p *Pathfinder) Find(explicit string) (string, error) {
	if explicit != "" {
		return explicit, nil
	}

	var fixed []string
	switch p.GOOS {
	case "linux":
		fixed = linuxPaths
	case "darwin":
		fixed = macPaths
	}
	for _, path := range fixed {
		if p.Exists(path) {
			return path, nil
		}
	}

	for _, name := range pathNames[p.GOOS] {
		if path, err := p.LookPath(name); err == nil && path != "" {
			return path, nil
		}
	}
	return "", ErrBrowserNotFound
}
