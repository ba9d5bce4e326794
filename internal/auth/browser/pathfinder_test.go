package browser

import (
	"context"
	"errors"
	"os/exec"
	"testing"
	"time"
)

func fakeFinder(goos string, installed map[string]bool, onPath map[string]string) *Pathfinder {
	return &Pathfinder{
		GOOS:   goos,
		Exists: func(path string) bool { return installed[path] },
		LookPath: func(name string) (string, error) {
			if p, ok := onPath[name]; ok {
				return p, nil
			}
			return "", exec.ErrNotFound
		},
	}
}

func TestPathfinderFind(t *testing.T) {
	tests := []struct {
		name      string
		goos      string
		explicit  string
		installed map[string]bool
		onPath    map[string]string
		want      string
		wantErr   bool
	}{
		{
			name:     "explicit path wins",
			goos:     "linux",
			explicit: "/opt/chrome",
			installed: map[string]bool{
				"/usr/bin/google-chrome": true,
			},
			want: "/opt/chrome",
		},
		{
			name: "linux fixed location in order",
			goos: "linux",
			installed: map[string]bool{
				"/usr/bin/chromium-browser": true,
				"/usr/bin/microsoft-edge":   true,
			},
			want: "/usr/bin/chromium-browser",
		},
		{
			name: "mac app bundle",
			goos: "darwin",
			installed: map[string]bool{
				"/Applications/Chromium.app/Contents/MacOS/Chromium": true,
			},
			want: "/Applications/Chromium.app/Contents/MacOS/Chromium",
		},
		{
			name:   "windows falls back to PATH",
			goos:   "windows",
			onPath: map[string]string{"msedge": `C:\Edge\msedge.exe`},
			want:   `C:\Edge\msedge.exe`,
		},
		{
			name:   "linux PATH after fixed locations",
			goos:   "linux",
			onPath: map[string]string{"chromium": "/snap/bin/chromium"},
			want:   "/snap/bin/chromium",
		},
		{
			name:    "nothing installed",
			goos:    "linux",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := fakeFinder(tt.goos, tt.installed, tt.onPath).Find(tt.explicit)
			if tt.wantErr {
				if !errors.Is(err, ErrBrowserNotFound) {
					t.Fatalf("Expected ErrBrowserNotFound, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Expected %s, got %s", tt.want, got)
			}
		})
	}
}

func TestIsDisconnected(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{context.Canceled, true},
		{errors.New("could not dial websocket"), true},
		{errors.New("Not connected to DevTools"), true},
		{errors.New("waiting for selector timed out"), false},
	}

	for _, tt := range tests {
		if got := isDisconnected(tt.err); got != tt.want {
			t.Errorf("isDisconnected(%v): expected %v, got %v", tt.err, tt.want, got)
		}
	}
}

func TestBindFollowsCaller(t *testing.T) {
	browserCtx, cancelBrowser := context.WithCancel(context.Background())
	defer cancelBrowser()

	caller, cancelCaller := context.WithCancel(context.Background())
	ctx, cancel := bind(caller, browserCtx)
	defer cancel()

	cancelCaller()
	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("Expected bound context to end with the caller")
	}
	if browserCtx.Err() != nil {
		t.Error("Expected browser context to survive the caller")
	}
}

func TestEnvironmentHost(t *testing.T) {
	if !environmentHost.MatchString("https://demo.trading212.com/") {
		t.Error("Expected demo host to match")
	}
	if environmentHost.MatchString("https://www.trading212.com/en/login") {
		t.Error("Expected login page not to match")
	}
}
