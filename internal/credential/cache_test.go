package credential

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"tradingtot/internal/types"
)

func TestFileCacheMissing(t *testing.T) {
	c := NewFileCache(filepath.Join(t.TempDir(), "auth", "auth.json"))

	_, ok, err := c.Read()
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if ok {
		t.Error("Expected no credential from a missing file")
	}
}

func TestFileCacheWriteRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth", "auth.json")
	c := NewFileCache(path)

	want := types.Credential{DeviceID: "dev-1", LoginToken: "tok-1", UserAgent: "ua/1"}
	if err := c.Write(want); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	got, ok, err := c.Read()
	if err != nil || !ok {
		t.Fatalf("Expected stored credential, got ok=%v err=%v", ok, err)
	}
	if got != want {
		t.Errorf("Expected %+v, got %+v", want, got)
	}

	// Write is a full overwrite
	next := types.Credential{DeviceID: "dev-2", LoginToken: "tok-2"}
	if err := c.Write(next); err != nil {
		t.Fatal(err)
	}
	got, _, _ = c.Read()
	if got.DeviceID != "dev-2" || got.LoginToken != "tok-2" {
		t.Errorf("Expected overwritten credential, got %+v", got)
	}
	if got.UserAgent != types.DefaultUserAgent {
		t.Errorf("Expected default user agent, got %q", got.UserAgent)
	}

	if runtime.GOOS != "windows" {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm() != 0o600 {
			t.Errorf("Expected mode 0600, got %v", info.Mode().Perm())
		}
	}
}

func TestFileCacheTolerantRead(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		wantOK bool
	}{
		{"unknown fields ignored", `{"deviceId":"d","loginToken":"t","userAgent":"u","extra":1}`, true},
		{"missing token", `{"deviceId":"d","userAgent":"u"}`, false},
		{"missing device", `{"loginToken":"t"}`, false},
		{"not json", `{"deviceId":`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "auth.json")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatal(err)
			}

			_, ok, err := NewFileCache(path).Read()
			if err != nil {
				t.Fatalf("Unexpected error: %v", err)
			}
			if ok != tt.wantOK {
				t.Errorf("Expected ok=%v, got %v", tt.wantOK, ok)
			}
		})
	}
}

func TestFileCacheDeleteIdempotent(t *testing.T) {
	c := NewFileCache(filepath.Join(t.TempDir(), "auth.json"))

	if err := c.Delete(); err != nil {
		t.Fatalf("Expected deleting nothing to succeed, got %v", err)
	}
	if err := c.Write(types.Credential{DeviceID: "d", LoginToken: "t"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(); err != nil {
		t.Fatal(err)
	}
	if err := c.Delete(); err != nil {
		t.Fatalf("Expected second delete to succeed, got %v", err)
	}
	if _, ok, _ := c.Read(); ok {
		t.Error("Expected no credential after delete")
	}
}

func TestFileCacheConcurrentWrites(t *testing.T) {
	c := NewFileCache(filepath.Join(t.TempDir(), "auth.json"))

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func(i int) {
			defer func() { done <- struct{}{} }()
			_ = c.Write(types.Credential{DeviceID: "d", LoginToken: string(rune('a' + i))})
		}(i)
	}
	for i := 0; i < 8; i++ {
		<-done
	}

	if _, ok, err := c.Read(); !ok || err != nil {
		t.Errorf("Expected a complete credential after concurrent writes, got ok=%v err=%v", ok, err)
	}
}

func TestShotStorage(t *testing.T) {
	root := t.TempDir()
	at := time.Date(2024, 3, 9, 14, 5, 6, 0, time.UTC)

	s, err := NewShotStorage(root, at)
	if err != nil {
		t.Fatal(err)
	}
	if s.Dir() != filepath.Join(root, "03-09-2024_14-05-06") {
		t.Errorf("Unexpected shot dir %s", s.Dir())
	}

	if err := s.Write(ShotBeforeLogin, []byte("png")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "before_login.png")); err != nil {
		t.Errorf("Expected screenshot file, got %v", err)
	}
	if err := s.Write(ShotName("other.png"), nil); err == nil {
		t.Error("Expected unknown screenshot name to be refused")
	}

	if err := s.Delete(); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "before_login.png")); !os.IsNotExist(err) {
		t.Errorf("Expected screenshot removed, got %v", err)
	}
}
