package credential

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

type ShotName string

const (
	ShotAcceptCookies ShotName = "accept_cookies.png"
	ShotBeforeLogin   ShotName = "before_login.png"
	ShotAfterLogin    ShotName = "after_login.png"
)

var shotNames = []ShotName{ShotAcceptCookies, ShotBeforeLogin, ShotAfterLogin}

// ShotStorage keeps the screenshots of one login attempt in their own directory.
type ShotStorage struct {
	dir string
}

// NewShotStorage creates {root}/{timestamp} for a login attempt started at t.
func NewShotStorage(root string, t time.Time) (*ShotStorage, error) {
	dir := filepath.Join(root, t.Format("01-02-2006_15-04-05"))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create screenshot dir: %w", err)
	}
	return &ShotStorage{dir: dir}, nil
}

func (s *ShotStorage) Dir() string { return s.dir }

func (s *ShotStorage) Write(name ShotName, png []byte) error {
	if !knownShot(name) {
		return fmt.Errorf("screenshot %q not supported", name)
	}
	return os.WriteFile(filepath.Join(s.dir, string(name)), png, 0o644)
}

// Delete removes every known screenshot of the attempt.
func (s *ShotStorage) Delete() error {
	for _, name := range shotNames {
		if err := os.Remove(filepath.Join(s.dir, string(name))); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

func knownShot(name ShotName) bool {
	for _, n := range shotNames {
		if n == name {
			return true
		}
	}
	return false
}
