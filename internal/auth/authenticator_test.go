package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cenkalti/backoff/v5"

	"tradingtot/internal/credential"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/types"
)

// fakeDriver hands out credentials in order and counts how it was used
type fakeDriver struct {
	mu     sync.Mutex
	creds  []types.Credential
	errs   []error
	logins int
	closes int
}

func (d *fakeDriver) Login(ctx context.Context, email, password string) (types.Credential, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	i := d.logins
	d.logins++
	if i < len(d.errs) && d.errs[i] != nil {
		return types.Credential{}, d.errs[i]
	}
	if i < len(d.creds) {
		return d.creds[i], nil
	}
	return d.creds[len(d.creds)-1], nil
}

func (d *fakeDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closes++
	return nil
}

func (d *fakeDriver) counts() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.logins, d.closes
}

// newProbeServer accepts only sessions carrying LOGIN_TOKEN=good
func newProbeServer(t *testing.T) (*httptest.Server, *int32) {
	t.Helper()
	var probes int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != AuthenticatePath {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		atomic.AddInt32(&probes, 1)
		c, err := r.Cookie(LoginTokenCookie)
		if err != nil || c.Value != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"customerId":1}`))
	}))
	t.Cleanup(srv.Close)
	return srv, &probes
}

func newTestAuthenticator(srv *httptest.Server, cache *credential.FileCache, driver *fakeDriver, email string, attempts int) *Authenticator {
	providers := []interfaces.CredentialProvider{
		NewCachedCredentialProvider(cache),
		NewInteractiveLoginProvider(driver, cache, email, "secret",
			WithLoginBackOff(&backoff.ZeroBackOff{})),
	}
	return NewAuthenticator(srv.URL, providers, WithAttempts(attempts))
}

var (
	goodCred = types.Credential{DeviceID: "dev-1", LoginToken: "good", UserAgent: "ua/1"}
	badCred  = types.Credential{DeviceID: "dev-1", LoginToken: "stale", UserAgent: "ua/1"}
)

func TestEnsureFreshLogin(t *testing.T) {
	srv, _ := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if logins, _ := driver.counts(); logins != 1 {
		t.Errorf("Expected 1 login, got %d", logins)
	}

	stored, ok, err := cache.Read()
	if err != nil || !ok {
		t.Fatalf("Expected persisted credential, got ok=%v err=%v", ok, err)
	}
	if stored != goodCred {
		t.Errorf("Expected %+v, got %+v", goodCred, stored)
	}

	// A live session is reused without another login
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatal(err)
	}
	if logins, _ := driver.counts(); logins != 1 {
		t.Errorf("Expected session reuse, got %d logins", logins)
	}

	cred, ok := a.Credential()
	if !ok || cred.LoginToken != "good" {
		t.Errorf("Expected active credential, got %+v", cred)
	}
}

func TestEnsureValidCacheSkipsDriver(t *testing.T) {
	srv, _ := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	if err := cache.Write(goodCred); err != nil {
		t.Fatal(err)
	}
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if logins, _ := driver.counts(); logins != 0 {
		t.Errorf("Expected no login with a valid cache, got %d", logins)
	}
}

func TestEnsureStaleCacheIsReplaced(t *testing.T) {
	srv, _ := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	if err := cache.Write(badCred); err != nil {
		t.Fatal(err)
	}
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if logins, _ := driver.counts(); logins != 1 {
		t.Errorf("Expected 1 login after stale cache, got %d", logins)
	}

	stored, ok, _ := cache.Read()
	if !ok || stored.LoginToken != "good" {
		t.Errorf("Expected fresh credential persisted, got %+v", stored)
	}
}

func TestEnsureExhaustion(t *testing.T) {
	srv, probes := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{creds: []types.Credential{badCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	_, err := a.Ensure(context.Background())
	if !errors.Is(err, types.ErrAuthentication) {
		t.Fatalf("Expected AuthenticationError, got %v", err)
	}
	var authErr *types.AuthenticationError
	if !errors.As(err, &authErr) || authErr.Attempts != 3 {
		t.Errorf("Expected 3 attempts recorded, got %v", err)
	}
	if logins, _ := driver.counts(); logins != 3 {
		t.Errorf("Expected 3 logins, got %d", logins)
	}
	if got := atomic.LoadInt32(probes); got != 3 {
		t.Errorf("Expected 3 probes, got %d", got)
	}
	if _, ok, _ := cache.Read(); ok {
		t.Error("Expected rejected credential not to be persisted")
	}
	if _, ok := a.Credential(); ok {
		t.Error("Expected no active session after exhaustion")
	}
}

func TestEnsureMissingLogin(t *testing.T) {
	srv, _ := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "", 5)

	_, err := a.Ensure(context.Background())
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if logins, _ := driver.counts(); logins != 0 {
		t.Errorf("Expected driver not to run, got %d logins", logins)
	}
}

func TestInteractiveProviderRetriesDriver(t *testing.T) {
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{
		creds: []types.Credential{{}, {}, goodCred},
		errs:  []error{errors.New("browser crashed"), nil, nil},
	}
	p := NewInteractiveLoginProvider(driver, cache, "me@example.com", "secret",
		WithLoginBackOff(&backoff.ZeroBackOff{}))

	cred, ok, err := p.Credential(context.Background())
	if err != nil || !ok {
		t.Fatalf("Expected credential, got ok=%v err=%v", ok, err)
	}
	if cred != goodCred {
		t.Errorf("Expected %+v, got %+v", goodCred, cred)
	}

	// The crash and the incomplete credential each close the driver
	logins, closes := driver.counts()
	if logins != 3 || closes != 2 {
		t.Errorf("Expected 3 logins and 2 closes, got %d and %d", logins, closes)
	}

	// Nothing is persisted until the server accepts it
	if _, ok, _ := cache.Read(); ok {
		t.Error("Expected cache untouched before acceptance")
	}
}

func TestInteractiveProviderGivesUp(t *testing.T) {
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	fail := errors.New("login page changed")
	driver := &fakeDriver{
		creds: []types.Credential{goodCred},
		errs:  []error{fail, fail, fail, fail},
	}
	p := NewInteractiveLoginProvider(driver, cache, "me@example.com", "secret",
		WithLoginTries(2), WithLoginBackOff(&backoff.ZeroBackOff{}))

	_, ok, err := p.Credential(context.Background())
	if ok || !errors.Is(err, fail) {
		t.Fatalf("Expected wrapped driver error, got ok=%v err=%v", ok, err)
	}
	if logins, _ := driver.counts(); logins != 2 {
		t.Errorf("Expected 2 logins, got %d", logins)
	}
}

func TestTransportUsesAuthenticatedSession(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(LoginTokenCookie)
		if err != nil || c.Value != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		if r.URL.Path == "/rest/echo" {
			if got := r.Header.Get("X-Trader-Client"); got != "application=WC4, version=1.0.0, dUUID=dev-1" {
				t.Errorf("Unexpected X-Trader-Client %q", got)
			}
			w.Write([]byte(`"ok"`))
		}
	}))
	defer srv.Close()

	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	if err := cache.Write(goodCred); err != nil {
		t.Fatal(err)
	}
	a := NewAuthenticator(srv.URL, []interfaces.CredentialProvider{NewCachedCredentialProvider(cache)})
	tr := NewTransport(a)

	resp, err := tr.GET(context.Background(), "/rest/echo")
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if resp.String() != `"ok"` {
		t.Errorf("Expected ok, got %s", resp.String())
	}
}

func TestEnsureUnreachableKeepsCache(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	if err := cache.Write(goodCred); err != nil {
		t.Fatal(err)
	}
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	_, err := a.Ensure(context.Background())
	if err == nil {
		t.Fatal("Expected error with the broker down")
	}
	if errors.Is(err, types.ErrAuthentication) {
		t.Errorf("Expected a network error, got %v", err)
	}
	if logins, _ := driver.counts(); logins != 0 {
		t.Errorf("Expected no login while unreachable, got %d", logins)
	}
	if stored, ok, _ := cache.Read(); !ok || stored != goodCred {
		t.Errorf("Expected cached credential kept, got ok=%v %+v", ok, stored)
	}
}

func TestEnsureCancelledKeepsCache(t *testing.T) {
	srv, probes := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	if err := cache.Write(goodCred); err != nil {
		t.Fatal(err)
	}
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := a.Ensure(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if got := atomic.LoadInt32(probes); got != 0 {
		t.Errorf("Expected no probe to reach the server, got %d", got)
	}
	if logins, _ := driver.counts(); logins != 0 {
		t.Errorf("Expected no login after cancel, got %d", logins)
	}
	if _, ok, _ := cache.Read(); !ok {
		t.Error("Expected cached credential kept after cancel")
	}

	// The same authenticator works once the caller's context is live
	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if logins, _ := driver.counts(); logins != 0 {
		t.Errorf("Expected the cached credential to be used, got %d logins", logins)
	}
}

func TestEnsureLiveSessionUnreachable(t *testing.T) {
	srv, _ := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	srv.Close()

	if _, err := a.Ensure(context.Background()); err == nil {
		t.Fatal("Expected error with the broker down")
	}
	if _, ok := a.Credential(); !ok {
		t.Error("Expected the session to survive an unanswered probe")
	}
	if _, ok, _ := cache.Read(); !ok {
		t.Error("Expected cached credential kept")
	}
	if logins, _ := driver.counts(); logins != 1 {
		t.Errorf("Expected no further login, got %d", logins)
	}
}

func TestEnsureConcurrentLogsInOnce(t *testing.T) {
	srv, _ := newProbeServer(t)
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{creds: []types.Credential{goodCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := a.Ensure(context.Background()); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		t.Errorf("Unexpected error: %v", err)
	}
	if logins, _ := driver.counts(); logins != 1 {
		t.Errorf("Expected 1 login, got %d", logins)
	}
}

func TestEnsureExpiredSessionIsReplaced(t *testing.T) {
	var accepted atomic.Value
	accepted.Store("good")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := r.Cookie(LoginTokenCookie)
		if err != nil || c.Value != accepted.Load().(string) {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Write([]byte(`{"customerId":1}`))
	}))
	defer srv.Close()

	freshCred := types.Credential{DeviceID: "dev-1", LoginToken: "fresh", UserAgent: "ua/1"}
	cache := credential.NewFileCache(filepath.Join(t.TempDir(), "auth.json"))
	driver := &fakeDriver{creds: []types.Credential{goodCred, freshCred}}
	a := newTestAuthenticator(srv, cache, driver, "me@example.com", 3)

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	// The server expires the login token
	accepted.Store("fresh")

	if _, err := a.Ensure(context.Background()); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if logins, _ := driver.counts(); logins != 2 {
		t.Errorf("Expected 2 logins, got %d", logins)
	}
	if stored, ok, _ := cache.Read(); !ok || stored != freshCred {
		t.Errorf("Expected fresh credential cached, got ok=%v %+v", ok, stored)
	}
	if cred, _ := a.Credential(); cred.LoginToken != "fresh" {
		t.Errorf("Expected fresh session, got %s", cred.LoginToken)
	}
}
