package browser

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"tradingtot/internal/auth"
	"tradingtot/internal/credential"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

const (
	acceptCookiesXPath = `//p[text()='Accept all cookies']`
	loginNavXPath      = `//p[starts-with(@class, 'Header_login-button')]`
	emailXPath         = `//input[@type='email']`
	passwordXPath      = `//input[@type='password']`
	loginButtonXPath   = `//div[text()="Log in"]`
	dashboardSelector  = `[data-testid='tab-button-home-open']`

	windowWidth     = 3360
	windowHeight    = 2100
	homeLoadRetries = 3
	cookieWait      = 3 * time.Second
	keyPause        = 100 * time.Millisecond
	screenshotQual  = 90
)

// environmentHost matches the post-login app hosts, e.g. demo.trading212.com
var environmentHost = regexp.MustCompile(string(types.EnvDemo) + "|" + string(types.EnvLive))

type Config struct {
	BinaryPath  string
	UserAgent   string
	HomeURL     string
	ShotsDir    string
	Wait        time.Duration
	ShowBrowser bool
	Screenshots bool
}

// Driver logs into the web platform with a headless Chromium and lifts the
// session cookies off the browser. The browser is kept between logins and
// recreated when its devtools connection drops.
type Driver struct {
	cfg    Config
	log    *zap.SugaredLogger
	finder *Pathfinder

	mu          sync.Mutex
	browserCtx  context.Context
	allocCancel context.CancelFunc
	ctxCancel   context.CancelFunc
}

var _ interfaces.LoginDriver = (*Driver)(nil)

func NewDriver(cfg Config, log *zap.SugaredLogger) *Driver {
	if cfg.UserAgent == "" {
		cfg.UserAgent = types.DefaultUserAgent
	}
	if cfg.Wait <= 0 {
		cfg.Wait = 30 * time.Second
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Driver{cfg: cfg, log: log, finder: NewPathfinder()}
}

// NewLogger builds the sugared zap logger that receives devtools output
func NewLogger() (*zap.SugaredLogger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.OutputPaths = []string{"stderr"}
	l, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return l.Named("chromedp").Sugar(), nil
}

// load returns the live browser context, starting a browser if needed.
func (d *Driver) load(forceNew bool) (context.Context, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if forceNew {
		d.closeLocked()
	}
	if d.browserCtx != nil {
		return d.browserCtx, nil
	}

	binary, err := d.finder.Find(d.cfg.BinaryPath)
	if err != nil {
		return nil, err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.ExecPath(binary),
		chromedp.UserAgent(d.cfg.UserAgent),
		chromedp.WindowSize(windowWidth, windowHeight),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("enable-automation", false),
		chromedp.Flag("headless", !d.cfg.ShowBrowser),
	)
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)
	browserCtx, ctxCancel := chromedp.NewContext(allocCtx,
		chromedp.WithLogf(d.log.Infof),
		chromedp.WithErrorf(d.log.Errorf),
		chromedp.WithDebugf(d.log.Debugf),
	)

	// Start the browser now so a bad binary fails here, not mid-login
	if err := chromedp.Run(browserCtx); err != nil {
		ctxCancel()
		allocCancel()
		return nil, fmt.Errorf("start browser %s: %w", binary, err)
	}

	d.log.Infow("browser started", "binary", binary, "headless", !d.cfg.ShowBrowser)
	d.browserCtx, d.allocCancel, d.ctxCancel = browserCtx, allocCancel, ctxCancel
	return browserCtx, nil
}

func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closeLocked()
	return nil
}

func (d *Driver) closeLocked() {
	if d.ctxCancel != nil {
		d.ctxCancel()
	}
	if d.allocCancel != nil {
		d.allocCancel()
	}
	d.browserCtx, d.allocCancel, d.ctxCancel = nil, nil, nil
}

// Login runs the web login flow and returns the resulting credential.
func (d *Driver) Login(ctx context.Context, email, password string) (types.Credential, error) {
	op := logger.StartOperation(ctx, "browser.login")
	ctx = op.Context()

	cred, err := d.login(ctx, email, password)
	if err != nil {
		op.EndWithError(err)
		return types.Credential{}, err
	}
	op.End()
	return cred, nil
}

func (d *Driver) login(ctx context.Context, email, password string) (types.Credential, error) {
	shots := d.shotStorage(ctx)

	var (
		runCtx   context.Context
		location string
		lastErr  error
	)
	for attempt := 1; attempt <= homeLoadRetries; attempt++ {
		browserCtx, err := d.load(attempt > 1 && isDisconnected(lastErr))
		if err != nil {
			return types.Credential{}, err
		}
		var cancel context.CancelFunc
		runCtx, cancel = bind(ctx, browserCtx)
		defer cancel()

		lastErr = chromedp.Run(runCtx,
			chromedp.Navigate(d.cfg.HomeURL),
			chromedp.Location(&location),
		)
		if lastErr == nil {
			break
		}
		if ctx.Err() != nil {
			return types.Credential{}, ctx.Err()
		}
		if !isDisconnected(lastErr) {
			return types.Credential{}, fmt.Errorf("failed to load home page: %w", lastErr)
		}
		d.log.Warnw("devtools connection lost, restarting browser", "attempt", attempt)
	}
	if lastErr != nil {
		return types.Credential{}, fmt.Errorf("failed to load home page: %w", lastErr)
	}

	if environmentHost.MatchString(location) {
		logger.Info(ctx, "Browser session already logged in", "url", location)
		return d.collect(runCtx)
	}

	d.screenshot(runCtx, shots, credential.ShotAcceptCookies)
	if err := d.acceptCookies(runCtx); err != nil {
		return types.Credential{}, err
	}

	if err := chromedp.Run(runCtx, chromedp.Click(loginNavXPath, chromedp.BySearch)); err != nil {
		return types.Credential{}, fmt.Errorf("open login form: %w", err)
	}

	err := d.within(runCtx, d.cfg.Wait, chromedp.WaitVisible(emailXPath, chromedp.BySearch))
	d.screenshot(runCtx, shots, credential.ShotBeforeLogin)
	if err != nil {
		return types.Credential{}, fmt.Errorf("email element not found using xpath %s after waiting %s: %w", emailXPath, d.cfg.Wait, err)
	}

	err = chromedp.Run(runCtx,
		chromedp.Click(emailXPath, chromedp.BySearch),
		chromedp.SendKeys(emailXPath, email, chromedp.BySearch),
		chromedp.Sleep(keyPause),
		chromedp.Click(passwordXPath, chromedp.BySearch),
		chromedp.SendKeys(passwordXPath, password, chromedp.BySearch),
		chromedp.Sleep(keyPause),
		chromedp.Click(loginButtonXPath, chromedp.BySearch),
		chromedp.Sleep(keyPause),
	)
	if err != nil {
		return types.Credential{}, fmt.Errorf("submit login form: %w", err)
	}

	err = d.within(runCtx, d.cfg.Wait, chromedp.WaitReady(dashboardSelector, chromedp.ByQuery))
	d.screenshot(runCtx, shots, credential.ShotAfterLogin)
	if err != nil {
		return types.Credential{}, fmt.Errorf("trading dashboard failed to load in %s: %w", d.cfg.Wait, err)
	}

	return d.collect(runCtx)
}

// acceptCookies clicks the consent banner, or confirms there is none by
// finding the login button within a short wait.
func (d *Driver) acceptCookies(ctx context.Context) error {
	err := d.within(ctx, cookieWait, chromedp.Click(acceptCookiesXPath, chromedp.BySearch))
	if err == nil {
		return nil
	}
	if err := d.within(ctx, cookieWait, chromedp.WaitVisible(loginNavXPath, chromedp.BySearch)); err != nil {
		return fmt.Errorf("unable to accept cookies: %w", err)
	}
	return nil
}

// collect reads the user agent and session cookies off the logged-in page.
func (d *Driver) collect(ctx context.Context) (types.Credential, error) {
	var (
		userAgent string
		cookies   []*http.Cookie
	)
	err := chromedp.Run(ctx,
		chromedp.Evaluate(`navigator.userAgent`, &userAgent),
		chromedp.ActionFunc(func(ctx context.Context) error {
			raw, err := network.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, c := range raw {
				cookies = append(cookies, &http.Cookie{Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path})
			}
			return nil
		}),
	)
	if err != nil {
		return types.Credential{}, fmt.Errorf("read session cookies: %w", err)
	}
	return auth.CredentialFromCookies(cookies, userAgent)
}

func (d *Driver) within(ctx context.Context, wait time.Duration, actions ...chromedp.Action) error {
	ctx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()
	return chromedp.Run(ctx, actions...)
}

func (d *Driver) shotStorage(ctx context.Context) *credential.ShotStorage {
	if !d.cfg.Screenshots || d.cfg.ShotsDir == "" {
		return nil
	}
	shots, err := credential.NewShotStorage(d.cfg.ShotsDir, time.Now())
	if err != nil {
		logger.Warn(ctx, "Screenshots disabled for this login", "error", err)
		return nil
	}
	return shots
}

// screenshot is best effort; a failed capture never fails the login.
func (d *Driver) screenshot(ctx context.Context, shots *credential.ShotStorage, name credential.ShotName) {
	if shots == nil {
		return
	}
	var buf []byte
	if err := chromedp.Run(ctx, chromedp.FullScreenshot(&buf, screenshotQual)); err != nil {
		d.log.Warnw("screenshot failed", "name", name, "error", err)
		return
	}
	if err := shots.Write(name, buf); err != nil {
		d.log.Warnw("screenshot not saved", "name", name, "error", err)
	}
}

// bind derives a context from the browser context that is also cancelled
// with the caller's context.
func bind(caller, browserCtx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(browserCtx)
	stop := context.AfterFunc(caller, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func isDisconnected(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not connected to devtools") ||
		strings.Contains(msg, "websocket") ||
		strings.Contains(msg, "channel closed")
}
