package form

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"

	"tradingtot/internal/auth"
	"tradingtot/internal/interfaces"
	"tradingtot/internal/logger"
	"tradingtot/internal/types"
)

const (
	formSelector         = "form"
	defaultEmailField    = "username"
	defaultPasswordField = "password"
	defaultLoginPath     = "/en/login"
)

type Config struct {
	LoginURL  string
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

// Driver logs in over plain HTTP by submitting the web login form. It needs
// no browser, but stops working if the site requires scripts to log in.
type Driver struct {
	cfg Config
}

var _ interfaces.LoginDriver = (*Driver)(nil)

// NewDriver creates a form driver. An empty LoginURL is derived from the
// home page URL.
func NewDriver(cfg Config, homeURL string) *Driver {
	if cfg.LoginURL == "" {
		cfg.LoginURL = strings.TrimRight(homeURL, "/") + defaultLoginPath
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = types.DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Driver{cfg: cfg}
}

// Close is a no-op; each login uses its own collector.
func (d *Driver) Close() error { return nil }

// loginForm is what the login page tells us about how to post credentials
type loginForm struct {
	action        string
	emailField    string
	passwordField string
	hidden        map[string]string
}

func (d *Driver) Login(ctx context.Context, email, password string) (types.Credential, error) {
	op := logger.StartOperation(ctx, "form.login", "url", d.cfg.LoginURL)
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
	c := colly.NewCollector(
		colly.UserAgent(d.cfg.UserAgent),
		colly.Async(false),
	)
	c.SetRequestTimeout(d.cfg.Timeout)

	var (
		form    *loginForm
		respErr error
	)

	c.OnHTML(formSelector, func(e *colly.HTMLElement) {
		if form != nil || e.DOM.Find("input[type='password']").Length() == 0 {
			return
		}
		form = parseForm(e)
	})

	c.OnError(func(r *colly.Response, err error) {
		respErr = fmt.Errorf("%s returned %d: %w", r.Request.URL, r.StatusCode, err)
		logger.ErrorWithErr(ctx, "Login form request failed", err, "url", r.Request.URL.String(), "status", r.StatusCode)
	})

	if err := c.Visit(d.cfg.LoginURL); err != nil {
		return types.Credential{}, fmt.Errorf("failed to load login page: %w", err)
	}
	if respErr != nil {
		return types.Credential{}, respErr
	}
	if form == nil {
		return types.Credential{}, errors.New("login form not found on page")
	}
	if err := ctx.Err(); err != nil {
		return types.Credential{}, err
	}

	data := make(map[string]string, len(form.hidden)+2)
	for k, v := range form.hidden {
		data[k] = v
	}
	data[form.emailField] = email
	data[form.passwordField] = password

	logger.Debug(ctx, "Submitting login form", "action", form.action, "fields", len(data))
	if err := c.Post(form.action, data); err != nil {
		return types.Credential{}, fmt.Errorf("failed to submit login form: %w", err)
	}
	if respErr != nil {
		return types.Credential{}, respErr
	}

	var cookies []*http.Cookie
	seen := make(map[string]bool)
	for _, u := range []string{d.cfg.LoginURL, form.action, d.cfg.BaseURL} {
		if u == "" {
			continue
		}
		for _, ck := range c.Cookies(u) {
			if !seen[ck.Name] {
				seen[ck.Name] = true
				cookies = append(cookies, ck)
			}
		}
	}
	return auth.CredentialFromCookies(cookies, d.cfg.UserAgent)
}

func parseForm(e *colly.HTMLElement) *loginForm {
	f := &loginForm{
		action:        e.Request.AbsoluteURL(e.Attr("action")),
		emailField:    defaultEmailField,
		passwordField: defaultPasswordField,
		hidden:        make(map[string]string),
	}
	if f.action == "" {
		f.action = e.Request.URL.String()
	}

	e.DOM.Find("input").Each(func(_ int, s *goquery.Selection) {
		name, ok := s.Attr("name")
		if !ok || name == "" {
			return
		}
		switch strings.ToLower(s.AttrOr("type", "text")) {
		case "hidden":
			f.hidden[name] = s.AttrOr("value", "")
		case "email":
			f.emailField = name
		case "password":
			f.passwordField = name
		}
	})
	return f
}
