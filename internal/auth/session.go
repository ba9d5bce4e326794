package auth

import (
	"fmt"
	"net/http"
	"strings"

	"tradingtot/internal/api"
	"tradingtot/internal/types"
)

const (
	AuthenticatePath   = "/rest/v1/webclient/authenticate"
	LoginTokenCookie   = "LOGIN_TOKEN"
	deviceCookiePrefix = "amp_"
)

// SessionHeaders are the headers the web client sends with every call.
func SessionHeaders(cred types.Credential) map[string]string {
	ua := cred.UserAgent
	if ua == "" {
		ua = types.DefaultUserAgent
	}
	return map[string]string{
		"User-Agent":      ua,
		"X-Trader-Client": fmt.Sprintf("application=WC4, version=1.0.0, dUUID=%s", cred.DeviceID),
		"Content-Type":    "application/json",
	}
}

// NewSession builds an HTTP session bound to one credential. Sessions are
// replaced, never mutated, when the credential changes.
func NewSession(baseURL string, cred types.Credential, opts ...api.ClientOption) *api.Client {
	all := append([]api.ClientOption{
		api.WithBaseURL(baseURL),
		api.WithHeaders(SessionHeaders(cred)),
		api.WithCookies(baseURL, &http.Cookie{Name: LoginTokenCookie, Value: cred.LoginToken}),
	}, opts...)
	return api.NewClient(all...)
}

// DeviceID extracts the device id from the analytics cookie: the value of
// the first amp_* cookie up to its first dot.
func DeviceID(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if strings.HasPrefix(c.Name, deviceCookiePrefix) {
			id, _, _ := strings.Cut(c.Value, ".")
			return id
		}
	}
	return ""
}

// LoginToken returns the LOGIN_TOKEN cookie value, if present.
func LoginToken(cookies []*http.Cookie) string {
	for _, c := range cookies {
		if c.Name == LoginTokenCookie {
			return c.Value
		}
	}
	return ""
}

// CredentialFromCookies assembles a credential from a logged-in cookie set.
func CredentialFromCookies(cookies []*http.Cookie, userAgent string) (types.Credential, error) {
	cred := types.Credential{
		DeviceID:   DeviceID(cookies),
		LoginToken: LoginToken(cookies),
		UserAgent:  userAgent,
	}
	if cred.DeviceID == "" {
		return cred, fmt.Errorf("device id cookie not found")
	}
	if cred.LoginToken == "" {
		return cred, fmt.Errorf("%s cookie not found", LoginTokenCookie)
	}
	return cred, nil
}
