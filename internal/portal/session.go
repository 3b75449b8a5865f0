// Package portal talks to the external line-of-business portal. The
// portal has no API tokens: access rides on a JSESSIONID cookie
// obtained through a form login, so all calls go through a Session
// that owns the cookie jar.
package portal

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/patrickmn/go-cache"
	"golang.org/x/sync/singleflight"
)

const warmSessionKey = "session"

// Config holds portal connection settings
type Config struct {
	BaseURL        string
	ContextPath    string
	Username       string
	Password       string
	UserAgent      string
	Timeout        time.Duration
	WarmSessionTTL time.Duration
}

// Session owns the portal cookie jar and serializes logins. The cookie
// store is never exposed; callers use the authenticated helpers.
type Session struct {
	client *resty.Client
	config *Config
	logger *slog.Logger

	loginGroup singleflight.Group
	warm       *cache.Cache
}

// NewSession creates a Session with a fresh cookie jar.
func NewSession(config *Config, logger *slog.Logger) (*Session, error) {
	if config.BaseURL == "" {
		return nil, fmt.Errorf("portal base URL cannot be empty")
	}
	if config.Username == "" || config.Password == "" {
		return nil, fmt.Errorf("portal credentials cannot be empty")
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create cookie jar: %w", err)
	}

	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	warmTTL := config.WarmSessionTTL
	if warmTTL <= 0 {
		warmTTL = 60 * time.Second
	}

	client := resty.New().
		SetBaseURL(strings.TrimRight(config.BaseURL, "/")).
		SetCookieJar(jar).
		SetTimeout(timeout).
		SetHeader("Accept-Language", "es-ES,es;q=0.9").
		SetRedirectPolicy(resty.RedirectPolicyFunc(func(req *http.Request, via []*http.Request) error {
			// The login POST answers with a 302 we must inspect, and a
			// redirect anywhere else means the session is gone. Either
			// way the last response is the interesting one.
			return http.ErrUseLastResponse
		}))

	if config.UserAgent != "" {
		client.SetHeader("User-Agent", config.UserAgent)
	}

	return &Session{
		client: client,
		config: config,
		logger: logger,
		warm:   cache.New(warmTTL, warmTTL),
	}, nil
}

// EstablishCookie requests the login landing page so the portal issues
// its initial session cookie. It returns the HTTP status code, or 500
// when the portal is unreachable.
func (s *Session) EstablishCookie(ctx context.Context) int {
	resp, err := s.client.R().
		SetContext(ctx).
		Get("/login/home")
	if err != nil {
		s.logger.Error("Failed to establish portal cookie",
			slog.Any("error", err),
		)
		return http.StatusInternalServerError
	}

	return resp.StatusCode()
}

// Login authenticates against the portal. Concurrent callers share a
// single in-flight login request; a recent successful login (the warm
// flag) short-circuits entirely. It returns 200 on success, 400 on a
// rejected login. Retrying after failure is the caller's decision.
func (s *Session) Login(ctx context.Context) int {
	if _, warm := s.warm.Get(warmSessionKey); warm {
		return http.StatusOK
	}

	status, err, _ := s.loginGroup.Do("login", func() (interface{}, error) {
		return s.doLogin(ctx), nil
	})
	if err != nil {
		return http.StatusBadRequest
	}

	return status.(int)
}

func (s *Session) doLogin(ctx context.Context) int {
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetFormData(map[string]string{
			"j_username": s.config.Username,
			"j_password": s.config.Password,
			"submit":     "",
		}).
		Post("/login/j_security_check")
	if err != nil {
		s.logger.Error("Portal login request failed",
			slog.Any("error", err),
		)
		return http.StatusBadRequest
	}

	// A successful form login answers with a redirect away from the
	// login page. Some deployments answer 200 and only set the session
	// cookie, so check for that too.
	if resp.Header().Get("Location") != "" || resp.StatusCode() == http.StatusFound {
		s.markWarm()
		return http.StatusOK
	}

	if s.hasSessionCookie() {
		s.markWarm()
		return http.StatusOK
	}

	s.logger.Warn("Portal login rejected",
		slog.Int("status", resp.StatusCode()),
	)
	return http.StatusBadRequest
}

// Logout releases the portal session and drops all local session state.
// A logout failure only invalidates the warm flag; it never escalates.
func (s *Session) Logout(ctx context.Context) {
	s.warm.Delete(warmSessionKey)

	resp, err := s.client.R().
		SetContext(ctx).
		Get("/login/logout")
	if err != nil {
		s.logger.Warn("Portal logout failed",
			slog.Any("error", err),
		)
	} else {
		s.logger.Debug("Portal session released",
			slog.Int("status", resp.StatusCode()),
		)
	}

	if jar, jarErr := cookiejar.New(nil); jarErr == nil {
		s.client.SetCookieJar(jar)
	}
}

func (s *Session) markWarm() {
	s.warm.SetDefault(warmSessionKey, time.Now())
}

func (s *Session) hasSessionCookie() bool {
	base, err := url.Parse(s.config.BaseURL)
	if err != nil {
		return false
	}
	for _, c := range s.client.GetClient().Jar.Cookies(base) {
		if c.Name == "JSESSIONID" && c.Value != "" {
			return true
		}
	}
	return false
}

// get performs an authenticated GET against an API path. A 404 from the
// primary path is transparently retried against the context-prefixed
// fallback path; the portal's routing differs between deployments.
func (s *Session) get(ctx context.Context, apiPath string, query map[string]string, result any) error {
	resp, err := s.request(ctx, query, result).Get(apiPath)
	if err != nil {
		return fmt.Errorf("portal GET %s failed: %w", apiPath, err)
	}

	if resp.StatusCode() == http.StatusNotFound && s.config.ContextPath != "" {
		fallback := s.config.ContextPath + apiPath
		s.logger.Debug("Portal path not found, retrying with context prefix",
			slog.String("path", apiPath),
			slog.String("fallback", fallback),
		)
		resp, err = s.request(ctx, query, result).Get(fallback)
		if err != nil {
			return fmt.Errorf("portal GET %s failed: %w", fallback, err)
		}
	}

	if resp.IsError() {
		return fmt.Errorf("portal GET %s returned status %d", apiPath, resp.StatusCode())
	}

	return nil
}

// post performs an authenticated POST against an API path, with the
// same 404 fallback as get.
func (s *Session) post(ctx context.Context, apiPath string, query map[string]string, result any) error {
	resp, err := s.request(ctx, query, result).Post(apiPath)
	if err != nil {
		return fmt.Errorf("portal POST %s failed: %w", apiPath, err)
	}

	if resp.StatusCode() == http.StatusNotFound && s.config.ContextPath != "" {
		fallback := s.config.ContextPath + apiPath
		resp, err = s.request(ctx, query, result).Post(fallback)
		if err != nil {
			return fmt.Errorf("portal POST %s failed: %w", fallback, err)
		}
	}

	if resp.IsError() {
		return fmt.Errorf("portal POST %s returned status %d", apiPath, resp.StatusCode())
	}

	return nil
}

func (s *Session) request(ctx context.Context, query map[string]string, result any) *resty.Request {
	req := s.client.R().SetContext(ctx)
	if len(query) > 0 {
		req.SetQueryParams(query)
	}
	if result != nil {
		req.SetResult(result)
	}
	return req
}
