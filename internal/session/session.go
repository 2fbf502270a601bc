package session

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/halal-lens/filings-cli/internal/resilience"
)

// State is the lifecycle stage of an upstream session.
type State int

const (
	// StateCold means no warm-up has happened yet.
	StateCold State = iota
	// StateWarm means cookies are established and requests may flow.
	StateWarm
	// StateExpired means the session outlived its lifetime or was blocked;
	// the next request warms up from scratch.
	StateExpired
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateCold:
		return "cold"
	case StateWarm:
		return "warm"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

const defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Config describes one upstream session identity.
type Config struct {
	// Name identifies the source in logs ("bse", "nse", "bse-pdf").
	Name string

	// BaseURL resolves relative warm-up paths.
	BaseURL string

	// WarmupPaths are visited in order before the first request and after
	// every reinitialization: the landing page first, then optionally the
	// referrer page the real requests claim to come from.
	WarmupPaths []string

	UserAgent      string
	Referer        string
	Accept         string
	AcceptLanguage string

	// MinInterval is the minimum gap between consecutive requests on this
	// session, warm-up traffic included.
	MinInterval time.Duration

	// MaxLifetime bounds how long a warm session is trusted before it is
	// rebuilt. Zero means the session never expires on age.
	MaxLifetime time.Duration

	// Timeout is the per-request timeout. Default 30s.
	Timeout time.Duration

	// Policy drives retry, cool-down, and reinitialization decisions.
	Policy resilience.Policy
}

// Manager serializes all traffic for one upstream source and keeps its
// session lifecycle. Concurrent callers block until the in-flight request,
// including any policy cool-down, finishes.
type Manager struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	log     *zap.Logger

	mu       sync.Mutex
	state    State
	warmedAt time.Time

	nowFn func() time.Time
}

// New creates a session manager for one source.
func New(cfg Config) *Manager {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}
	if cfg.Accept == "" {
		cfg.Accept = "application/json, text/plain, */*"
	}
	if cfg.AcceptLanguage == "" {
		cfg.AcceptLanguage = "en-US,en;q=0.9"
	}

	jar, _ := cookiejar.New(nil)
	transport := &http.Transport{
		MaxIdleConnsPerHost: 4,
		IdleConnTimeout:     90 * time.Second,
	}

	return &Manager{
		cfg: cfg,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
			Jar:       jar,
		},
		limiter: rate.NewLimiter(rate.Every(cfg.MinInterval), 1),
		log:     zap.L().With(zap.String("component", "session"), zap.String("source", cfg.Name)),
		state:   StateCold,
		nowFn:   time.Now,
	}
}

// Name returns the configured source name.
func (m *Manager) Name() string {
	return m.cfg.Name
}

// State returns the current lifecycle stage, accounting for age expiry.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expireIfStale()
	return m.state
}

// GetJSON performs a throttled GET and decodes the JSON response into v.
func (m *Manager) GetJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	body, err := m.Get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return eris.Wrapf(err, "session: %s: decode response from %s", m.cfg.Name, rawURL)
	}
	return nil
}

// Get performs a throttled GET against a warm session, driving failures
// through the backoff policy. Blocked responses expire the session so the
// retry warms up from scratch; not-found aborts without retrying.
func (m *Manager) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for attempt := 0; ; attempt++ {
		body, err := m.attempt(ctx, rawURL, query)
		if err == nil {
			return body, nil
		}
		if ctx.Err() != nil {
			return nil, err
		}

		class := resilience.Classify(err)
		decision := m.cfg.Policy.Decide(attempt, class)
		if decision.Kind == resilience.Abort {
			return nil, err
		}

		if decision.Kind == resilience.ReinitializeSessionThenRetryAfter {
			m.state = StateExpired
		}

		m.log.Warn("request failed, backing off",
			zap.String("url", rawURL),
			zap.Int("attempt", attempt+1),
			zap.String("class", class.String()),
			zap.String("decision", decision.Kind.String()),
			zap.Duration("delay", decision.Delay),
			zap.Error(err),
		)

		if serr := resilience.Sleep(ctx, decision.Delay); serr != nil {
			return nil, err
		}
	}
}

// attempt runs exactly one request, warming the session first if needed.
// Callers hold m.mu.
func (m *Manager) attempt(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	if err := m.ensureWarm(ctx); err != nil {
		return nil, err
	}

	resp, body, err := m.doRequest(ctx, rawURL, query)
	if err != nil {
		return nil, err
	}

	if blocked, btype := DetectBlock(resp, body); blocked {
		return nil, resilience.NewBlockedError(
			eris.Errorf("session: %s blocked (%s, status %d)", m.cfg.Name, btype, resp.StatusCode),
			resp.StatusCode,
		)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, resilience.NewNotFoundError(
			eris.Errorf("session: %s: %s not found", m.cfg.Name, rawURL),
			rawURL,
		)
	case resp.StatusCode >= 400:
		return nil, resilience.NewTransientError(
			eris.Errorf("session: %s: unexpected status %d from %s", m.cfg.Name, resp.StatusCode, rawURL),
			resp.StatusCode,
		)
	}

	return body, nil
}

// ensureWarm warms the session when cold or expired. Callers hold m.mu.
func (m *Manager) ensureWarm(ctx context.Context) error {
	m.expireIfStale()
	if m.state == StateWarm {
		return nil
	}

	// Fresh identity: new jar, then the landing-page visits that set cookies.
	jar, _ := cookiejar.New(nil)
	m.client.Jar = jar

	for _, p := range m.cfg.WarmupPaths {
		warmURL := p
		if !strings.HasPrefix(p, "http") {
			warmURL = m.cfg.BaseURL + p
		}
		resp, body, err := m.doRequest(ctx, warmURL, nil)
		if err != nil {
			return eris.Wrapf(err, "session: %s: warm up %s", m.cfg.Name, warmURL)
		}
		if blocked, btype := DetectBlock(resp, body); blocked {
			return resilience.NewBlockedError(
				eris.Errorf("session: %s: warm-up blocked at %s (%s)", m.cfg.Name, warmURL, btype),
				resp.StatusCode,
			)
		}
		if resp.StatusCode >= 400 {
			return resilience.NewTransientError(
				eris.Errorf("session: %s: warm-up status %d from %s", m.cfg.Name, resp.StatusCode, warmURL),
				resp.StatusCode,
			)
		}
	}

	m.state = StateWarm
	m.warmedAt = m.nowFn()
	m.log.Debug("session warmed", zap.Int("warmup_pages", len(m.cfg.WarmupPaths)))
	return nil
}

// doRequest throttles, sends one GET, and reads the full body.
func (m *Manager) doRequest(ctx context.Context, rawURL string, query url.Values) (*http.Response, []byte, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return nil, nil, eris.Wrap(err, "session: rate limiter wait")
	}

	reqURL := rawURL
	if len(query) > 0 {
		reqURL = rawURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, nil, eris.Wrap(err, "session: create request")
	}
	req.Header.Set("User-Agent", m.cfg.UserAgent)
	req.Header.Set("Accept", m.cfg.Accept)
	req.Header.Set("Accept-Language", m.cfg.AcceptLanguage)
	if m.cfg.Referer != "" {
		req.Header.Set("Referer", m.cfg.Referer)
	}

	resp, err := m.client.Do(req)
	if err != nil {
		return nil, nil, resilience.NewTransientError(eris.Wrapf(err, "session: %s: request %s", m.cfg.Name, rawURL), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, resilience.NewTransientError(eris.Wrapf(err, "session: %s: read body from %s", m.cfg.Name, rawURL), resp.StatusCode)
	}

	return resp, body, nil
}

// expireIfStale flips Warm to Expired once the session outlives its lifetime.
// Callers hold m.mu.
func (m *Manager) expireIfStale() {
	if m.state != StateWarm || m.cfg.MaxLifetime <= 0 {
		return
	}
	if m.nowFn().Sub(m.warmedAt) > m.cfg.MaxLifetime {
		m.state = StateExpired
		m.log.Debug("session expired", zap.Duration("lifetime", m.cfg.MaxLifetime))
	}
}
