package session

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/resilience"
)

func init() {
	zap.ReplaceGlobals(zap.NewNop())
}

func testPolicy() resilience.Policy {
	return resilience.Policy{
		MaxAttempts:    3,
		TransientBase:  time.Millisecond,
		BlockedBase:    time.Millisecond,
		MaxDelay:       5 * time.Millisecond,
		JitterFraction: 0,
	}
}

// trackingServer counts warm-up and API hits and lets handlers be swapped per test.
type trackingServer struct {
	mu      sync.Mutex
	warmups int
	apiHits int
}

func (ts *trackingServer) counts() (int, int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.warmups, ts.apiHits
}

func TestGet_WarmsUpOnceAndKeepsCookies(t *testing.T) {
	var mu sync.Mutex
	var order []string

	mux := http.NewServeMux()
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, "landing")
		mu.Unlock()
		http.SetCookie(w, &http.Cookie{Name: "sid", Value: "abc"})
	})
	mux.HandleFunc("/referrer", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, "referrer")
		mu.Unlock()
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		order = append(order, "api")
		mu.Unlock()
		c, err := r.Cookie("sid")
		require.NoError(t, err, "warm-up cookie should ride along on API calls")
		assert.Equal(t, "abc", c.Value)
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:        "bse",
		BaseURL:     srv.URL,
		WarmupPaths: []string{"/landing", "/referrer"},
		Policy:      testPolicy(),
	})

	var out struct {
		OK bool `json:"ok"`
	}
	require.NoError(t, m.GetJSON(context.Background(), srv.URL+"/api", nil, &out))
	assert.True(t, out.OK)
	assert.Equal(t, StateWarm, m.State())

	require.NoError(t, m.GetJSON(context.Background(), srv.URL+"/api", nil, &out))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"landing", "referrer", "api", "api"}, order,
		"second request must reuse the warm session")
}

func TestGet_SendsBrowserHeaders(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))
		assert.Equal(t, "https://exchange.example/", r.Header.Get("Referer"))
		assert.NotEmpty(t, r.Header.Get("Accept-Language"))
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:      "bse",
		BaseURL:   srv.URL,
		UserAgent: "test-agent",
		Referer:   "https://exchange.example/",
		Policy:    testPolicy(),
	})

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)
}

func TestGet_QueryParamsEncoded(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1", r.URL.Query().Get("pageno"))
		assert.Equal(t, "20250601", r.URL.Query().Get("strPrevDate"))
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{Name: "bse", BaseURL: srv.URL, Policy: testPolicy()})
	q := url.Values{}
	q.Set("pageno", "1")
	q.Set("strPrevDate", "20250601")
	_, err := m.Get(context.Background(), srv.URL+"/api", q)
	require.NoError(t, err)
}

func TestGet_BlockExpiresSessionAndRewarms(t *testing.T) {
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.warmups++
		ts.mu.Unlock()
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.apiHits++
		hits := ts.apiHits
		ts.mu.Unlock()
		if hits == 1 {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:        "nse",
		BaseURL:     srv.URL,
		WarmupPaths: []string{"/landing"},
		Policy:      testPolicy(),
	})

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)

	warmups, apiHits := ts.counts()
	assert.Equal(t, 2, warmups, "a block must force exactly one re-warm-up")
	assert.Equal(t, 2, apiHits)
}

func TestGet_ChallengePayloadTreatedAsBlock(t *testing.T) {
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.warmups++
		ts.mu.Unlock()
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.apiHits++
		hits := ts.apiHits
		ts.mu.Unlock()
		if hits == 1 {
			// Success status, but a challenge page instead of JSON.
			w.Write([]byte(`<html><body>Please complete the captcha to continue</body></html>`)) //nolint:errcheck
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:        "nse",
		BaseURL:     srv.URL,
		WarmupPaths: []string{"/landing"},
		Policy:      testPolicy(),
	})

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)

	warmups, apiHits := ts.counts()
	assert.Equal(t, 2, warmups)
	assert.Equal(t, 2, apiHits)
}

func TestGet_TransientRetriesOnSameSession(t *testing.T) {
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.warmups++
		ts.mu.Unlock()
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.apiHits++
		hits := ts.apiHits
		ts.mu.Unlock()
		if hits == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Write([]byte(`{"ok":true}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:        "bse",
		BaseURL:     srv.URL,
		WarmupPaths: []string{"/landing"},
		Policy:      testPolicy(),
	})

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)

	warmups, apiHits := ts.counts()
	assert.Equal(t, 1, warmups, "a transient failure must not rebuild the session")
	assert.Equal(t, 2, apiHits)
}

func TestGet_NotFoundAbortsWithoutRetry(t *testing.T) {
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.apiHits++
		ts.mu.Unlock()
		w.WriteHeader(http.StatusNotFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{Name: "bse", BaseURL: srv.URL, Policy: testPolicy()})

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.Error(t, err)
	assert.Equal(t, resilience.ClassNotFound, resilience.Classify(err))

	_, apiHits := ts.counts()
	assert.Equal(t, 1, apiHits, "not-found must never retry")
}

func TestGet_RetriesExhausted(t *testing.T) {
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.apiHits++
		ts.mu.Unlock()
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{Name: "bse", BaseURL: srv.URL, Policy: testPolicy()})

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.Error(t, err)

	_, apiHits := ts.counts()
	assert.Equal(t, 3, apiHits, "attempt ceiling should bound retries")
}

func TestGet_LifetimeExpiryForcesRewarm(t *testing.T) {
	ts := &trackingServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/landing", func(w http.ResponseWriter, r *http.Request) {
		ts.mu.Lock()
		ts.warmups++
		ts.mu.Unlock()
	})
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:        "nse",
		BaseURL:     srv.URL,
		WarmupPaths: []string{"/landing"},
		MaxLifetime: 5 * time.Minute,
		Policy:      testPolicy(),
	})

	now := time.Now()
	m.nowFn = func() time.Time { return now }

	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)
	assert.Equal(t, StateWarm, m.State())

	now = now.Add(6 * time.Minute)
	assert.Equal(t, StateExpired, m.State())

	_, err = m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)

	warmups, _ := ts.counts()
	assert.Equal(t, 2, warmups, "an aged-out session must warm up again")
}

func TestGet_MinIntervalThrottles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{
		Name:        "bse",
		BaseURL:     srv.URL,
		MinInterval: 50 * time.Millisecond,
		Policy:      testPolicy(),
	})

	start := time.Now()
	_, err := m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)
	_, err = m.Get(context.Background(), srv.URL+"/api", nil)
	require.NoError(t, err)

	assert.GreaterOrEqual(t, time.Since(start), 45*time.Millisecond,
		"consecutive requests must respect the minimum interval")
}

func TestGet_ContextCancellationStopsRetries(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	p := testPolicy()
	p.TransientBase = time.Hour // retries would stall without cancellation
	m := New(Config{Name: "bse", BaseURL: srv.URL, Policy: p})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := m.Get(ctx, srv.URL+"/api", nil)
	require.Error(t, err)
}

func TestGetJSON_DecodesInto(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/api", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"Table":[{"SCRIP_CD":"500325"}]}`)) //nolint:errcheck
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	m := New(Config{Name: "bse", BaseURL: srv.URL, Policy: testPolicy()})

	var out struct {
		Table []struct {
			ScripCode string `json:"SCRIP_CD"`
		} `json:"Table"`
	}
	require.NoError(t, m.GetJSON(context.Background(), srv.URL+"/api", nil, &out))
	require.Len(t, out.Table, 1)
	assert.Equal(t, "500325", out.Table[0].ScripCode)
}
