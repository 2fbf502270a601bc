package source

import (
	"context"
	"encoding/json"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// mockClient implements session.Client for testing, recording every call
// and answering through a configurable respond func.
type mockClient struct {
	name    string
	calls   []clientCall
	respond func(rawURL string, query url.Values) ([]byte, error)
}

type clientCall struct {
	URL   string
	Query url.Values
}

func (m *mockClient) Name() string { return m.name }

func (m *mockClient) Get(ctx context.Context, rawURL string, query url.Values) ([]byte, error) {
	m.calls = append(m.calls, clientCall{URL: rawURL, Query: query})
	return m.respond(rawURL, query)
}

func (m *mockClient) GetJSON(ctx context.Context, rawURL string, query url.Values, v any) error {
	body, err := m.Get(ctx, rawURL, query)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, v)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestWindow_Days(t *testing.T) {
	assert.Equal(t, 1, Window{From: day(2025, 7, 1), To: day(2025, 7, 1)}.Days())
	assert.Equal(t, 3, Window{From: day(2025, 7, 1), To: day(2025, 7, 3)}.Days())
	assert.Equal(t, 0, Window{From: day(2025, 7, 3), To: day(2025, 7, 1)}.Days())

	// Time-of-day must not change the span.
	w := Window{
		From: time.Date(2025, 6, 30, 23, 50, 0, 0, time.UTC),
		To:   time.Date(2025, 7, 1, 0, 5, 0, 0, time.UTC),
	}
	assert.Equal(t, 2, w.Days())
}
