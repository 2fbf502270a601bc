package source

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/resilience"
	"github.com/halal-lens/filings-cli/internal/session"
)

// SourceNSE names the National Stock Exchange announcements feed.
const SourceNSE = "nse"

// noDataMessage is the sentinel the NSE API returns instead of an empty
// result set.
const noDataMessage = "no data found"

// NSEConfig tunes the NSE announcements source.
type NSEConfig struct {
	// APIBase is the API root, typically https://www.nseindia.com/api.
	// The session client must be warmed against the site itself before
	// this endpoint answers.
	APIBase string

	// ChunkDays caps how many calendar days one query spans. Zero fetches
	// the whole window in a single query, which the API supports.
	ChunkDays int

	// ChunkDelay is the pause between consecutive date chunks.
	ChunkDelay time.Duration

	// DefaultCategory is the index parameter applied when the query does
	// not name one. Empty means equities.
	DefaultCategory string
}

// NSE fetches corporate announcements from the NSE API. The API sits
// behind cookie and bot checks, so all traffic rides a warmed session.
type NSE struct {
	client session.Client
	cfg    NSEConfig
	log    *zap.Logger
}

// NewNSE creates the NSE source on top of a throttled session client.
func NewNSE(client session.Client, cfg NSEConfig) *NSE {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://www.nseindia.com/api"
	}
	return &NSE{
		client: client,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "source"), zap.String("source", SourceNSE)),
	}
}

// Name implements Source.
func (n *NSE) Name() string { return SourceNSE }

type nseRow struct {
	Symbol         string `json:"symbol"`
	CompanyName    string `json:"sm_name"`
	Description    string `json:"desc"`
	AnnouncedAt    string `json:"an_dt"`
	AttachmentURL  string `json:"attchmntFile"`
	AttachmentText string `json:"attchmntText"`
}

// Fetch implements Source. The default is one query for the whole window;
// a chunk that keeps failing is recorded as a gap and the fetch moves on.
func (n *NSE) Fetch(ctx context.Context, win Window, q Query) (*Result, error) {
	chunks := []Window{{From: truncateDay(win.From), To: truncateDay(win.To)}}
	if n.cfg.ChunkDays > 0 {
		chunks = SplitWindow(win, n.cfg.ChunkDays)
	}
	res := &Result{}

	for i, chunk := range chunks {
		rows, err := n.fetchChunk(ctx, chunk, q)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			n.log.Warn("chunk abandoned, recording gap",
				zap.String("from", chunk.From.Format("2006-01-02")),
				zap.String("to", chunk.To.Format("2006-01-02")),
				zap.Error(err),
			)
			res.Gaps = append(res.Gaps, chunk)
		} else {
			res.Announcements = append(res.Announcements, rows...)
		}

		if i < len(chunks)-1 && n.cfg.ChunkDelay > 0 {
			if err := resilience.Sleep(ctx, n.cfg.ChunkDelay); err != nil {
				return res, err
			}
		}
	}

	n.log.Info("fetch complete",
		zap.Int("announcements", len(res.Announcements)),
		zap.Int("chunks", len(chunks)),
		zap.Int("gaps", len(res.Gaps)),
	)
	return res, nil
}

func (n *NSE) fetchChunk(ctx context.Context, chunk Window, q Query) ([]model.RawAnnouncement, error) {
	index := q.Category
	if index == "" {
		index = n.cfg.DefaultCategory
	}
	if index == "" {
		index = "equities"
	}
	params := url.Values{
		"index":     {index},
		"from_date": {chunk.From.Format("02-01-2006")},
		"to_date":   {chunk.To.Format("02-01-2006")},
	}
	if q.Symbol != "" {
		params.Set("symbol", q.Symbol)
	}

	body, err := n.client.Get(ctx, n.cfg.APIBase+"/corporate-announcements", params)
	if err != nil {
		return nil, err
	}

	raws, err := decodeNSEBody(body)
	if err != nil {
		return nil, err
	}

	out := make([]model.RawAnnouncement, 0, len(raws))
	for _, raw := range raws {
		ann, err := n.decodeRow(raw)
		if err != nil {
			n.log.Debug("skipping undecodable row", zap.Error(err))
			continue
		}
		out = append(out, ann)
	}
	return out, nil
}

// decodeNSEBody tolerates the API's two envelope shapes: a bare array, or
// an object carrying the rows under "data". The "no data found" message is
// an empty result, not an error.
func decodeNSEBody(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, nil
	}

	if trimmed[0] == '[' {
		var rows []json.RawMessage
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, eris.Wrap(err, "source: decode nse array")
		}
		return rows, nil
	}

	var envelope struct {
		Msg  string            `json:"msg"`
		Data []json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		return nil, eris.Wrap(err, "source: decode nse envelope")
	}
	if len(envelope.Data) == 0 && strings.EqualFold(strings.TrimSpace(envelope.Msg), noDataMessage) {
		return nil, nil
	}
	return envelope.Data, nil
}

func (n *NSE) decodeRow(raw json.RawMessage) (model.RawAnnouncement, error) {
	var row nseRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return model.RawAnnouncement{}, eris.Wrap(err, "source: decode nse row")
	}

	headline := strings.TrimSpace(row.AttachmentText)
	if headline == "" {
		headline = strings.TrimSpace(row.Description)
	}

	return model.RawAnnouncement{
		Source:         SourceNSE,
		Symbol:         strings.TrimSpace(row.Symbol),
		CompanyName:    strings.TrimSpace(row.CompanyName),
		FilingDate:     parseNSETime(row.AnnouncedAt),
		Category:       strings.TrimSpace(row.Description),
		Headline:       headline,
		AttachmentName: strings.TrimSpace(row.AttachmentURL),
		Raw:            raw,
	}, nil
}

// parseNSETime handles the API's announcement timestamps, which usually
// look like "21-Jun-2025 19:36:32".
func parseNSETime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"02-Jan-2006 15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04:05.999999999",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
