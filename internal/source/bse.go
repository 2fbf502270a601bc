package source

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/resilience"
	"github.com/halal-lens/filings-cli/internal/session"
)

// SourceBSE names the Bombay Stock Exchange announcements feed.
const SourceBSE = "bse"

const defaultBSEPageSize = 50

// BSEConfig tunes the BSE announcements source.
type BSEConfig struct {
	// APIBase is the announcements API root, typically
	// https://api.bseindia.com/BseIndiaAPI/api.
	APIBase string

	// ChunkDays caps how many calendar days one query spans. The API
	// silently truncates wide ranges, so the default is a single day.
	ChunkDays int

	// ChunkDelay is the pause between consecutive date chunks.
	ChunkDelay time.Duration

	// PageSize is the rows-per-page the API is asked for.
	PageSize int

	// DefaultCategory is the strCat filter applied when the query does not
	// name one. Empty means the API's catch-all category.
	DefaultCategory string
}

// BSE fetches corporate announcements from the BSE public API.
type BSE struct {
	client session.Client
	cfg    BSEConfig
	log    *zap.Logger
}

// NewBSE creates the BSE source on top of a throttled session client.
func NewBSE(client session.Client, cfg BSEConfig) *BSE {
	if cfg.APIBase == "" {
		cfg.APIBase = "https://api.bseindia.com/BseIndiaAPI/api"
	}
	if cfg.ChunkDays < 1 {
		cfg.ChunkDays = 1
	}
	if cfg.PageSize < 1 {
		cfg.PageSize = defaultBSEPageSize
	}
	return &BSE{
		client: client,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "source"), zap.String("source", SourceBSE)),
	}
}

// Name implements Source.
func (b *BSE) Name() string { return SourceBSE }

// bseEnvelope is the wire shape of announcement responses. Rows stay raw
// so the verbatim payload can ride along into storage.
type bseEnvelope struct {
	Table []json.RawMessage `json:"Table"`
}

type bseRow struct {
	ScripCode   json.Number `json:"SCRIP_CD"`
	CompanyName string      `json:"SLONGNAME"`
	NewsDate    string      `json:"NEWS_DT"`
	BroadcastAt string      `json:"DT_TM"`
	Category    string      `json:"CATEGORYNAME"`
	Headline    string      `json:"NEWSSUB"`
	Body        string      `json:"MORE"`
	Attachment  string      `json:"ATTACHMENTNAME"`
}

// Fetch implements Source. The window is cut into short chunks and each
// chunk paged until the API returns an empty Table. A chunk that keeps
// failing is recorded as a gap and the fetch moves on.
func (b *BSE) Fetch(ctx context.Context, win Window, q Query) (*Result, error) {
	chunks := SplitWindow(win, b.cfg.ChunkDays)
	res := &Result{}

	for i, chunk := range chunks {
		rows, err := b.fetchChunk(ctx, chunk, q)
		if err != nil {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			b.log.Warn("chunk abandoned, recording gap",
				zap.String("from", chunk.From.Format("2006-01-02")),
				zap.String("to", chunk.To.Format("2006-01-02")),
				zap.Error(err),
			)
			res.Gaps = append(res.Gaps, chunk)
		} else {
			res.Announcements = append(res.Announcements, rows...)
		}

		if i < len(chunks)-1 && b.cfg.ChunkDelay > 0 {
			if err := resilience.Sleep(ctx, b.cfg.ChunkDelay); err != nil {
				return res, err
			}
		}
	}

	b.log.Info("fetch complete",
		zap.Int("announcements", len(res.Announcements)),
		zap.Int("chunks", len(chunks)),
		zap.Int("gaps", len(res.Gaps)),
	)
	return res, nil
}

// fetchChunk pages one date chunk until the API hands back an empty Table.
func (b *BSE) fetchChunk(ctx context.Context, chunk Window, q Query) ([]model.RawAnnouncement, error) {
	category := q.Category
	if category == "" {
		category = b.cfg.DefaultCategory
	}
	if category == "" {
		category = "-1"
	}

	// Company-scoped queries go through the subcategory endpoint.
	endpoint := b.cfg.APIBase + "/AnnGetData/w"
	if q.Symbol != "" {
		endpoint = b.cfg.APIBase + "/AnnSubCategoryGetData/w"
	}

	var out []model.RawAnnouncement
	for page := 1; ; page++ {
		params := url.Values{
			"pageno":      {strconv.Itoa(page)},
			"strCat":      {category},
			"strPrevDate": {chunk.From.Format("20060102")},
			"strScrip":    {q.Symbol},
			"strSearch":   {"P"},
			"strToDate":   {chunk.To.Format("20060102")},
			"strType":     {"C"},
			"PageSize":    {strconv.Itoa(b.cfg.PageSize)},
		}
		if q.Symbol != "" {
			params.Set("subcategory", "")
		}

		var envelope bseEnvelope
		if err := b.client.GetJSON(ctx, endpoint, params, &envelope); err != nil {
			return nil, err
		}
		if len(envelope.Table) == 0 {
			break
		}

		for _, raw := range envelope.Table {
			ann, err := b.decodeRow(raw)
			if err != nil {
				b.log.Debug("skipping undecodable row", zap.Error(err))
				continue
			}
			out = append(out, ann)
		}
	}
	return out, nil
}

func (b *BSE) decodeRow(raw json.RawMessage) (model.RawAnnouncement, error) {
	var row bseRow
	if err := json.Unmarshal(raw, &row); err != nil {
		return model.RawAnnouncement{}, eris.Wrap(err, "source: decode bse row")
	}

	filedAt := row.NewsDate
	if filedAt == "" {
		filedAt = row.BroadcastAt
	}

	return model.RawAnnouncement{
		Source:         SourceBSE,
		Symbol:         strings.TrimSpace(row.ScripCode.String()),
		CompanyName:    strings.TrimSpace(row.CompanyName),
		FilingDate:     parseBSETime(filedAt),
		Category:       strings.TrimSpace(row.Category),
		Headline:       strings.TrimSpace(row.Headline),
		Body:           strings.TrimSpace(row.Body),
		AttachmentName: strings.TrimSpace(row.Attachment),
		Raw:            raw,
	}, nil
}

// parseBSETime handles the API's ISO-ish timestamps, with or without a
// fractional second. Unparseable input yields the zero time, which the
// persistence layer treats as a missing key.
func parseBSETime(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range []string{
		"2006-01-02T15:04:05.999999999",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}
