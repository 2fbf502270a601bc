package pdfstore

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/halal-lens/filings-cli/internal/model"
	"github.com/halal-lens/filings-cli/internal/resilience"
	"github.com/halal-lens/filings-cli/internal/session"
)

var pdfMagic = []byte("%PDF")

// Outcome is where one attachment ended up.
type Outcome struct {
	Status model.AttachmentStatus
	Path   string // object path, set when the attachment is stored
}

// ResolverConfig holds the URL bases for bare attachment filenames.
type ResolverConfig struct {
	// LiveURL serves recently filed attachments.
	LiveURL string

	// ArchiveURL serves attachments moved into the dated archive; the
	// filing year and month extend the path.
	ArchiveURL string
}

// Resolver downloads filing attachments through a throttled session and
// parks validated PDFs in the object store under their deterministic path.
type Resolver struct {
	store  ObjectStore
	client session.Client
	cfg    ResolverConfig
	log    *zap.Logger
}

// NewResolver wires a resolver. Zero-value config fields fall back to the
// exchange's live and archive attachment hosts.
func NewResolver(store ObjectStore, client session.Client, cfg ResolverConfig) *Resolver {
	if cfg.LiveURL == "" {
		cfg.LiveURL = "https://www.bseindia.com/xml-data/corpfiling/AttachLive"
	}
	if cfg.ArchiveURL == "" {
		cfg.ArchiveURL = "https://www.bseindia.com/xml-data/corpfiling/AttachHis"
	}
	return &Resolver{
		store:  store,
		client: client,
		cfg:    cfg,
		log:    zap.L().With(zap.String("component", "pdfstore")),
	}
}

// Resolve fetches the attachment of one classified filing and stores it.
// An attachment already in the bucket short-circuits without any network
// traffic, so re-running a window is cheap.
func (r *Resolver) Resolve(ctx context.Context, raw model.RawAnnouncement, conf model.Confidence) Outcome {
	if raw.AttachmentName == "" {
		return Outcome{Status: model.AttachmentNone}
	}

	objectPath := ObjectPath(raw.Symbol, raw.FilingDate, conf)
	log := r.log.With(zap.String("symbol", raw.Symbol), zap.String("path", objectPath))

	exists, err := r.store.Exists(ctx, objectPath)
	if err != nil {
		log.Warn("exists check failed", zap.Error(err))
		return Outcome{Status: model.AttachmentFailed}
	}
	if exists {
		log.Debug("attachment already stored")
		return Outcome{Status: model.AttachmentStored, Path: objectPath}
	}

	onlyNotFound := true
	for _, candidate := range r.candidates(raw) {
		body, err := r.client.Get(ctx, candidate, nil)
		if err != nil {
			if resilience.Classify(err) == resilience.ClassNotFound {
				log.Debug("attachment not at candidate", zap.String("url", candidate))
				continue
			}
			log.Warn("attachment download failed", zap.String("url", candidate), zap.Error(err))
			return Outcome{Status: model.AttachmentFailed}
		}

		onlyNotFound = false
		if !bytes.HasPrefix(body, pdfMagic) {
			log.Warn("payload is not a PDF", zap.String("url", candidate), zap.Int("bytes", len(body)))
			continue
		}

		if err := r.store.Put(ctx, objectPath, body); err != nil {
			log.Warn("store write failed", zap.Error(err))
			return Outcome{Status: model.AttachmentFailed}
		}
		log.Info("attachment stored", zap.Int("bytes", len(body)))
		return Outcome{Status: model.AttachmentStored, Path: objectPath}
	}

	if onlyNotFound {
		log.Warn("attachment gone from live and archive hosts")
		return Outcome{Status: model.AttachmentMissing}
	}
	return Outcome{Status: model.AttachmentFailed}
}

// candidates lists the URLs to try, in order. Absolute attachment names
// are used as-is; bare filenames try the live host first and then the
// dated archive the exchange moves older filings into.
func (r *Resolver) candidates(raw model.RawAnnouncement) []string {
	name := raw.AttachmentName
	if strings.HasPrefix(name, "http://") || strings.HasPrefix(name, "https://") {
		return []string{name}
	}
	return []string{
		r.cfg.LiveURL + "/" + name,
		fmt.Sprintf("%s/%s/%s", r.cfg.ArchiveURL, raw.FilingDate.Format("2006/01"), name),
	}
}
