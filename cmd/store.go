package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/halal-lens/filings-cli/internal/pdfstore"
	"github.com/halal-lens/filings-cli/internal/store"
)

// openStore connects the Postgres store from config.
func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.Database.URL == "" {
		return nil, eris.New("no database.url configured (set database.url or FILINGS_DATABASE_URL)")
	}
	return store.Connect(ctx, cfg.Database.URL, &store.PoolConfig{
		MaxConns: cfg.Database.MaxConns,
		MinConns: cfg.Database.MinConns,
	})
}

// openObjectStore connects the MinIO attachment bucket from config.
func openObjectStore() (*pdfstore.MinIOStore, error) {
	if !cfg.MinIO.HasCredentials() {
		return nil, eris.New("no object store credentials configured (set minio.access_key and minio.secret_key)")
	}
	return pdfstore.NewMinIO(pdfstore.MinIOConfig{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
}
