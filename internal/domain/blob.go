package domain

import (
	"context"
	"io"
	"time"
)

// BlobInfo is metadata about one stored object.
type BlobInfo struct {
	Path         string
	Size         int64
	ContentType  string
	LastModified time.Time
}

// BlobWriter uploads objects to durable blob storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
}

// BlobReader retrieves objects and their metadata from blob storage.
type BlobReader interface {
	Get(ctx context.Context, path string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]BlobInfo, error)
	Exists(ctx context.Context, path string) (bool, error)
}

// BlobDeleter removes objects from blob storage.
type BlobDeleter interface {
	Delete(ctx context.Context, path string) error
}

// Archiver exports settled auctions to cold storage.
type Archiver interface {
	// ArchiveAuction uploads the settlement report of one settled auction.
	// It returns the number of orders included in the report.
	ArchiveAuction(ctx context.Context, auctionID uint64) (int64, error)
	// ArchiveAudit uploads audit-log entries recorded strictly before the
	// cutoff and returns how many were included.
	ArchiveAudit(ctx context.Context, before time.Time) (int64, error)
}
