package domain

import (
	"context"

	"github.com/joelghill/soapstone/internal/geo"
)

// PostStore defines persistence operations for materialized posts. All write
// operations are idempotent: upserts overwrite on conflict and deletes of
// absent rows are not errors.
type PostStore interface {
	// UpsertPost inserts a post or, on primary-key conflict, overwrites all
	// mutable fields.
	UpsertPost(ctx context.Context, post *Post) error

	// DeletePost removes a post by URI. Ratings referencing it are removed
	// with it.
	DeletePost(ctx context.Context, uri string) error

	// GetPost returns a post by URI, or nil if it does not exist.
	GetPost(ctx context.Context, uri string) (*Post, error)

	// FindNear returns posts within radiusMeters of center (great-circle,
	// inclusive boundary), ordered by createdAt descending with uri ascending
	// as the tie-break.
	FindNear(ctx context.Context, center geo.Point, radiusMeters int) ([]Post, error)
}

// RatingStore defines persistence operations for materialized ratings.
type RatingStore interface {
	UpsertRating(ctx context.Context, rating *Rating) error
	DeleteRating(ctx context.Context, uri string) error

	// RatingTallies counts positive and negative ratings for the given posts
	// in a single grouped query. Posts without ratings are absent from the
	// result.
	RatingTallies(ctx context.Context, postURIs []string) (map[string]RatingTally, error)
}

// CursorStore defines persistence operations for firehose cursors.
type CursorStore interface {
	// GetCursor retrieves the last-processed firehose cursor for the given
	// service name. Returns 0 if no cursor has been saved.
	GetCursor(ctx context.Context, service string) (int64, error)

	// UpdateCursor persists the firehose cursor so we can resume on restart.
	UpdateCursor(ctx context.Context, service string, cursor int64) error
}

// RecordWriter writes records to an author's repository on their PDS. The
// repository is the source of truth; local materialization happens after.
type RecordWriter interface {
	// CreateRecord writes a new record and returns its AT-URI and CID. The
	// PDS mints the record key.
	CreateRecord(ctx context.Context, repo, collection string, record any) (uri, cid string, err error)

	// DeleteRecord removes a record from the repository.
	DeleteRecord(ctx context.Context, repo, collection, rkey string) error
}
