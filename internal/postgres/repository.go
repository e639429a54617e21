// Package postgres implements the materialized store on PostgreSQL with
// PostGIS.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/joelghill/soapstone/internal/domain"
	"github.com/joelghill/soapstone/internal/geo"
)

//go:embed schema.sql
var schemaSQL string

// Repository implements domain.PostStore, domain.RatingStore, and
// domain.CursorStore using PostgreSQL.
type Repository struct {
	db *sql.DB
}

// NewRepository connects to PostgreSQL at the given URL, verifies the
// connection, and returns a new Repository. The caller should call Close
// when the repository is no longer needed.
func NewRepository(databaseURL string) (*Repository, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

// Close closes the underlying database connection.
func (r *Repository) Close() error {
	return r.db.Close()
}

// Migrate applies the embedded schema. Every statement is idempotent, so
// running it on an already-initialized database is a no-op.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// UpsertPost inserts a post or, on conflict, overwrites every mutable field
// in a single statement. Redelivery of the same event is a no-op beyond
// refreshing indexed_at.
func (r *Repository) UpsertPost(ctx context.Context, post *domain.Post) error {
	query := `
		INSERT INTO post (uri, author_did, text, location, elevation, created_at, indexed_at)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326), $6, $7, $8)
		ON CONFLICT (uri) DO UPDATE SET
			author_did = EXCLUDED.author_did,
			text       = EXCLUDED.text,
			location   = EXCLUDED.location,
			elevation  = EXCLUDED.elevation,
			created_at = EXCLUDED.created_at,
			indexed_at = EXCLUDED.indexed_at`

	var elevation sql.NullFloat64
	if post.Location.Alt != nil {
		elevation = sql.NullFloat64{Float64: *post.Location.Alt, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		post.URI,
		post.AuthorDID,
		post.Text,
		post.Location.Lon,
		post.Location.Lat,
		elevation,
		post.CreatedAt,
		post.IndexedAt,
	)
	return err
}

// DeletePost removes a post by URI. The foreign key cascades to its ratings.
// Deleting a non-existent post is not an error.
func (r *Repository) DeletePost(ctx context.Context, uri string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM post WHERE uri = $1`, uri)
	return err
}

// GetPost returns a post by URI, or nil if it does not exist.
func (r *Repository) GetPost(ctx context.Context, uri string) (*domain.Post, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT uri, author_did, text, ST_Y(location), ST_X(location), elevation, created_at, indexed_at
		FROM post
		WHERE uri = $1`, uri,
	)

	post, err := scanPost(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}
	return post, nil
}

// FindNear returns posts within radiusMeters of center, newest first with
// uri as the tie-break. The geography cast makes ST_DWithin measure
// great-circle meters; the boundary is inclusive.
func (r *Repository) FindNear(ctx context.Context, center geo.Point, radiusMeters int) ([]domain.Post, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT uri, author_did, text, ST_Y(location), ST_X(location), elevation, created_at, indexed_at
		FROM post
		WHERE ST_DWithin(location::geography, ST_SetSRID(ST_MakePoint($1, $2), 4326)::geography, $3)
		ORDER BY created_at DESC, uri ASC`,
		center.Lon, center.Lat, radiusMeters,
	)
	if err != nil {
		return nil, fmt.Errorf("query posts near (%f, %f) within %dm: %w", center.Lat, center.Lon, radiusMeters, err)
	}
	defer rows.Close()

	var posts []domain.Post
	for rows.Next() {
		post, err := scanPost(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan post: %w", err)
		}
		posts = append(posts, *post)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(scan func(...any) error) (*domain.Post, error) {
	var p domain.Post
	var elevation sql.NullFloat64
	err := scan(
		&p.URI,
		&p.AuthorDID,
		&p.Text,
		&p.Location.Lat,
		&p.Location.Lon,
		&elevation,
		&p.CreatedAt,
		&p.IndexedAt,
	)
	if err != nil {
		return nil, err
	}
	if elevation.Valid {
		p.Location.Alt = &elevation.Float64
	}
	return &p, nil
}

// UpsertRating inserts a rating or overwrites it on conflict. The insert
// fails if the referenced post has not been materialized yet; callers treat
// that like any other storage failure.
func (r *Repository) UpsertRating(ctx context.Context, rating *domain.Rating) error {
	query := `
		INSERT INTO rating (uri, author_did, post_uri, positive, created_at, indexed_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (uri) DO UPDATE SET
			author_did = EXCLUDED.author_did,
			post_uri   = EXCLUDED.post_uri,
			positive   = EXCLUDED.positive,
			created_at = EXCLUDED.created_at,
			indexed_at = EXCLUDED.indexed_at`

	_, err := r.db.ExecContext(ctx, query,
		rating.URI,
		rating.AuthorDID,
		rating.PostURI,
		rating.Positive,
		rating.CreatedAt,
		rating.IndexedAt,
	)
	return err
}

// DeleteRating removes a rating by URI. Deleting a non-existent rating is
// not an error.
func (r *Repository) DeleteRating(ctx context.Context, uri string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM rating WHERE uri = $1`, uri)
	return err
}

// RatingTallies counts positive and negative ratings for the given posts in
// a single grouped query. Posts without ratings are absent from the map.
func (r *Repository) RatingTallies(ctx context.Context, postURIs []string) (map[string]domain.RatingTally, error) {
	tallies := make(map[string]domain.RatingTally, len(postURIs))
	if len(postURIs) == 0 {
		return tallies, nil
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT post_uri,
			COUNT(*) FILTER (WHERE positive),
			COUNT(*) FILTER (WHERE NOT positive)
		FROM rating
		WHERE post_uri = ANY($1)
		GROUP BY post_uri`,
		pq.Array(postURIs),
	)
	if err != nil {
		return nil, fmt.Errorf("query rating tallies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var uri string
		var tally domain.RatingTally
		if err := rows.Scan(&uri, &tally.Positive, &tally.Negative); err != nil {
			return nil, fmt.Errorf("scan rating tally: %w", err)
		}
		tallies[uri] = tally
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate rating tallies: %w", err)
	}
	return tallies, nil
}

// GetCursor retrieves the saved firehose cursor for a service.
func (r *Repository) GetCursor(ctx context.Context, service string) (int64, error) {
	var cursor int64
	err := r.db.QueryRowContext(ctx,
		`SELECT cursor_value FROM cursors WHERE service = $1`, service,
	).Scan(&cursor)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	return cursor, err
}

// UpdateCursor upserts the firehose cursor for a service.
func (r *Repository) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO cursors (service, cursor_value, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (service) DO UPDATE SET cursor_value = $2, updated_at = $3`,
		service, cursor, time.Now().UTC(),
	)
	return err
}
