package domain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joelghill/soapstone/internal/geo"
	"github.com/joelghill/soapstone/internal/lexicon"
	"github.com/joelghill/soapstone/internal/message"
)

// Radius bounds for location queries, in meters.
const (
	MinRadiusMeters     = 1
	MaxRadiusMeters     = 1000
	DefaultRadiusMeters = 1000
)

// ErrInvalidRadius indicates a radius outside [MinRadiusMeters, MaxRadiusMeters].
var ErrInvalidRadius = errors.New("radius out of range")

// ErrUpstreamWrite indicates the remote repository write itself failed. The
// local store is never touched in this case.
var ErrUpstreamWrite = errors.New("repository write failed")

// PostService owns the ingestion pipeline, the optimistic write path, and
// location queries. Both write paths go through the same idempotent store
// operations, so the last applied write wins regardless of origin.
type PostService struct {
	posts   PostStore
	ratings RatingStore
	cursors CursorStore
	pds     RecordWriter
	logger  *slog.Logger
	now     func() time.Time
}

// NewPostService creates a PostService.
func NewPostService(posts PostStore, ratings RatingStore, cursors CursorStore, pds RecordWriter, logger *slog.Logger) *PostService {
	return &PostService{
		posts:   posts,
		ratings: ratings,
		cursors: cursors,
		pds:     pds,
		logger:  logger,
		now:     time.Now,
	}
}

// HandleEvent applies one firehose event to the materialized store. Every
// failure is logged and swallowed: a bad record or a storage error must never
// stop stream consumption, and since all store operations are idempotent a
// later delivery converges the replica. Callers must invoke HandleEvent
// sequentially per stream connection.
func (s *PostService) HandleEvent(ctx context.Context, evt *Event) {
	switch evt.Op {
	case OpCreate, OpUpdate:
		switch evt.Collection {
		case lexicon.PostNSID:
			s.indexPost(ctx, evt)
		case lexicon.RatingNSID:
			s.indexRating(ctx, evt)
		}
	case OpDelete:
		switch evt.Collection {
		case lexicon.PostNSID:
			if err := s.posts.DeletePost(ctx, evt.URI); err != nil {
				s.logger.Error("failed to delete post", "uri", evt.URI, "author", evt.AuthorDID, "error", err)
			}
		case lexicon.RatingNSID:
			if err := s.ratings.DeleteRating(ctx, evt.URI); err != nil {
				s.logger.Error("failed to delete rating", "uri", evt.URI, "author", evt.AuthorDID, "error", err)
			}
		}
	}
}

func (s *PostService) indexPost(ctx context.Context, evt *Event) {
	var record lexicon.PostRecord
	if err := json.Unmarshal(evt.Record, &record); err != nil {
		s.logger.Warn("dropping undecodable post record", "uri", evt.URI, "author", evt.AuthorDID, "op", evt.Op, "error", err)
		return
	}
	if err := lexicon.ValidatePost(&record); err != nil {
		s.logger.Warn("dropping invalid post record", "uri", evt.URI, "author", evt.AuthorDID, "op", evt.Op, "error", err)
		return
	}

	post, err := s.buildPost(evt.URI, evt.AuthorDID, &record)
	if err != nil {
		s.logger.Warn("dropping post record", "uri", evt.URI, "author", evt.AuthorDID, "op", evt.Op, "error", err)
		return
	}

	if err := s.posts.UpsertPost(ctx, post); err != nil {
		s.logger.Error("failed to upsert post", "uri", evt.URI, "author", evt.AuthorDID, "error", err)
	}
}

func (s *PostService) indexRating(ctx context.Context, evt *Event) {
	var record lexicon.RatingRecord
	if err := json.Unmarshal(evt.Record, &record); err != nil {
		s.logger.Warn("dropping undecodable rating record", "uri", evt.URI, "author", evt.AuthorDID, "op", evt.Op, "error", err)
		return
	}
	if err := lexicon.ValidateRating(&record); err != nil {
		s.logger.Warn("dropping invalid rating record", "uri", evt.URI, "author", evt.AuthorDID, "op", evt.Op, "error", err)
		return
	}

	rating, err := s.buildRating(evt.URI, evt.AuthorDID, &record)
	if err != nil {
		s.logger.Warn("dropping rating record", "uri", evt.URI, "author", evt.AuthorDID, "op", evt.Op, "error", err)
		return
	}

	if err := s.ratings.UpsertRating(ctx, rating); err != nil {
		s.logger.Error("failed to upsert rating", "uri", evt.URI, "author", evt.AuthorDID, "error", err)
	}
}

func (s *PostService) buildPost(uri, authorDID string, record *lexicon.PostRecord) (*Post, error) {
	point, err := geo.Parse(record.Location.URI)
	if err != nil {
		return nil, err
	}
	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}
	return &Post{
		URI:       uri,
		AuthorDID: authorDID,
		Text:      message.ComposeText(record.Message),
		Location:  point,
		CreatedAt: createdAt,
		IndexedAt: s.now().UTC(),
	}, nil
}

func (s *PostService) buildRating(uri, authorDID string, record *lexicon.RatingRecord) (*Rating, error) {
	createdAt, err := time.Parse(time.RFC3339, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("parse createdAt: %w", err)
	}
	return &Rating{
		URI:       uri,
		AuthorDID: authorDID,
		PostURI:   record.Post.URI,
		Positive:  *record.Value,
		CreatedAt: createdAt,
		IndexedAt: s.now().UTC(),
	}, nil
}

// GetPostsByLocation returns posts within the requested radius of the given
// geo URI, newest first, with rating tallies. A nil radius means the caller
// did not supply one and falls back to DefaultRadiusMeters; any supplied
// value outside the configured bounds, zero included, fails with
// ErrInvalidRadius.
func (s *PostService) GetPostsByLocation(ctx context.Context, locationURI string, radius *int) ([]PostView, error) {
	radiusMeters := DefaultRadiusMeters
	if radius != nil {
		radiusMeters = *radius
	}
	if radiusMeters < MinRadiusMeters || radiusMeters > MaxRadiusMeters {
		return nil, fmt.Errorf("%w: %d is not in [%d, %d]", ErrInvalidRadius, radiusMeters, MinRadiusMeters, MaxRadiusMeters)
	}

	center, err := geo.Parse(locationURI)
	if err != nil {
		return nil, err
	}

	posts, err := s.posts.FindNear(ctx, center, radiusMeters)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}

	uris := make([]string, len(posts))
	for i, p := range posts {
		uris[i] = p.URI
	}
	tallies, err := s.ratings.RatingTallies(ctx, uris)
	if err != nil {
		return nil, fmt.Errorf("count ratings: %w", err)
	}

	views := make([]PostView, len(posts))
	for i, p := range posts {
		tally := tallies[p.URI]
		views[i] = PostView{
			URI:                  p.URI,
			AuthorDID:            p.AuthorDID,
			Text:                 p.Text,
			Location:             geo.Format(p.Location),
			PositiveRatingsCount: tally.Positive,
			NegativeRatingsCount: tally.Negative,
			IndexedAt:            p.IndexedAt.UTC().Format(time.RFC3339),
		}
	}
	return views, nil
}

// CreatePostResult reports a successful post write.
type CreatePostResult struct {
	URI              string `json:"uri"`
	CID              string `json:"cid"`
	ValidationStatus string `json:"validationStatus"`
}

// CreateRatingResult reports a successful rating write.
type CreateRatingResult struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// CreatePost writes a new post record to the author's repository, then
// applies the same write to the local store so the author sees it
// immediately. The local write is best effort: the repository already holds
// the record, and the firehose delivery of this event converges the replica
// if the local write fails.
func (s *PostService) CreatePost(ctx context.Context, authorDID string, msg lexicon.Message, location lexicon.Location) (*CreatePostResult, error) {
	record := &lexicon.PostRecord{
		Type:      lexicon.PostNSID,
		Message:   msg,
		Location:  location,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := lexicon.ValidatePost(record); err != nil {
		return nil, err
	}
	// A bad location would land in the repository but never materialize, so
	// reject it before the remote write.
	if _, err := geo.Parse(location.URI); err != nil {
		return nil, err
	}

	uri, cid, err := s.pds.CreateRecord(ctx, authorDID, lexicon.PostNSID, record)
	if err != nil {
		return nil, fmt.Errorf("%w: create post: %v", ErrUpstreamWrite, err)
	}

	post, err := s.buildPost(uri, authorDID, record)
	if err == nil {
		err = s.posts.UpsertPost(ctx, post)
	}
	if err != nil {
		s.logger.Warn("optimistic post write failed, waiting for firehose", "uri", uri, "author", authorDID, "error", err)
	}

	return &CreatePostResult{URI: uri, CID: cid, ValidationStatus: "valid"}, nil
}

// CreateRating writes a rating record to the author's repository and then
// best-effort materializes it locally, mirroring CreatePost.
func (s *PostService) CreateRating(ctx context.Context, authorDID string, post lexicon.StrongRef, value bool) (*CreateRatingResult, error) {
	record := &lexicon.RatingRecord{
		Type:      lexicon.RatingNSID,
		Post:      &post,
		Value:     &value,
		CreatedAt: s.now().UTC().Format(time.RFC3339),
	}
	if err := lexicon.ValidateRating(record); err != nil {
		return nil, err
	}

	uri, cid, err := s.pds.CreateRecord(ctx, authorDID, lexicon.RatingNSID, record)
	if err != nil {
		return nil, fmt.Errorf("%w: create rating: %v", ErrUpstreamWrite, err)
	}

	rating, err := s.buildRating(uri, authorDID, record)
	if err == nil {
		err = s.ratings.UpsertRating(ctx, rating)
	}
	if err != nil {
		s.logger.Warn("optimistic rating write failed, waiting for firehose", "uri", uri, "author", authorDID, "error", err)
	}

	return &CreateRatingResult{URI: uri, CID: cid}, nil
}

// DeleteRating removes a rating record from the author's repository and then
// best-effort deletes the local row. The firehose delete event makes the
// local removal stick even if the immediate delete fails.
func (s *PostService) DeleteRating(ctx context.Context, authorDID, uri string) error {
	repo, collection, rkey, err := splitATURI(uri)
	if err != nil {
		return err
	}
	if collection != lexicon.RatingNSID {
		return fmt.Errorf("%q is not a rating record", uri)
	}
	if repo != authorDID {
		return fmt.Errorf("rating %q is not owned by %s", uri, authorDID)
	}

	if err := s.pds.DeleteRecord(ctx, repo, collection, rkey); err != nil {
		return fmt.Errorf("%w: delete rating: %v", ErrUpstreamWrite, err)
	}

	if err := s.ratings.DeleteRating(ctx, uri); err != nil {
		s.logger.Warn("optimistic rating delete failed, waiting for firehose", "uri", uri, "author", authorDID, "error", err)
	}
	return nil
}

// GetCursor retrieves the last-processed firehose cursor for the given service.
func (s *PostService) GetCursor(ctx context.Context, service string) (int64, error) {
	return s.cursors.GetCursor(ctx, service)
}

// UpdateCursor persists the firehose cursor for the given service.
func (s *PostService) UpdateCursor(ctx context.Context, service string, cursor int64) error {
	return s.cursors.UpdateCursor(ctx, service, cursor)
}

// splitATURI breaks at://<repo>/<collection>/<rkey> into its components.
func splitATURI(uri string) (repo, collection, rkey string, err error) {
	rest, ok := strings.CutPrefix(uri, "at://")
	if !ok {
		return "", "", "", fmt.Errorf("%q is not an at:// URI", uri)
	}
	parts := strings.Split(rest, "/")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("%q is not a record URI", uri)
	}
	return parts[0], parts[1], parts[2], nil
}
