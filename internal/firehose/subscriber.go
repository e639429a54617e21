// Package firehose consumes repository events from a Jetstream endpoint and
// feeds them to the ingestion pipeline.
package firehose

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/joelghill/soapstone/internal/domain"
	"github.com/joelghill/soapstone/internal/lexicon"
)

const (
	cursorServiceName  = "jetstream"
	cursorSaveInterval = 5 * time.Second
)

// wantedCollections is the set of collection NSIDs this subscriber requests
// from Jetstream.
var wantedCollections = []string{
	lexicon.PostNSID,
	lexicon.RatingNSID,
}

// Subscriber connects to the Jetstream firehose and applies events through
// the post service, strictly one at a time. Sequential application is what
// keeps last-writer-wins by indexed_at meaningful: two upserts for the same
// uri racing across goroutines could apply in reverse order.
type Subscriber struct {
	url     *url.URL
	service *domain.PostService
	logger  *slog.Logger
}

// NewSubscriber creates a new firehose subscriber. The endpoint URL is parsed
// once here so a bad configuration fails at startup instead of on the first
// connection attempt.
func NewSubscriber(firehoseURL string, service *domain.PostService, logger *slog.Logger) (*Subscriber, error) {
	u, err := url.Parse(firehoseURL)
	if err != nil {
		return nil, fmt.Errorf("parse firehose url: %w", err)
	}
	return &Subscriber{
		url:     u,
		service: service,
		logger:  logger,
	}, nil
}

// Start connects to the firehose and processes events until the context is
// cancelled. It automatically reconnects on transient errors.
func (s *Subscriber) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
			if err := s.subscribe(ctx); err != nil {
				s.logger.Error("firehose connection error, reconnecting", "error", err)
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(5 * time.Second):
					// backoff before reconnecting
				}
			}
		}
	}
}

func (s *Subscriber) buildURL(cursor int64) string {
	u := *s.url
	q := u.Query()
	for _, c := range wantedCollections {
		q.Add("wantedCollections", c)
	}
	if cursor > 0 {
		q.Set("cursor", fmt.Sprintf("%d", cursor))
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func (s *Subscriber) subscribe(ctx context.Context) error {
	cursor, err := s.service.GetCursor(ctx, cursorServiceName)
	if err != nil {
		s.logger.Warn("failed to load cursor, starting from live", "error", err)
	}

	wsURL := s.buildURL(cursor)
	s.logger.Info("connecting to firehose", "url", wsURL)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("dial firehose: %w", err)
	}
	defer conn.Close()

	s.logger.Info("connected to firehose")

	lastCursorSave := time.Now()
	var latestCursor int64
	var eventsReceived, commitsApplied int64
	lastStatsLog := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		_, data, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read message: %w", err)
		}

		event, err := parseEvent(data)
		if err != nil {
			s.logger.Error("failed to parse event", "error", err)
			continue
		}

		eventsReceived++
		latestCursor = event.TimeUS

		if evt, ok := toDomainEvent(event); ok {
			s.service.HandleEvent(ctx, evt)
			commitsApplied++
		}

		// Log stats every 30 seconds
		if time.Since(lastStatsLog) >= 30*time.Second {
			s.logger.Info("firehose stats",
				"events_received", eventsReceived,
				"commits_applied", commitsApplied,
			)
			lastStatsLog = time.Now()
		}

		// Periodically save cursor
		if time.Since(lastCursorSave) >= cursorSaveInterval {
			if err := s.service.UpdateCursor(ctx, cursorServiceName, latestCursor); err != nil {
				s.logger.Error("failed to save cursor", "error", err)
			} else {
				lastCursorSave = time.Now()
			}
		}
	}
}
