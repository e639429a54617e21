package domain

import (
	"time"

	"github.com/joelghill/soapstone/internal/geo"
)

// Post is a soapstone message materialized from the firehose.
type Post struct {
	// URI is the AT-URI of the post record (e.g.
	// at://did:plc:abc/social.soapstone.feed.post/3l3qo2vuowo2b).
	URI string

	// AuthorDID is the DID of the repository the record lives in.
	AuthorDID string

	// Text is the display text composed from the record's message parts. It
	// is computed once at ingestion and never recomputed on read.
	Text string

	// Location is the post's coordinates; its altitude, if any, is stored as
	// the elevation column.
	Location geo.Point

	// CreatedAt is the author-asserted creation time from the record payload.
	CreatedAt time.Time

	// IndexedAt is when this row was last applied locally. Whichever writer
	// applies last (optimistic path or firehose) wins.
	IndexedAt time.Time
}

// Rating is a positive or negative rating of a post.
type Rating struct {
	URI       string
	AuthorDID string
	PostURI   string
	Positive  bool
	CreatedAt time.Time
	IndexedAt time.Time
}

// RatingTally counts a post's positive and negative ratings. The zero value
// is the correct tally for an unrated post.
type RatingTally struct {
	Positive int
	Negative int
}

// PostView is the wire shape returned by getPosts.
type PostView struct {
	URI                  string `json:"uri"`
	AuthorDID            string `json:"authorDid"`
	Text                 string `json:"text"`
	Location             string `json:"location"`
	PositiveRatingsCount int    `json:"positiveRatingsCount"`
	NegativeRatingsCount int    `json:"negativeRatingsCount"`
	IndexedAt            string `json:"indexedAt"`
}
