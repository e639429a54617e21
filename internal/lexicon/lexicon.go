// Package lexicon defines the soapstone record shapes and their validation.
package lexicon

import (
	"fmt"
	"strings"
)

// Collection NSIDs this service materializes.
const (
	PostNSID   = "social.soapstone.feed.post"
	RatingNSID = "social.soapstone.feed.rating"
)

// phraseNamespace is the NSID prefix every message vocabulary definition
// lives under (base phrases, characters, objects, techniques, ...).
const phraseNamespace = "social.soapstone.text."

// Phrase is one selection from the message vocabulary. The $type names the
// vocabulary table and Selection is the human-readable value.
type Phrase struct {
	Type      string `json:"$type"`
	Selection string `json:"selection"`
}

// MessagePart pairs a base phrase with the fill phrase substituted into its
// placeholder.
type MessagePart struct {
	Type string  `json:"$type,omitempty"`
	Base *Phrase `json:"base,omitempty"`
	Fill *Phrase `json:"fill,omitempty"`
}

// Message is the ordered list of parts making up a post's text.
type Message []MessagePart

// Location wraps a geo URI.
type Location struct {
	Type string `json:"$type,omitempty"`
	URI  string `json:"uri"`
}

// StrongRef is a reference to a specific version of a record.
type StrongRef struct {
	URI string `json:"uri"`
	CID string `json:"cid"`
}

// PostRecord is a social.soapstone.feed.post record.
type PostRecord struct {
	Type      string   `json:"$type"`
	Message   Message  `json:"message"`
	Location  Location `json:"location"`
	CreatedAt string   `json:"createdAt"`
}

// RatingRecord is a social.soapstone.feed.rating record declaring a positive
// or negative rating of a post.
type RatingRecord struct {
	Type      string     `json:"$type"`
	Post      *StrongRef `json:"post"`
	Value     *bool      `json:"value"`
	CreatedAt string     `json:"createdAt"`
}

// InvalidRecordError reports a record that failed shape or vocabulary checks.
// Records failing validation are never persisted; ingestion logs and skips
// them.
type InvalidRecordError struct {
	Reason string
}

func (e *InvalidRecordError) Error() string {
	return "invalid record: " + e.Reason
}

func invalid(format string, args ...any) *InvalidRecordError {
	return &InvalidRecordError{Reason: fmt.Sprintf(format, args...)}
}

// ValidatePost checks a post record's type tag, required fields, and message
// vocabulary. It has no side effects.
func ValidatePost(r *PostRecord) error {
	if r.Type != PostNSID {
		return invalid("unexpected $type %q, want %q", r.Type, PostNSID)
	}
	if len(r.Message) == 0 {
		return invalid("message is required")
	}
	if r.Location.URI == "" {
		return invalid("location is required")
	}
	if r.CreatedAt == "" {
		return invalid("createdAt is required")
	}
	for i, part := range r.Message {
		if part.Base != nil && !strings.HasPrefix(part.Base.Type, phraseNamespace) {
			return invalid("message part %d: base type %q is outside %s*", i, part.Base.Type, phraseNamespace)
		}
		if part.Fill != nil && !strings.HasPrefix(part.Fill.Type, phraseNamespace) {
			return invalid("message part %d: fill type %q is outside %s*", i, part.Fill.Type, phraseNamespace)
		}
	}
	return nil
}

// ValidateRating checks a rating record's type tag and required fields.
func ValidateRating(r *RatingRecord) error {
	if r.Type != RatingNSID {
		return invalid("unexpected $type %q, want %q", r.Type, RatingNSID)
	}
	if r.Post == nil || r.Post.URI == "" {
		return invalid("post reference is required")
	}
	if r.Post.CID == "" {
		return invalid("post reference cid is required")
	}
	if r.Value == nil {
		return invalid("value is required")
	}
	if r.CreatedAt == "" {
		return invalid("createdAt is required")
	}
	return nil
}
