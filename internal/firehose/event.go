package firehose

import (
	"encoding/json"
	"fmt"

	"github.com/joelghill/soapstone/internal/domain"
	"github.com/joelghill/soapstone/internal/lexicon"
)

// jetstreamEvent is the raw JSON structure from Jetstream.
type jetstreamEvent struct {
	DID    string           `json:"did"`
	TimeUS int64            `json:"time_us"`
	Kind   string           `json:"kind"`
	Commit *jetstreamCommit `json:"commit,omitempty"`
}

// jetstreamCommit is the raw commit data from Jetstream. The record payload
// stays raw here; the pipeline decodes it per collection.
type jetstreamCommit struct {
	Rev        string          `json:"rev"`
	Operation  string          `json:"operation"`
	Collection string          `json:"collection"`
	RKey       string          `json:"rkey"`
	Record     json.RawMessage `json:"record,omitempty"`
	CID        string          `json:"cid"`
}

func parseEvent(data []byte) (*jetstreamEvent, error) {
	var event jetstreamEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("unmarshal event: %w", err)
	}
	return &event, nil
}

// toDomainEvent narrows a raw Jetstream event to the closed union the
// pipeline handles. It returns false for non-commit kinds, unknown
// operations, and collections this service does not materialize.
func toDomainEvent(event *jetstreamEvent) (*domain.Event, bool) {
	if event.Kind != "commit" || event.Commit == nil {
		return nil, false
	}
	commit := event.Commit

	var op domain.Op
	switch commit.Operation {
	case "create":
		op = domain.OpCreate
	case "update":
		op = domain.OpUpdate
	case "delete":
		op = domain.OpDelete
	default:
		return nil, false
	}

	switch commit.Collection {
	case lexicon.PostNSID, lexicon.RatingNSID:
	default:
		return nil, false
	}

	if op != domain.OpDelete && len(commit.Record) == 0 {
		return nil, false
	}

	return &domain.Event{
		Op:         op,
		Collection: commit.Collection,
		URI:        fmt.Sprintf("at://%s/%s/%s", event.DID, commit.Collection, commit.RKey),
		AuthorDID:  event.DID,
		Record:     commit.Record,
	}, true
}
