package domain

import "encoding/json"

// Op is a repository write operation observed on the firehose.
type Op string

const (
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Event is one decoded firehose commit, restricted at the transport boundary
// to the collections this service materializes. Record is nil for deletes.
type Event struct {
	Op         Op
	Collection string
	URI        string
	AuthorDID  string
	Record     json.RawMessage
}
