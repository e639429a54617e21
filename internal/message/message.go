// Package message expands structured soapstone messages into display text.
package message

import (
	"strings"

	"github.com/joelghill/soapstone/internal/lexicon"
)

// placeholder is the run of characters a base phrase reserves for its fill.
const placeholder = "****"

// ComposeText expands message parts into flat display text. Each part
// substitutes its fill selection into the base phrase's placeholder; parts
// missing either side are skipped. Vocabulary checks belong to the record
// validator, not here.
func ComposeText(msg lexicon.Message) string {
	parts := make([]string, 0, len(msg))
	for _, part := range msg {
		if part.Base == nil || part.Fill == nil {
			continue
		}
		parts = append(parts, strings.ReplaceAll(part.Base.Selection, placeholder, part.Fill.Selection))
	}
	return strings.TrimSpace(strings.Join(parts, " "))
}
