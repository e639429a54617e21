package lexicon

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPost() *PostRecord {
	return &PostRecord{
		Type: PostNSID,
		Message: Message{
			{
				Base: &Phrase{Type: "social.soapstone.text.en.defs#basePhrase", Selection: "Be wary of ****"},
				Fill: &Phrase{Type: "social.soapstone.text.en.defs#bodyPart", Selection: "Rear"},
			},
		},
		Location:  Location{URI: "geo:52.099,-106.630"},
		CreatedAt: "2025-01-01T00:00:00Z",
	}
}

func TestValidatePost(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidatePost(validPost()))
	})

	t.Run("wrong type tag", func(t *testing.T) {
		r := validPost()
		r.Type = "app.bsky.feed.post"
		var invalidErr *InvalidRecordError
		require.ErrorAs(t, ValidatePost(r), &invalidErr)
		assert.Contains(t, invalidErr.Reason, "$type")
	})

	t.Run("missing message", func(t *testing.T) {
		r := validPost()
		r.Message = nil
		assert.Error(t, ValidatePost(r))
	})

	t.Run("missing location", func(t *testing.T) {
		r := validPost()
		r.Location.URI = ""
		assert.Error(t, ValidatePost(r))
	})

	t.Run("missing createdAt", func(t *testing.T) {
		r := validPost()
		r.CreatedAt = ""
		assert.Error(t, ValidatePost(r))
	})

	t.Run("phrase outside the vocabulary namespace", func(t *testing.T) {
		r := validPost()
		r.Message[0].Fill.Type = "com.example.text#bodyPart"
		var invalidErr *InvalidRecordError
		require.ErrorAs(t, ValidatePost(r), &invalidErr)
		assert.Contains(t, invalidErr.Reason, "com.example.text#bodyPart")
	})

	t.Run("part without fill passes shape validation", func(t *testing.T) {
		// The compositor skips incomplete parts; validation does not reject
		// them.
		r := validPost()
		r.Message[0].Fill = nil
		assert.NoError(t, ValidatePost(r))
	})

	t.Run("decodes from wire JSON", func(t *testing.T) {
		raw := `{
			"$type": "social.soapstone.feed.post",
			"message": [{
				"$type": "social.soapstone.message.defs#messagePart",
				"base": {"$type": "social.soapstone.text.en.defs#basePhrase", "selection": "Try ****"},
				"fill": {"$type": "social.soapstone.text.en.defs#technique", "selection": "Jumping off"}
			}],
			"location": {"$type": "social.soapstone.location.defs#location", "uri": "geo:52.099,-106.630"},
			"createdAt": "2025-01-01T00:00:00Z"
		}`
		var r PostRecord
		require.NoError(t, json.Unmarshal([]byte(raw), &r))
		require.NoError(t, ValidatePost(&r))
		assert.Equal(t, "Try ****", r.Message[0].Base.Selection)
		assert.Equal(t, "geo:52.099,-106.630", r.Location.URI)
	})
}

func validRating() *RatingRecord {
	positive := true
	return &RatingRecord{
		Type:      RatingNSID,
		Post:      &StrongRef{URI: "at://did:plc:author/social.soapstone.feed.post/p1", CID: "bafyrei"},
		Value:     &positive,
		CreatedAt: "2025-01-01T00:00:00Z",
	}
}

func TestValidateRating(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		assert.NoError(t, ValidateRating(validRating()))
	})

	t.Run("wrong type tag", func(t *testing.T) {
		r := validRating()
		r.Type = PostNSID
		assert.Error(t, ValidateRating(r))
	})

	t.Run("missing post reference", func(t *testing.T) {
		r := validRating()
		r.Post = nil
		assert.Error(t, ValidateRating(r))

		r = validRating()
		r.Post.URI = ""
		assert.Error(t, ValidateRating(r))
	})

	t.Run("post reference without a cid", func(t *testing.T) {
		r := validRating()
		r.Post.CID = ""
		var invalidErr *InvalidRecordError
		require.ErrorAs(t, ValidateRating(r), &invalidErr)
		assert.Contains(t, invalidErr.Reason, "cid")
	})

	t.Run("missing value", func(t *testing.T) {
		r := validRating()
		r.Value = nil
		var invalidErr *InvalidRecordError
		require.ErrorAs(t, ValidateRating(r), &invalidErr)
		assert.Contains(t, invalidErr.Reason, "value")
	})

	t.Run("missing createdAt", func(t *testing.T) {
		r := validRating()
		r.CreatedAt = ""
		assert.Error(t, ValidateRating(r))
	})
}
