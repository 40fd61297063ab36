package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

// ProcessingTime is stored as a duration, not a millisecond count.
// Writing a converted integer would decode a million times smaller.
func TestDocumentMetadataProcessingTimeRoundTrip(t *testing.T) {
	meta := DocumentMetadata{
		Size:           2048,
		Pages:          3,
		ProcessingTime: 1500 * time.Millisecond,
		QualityScore:   0.91,
	}

	raw, err := bson.Marshal(meta)
	require.NoError(t, err)

	var decoded DocumentMetadata
	require.NoError(t, bson.Unmarshal(raw, &decoded))

	assert.Equal(t, 1500*time.Millisecond, decoded.ProcessingTime)
	assert.Equal(t, meta.Pages, decoded.Pages)
	assert.Equal(t, meta.QualityScore, decoded.QualityScore)
}
