package audit

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDigestJSON(t *testing.T) {
	assert.Empty(t, DigestJSON(nil))
	a := DigestJSON([]byte(`{"date":"2025-01-05"}`))
	b := DigestJSON([]byte(`{"date":"2025-01-06"}`))
	assert.Len(t, a, 64)
	assert.NotEqual(t, a, b)
}

func TestCompleteFillsDefaults(t *testing.T) {
	entry := complete(Entry{Action: ActionBackfill, Metadata: json.RawMessage(`{"from":"2025-01-01"}`)})
	_, err := uuid.Parse(entry.ID)
	require.NoError(t, err)
	assert.False(t, entry.CreatedAt.IsZero())
	assert.Equal(t, DigestJSON(entry.Metadata), entry.PayloadDigest)

	kept := complete(Entry{ID: "fixed", PayloadDigest: "d"})
	assert.Equal(t, "fixed", kept.ID)
	assert.Equal(t, "d", kept.PayloadDigest)
}

func TestNewRepositoryRejectsNilDB(t *testing.T) {
	_, err := NewRepository(nil)
	require.Error(t, err)
}
