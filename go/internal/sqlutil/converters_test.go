package sqlutil

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNullableRoundTrips(t *testing.T) {
	assert.Nil(t, FromNullUUID(ToNullUUID(nil)))
	id := uuid.New()
	got := FromNullUUID(ToNullUUID(&id))
	require.NotNil(t, got)
	assert.Equal(t, id, *got)

	assert.Nil(t, FromSqlTime(ToSqlTime(nil)))
	now := time.Date(2025, 3, 14, 19, 0, 0, 0, time.UTC)
	ts := FromSqlTime(ToSqlTime(&now))
	require.NotNil(t, ts)
	assert.True(t, now.Equal(*ts))

	assert.False(t, ToNullRawMessage(nil).Valid)
	assert.Nil(t, FromNullRawMessage(ToNullRawMessage(json.RawMessage{})))
	assert.JSONEq(t, `{"a":1}`, string(FromNullRawMessage(ToNullRawMessage(json.RawMessage(`{"a":1}`)))))
}
