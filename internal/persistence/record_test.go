package persistence

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vectral/vectral/internal/collection"
)

func TestRecordEncodeDecodeRoundTrip(t *testing.T) {
	t.Parallel()

	rec := NewUpsertPoint("demo", 7, []float32{1, 2, 3}, collection.Payload{"tag": collection.StringValue("a")})

	data, err := rec.Encode()
	require.NoError(t, err)
	require.Equal(t, byte('\n'), data[len(data)-1])

	got, err := DecodeRecord(data[:len(data)-1])
	require.NoError(t, err)
	require.Equal(t, rec, got)
}

func TestRecordValidateRejectsMissingFields(t *testing.T) {
	t.Parallel()

	cases := []Record{
		{Type: RecordCreateCollection},
		{Type: RecordCreateCollection, Name: "demo"},
		{Type: RecordDeleteCollection},
		{Type: RecordUpsertPoint},
		{Type: RecordUpsertPoint, Collection: "demo"},
		{Type: RecordDeletePoint},
		{Type: "bogus"},
	}
	for _, rec := range cases {
		require.ErrorIs(t, rec.Validate(), ErrInvalidRecord)
	}
}

func TestRecordValidateAcceptsWellFormedRecords(t *testing.T) {
	t.Parallel()

	require.NoError(t, NewCreateCollection("demo", 3, true).Validate())
	require.NoError(t, NewDeleteCollection("demo").Validate())
	require.NoError(t, NewUpsertPoint("demo", 1, []float32{1, 2, 3}, nil).Validate())
	require.NoError(t, NewDeletePoint("demo", 1).Validate())
}
