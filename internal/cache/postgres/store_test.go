package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"transcriptd/internal/transcript"
)

func newMockStore(t *testing.T, ttl time.Duration) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)

	store, err := NewStoreWithPool(mock, "transcripts", ttl)
	require.NoError(t, err)
	return store, mock
}

func TestNewStoreWithPoolRejectsBadTableName(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	_, err = NewStoreWithPool(mock, "transcripts; DROP TABLE users", 0)
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	store, mock := newMockStore(t, 0)

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS transcripts").
		WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupHit(t *testing.T) {
	store, mock := newMockStore(t, time.Hour)

	segments := []transcript.Segment{{Start: 0, Duration: 4 * time.Second, Text: "hello"}}
	segmentJSON, err := json.Marshal(segments)
	require.NoError(t, err)

	extractedAt := time.Now().UTC().Add(-time.Minute)
	query := `SELECT url, segments, attempts, extracted_at, saved_at FROM transcripts WHERE video_id = $1`
	mock.ExpectQuery(regexp.QuoteMeta(query)).
		WithArgs("dQw4w9WgXcQ").
		WillReturnRows(pgxmock.NewRows([]string{"url", "segments", "attempts", "extracted_at", "saved_at"}).
			AddRow("https://www.youtube.com/watch?v=dQw4w9WgXcQ", segmentJSON, 2, extractedAt, time.Now().UTC()))

	tr, ok, err := store.Lookup(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, tr.FromCache)
	assert.Equal(t, "dQw4w9WgXcQ", tr.VideoID)
	assert.Equal(t, 2, tr.Attempts)
	assert.Equal(t, segments, tr.Segments)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupNoRowsIsAMiss(t *testing.T) {
	store, mock := newMockStore(t, time.Hour)

	mock.ExpectQuery("SELECT url, segments").
		WithArgs("dQw4w9WgXcQ").
		WillReturnError(pgx.ErrNoRows)

	tr, ok, err := store.Lookup(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, tr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupMiss(t *testing.T) {
	store, mock := newMockStore(t, time.Hour)

	mock.ExpectQuery("SELECT url, segments").
		WithArgs("dQw4w9WgXcQ").
		WillReturnError(errors.New("no rows in result set"))

	// A query error other than ErrNoRows must surface, not read as a miss.
	_, ok, err := store.Lookup(context.Background(), "dQw4w9WgXcQ")
	require.Error(t, err)
	require.False(t, ok)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLookupStaleRowIsAMiss(t *testing.T) {
	store, mock := newMockStore(t, time.Hour)

	segmentJSON, err := json.Marshal([]transcript.Segment{{Text: "old"}})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT url, segments").
		WithArgs("dQw4w9WgXcQ").
		WillReturnRows(pgxmock.NewRows([]string{"url", "segments", "attempts", "extracted_at", "saved_at"}).
			AddRow("https://www.youtube.com/watch?v=dQw4w9WgXcQ", segmentJSON, 1,
				time.Now().UTC().Add(-3*time.Hour), time.Now().UTC().Add(-2*time.Hour)))

	tr, ok, err := store.Lookup(context.Background(), "dQw4w9WgXcQ")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, tr)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveUpserts(t *testing.T) {
	store, mock := newMockStore(t, 0)

	tr := &transcript.Transcript{
		VideoID:     "dQw4w9WgXcQ",
		URL:         "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		Segments:    []transcript.Segment{{Text: "hello"}},
		Attempts:    1,
		ExtractedAt: time.Now().UTC(),
	}
	segmentJSON, err := json.Marshal(tr.Segments)
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO transcripts").
		WithArgs(tr.VideoID, tr.URL, segmentJSON, tr.Attempts, tr.ExtractedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Save(context.Background(), tr))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSaveIgnoresNilAndEmpty(t *testing.T) {
	store, mock := newMockStore(t, 0)

	require.NoError(t, store.Save(context.Background(), nil))
	require.NoError(t, store.Save(context.Background(), &transcript.Transcript{}))
	assert.NoError(t, mock.ExpectationsWereMet())
}
