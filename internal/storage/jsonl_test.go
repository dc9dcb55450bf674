package storage

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swapRelay/internal/model"
)

func TestJsonlJournalAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "swaps.jsonl")
	journal := NewJsonlJournal(path)

	require.NoError(t, journal.PutSwap(context.Background(), model.SwapRecord{ID: "1", Status: model.SwapStatusCompleted, AmountIn: "100"}))
	require.NoError(t, journal.PutSwap(context.Background(), model.SwapRecord{ID: "2", Status: model.SwapStatusFailed, Error: "boom"}))
	require.NoError(t, journal.PutSwaps(nil))

	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var got []model.SwapRecord
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var rec model.SwapRecord
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &rec))
		got = append(got, rec)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, got, 2)
	assert.Equal(t, "1", got[0].ID)
	assert.Equal(t, model.SwapStatusFailed, got[1].Status)
	assert.Equal(t, "boom", got[1].Error)
}

type failingJournal struct{ err error }

func (f failingJournal) PutSwap(context.Context, model.SwapRecord) error { return f.err }

func TestTeeJoinsErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "swaps.jsonl")
	boom := errors.New("db down")
	tee := Tee{NewJsonlJournal(path), nil, failingJournal{err: boom}}

	err := tee.PutSwap(context.Background(), model.SwapRecord{ID: "x"})
	require.ErrorIs(t, err, boom)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"id":"x"`)
}
