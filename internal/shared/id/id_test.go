package id

import (
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRunIDShape(t *testing.T) {
	r := NewRunID()
	require.True(t, strings.HasPrefix(r.String(), "run_"))

	_, err := Parse(r.String())
	assert.NoError(t, err)
	assert.True(t, IsValid(r.String()))
}

func TestParseToleratesPrefix(t *testing.T) {
	r := NewRunID()
	bare := strings.TrimPrefix(r.String(), "run_")

	fromPrefixed, err := Parse(r.String())
	require.NoError(t, err)
	fromBare, err := Parse(bare)
	require.NoError(t, err)

	assert.Equal(t, fromBare, fromPrefixed)
}

func TestIsValidRejectsGarbage(t *testing.T) {
	for _, s := range []string{"", "invalid", "1234567890", "run_", "run_notaulid"} {
		assert.False(t, IsValid(s), "should reject %q", s)
	}
}

func TestTimestampTracksCreation(t *testing.T) {
	before := time.Now().UnixMilli()
	r := NewRunID()
	after := time.Now().UnixMilli()

	ts, err := Timestamp(r.String())
	require.NoError(t, err)

	// ULID time has millisecond precision.
	assert.GreaterOrEqual(t, ts.UnixMilli(), before)
	assert.LessOrEqual(t, ts.UnixMilli(), after)
}

func TestIDsSortBySubmission(t *testing.T) {
	ids := make([]string, 5)
	for i := range ids {
		ids[i] = NewRunID().String()
		time.Sleep(2 * time.Millisecond)
	}

	assert.True(t, sort.StringsAreSorted(ids), "ids should sort by creation time: %v", ids)
}

func TestConcurrentMintingIsUnique(t *testing.T) {
	const workers, each = 16, 200

	var mu sync.Mutex
	seen := make(map[RunID]bool, workers*each)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < each; j++ {
				r := NewRunID()
				mu.Lock()
				seen[r] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*each)
}
