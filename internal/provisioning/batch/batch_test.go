package batch

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

func fixedSize(n int) SizeFunc[int] {
	return func(int) (int, error) { return n, nil }
}

// valueSize uses the record value as its size.
func valueSize(v int) (int, error) { return v, nil }

func TestSplit(t *testing.T) {
	tests := []struct {
		name     string
		records  []int
		maxBytes int
		want     [][]int
	}{
		{"empty", nil, 10, nil},
		{"single chunk", []int{1, 2, 3}, 10, [][]int{{1, 2, 3}}},
		{"exact fit", []int{5, 5, 5}, 10, [][]int{{5, 5}, {5}}},
		{"each alone", []int{6, 6, 6}, 10, [][]int{{6}, {6}, {6}}},
		{"mixed", []int{4, 4, 3, 9, 1}, 10, [][]int{{4, 4}, {3}, {9, 1}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks, err := Split(tt.records, tt.maxBytes, valueSize)
			require.NoError(t, err)
			assert.Equal(t, tt.want, chunks)
		})
	}
}

func TestSplitPreservesOrder(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for round := 0; round < 200; round++ {
		records := make([]int, rng.Intn(40))
		largest := 1
		for i := range records {
			records[i] = 1 + rng.Intn(50)
			if records[i] > largest {
				largest = records[i]
			}
		}
		maxBytes := largest + rng.Intn(100)

		chunks, err := Split(records, maxBytes, valueSize)
		require.NoError(t, err)

		var joined []int
		for _, chunk := range chunks {
			require.NotEmpty(t, chunk)
			sum := 0
			for _, r := range chunk {
				sum += r
			}
			require.LessOrEqual(t, sum, maxBytes)
			joined = append(joined, chunk...)
		}
		if len(records) == 0 {
			assert.Empty(t, joined)
			continue
		}
		require.Equal(t, records, joined, fmt.Sprintf("round %d", round))
	}
}

func TestSplitRecordTooLarge(t *testing.T) {
	_, err := Split([]int{1, 20, 1}, 10, valueSize)
	assert.True(t, errors.Is(err, ErrRecordTooLarge))

	_, err = Split([]int{1}, 0, fixedSize(1))
	assert.Error(t, err)
}

func TestSplitCBOR(t *testing.T) {
	configs := make([]types.IOConfig, 20)
	for i := range configs {
		configs[i] = types.IOConfig{Index: i, Kind: types.IOKindLighting, Name: fmt.Sprintf("Light %02d", i)}
	}

	chunks, err := Split(configs, 64, CBORSize[types.IOConfig])
	require.NoError(t, err)
	assert.Greater(t, len(chunks), 1)

	next := 0
	for _, chunk := range chunks {
		for _, c := range chunk {
			assert.Equal(t, next, c.Index)
			next++
		}
	}
	assert.Equal(t, len(configs), next)
}

func TestSplitCBORArrayFitsEncodedChunk(t *testing.T) {
	configs := make([]types.IOConfig, 40)
	for i := range configs {
		configs[i] = types.IOConfig{Index: i, Kind: types.IOKindInput, Name: fmt.Sprintf("Input %02d motion sens", i)}
	}

	for _, maxBytes := range []int{64, 128, 512, 513, 1024} {
		chunks, err := SplitCBORArray(configs, maxBytes)
		require.NoError(t, err)

		var joined []types.IOConfig
		for i, chunk := range chunks {
			encoded, err := protocol.Marshal(chunk)
			require.NoError(t, err)
			assert.LessOrEqual(t, len(encoded), maxBytes, "budget %d chunk %d", maxBytes, i)
			joined = append(joined, chunk...)
		}
		assert.Equal(t, configs, joined)
	}
}

func TestSplitCBORArrayTooLarge(t *testing.T) {
	config := types.IOConfig{Index: 0, Kind: types.IOKindInput, Name: "Door"}
	n, err := CBORSize(config)
	require.NoError(t, err)

	// record alone fits, but not with the array header
	_, err = SplitCBORArray([]types.IOConfig{config}, n)
	assert.ErrorIs(t, err, ErrRecordTooLarge)

	chunks, err := SplitCBORArray([]types.IOConfig{config}, n+1)
	require.NoError(t, err)
	assert.Len(t, chunks, 1)
}

func TestCBORArrayHeader(t *testing.T) {
	for n, want := range map[int]int{0: 1, 23: 1, 24: 2, 255: 2, 256: 3, 65535: 3, 65536: 5} {
		assert.Equal(t, want, CBORArrayHeader(n), "n=%d", n)
	}

	for _, n := range []int{1, 23, 24, 300} {
		encoded, err := protocol.Marshal(make([]bool, n))
		require.NoError(t, err)
		assert.Equal(t, CBORArrayHeader(n), len(encoded)-n, "n=%d", n)
	}
}

func TestSendContinuesAfterFailure(t *testing.T) {
	chunks := [][]int{{1, 2}, {3}, {4, 5}, {6}}
	var calls [][]int

	res := Send(context.Background(), chunks, time.Millisecond, func(_ context.Context, chunk []int) error {
		calls = append(calls, chunk)
		if chunk[0] == 3 {
			return errors.New("unit busy")
		}
		return nil
	})

	assert.Equal(t, chunks, calls)
	assert.Equal(t, 4, res.Chunks)
	assert.Equal(t, 3, res.Sent)
	assert.Equal(t, 5, res.Records)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, 1, res.Failed[0].Index)
	require.Error(t, res.Err())
	assert.Contains(t, res.Err().Error(), "unit busy")
}

func TestSendAllSucceed(t *testing.T) {
	res := Send(context.Background(), [][]int{{1}, {2}}, 0, func(context.Context, []int) error { return nil })
	assert.NoError(t, res.Err())
	assert.Equal(t, 2, res.Sent)
}

func TestSendCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0

	res := Send(ctx, [][]int{{1}, {2}, {3}}, time.Hour, func(context.Context, []int) error {
		calls++
		cancel()
		return nil
	})

	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Sent)
	assert.Len(t, res.Failed, 2)
}
