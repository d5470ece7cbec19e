package batch

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/KevinKickass/OpenUnitSync/internal/protocol"
)

var ErrRecordTooLarge = errors.New("record exceeds batch size")

// SizeFunc estimates the encoded size of one record.
type SizeFunc[T any] func(T) (int, error)

// CBORSize estimates a record by its CBOR encoding.
func CBORSize[T any](record T) (int, error) {
	return protocol.EncodedSize(record)
}

// Split packs records into ordered chunks of at most maxBytes. Order is
// preserved and no chunk is empty.
func Split[T any](records []T, maxBytes int, size SizeFunc[T]) ([][]T, error) {
	return split(records, maxBytes, size, func(int) int { return 0 })
}

// SplitCBORArray is Split for chunks that are sent as one CBOR array: the
// array header of each chunk counts against maxBytes.
func SplitCBORArray[T any](records []T, maxBytes int) ([][]T, error) {
	return split(records, maxBytes, CBORSize[T], CBORArrayHeader)
}

// CBORArrayHeader is the size of the header of a definite-length CBOR
// array with n elements.
func CBORArrayHeader(n int) int {
	switch {
	case n < 24:
		return 1
	case n <= 0xff:
		return 2
	case n <= 0xffff:
		return 3
	case int64(n) <= 0xffffffff:
		return 5
	default:
		return 9
	}
}

// split packs records so that the sum of their sizes plus overhead(len)
// of the chunk stays within maxBytes.
func split[T any](records []T, maxBytes int, size SizeFunc[T], overhead func(n int) int) ([][]T, error) {
	if maxBytes <= 0 {
		return nil, fmt.Errorf("invalid batch size %d", maxBytes)
	}

	var chunks [][]T
	var current []T
	used := 0

	for i, record := range records {
		n, err := size(record)
		if err != nil {
			return nil, fmt.Errorf("size of record %d: %w", i, err)
		}
		if n+overhead(1) > maxBytes {
			return nil, fmt.Errorf("%w: record %d is %d bytes, limit %d", ErrRecordTooLarge, i, n, maxBytes)
		}

		if len(current) > 0 && used+n+overhead(len(current)+1) > maxBytes {
			chunks = append(chunks, current)
			current = nil
			used = 0
		}

		current = append(current, record)
		used += n
	}

	if len(current) > 0 {
		chunks = append(chunks, current)
	}

	return chunks, nil
}

type ChunkError struct {
	Index int
	Err   error
}

func (e ChunkError) Error() string {
	return fmt.Sprintf("chunk %d: %v", e.Index, e.Err)
}

// Result of sending a set of chunks. A failed chunk does not undo the ones
// already sent, so the count of sent chunks is always reported.
type Result struct {
	Chunks  int
	Sent    int
	Records int
	Failed  []ChunkError
}

func (r Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, len(r.Failed))
	for i, f := range r.Failed {
		errs[i] = f
	}
	return fmt.Errorf("%d of %d chunks failed: %w", len(r.Failed), r.Chunks, errors.Join(errs...))
}

// Send issues one call per chunk, waiting pace between calls. A failing
// chunk does not stop the remaining ones.
func Send[T any](ctx context.Context, chunks [][]T, pace time.Duration, send func(context.Context, []T) error) Result {
	res := Result{Chunks: len(chunks)}

	for i, chunk := range chunks {
		if i > 0 && pace > 0 {
			if err := Sleep(ctx, pace); err != nil {
				for j := i; j < len(chunks); j++ {
					res.Failed = append(res.Failed, ChunkError{Index: j, Err: err})
				}
				return res
			}
		}

		if err := send(ctx, chunk); err != nil {
			res.Failed = append(res.Failed, ChunkError{Index: i, Err: err})
			continue
		}
		res.Sent++
		res.Records += len(chunk)
	}

	return res
}

// Sleep waits d or until ctx is done.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
