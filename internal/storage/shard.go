package storage

import (
	"fmt"
	"math/big"
	"strconv"
	"sync"
	"time"

	"github.com/devrev/streamdb/internal/model"
)

// Shard is an ordered, append-only sequence of records. It owns sequence
// number assignment for itself: numbers are decimal strings starting at "1"
// and strictly increasing. Appends and position reads are linearized under a
// per-shard mutex.
type Shard struct {
	mu              sync.Mutex
	id              string
	startingHashKey *big.Int
	endingHashKey   *big.Int
	records         []model.Record
	nextSequence    uint64
}

// ShardIDForIndex derives the deterministic shard ID for a creation index
func ShardIDForIndex(index int) string {
	return fmt.Sprintf("shardId-%012d", index)
}

func newShard(index int, startingHashKey, endingHashKey *big.Int) *Shard {
	return &Shard{
		id:              ShardIDForIndex(index),
		startingHashKey: startingHashKey,
		endingHashKey:   endingHashKey,
		nextSequence:    1,
	}
}

// ID returns the shard's identifier
func (s *Shard) ID() string {
	return s.id
}

// Append assigns the next sequence number and appends a record.
// Records are immutable once appended and are never removed.
func (s *Shard) Append(partitionKey string, data []byte) model.Record {
	s.mu.Lock()
	defer s.mu.Unlock()

	payload := make([]byte, len(data))
	copy(payload, data)

	record := model.Record{
		SequenceNumber:   strconv.FormatUint(s.nextSequence, 10),
		PartitionKey:     partitionKey,
		Data:             payload,
		ArrivalTimestamp: time.Now(),
	}
	s.nextSequence++
	s.records = append(s.records, record)

	return record
}

// Len returns the number of records currently in the shard
func (s *Shard) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// LatestIndex returns one past the last currently appended record index.
// This is the anchor a LATEST iterator captures at creation; taking it under
// the append mutex guarantees the boundary record is neither missed nor
// duplicated.
func (s *Shard) LatestIndex() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return uint64(len(s.records))
}

// IndexOfSequence resolves a sequence number to its record index.
// Returns false if no record with that sequence number exists.
func (s *Shard) IndexOfSequence(seq string) (uint64, bool) {
	n, err := strconv.ParseUint(seq, 10, 64)
	if err != nil {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Sequence numbers are assigned densely from 1, so the record holding
	// sequence n sits at index n-1 when it exists.
	if n < 1 || n > uint64(len(s.records)) {
		return 0, false
	}
	return n - 1, true
}

// ReadFrom returns up to limit records starting at index, in sequence order,
// along with the next unread index and how far behind the shard tip the
// reader is in milliseconds. A limit of 0 or less means no limit. Reading at
// or past the end yields an empty result, never an error.
func (s *Shard) ReadFrom(index uint64, limit int) ([]model.Record, uint64, int64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	total := uint64(len(s.records))
	if index >= total {
		// Past the end: keep the position so records appended later
		// become visible to the successor iterator.
		return nil, index, 0
	}

	end := total
	if limit > 0 && index+uint64(limit) < end {
		end = index + uint64(limit)
	}

	out := make([]model.Record, end-index)
	copy(out, s.records[index:end])

	var millisBehind int64
	if end < total {
		millisBehind = time.Since(s.records[end].ArrivalTimestamp).Milliseconds()
	}

	return out, end, millisBehind
}

// ContainsHashKey reports whether a 128-bit hash key falls in this shard's range
func (s *Shard) ContainsHashKey(h *big.Int) bool {
	return s.startingHashKey.Cmp(h) <= 0 && h.Cmp(s.endingHashKey) <= 0
}

// Description returns the externally visible snapshot of the shard
func (s *Shard) Description() model.ShardDescription {
	s.mu.Lock()
	defer s.mu.Unlock()

	return model.ShardDescription{
		ShardID: s.id,
		HashKeyRange: model.HashKeyRange{
			StartingHashKey: s.startingHashKey.String(),
			EndingHashKey:   s.endingHashKey.String(),
		},
		SequenceNumberRange: model.SequenceNumberRange{
			// The first sequence number this shard assigns (or has
			// assigned). Empty ending marks the shard open for writes.
			StartingSequenceNumber: "1",
		},
	}
}
