package model

import "time"

// StreamStatus represents the lifecycle state of a stream
type StreamStatus string

const (
	StreamStatusCreating StreamStatus = "CREATING"
	StreamStatusActive   StreamStatus = "ACTIVE"
	StreamStatusDeleting StreamStatus = "DELETING"
)

// IteratorType selects how a shard iterator is positioned
type IteratorType string

const (
	IteratorTrimHorizon         IteratorType = "TRIM_HORIZON"
	IteratorAtSequenceNumber    IteratorType = "AT_SEQUENCE_NUMBER"
	IteratorAfterSequenceNumber IteratorType = "AFTER_SEQUENCE_NUMBER"
	IteratorLatest              IteratorType = "LATEST"
)

// ParseIteratorType converts a raw iterator type string into an IteratorType.
// Returns false for anything outside the four supported values.
func ParseIteratorType(s string) (IteratorType, bool) {
	switch IteratorType(s) {
	case IteratorTrimHorizon, IteratorAtSequenceNumber, IteratorAfterSequenceNumber, IteratorLatest:
		return IteratorType(s), true
	default:
		return "", false
	}
}

// RequiresSequenceNumber reports whether the iterator type is anchored to an
// explicit sequence number.
func (t IteratorType) RequiresSequenceNumber() bool {
	return t == IteratorAtSequenceNumber || t == IteratorAfterSequenceNumber
}

// Record is the immutable unit of data stored in a shard
type Record struct {
	SequenceNumber   string
	PartitionKey     string
	Data             []byte
	ArrivalTimestamp time.Time
}

// HashKeyRange is the contiguous slice of the 128-bit hash key space owned by a shard
type HashKeyRange struct {
	StartingHashKey string
	EndingHashKey   string
}

// SequenceNumberRange describes the sequence numbers a shard has assigned.
// EndingSequenceNumber is empty while the shard is open for writes.
type SequenceNumberRange struct {
	StartingSequenceNumber string
	EndingSequenceNumber   string
}

// ShardDescription is the externally visible snapshot of a shard
type ShardDescription struct {
	ShardID             string
	HashKeyRange        HashKeyRange
	SequenceNumberRange SequenceNumberRange
}

// StreamDescription is the externally visible snapshot of a stream
type StreamDescription struct {
	StreamName    string
	StreamARN     string
	StreamStatus  StreamStatus
	Shards        []ShardDescription
	HasMoreShards bool
}
