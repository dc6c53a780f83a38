package validation

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/devrev/streamdb/internal/errors"
)

const (
	// Size limits
	MaxStreamNameSize   = 128
	MaxPartitionKeySize = 256
	MaxDataSize         = 1024 * 1024 // 1 MiB

	// Request limits
	MaxGetRecordsLimit = 10000
	MaxPutRecordsBatch = 500
)

// Validator validates stream operation inputs
type Validator struct {
	maxPartitionKeySize int
	maxDataSize         int
	maxShardsPerStream  int
}

// NewValidator creates a new validator with default limits
func NewValidator(maxShardsPerStream int) *Validator {
	return &Validator{
		maxPartitionKeySize: MaxPartitionKeySize,
		maxDataSize:         MaxDataSize,
		maxShardsPerStream:  maxShardsPerStream,
	}
}

// ValidateStreamName validates a stream name
func (v *Validator) ValidateStreamName(name string) error {
	if name == "" {
		return errors.InvalidArgument("stream name cannot be empty", nil)
	}

	if len(name) > MaxStreamNameSize {
		return errors.InvalidArgument(
			fmt.Sprintf("stream name exceeds maximum size of %d bytes", MaxStreamNameSize), nil)
	}

	for _, r := range name {
		if !isStreamNameRune(r) {
			return errors.InvalidArgument(
				fmt.Sprintf("stream name contains invalid character %q", r), nil)
		}
	}

	return nil
}

// isStreamNameRune reports whether r is allowed in a stream name.
// Permitted characters match the emulated API: letters, digits, '_', '.', '-'.
func isStreamNameRune(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return true
	case r == '_' || r == '.' || r == '-':
		return true
	default:
		return false
	}
}

// ValidateShardCount validates the shard count requested at stream creation
func (v *Validator) ValidateShardCount(count int) error {
	if count < 1 {
		return errors.InvalidArgument(
			fmt.Sprintf("shard count must be at least 1, got %d", count), nil)
	}

	if v.maxShardsPerStream > 0 && count > v.maxShardsPerStream {
		return errors.LimitExceeded("shards per stream", count, v.maxShardsPerStream)
	}

	return nil
}

// ValidatePartitionKey validates a partition key
func (v *Validator) ValidatePartitionKey(key string) error {
	if key == "" {
		return errors.InvalidArgument("partition key cannot be empty", nil)
	}

	if len(key) > v.maxPartitionKeySize {
		return errors.InvalidArgument(
			fmt.Sprintf("partition key exceeds maximum size of %d bytes", v.maxPartitionKeySize), nil)
	}

	for _, r := range key {
		if unicode.IsControl(r) {
			return errors.InvalidArgument("partition key cannot contain control characters", nil)
		}
	}

	return nil
}

// ValidateData validates a record payload
func (v *Validator) ValidateData(data []byte) error {
	if data == nil {
		return errors.InvalidArgument("record data is required", nil)
	}

	if len(data) > v.maxDataSize {
		return errors.InvalidArgument(
			fmt.Sprintf("record data size %d exceeds maximum %d", len(data), v.maxDataSize), nil)
	}

	return nil
}

// ValidateSequenceNumber validates the textual form of a sequence number.
// Sequence numbers are decimal-formatted unsigned integers with no sign,
// whitespace, or leading garbage.
func (v *Validator) ValidateSequenceNumber(seq string) error {
	if seq == "" {
		return errors.InvalidSequenceNumber(seq, "sequence number cannot be empty")
	}

	if len(seq) > 39 { // longer than any 128-bit decimal
		return errors.InvalidSequenceNumber(seq, "sequence number too long")
	}

	if strings.TrimLeft(seq, "0123456789") != "" {
		return errors.InvalidSequenceNumber(seq, "sequence number must be decimal digits")
	}

	return nil
}

// ValidateLimit validates an explicitly supplied GetRecords limit
func (v *Validator) ValidateLimit(limit int) error {
	if limit < 1 {
		return errors.InvalidArgument(
			fmt.Sprintf("limit must be a positive integer, got %d", limit), nil)
	}

	// An out-of-range limit is a malformed request, not a throttling
	// condition, so it reports as an invalid argument.
	if limit > MaxGetRecordsLimit {
		return errors.InvalidArgument(
			fmt.Sprintf("limit %d exceeds maximum of %d", limit, MaxGetRecordsLimit), nil)
	}

	return nil
}
