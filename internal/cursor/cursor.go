// Package cursor implements the opaque shard iterator token. The internal
// representation stays structured for testing; tokens are only encoded at the
// interface edge.
package cursor

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/devrev/streamdb/internal/errors"
	"github.com/devrev/streamdb/internal/util"
)

// Cursor is the decoded payload of a shard iterator token: the stream, the
// shard, and the next record index to read. IssuedAt drives iterator expiry.
type Cursor struct {
	StreamName string `json:"s"`
	ShardID    string `json:"d"`
	Index      uint64 `json:"i"`
	IssuedAt   int64  `json:"t"` // unix milliseconds
}

// New creates a cursor positioned at index, stamped with the current time
func New(streamName, shardID string, index uint64) Cursor {
	return Cursor{
		StreamName: streamName,
		ShardID:    shardID,
		Index:      index,
		IssuedAt:   time.Now().UnixMilli(),
	}
}

// Age returns how long ago the cursor was issued
func (c Cursor) Age(now time.Time) time.Duration {
	return now.Sub(time.UnixMilli(c.IssuedAt))
}

// Encode serializes the cursor to its opaque token form: JSON payload, CRC32
// trailer, base64url. Encode and Decode are symmetric so tokens round-trip
// through any transport boundary unchanged.
func (c Cursor) Encode() (string, error) {
	payload, err := json.Marshal(c)
	if err != nil {
		return "", errors.InternalError("failed to encode shard iterator", err)
	}
	return base64.RawURLEncoding.EncodeToString(util.AppendChecksum(payload)), nil
}

// Decode parses an opaque token back into a cursor. Any malformed token,
// including one whose checksum does not match, yields an InvalidIterator
// error.
func Decode(token string) (Cursor, error) {
	if token == "" {
		return Cursor{}, errors.InvalidIterator("iterator is empty", nil)
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return Cursor{}, errors.InvalidIterator("iterator is not valid base64", err)
	}

	payload, ok := util.ValidateAndStripChecksum(raw)
	if !ok {
		return Cursor{}, errors.InvalidIterator("iterator checksum mismatch", nil)
	}

	var c Cursor
	if err := json.Unmarshal(payload, &c); err != nil {
		return Cursor{}, errors.InvalidIterator("iterator payload is malformed", err)
	}

	if c.StreamName == "" || c.ShardID == "" {
		return Cursor{}, errors.InvalidIterator("iterator is missing stream or shard", nil)
	}

	return c, nil
}
