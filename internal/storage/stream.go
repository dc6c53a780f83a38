package storage

import (
	"crypto/md5"
	"math/big"
	"time"

	"github.com/devrev/streamdb/internal/model"
)

// hashKeySpace is 2^128, the size of the partition hash key space
var hashKeySpace = new(big.Int).Lsh(big.NewInt(1), 128)

// Stream is a named collection of shards. The shard set is fixed at creation;
// the stream itself is immutable apart from the records its shards accumulate,
// so no stream-level lock is needed.
type Stream struct {
	name      string
	arn       string
	status    model.StreamStatus
	shards    []*Shard
	createdAt time.Time
}

// NewStream creates a stream with shardCount shards, splitting the 128-bit
// hash key space into contiguous equal ranges across them.
func NewStream(name, arn string, shardCount int) *Stream {
	shards := make([]*Shard, shardCount)
	step := new(big.Int).Div(hashKeySpace, big.NewInt(int64(shardCount)))

	for i := 0; i < shardCount; i++ {
		start := new(big.Int).Mul(step, big.NewInt(int64(i)))
		var end *big.Int
		if i == shardCount-1 {
			// Last shard absorbs the division remainder.
			end = new(big.Int).Sub(hashKeySpace, big.NewInt(1))
		} else {
			end = new(big.Int).Mul(step, big.NewInt(int64(i+1)))
			end.Sub(end, big.NewInt(1))
		}
		shards[i] = newShard(i, start, end)
	}

	return &Stream{
		name:      name,
		arn:       arn,
		status:    model.StreamStatusActive,
		shards:    shards,
		createdAt: time.Now(),
	}
}

// Name returns the stream name
func (st *Stream) Name() string {
	return st.name
}

// ARN returns the stream ARN
func (st *Stream) ARN() string {
	return st.arn
}

// Status returns the stream status
func (st *Stream) Status() model.StreamStatus {
	return st.status
}

// Shards returns the stream's shards in creation order
func (st *Stream) Shards() []*Shard {
	return st.shards
}

// Shard looks up a shard by ID
func (st *Stream) Shard(id string) (*Shard, bool) {
	for _, s := range st.shards {
		if s.ID() == id {
			return s, true
		}
	}
	return nil, false
}

// ShardForHashKey routes a 128-bit hash key to the shard owning its range
func (st *Stream) ShardForHashKey(h *big.Int) *Shard {
	for _, s := range st.shards {
		if s.ContainsHashKey(h) {
			return s
		}
	}
	// Ranges cover the whole space, so this is unreachable for valid keys.
	return st.shards[len(st.shards)-1]
}

// ShardForPartitionKey routes a partition key to its shard. Routing is
// deterministic: the MD5 digest of the key, read as a 128-bit integer,
// is located within the shard hash key ranges.
func (st *Stream) ShardForPartitionKey(partitionKey string) *Shard {
	return st.ShardForHashKey(HashKey(partitionKey))
}

// Describe returns the externally visible snapshot of the stream
func (st *Stream) Describe() model.StreamDescription {
	shards := make([]model.ShardDescription, len(st.shards))
	for i, s := range st.shards {
		shards[i] = s.Description()
	}

	return model.StreamDescription{
		StreamName:    st.name,
		StreamARN:     st.arn,
		StreamStatus:  st.status,
		Shards:        shards,
		HasMoreShards: false,
	}
}

// RecordCount returns the total number of records across all shards
func (st *Stream) RecordCount() int {
	total := 0
	for _, s := range st.shards {
		total += s.Len()
	}
	return total
}

// HashKey computes the 128-bit routing hash for a partition key
func HashKey(partitionKey string) *big.Int {
	digest := md5.Sum([]byte(partitionKey))
	return new(big.Int).SetBytes(digest[:])
}

// ParseHashKey parses an explicit hash key supplied by a caller.
// Returns false if the value is not a decimal integer in [0, 2^128).
func ParseHashKey(s string) (*big.Int, bool) {
	h, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, false
	}
	if h.Sign() < 0 || h.Cmp(hashKeySpace) >= 0 {
		return nil, false
	}
	return h, true
}
