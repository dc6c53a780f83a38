package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/devrev/streamdb/internal/cursor"
	"github.com/devrev/streamdb/internal/errors"
	"github.com/devrev/streamdb/internal/metrics"
	"github.com/devrev/streamdb/internal/service"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newTestService(t *testing.T, mutate ...func(*service.StreamConfig)) *service.StreamService {
	t.Helper()

	cfg := &service.StreamConfig{
		Region:             "us-east-1",
		AccountID:          "123456789012",
		MaxShardsPerStream: 500,
		IteratorTTL:        5 * time.Minute,
	}
	for _, fn := range mutate {
		fn(cfg)
	}

	m := metrics.NewMetrics("test-node", prometheus.NewRegistry())
	return service.NewStreamService(cfg, m, zap.NewNop())
}

func mustIterator(t *testing.T, svc *service.StreamService, stream, shard, itype, seq string) string {
	t.Helper()
	iterator, err := svc.GetShardIterator(context.Background(), stream, shard, itype, seq)
	require.NoError(t, err)
	require.NotEmpty(t, iterator)
	return iterator
}

func TestStreamService_CreateAndDescribe(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 2))

	desc, err := svc.DescribeStream(ctx, "my_stream")
	require.NoError(t, err)

	assert.Equal(t, "my_stream", desc.StreamName)
	assert.Equal(t, "arn:aws:kinesis:us-east-1:123456789012:my_stream", desc.StreamARN)
	assert.Equal(t, "ACTIVE", string(desc.StreamStatus))
	assert.False(t, desc.HasMoreShards)

	require.Len(t, desc.Shards, 2)
	assert.NotEqual(t, desc.Shards[0].ShardID, desc.Shards[1].ShardID)
}

func TestStreamService_DescribeMissingStream(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.DescribeStream(context.Background(), "not-a-stream")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamNotFound, errors.GetCode(err))
}

func TestStreamService_CreateDuplicateStream(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	err := svc.CreateStream(ctx, "my_stream", 1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamInUse, errors.GetCode(err))
}

func TestStreamService_CreateStreamValidation(t *testing.T) {
	svc := newTestService(t, func(cfg *service.StreamConfig) {
		cfg.MaxShardsPerStream = 10
	})
	ctx := context.Background()

	tests := []struct {
		name       string
		streamName string
		shardCount int
		wantCode   errors.ErrorCode
	}{
		{name: "empty name", streamName: "", shardCount: 1, wantCode: errors.ErrCodeInvalidArgument},
		{name: "bad characters", streamName: "my stream", shardCount: 1, wantCode: errors.ErrCodeInvalidArgument},
		{name: "zero shards", streamName: "ok", shardCount: 0, wantCode: errors.ErrCodeInvalidArgument},
		{name: "negative shards", streamName: "ok", shardCount: -1, wantCode: errors.ErrCodeInvalidArgument},
		{name: "too many shards", streamName: "ok", shardCount: 11, wantCode: errors.ErrCodeLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := svc.CreateStream(ctx, tt.streamName, tt.shardCount)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestStreamService_MaxStreamsLimit(t *testing.T) {
	svc := newTestService(t, func(cfg *service.StreamConfig) {
		cfg.MaxStreams = 2
	})
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "stream-1", 1))
	require.NoError(t, svc.CreateStream(ctx, "stream-2", 1))

	err := svc.CreateStream(ctx, "stream-3", 1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLimitExceeded, errors.GetCode(err))
}

func TestStreamService_ListAndDelete(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "stream-a", 1))
	require.NoError(t, svc.CreateStream(ctx, "stream-b", 1))

	names, err := svc.ListStreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stream-a", "stream-b"}, names)

	require.NoError(t, svc.DeleteStream(ctx, "stream-a"))

	names, err = svc.ListStreams(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"stream-b"}, names)

	// The freed name can be reused.
	require.NoError(t, svc.CreateStream(ctx, "stream-a", 1))
}

func TestStreamService_DeleteMissingStream(t *testing.T) {
	svc := newTestService(t)

	err := svc.DeleteStream(context.Background(), "ghost")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamNotFound, errors.GetCode(err))
}

func TestStreamService_TrimHorizonOnEmptyShard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")

	result, err := svc.GetRecords(ctx, iterator, 0)
	require.NoError(t, err)
	assert.Empty(t, result.Records)
	assert.NotEmpty(t, result.NextShardIterator)

	// The successor iterator stays usable on an empty shard.
	again, err := svc.GetRecords(ctx, result.NextShardIterator, 0)
	require.NoError(t, err)
	assert.Empty(t, again.Records)
}

func TestStreamService_PutAndGetRecord(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	put, err := svc.PutRecord(ctx, "my_stream", "1234", "", []byte("hello world"))
	require.NoError(t, err)
	assert.Equal(t, "shardId-000000000000", put.ShardID)
	assert.Equal(t, "1", put.SequenceNumber)

	iterator := mustIterator(t, svc, "my_stream", put.ShardID, "TRIM_HORIZON", "")

	result, err := svc.GetRecords(ctx, iterator, 0)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)

	record := result.Records[0]
	assert.Equal(t, []byte("hello world"), record.Data)
	assert.Equal(t, "1234", record.PartitionKey)
	assert.Equal(t, "1", record.SequenceNumber)
	assert.False(t, record.ArrivalTimestamp.IsZero())
}

func TestStreamService_SequenceNumbersIncreasePerShard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	for i := 1; i <= 5; i++ {
		put, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte("data"))
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("%d", i), put.SequenceNumber)
	}
}

func TestStreamService_GetRecordsPagination(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	for i := 0; i < 5; i++ {
		_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte(fmt.Sprintf("record-%d", i)))
		require.NoError(t, err)
	}

	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")

	page, err := svc.GetRecords(ctx, iterator, 3)
	require.NoError(t, err)
	require.Len(t, page.Records, 3)
	assert.Equal(t, []byte("record-0"), page.Records[0].Data)
	assert.Equal(t, []byte("record-2"), page.Records[2].Data)

	rest, err := svc.GetRecords(ctx, page.NextShardIterator, 0)
	require.NoError(t, err)
	require.Len(t, rest.Records, 2)
	assert.Equal(t, []byte("record-3"), rest.Records[0].Data)
	assert.Equal(t, []byte("record-4"), rest.Records[1].Data)
}

func TestStreamService_AtAndAfterSequenceNumber(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	for i := 1; i <= 4; i++ {
		_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte(fmt.Sprintf("%d", i)))
		require.NoError(t, err)
	}

	// Locate a mid-shard sequence number through the read path.
	head := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")
	page, err := svc.GetRecords(ctx, head, 2)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	pivot := page.Records[1].SequenceNumber

	at := mustIterator(t, svc, "my_stream", "shardId-000000000000", "AT_SEQUENCE_NUMBER", pivot)
	atResult, err := svc.GetRecords(ctx, at, 0)
	require.NoError(t, err)
	require.Len(t, atResult.Records, 3)
	assert.Equal(t, pivot, atResult.Records[0].SequenceNumber)
	assert.Equal(t, []byte("2"), atResult.Records[0].Data)

	after := mustIterator(t, svc, "my_stream", "shardId-000000000000", "AFTER_SEQUENCE_NUMBER", pivot)
	afterResult, err := svc.GetRecords(ctx, after, 0)
	require.NoError(t, err)
	require.Len(t, afterResult.Records, 2)
	assert.Equal(t, []byte("3"), afterResult.Records[0].Data)
}

func TestStreamService_LatestSeesOnlyNewRecords(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	for i := 0; i < 4; i++ {
		_, err := svc.PutRecord(ctx, "my_stream", "old", "", []byte("old"))
		require.NoError(t, err)
	}

	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "LATEST", "")

	_, err := svc.PutRecord(ctx, "my_stream", "last_record", "", []byte("new"))
	require.NoError(t, err)

	result, err := svc.GetRecords(ctx, iterator, 0)
	require.NoError(t, err)
	require.Len(t, result.Records, 1)
	assert.Equal(t, "last_record", result.Records[0].PartitionKey)
}

func TestStreamService_GetShardIteratorErrors(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte("data"))
	require.NoError(t, err)

	tests := []struct {
		name     string
		stream   string
		shard    string
		itype    string
		seq      string
		wantCode errors.ErrorCode
	}{
		{
			name:     "unknown stream",
			stream:   "ghost",
			shard:    "shardId-000000000000",
			itype:    "TRIM_HORIZON",
			wantCode: errors.ErrCodeStreamNotFound,
		},
		{
			name:     "unknown shard",
			stream:   "my_stream",
			shard:    "shardId-000000000005",
			itype:    "TRIM_HORIZON",
			wantCode: errors.ErrCodeShardNotFound,
		},
		{
			name:     "invalid iterator type",
			stream:   "my_stream",
			shard:    "shardId-000000000000",
			itype:    "invalid-type",
			wantCode: errors.ErrCodeInvalidArgument,
		},
		{
			name:     "missing sequence number",
			stream:   "my_stream",
			shard:    "shardId-000000000000",
			itype:    "AT_SEQUENCE_NUMBER",
			seq:      "",
			wantCode: errors.ErrCodeInvalidSequenceNumber,
		},
		{
			name:     "malformed sequence number",
			stream:   "my_stream",
			shard:    "shardId-000000000000",
			itype:    "AT_SEQUENCE_NUMBER",
			seq:      "not-a-number",
			wantCode: errors.ErrCodeInvalidSequenceNumber,
		},
		{
			name:     "nonexistent sequence number",
			stream:   "my_stream",
			shard:    "shardId-000000000000",
			itype:    "AFTER_SEQUENCE_NUMBER",
			seq:      "999",
			wantCode: errors.ErrCodeSequenceNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.GetShardIterator(ctx, tt.stream, tt.shard, tt.itype, tt.seq)
			require.Error(t, err)
			assert.Equal(t, tt.wantCode, errors.GetCode(err))
		})
	}
}

func TestStreamService_GetRecordsLimitValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")

	_, err := svc.GetRecords(ctx, iterator, -1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	// An oversized limit is rejected as an invalid argument, the same class
	// as a non-positive one.
	_, err = svc.GetRecords(ctx, iterator, 10001)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
}

func TestStreamService_GetRecordsInvalidIterator(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	for _, token := range []string{"", "bogus", "aGVsbG8"} {
		_, err := svc.GetRecords(ctx, token, 0)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeInvalidIterator, errors.GetCode(err))
	}
}

func TestStreamService_ExpiredIterator(t *testing.T) {
	svc := newTestService(t, func(cfg *service.StreamConfig) {
		cfg.IteratorTTL = time.Minute
	})
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	stale := cursor.New("my_stream", "shardId-000000000000", 0)
	stale.IssuedAt = time.Now().Add(-2 * time.Minute).UnixMilli()
	token, err := stale.Encode()
	require.NoError(t, err)

	_, err = svc.GetRecords(ctx, token, 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeExpiredIterator, errors.GetCode(err))
}

func TestStreamService_ZeroTTLDisablesExpiry(t *testing.T) {
	svc := newTestService(t, func(cfg *service.StreamConfig) {
		cfg.IteratorTTL = 0
	})
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	old := cursor.New("my_stream", "shardId-000000000000", 0)
	old.IssuedAt = time.Now().Add(-24 * time.Hour).UnixMilli()
	token, err := old.Encode()
	require.NoError(t, err)

	_, err = svc.GetRecords(ctx, token, 0)
	assert.NoError(t, err)
}

func TestStreamService_IteratorOutlivesDeletedStream(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte("data"))
	require.NoError(t, err)

	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")
	require.NoError(t, svc.DeleteStream(ctx, "my_stream"))

	_, err = svc.GetRecords(ctx, iterator, 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamNotFound, errors.GetCode(err))
}

func TestStreamService_PutRecordValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	_, err := svc.PutRecord(ctx, "my_stream", "", "", []byte("data"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	_, err = svc.PutRecord(ctx, "my_stream", "key", "", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	_, err = svc.PutRecord(ctx, "ghost", "key", "", []byte("data"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamNotFound, errors.GetCode(err))
}

func TestStreamService_ExplicitHashKeyRouting(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 2))

	// Hash key 0 lands in the first shard; the top of the key space lands in
	// the last.
	low, err := svc.PutRecord(ctx, "my_stream", "key", "0", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "shardId-000000000000", low.ShardID)

	high, err := svc.PutRecord(ctx, "my_stream", "key", "340282366920938463463374607431768211455", []byte("data"))
	require.NoError(t, err)
	assert.Equal(t, "shardId-000000000001", high.ShardID)

	_, err = svc.PutRecord(ctx, "my_stream", "key", "not-a-hash-key", []byte("data"))
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))
}

func TestStreamService_SamePartitionKeyRoutesToSameShard(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 8))

	first, err := svc.PutRecord(ctx, "my_stream", "sticky-key", "", []byte("a"))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		put, err := svc.PutRecord(ctx, "my_stream", "sticky-key", "", []byte("b"))
		require.NoError(t, err)
		assert.Equal(t, first.ShardID, put.ShardID)
	}
}

func TestStreamService_PutRecords(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	entries := []service.PutRecordsEntry{
		{PartitionKey: "key-1", Data: []byte("first")},
		{PartitionKey: "", Data: []byte("bad partition key")},
		{PartitionKey: "key-3", Data: []byte("third")},
	}

	result, err := svc.PutRecords(ctx, "my_stream", entries)
	require.NoError(t, err)
	require.Len(t, result.Records, 3)
	assert.Equal(t, 1, result.FailedRecordCount)

	assert.Equal(t, "1", result.Records[0].SequenceNumber)
	assert.Equal(t, "shardId-000000000000", result.Records[0].ShardID)
	assert.Empty(t, result.Records[0].ErrorCode)

	assert.Equal(t, "ValidationException", result.Records[1].ErrorCode)
	assert.NotEmpty(t, result.Records[1].ErrorMessage)
	assert.Empty(t, result.Records[1].SequenceNumber)

	// The failed entry does not consume a sequence number.
	assert.Equal(t, "2", result.Records[2].SequenceNumber)
}

func TestStreamService_PutRecordsBatchLimits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	_, err := svc.PutRecords(ctx, "my_stream", nil)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidArgument, errors.GetCode(err))

	oversized := make([]service.PutRecordsEntry, 501)
	for i := range oversized {
		oversized[i] = service.PutRecordsEntry{PartitionKey: "key", Data: []byte("d")}
	}
	_, err = svc.PutRecords(ctx, "my_stream", oversized)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeLimitExceeded, errors.GetCode(err))

	_, err = svc.PutRecords(ctx, "ghost", []service.PutRecordsEntry{{PartitionKey: "key", Data: []byte("d")}})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStreamNotFound, errors.GetCode(err))
}

func TestStreamService_MillisBehindLatest(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))
	for i := 0; i < 3; i++ {
		_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte("data"))
		require.NoError(t, err)
	}

	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")

	caughtUp, err := svc.GetRecords(ctx, iterator, 0)
	require.NoError(t, err)
	assert.Zero(t, caughtUp.MillisBehindLatest)

	partial, err := svc.GetRecords(ctx, iterator, 1)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, partial.MillisBehindLatest, int64(0))
}

func TestStreamService_DeleteDuringPutsKeepsRecordGaugeConsistent(t *testing.T) {
	cfg := &service.StreamConfig{
		Region:             "us-east-1",
		AccountID:          "123456789012",
		MaxShardsPerStream: 500,
		IteratorTTL:        5 * time.Minute,
	}
	m := metrics.NewMetrics("test-node", prometheus.NewRegistry())
	svc := service.NewStreamService(cfg, m, zap.NewNop())
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	started := make(chan struct{})
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte("data"))
			if i == 0 {
				close(started)
			}
			if err != nil {
				// Once the stream is gone, appends must fail cleanly
				// instead of landing in a removed stream.
				assert.Equal(t, errors.ErrCodeStreamNotFound, errors.GetCode(err))
			}
		}
	}()

	<-started
	require.NoError(t, svc.DeleteStream(ctx, "my_stream"))
	<-done

	// Every record that landed before the delete was covered by the delete's
	// gauge adjustment, so the stored-records gauge returns to zero.
	assert.Equal(t, float64(0), testutil.ToFloat64(m.RecordsStored))
}

func TestStreamService_ConcurrentPuts(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.CreateStream(ctx, "my_stream", 1))

	const writers = 4
	const perWriter = 50

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_, err := svc.PutRecord(ctx, "my_stream", "key", "", []byte("data"))
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	iterator := mustIterator(t, svc, "my_stream", "shardId-000000000000", "TRIM_HORIZON", "")
	result, err := svc.GetRecords(ctx, iterator, 0)
	require.NoError(t, err)
	require.Len(t, result.Records, writers*perWriter)

	seen := make(map[string]bool, len(result.Records))
	for _, record := range result.Records {
		assert.False(t, seen[record.SequenceNumber], "sequence numbers must be unique")
		seen[record.SequenceNumber] = true
	}
}
