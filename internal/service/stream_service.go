package service

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/devrev/streamdb/internal/cursor"
	"github.com/devrev/streamdb/internal/errors"
	"github.com/devrev/streamdb/internal/metrics"
	"github.com/devrev/streamdb/internal/model"
	"github.com/devrev/streamdb/internal/storage"
	"github.com/devrev/streamdb/internal/validation"
	"go.uber.org/zap"
)

// StreamConfig holds the engine's operational limits and identity
type StreamConfig struct {
	Region             string
	AccountID          string
	MaxStreams         int
	MaxShardsPerStream int
	IteratorTTL        time.Duration // 0 disables iterator expiry
}

// StreamService is the process-wide stream registry and record engine. All
// API operations go through it; it owns stream lifecycle, shard routing, and
// iterator issuance. Construct one per process (or per test) and pass it by
// handle - there is no implicit singleton.
type StreamService struct {
	mu      sync.RWMutex
	cfg     *StreamConfig
	streams map[string]*storage.Stream
	order   []string // stream names in creation order, for stable listing

	validator *validation.Validator
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// NewStreamService creates a new stream service
func NewStreamService(cfg *StreamConfig, m *metrics.Metrics, logger *zap.Logger) *StreamService {
	return &StreamService{
		cfg:       cfg,
		streams:   make(map[string]*storage.Stream),
		validator: validation.NewValidator(cfg.MaxShardsPerStream),
		metrics:   m,
		logger:    logger,
	}
}

// CreateStream registers a new stream with a fixed shard count. The stream is
// ACTIVE as soon as the call returns. Re-using a live stream name fails with
// StreamInUse; the name is freed again on deletion.
func (s *StreamService) CreateStream(ctx context.Context, name string, shardCount int) error {
	if err := s.validator.ValidateStreamName(name); err != nil {
		s.logger.Warn("Create stream validation failed",
			zap.String("stream_name", name),
			zap.Error(err))
		return err
	}
	if err := s.validator.ValidateShardCount(shardCount); err != nil {
		s.logger.Warn("Create stream validation failed",
			zap.String("stream_name", name),
			zap.Int("shard_count", shardCount),
			zap.Error(err))
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.streams[name]; exists {
		return errors.StreamInUse(name)
	}
	if s.cfg.MaxStreams > 0 && len(s.streams) >= s.cfg.MaxStreams {
		return errors.LimitExceeded("streams", len(s.streams)+1, s.cfg.MaxStreams)
	}

	stream := storage.NewStream(name, s.streamARN(name), shardCount)
	s.streams[name] = stream
	s.order = append(s.order, name)
	s.metrics.StreamsActive.Set(float64(len(s.streams)))

	s.logger.Info("Stream created",
		zap.String("stream_name", name),
		zap.String("arn", stream.ARN()),
		zap.Int("shard_count", shardCount))

	return nil
}

// DescribeStream returns the full snapshot of a stream
func (s *StreamService) DescribeStream(ctx context.Context, name string) (*model.StreamDescription, error) {
	stream, err := s.lookupStream(name)
	if err != nil {
		return nil, err
	}

	desc := stream.Describe()
	return &desc, nil
}

// ListStreams returns all stream names in creation order
func (s *StreamService) ListStreams(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, len(s.order))
	copy(names, s.order)
	return names, nil
}

// DeleteStream removes a stream and all its shards and records permanently
func (s *StreamService) DeleteStream(ctx context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stream, exists := s.streams[name]
	if !exists {
		return errors.StreamNotFound(name)
	}

	delete(s.streams, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	s.metrics.StreamsActive.Set(float64(len(s.streams)))
	s.metrics.RecordsStored.Sub(float64(stream.RecordCount()))

	s.logger.Info("Stream deleted",
		zap.String("stream_name", name),
		zap.Int("records_dropped", stream.RecordCount()))

	return nil
}

// PutRecordResult reports where an appended record landed
type PutRecordResult struct {
	ShardID        string
	SequenceNumber string
}

// PutRecord validates and appends a single record. The shard is chosen
// deterministically from the partition key (or the explicit hash key when
// supplied), so repeated keys always route to the same shard.
func (s *StreamService) PutRecord(ctx context.Context, streamName, partitionKey, explicitHashKey string, data []byte) (*PutRecordResult, error) {
	startTime := time.Now()

	if err := s.validator.ValidatePartitionKey(partitionKey); err != nil {
		s.logger.Warn("Put record validation failed",
			zap.String("stream_name", streamName),
			zap.Error(err))
		return nil, err
	}
	if err := s.validator.ValidateData(data); err != nil {
		s.logger.Warn("Put record validation failed",
			zap.String("stream_name", streamName),
			zap.String("partition_key", partitionKey),
			zap.Error(err))
		return nil, err
	}

	hashKey, err := s.routingHashKey(partitionKey, explicitHashKey)
	if err != nil {
		return nil, err
	}

	// The append happens under the registry read lock so a concurrent
	// DeleteStream cannot remove the stream between lookup and append. The
	// record-count delta taken at delete time then covers every appended
	// record.
	s.mu.RLock()
	stream, exists := s.streams[streamName]
	if !exists {
		s.mu.RUnlock()
		return nil, errors.StreamNotFound(streamName)
	}
	shard := stream.ShardForHashKey(hashKey)
	record := shard.Append(partitionKey, data)
	s.metrics.RecordsStored.Inc()
	s.mu.RUnlock()

	s.metrics.PutRecordsTotal.Inc()
	s.metrics.PutRecordBytes.Observe(float64(len(data)))
	s.metrics.PutRecordDuration.Observe(time.Since(startTime).Seconds())

	s.logger.Debug("Record appended",
		zap.String("stream_name", streamName),
		zap.String("shard_id", shard.ID()),
		zap.String("sequence_number", record.SequenceNumber))

	return &PutRecordResult{
		ShardID:        shard.ID(),
		SequenceNumber: record.SequenceNumber,
	}, nil
}

// PutRecordsEntry is one record in a batch append
type PutRecordsEntry struct {
	PartitionKey    string
	ExplicitHashKey string
	Data            []byte
}

// PutRecordsResultEntry is the per-record outcome of a batch append. Either
// ShardID/SequenceNumber or ErrorCode/ErrorMessage is populated.
type PutRecordsResultEntry struct {
	ShardID        string
	SequenceNumber string
	ErrorCode      string
	ErrorMessage   string
}

// PutRecordsResult is the outcome of a batch append
type PutRecordsResult struct {
	Records           []PutRecordsResultEntry
	FailedRecordCount int
}

// PutRecords appends a batch of records. The batch is not atomic: each entry
// succeeds or fails independently and failures are reported per entry.
func (s *StreamService) PutRecords(ctx context.Context, streamName string, entries []PutRecordsEntry) (*PutRecordsResult, error) {
	if len(entries) == 0 {
		return nil, errors.InvalidArgument("put records batch cannot be empty", nil)
	}
	if len(entries) > validation.MaxPutRecordsBatch {
		return nil, errors.LimitExceeded("records per batch", len(entries), validation.MaxPutRecordsBatch)
	}

	// Resolve the stream once; a missing stream fails the whole request.
	if _, err := s.lookupStream(streamName); err != nil {
		return nil, err
	}

	result := &PutRecordsResult{
		Records: make([]PutRecordsResultEntry, len(entries)),
	}

	for i, entry := range entries {
		put, err := s.PutRecord(ctx, streamName, entry.PartitionKey, entry.ExplicitHashKey, entry.Data)
		if err != nil {
			result.Records[i] = PutRecordsResultEntry{
				ErrorCode:    batchErrorCode(err),
				ErrorMessage: err.Error(),
			}
			result.FailedRecordCount++
			continue
		}
		result.Records[i] = PutRecordsResultEntry{
			ShardID:        put.ShardID,
			SequenceNumber: put.SequenceNumber,
		}
	}

	return result, nil
}

// GetShardIterator issues an opaque iterator positioned per iteratorType.
// The position is resolved against the shard at issuance: records are never
// deleted, so the index of a sequence number is stable, and the LATEST anchor
// is captured here under the shard's append lock.
func (s *StreamService) GetShardIterator(ctx context.Context, streamName, shardID, iteratorType, startingSequenceNumber string) (string, error) {
	stream, err := s.lookupStream(streamName)
	if err != nil {
		return "", err
	}

	shard, ok := stream.Shard(shardID)
	if !ok {
		return "", errors.ShardNotFound(streamName, shardID)
	}

	itype, ok := model.ParseIteratorType(iteratorType)
	if !ok {
		return "", errors.InvalidIteratorType(iteratorType)
	}

	var index uint64
	switch itype {
	case model.IteratorTrimHorizon:
		index = 0
	case model.IteratorLatest:
		index = shard.LatestIndex()
	case model.IteratorAtSequenceNumber, model.IteratorAfterSequenceNumber:
		if err := s.validator.ValidateSequenceNumber(startingSequenceNumber); err != nil {
			return "", err
		}
		at, found := shard.IndexOfSequence(startingSequenceNumber)
		if !found {
			return "", errors.SequenceNotFound(shardID, startingSequenceNumber)
		}
		index = at
		if itype == model.IteratorAfterSequenceNumber {
			index++
		}
	}

	token, err := cursor.New(streamName, shardID, index).Encode()
	if err != nil {
		return "", err
	}

	s.metrics.IteratorsIssuedTotal.WithLabelValues(string(itype)).Inc()

	s.logger.Debug("Shard iterator issued",
		zap.String("stream_name", streamName),
		zap.String("shard_id", shardID),
		zap.String("iterator_type", string(itype)),
		zap.Uint64("index", index))

	return token, nil
}

// GetRecordsResult carries one page of records and the successor iterator
type GetRecordsResult struct {
	Records            []model.Record
	NextShardIterator  string
	MillisBehindLatest int64
}

// GetRecords reads up to limit records at the iterator's position and mints
// the successor iterator. A limit of 0 means unlimited. Reading past the end
// of a shard returns an empty page and a valid successor, never an error.
func (s *StreamService) GetRecords(ctx context.Context, iterator string, limit int) (*GetRecordsResult, error) {
	startTime := time.Now()

	if limit < 0 {
		return nil, errors.InvalidArgument(fmt.Sprintf("limit must be a positive integer, got %d", limit), nil)
	}
	if limit > 0 {
		if err := s.validator.ValidateLimit(limit); err != nil {
			return nil, err
		}
	}

	c, err := cursor.Decode(iterator)
	if err != nil {
		return nil, err
	}

	if s.cfg.IteratorTTL > 0 {
		if age := c.Age(time.Now()); age > s.cfg.IteratorTTL {
			s.metrics.ExpiredIteratorsTotal.Inc()
			return nil, errors.ExpiredIterator(age, s.cfg.IteratorTTL)
		}
	}

	// The iterator may outlive its stream; resolution re-reads registry
	// state at call time.
	stream, err := s.lookupStream(c.StreamName)
	if err != nil {
		return nil, err
	}
	shard, ok := stream.Shard(c.ShardID)
	if !ok {
		return nil, errors.ShardNotFound(c.StreamName, c.ShardID)
	}

	records, nextIndex, millisBehind := shard.ReadFrom(c.Index, limit)

	next, err := cursor.New(c.StreamName, c.ShardID, nextIndex).Encode()
	if err != nil {
		return nil, err
	}

	s.metrics.GetRecordsTotal.Inc()
	s.metrics.RecordsReturned.Observe(float64(len(records)))
	s.metrics.GetRecordsDuration.Observe(time.Since(startTime).Seconds())

	return &GetRecordsResult{
		Records:            records,
		NextShardIterator:  next,
		MillisBehindLatest: millisBehind,
	}, nil
}

// lookupStream fetches a stream by name under the registry read lock
func (s *StreamService) lookupStream(name string) (*storage.Stream, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stream, exists := s.streams[name]
	if !exists {
		return nil, errors.StreamNotFound(name)
	}
	return stream, nil
}

// routingHashKey picks the 128-bit routing hash: the explicit hash key when
// supplied, otherwise the digest of the partition key.
func (s *StreamService) routingHashKey(partitionKey, explicitHashKey string) (*big.Int, error) {
	if explicitHashKey == "" {
		return storage.HashKey(partitionKey), nil
	}
	h, ok := storage.ParseHashKey(explicitHashKey)
	if !ok {
		return nil, errors.InvalidArgument(
			fmt.Sprintf("explicit hash key must be a decimal integer in the 128-bit key space, got '%s'", explicitHashKey), nil)
	}
	return h, nil
}

// streamARN derives the deterministic ARN for a stream name
func (s *StreamService) streamARN(name string) string {
	return fmt.Sprintf("arn:aws:kinesis:%s:%s:%s", s.cfg.Region, s.cfg.AccountID, name)
}

// batchErrorCode maps an engine error to the per-record error code used in
// batch results
func batchErrorCode(err error) string {
	if errors.GetCode(err) == errors.ErrCodeInternal {
		return "InternalFailure"
	}
	return "ValidationException"
}
