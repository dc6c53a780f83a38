// Package handler exposes the stream engine over the emulated JSON API:
// every operation is a POST to the root path, dispatched on the X-Amz-Target
// header, with typed engine errors mapped to wire exception shapes.
package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	apierrors "github.com/devrev/streamdb/internal/errors"
	"github.com/devrev/streamdb/internal/metrics"
	"github.com/devrev/streamdb/internal/service"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
)

// targetPrefix is the service identifier expected in X-Amz-Target
const targetPrefix = "Kinesis_20131202"

// StreamHandler implements the HTTP API over the stream service
type StreamHandler struct {
	streamService *service.StreamService
	metrics       *metrics.Metrics
	logger        *zap.Logger
}

// NewStreamHandler creates a new stream handler
func NewStreamHandler(streamSvc *service.StreamService, m *metrics.Metrics, logger *zap.Logger) *StreamHandler {
	return &StreamHandler{
		streamService: streamSvc,
		metrics:       m,
		logger:        logger,
	}
}

// ServeHTTP dispatches an API call based on the X-Amz-Target header
func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()
	requestID := r.Header.Get("X-Request-ID")

	if r.Method != http.MethodPost {
		h.writeError(w, "", requestID, apierrors.InvalidArgument("API calls must use POST", nil))
		return
	}

	target := r.Header.Get("X-Amz-Target")
	prefix, operation, found := strings.Cut(target, ".")
	if !found || prefix != targetPrefix {
		h.writeError(w, operation, requestID, apierrors.InvalidArgument("unknown or missing X-Amz-Target header", nil))
		return
	}

	status, err := h.dispatch(w, r, operation)
	if err != nil {
		h.writeError(w, operation, requestID, err)
		status = h.httpStatus(err)
	}

	h.metrics.HTTPRequestsTotal.WithLabelValues(operation, http.StatusText(status)).Inc()
	h.metrics.HTTPRequestDuration.WithLabelValues(operation).Observe(time.Since(startTime).Seconds())
}

// dispatch routes one decoded operation. It returns the HTTP status written
// on success, or an error that the caller converts to a wire exception.
func (h *StreamHandler) dispatch(w http.ResponseWriter, r *http.Request, operation string) (int, error) {
	ctx := r.Context()

	switch operation {
	case "CreateStream":
		return h.createStream(ctx, w, r)
	case "DescribeStream":
		return h.describeStream(ctx, w, r)
	case "ListStreams":
		return h.listStreams(ctx, w)
	case "DeleteStream":
		return h.deleteStream(ctx, w, r)
	case "PutRecord":
		return h.putRecord(ctx, w, r)
	case "PutRecords":
		return h.putRecords(ctx, w, r)
	case "GetShardIterator":
		return h.getShardIterator(ctx, w, r)
	case "GetRecords":
		return h.getRecords(ctx, w, r)
	default:
		return 0, apierrors.InvalidArgument("unknown operation: "+operation, nil)
	}
}

func (h *StreamHandler) createStream(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req createStreamInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	if err := h.streamService.CreateStream(ctx, req.StreamName, req.ShardCount); err != nil {
		return 0, err
	}

	return h.writeJSON(w, struct{}{})
}

func (h *StreamHandler) describeStream(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req describeStreamInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	desc, err := h.streamService.DescribeStream(ctx, req.StreamName)
	if err != nil {
		return 0, err
	}

	return h.writeJSON(w, toWireDescription(desc))
}

func (h *StreamHandler) listStreams(ctx context.Context, w http.ResponseWriter) (int, error) {
	names, err := h.streamService.ListStreams(ctx)
	if err != nil {
		return 0, err
	}

	return h.writeJSON(w, listStreamsOutput{
		StreamNames:    names,
		HasMoreStreams: false,
	})
}

func (h *StreamHandler) deleteStream(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req deleteStreamInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	if err := h.streamService.DeleteStream(ctx, req.StreamName); err != nil {
		return 0, err
	}

	return h.writeJSON(w, struct{}{})
}

func (h *StreamHandler) putRecord(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req putRecordInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	result, err := h.streamService.PutRecord(ctx, req.StreamName, req.PartitionKey, req.ExplicitHashKey, req.Data)
	if err != nil {
		return 0, err
	}

	return h.writeJSON(w, putRecordOutput{
		ShardID:        result.ShardID,
		SequenceNumber: result.SequenceNumber,
	})
}

func (h *StreamHandler) putRecords(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req putRecordsInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	entries := make([]service.PutRecordsEntry, len(req.Records))
	for i, rec := range req.Records {
		entries[i] = service.PutRecordsEntry{
			PartitionKey:    rec.PartitionKey,
			ExplicitHashKey: rec.ExplicitHashKey,
			Data:            rec.Data,
		}
	}

	result, err := h.streamService.PutRecords(ctx, req.StreamName, entries)
	if err != nil {
		return 0, err
	}

	return h.writeJSON(w, toWirePutRecords(result))
}

func (h *StreamHandler) getShardIterator(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req getShardIteratorInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	iterator, err := h.streamService.GetShardIterator(ctx, req.StreamName, req.ShardID, req.ShardIteratorType, req.StartingSequenceNumber)
	if err != nil {
		return 0, err
	}

	return h.writeJSON(w, getShardIteratorOutput{ShardIterator: iterator})
}

func (h *StreamHandler) getRecords(ctx context.Context, w http.ResponseWriter, r *http.Request) (int, error) {
	var req getRecordsInput
	if err := decodeBody(r, &req); err != nil {
		return 0, err
	}

	// An absent limit means "everything available"; an explicit limit must
	// be a positive integer within range.
	limit := 0
	if req.Limit != nil {
		limit = *req.Limit
		if limit <= 0 {
			return 0, apierrors.InvalidArgument("Limit must be a positive integer", nil)
		}
	}

	result, err := h.streamService.GetRecords(ctx, req.ShardIterator, limit)
	if err != nil {
		return 0, err
	}

	return h.writeJSON(w, getRecordsOutput{
		Records:            toWireRecords(result.Records),
		NextShardIterator:  result.NextShardIterator,
		MillisBehindLatest: result.MillisBehindLatest,
	})
}

// decodeBody decodes a JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return apierrors.InvalidArgument("request body is not valid JSON", err)
	}
	return nil
}

// writeJSON writes a success response
func (h *StreamHandler) writeJSON(w http.ResponseWriter, data interface{}) (int, error) {
	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("Failed to encode response", zap.Error(err))
	}
	return http.StatusOK, nil
}

// wireException is the error body shape of the emulated protocol
type wireException struct {
	Type    string `json:"__type"`
	Message string `json:"message"`
}

// writeError converts a typed engine error into the wire exception shape
func (h *StreamHandler) writeError(w http.ResponseWriter, operation, requestID string, err error) {
	status := h.httpStatus(err)
	exception := exceptionType(err)

	h.logger.Warn("API error response",
		zap.String("operation", operation),
		zap.String("request_id", requestID),
		zap.String("exception", exception),
		zap.Int("status_code", status),
		zap.Error(err))

	w.Header().Set("Content-Type", "application/x-amz-json-1.1")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(wireException{
		Type:    exception,
		Message: err.Error(),
	})
}

// httpStatus maps a typed engine error to an HTTP status code through its
// gRPC code, the same mapping the rest of the codebase uses.
func (h *StreamHandler) httpStatus(err error) int {
	se, ok := err.(*apierrors.StreamError)
	if !ok {
		return http.StatusInternalServerError
	}

	switch se.ToGRPCCode() {
	case codes.OK:
		return http.StatusOK
	case codes.InvalidArgument, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.NotFound:
		return http.StatusNotFound
	case codes.AlreadyExists:
		return http.StatusConflict
	case codes.FailedPrecondition:
		return http.StatusPreconditionFailed
	default:
		return http.StatusInternalServerError
	}
}

// exceptionType maps an engine error code to its wire exception name
func exceptionType(err error) string {
	switch apierrors.GetCode(err) {
	case apierrors.ErrCodeStreamNotFound, apierrors.ErrCodeShardNotFound:
		return "ResourceNotFoundException"
	case apierrors.ErrCodeStreamInUse:
		return "ResourceInUseException"
	case apierrors.ErrCodeExpiredIterator:
		return "ExpiredIteratorException"
	case apierrors.ErrCodeLimitExceeded:
		return "LimitExceededException"
	case apierrors.ErrCodeInvalidArgument, apierrors.ErrCodeInvalidIterator,
		apierrors.ErrCodeInvalidSequenceNumber, apierrors.ErrCodeSequenceNotFound:
		return "InvalidArgumentException"
	default:
		return "InternalFailure"
	}
}
