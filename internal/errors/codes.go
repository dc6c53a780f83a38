package errors

import (
	"fmt"
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// ErrorCode represents internal error codes for stream operations
type ErrorCode int

const (
	// Success
	ErrCodeOK ErrorCode = 0

	// Client errors (4xx equivalent)
	ErrCodeInvalidArgument       ErrorCode = 1000
	ErrCodeStreamNotFound        ErrorCode = 1001
	ErrCodeShardNotFound         ErrorCode = 1002
	ErrCodeStreamInUse           ErrorCode = 1003
	ErrCodeSequenceNotFound      ErrorCode = 1004
	ErrCodeInvalidIterator       ErrorCode = 1005
	ErrCodeExpiredIterator       ErrorCode = 1006
	ErrCodeLimitExceeded         ErrorCode = 1007
	ErrCodeInvalidSequenceNumber ErrorCode = 1008

	// Server errors (5xx equivalent)
	ErrCodeInternal ErrorCode = 2000
)

// StreamError represents a structured error with code and context
type StreamError struct {
	Code    ErrorCode
	Message string
	Details map[string]interface{}
	Cause   error
}

// Error implements the error interface
func (e *StreamError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *StreamError) Unwrap() error {
	return e.Cause
}

// ToGRPCStatus converts StreamError to gRPC status
func (e *StreamError) ToGRPCStatus() *status.Status {
	return status.New(e.ToGRPCCode(), e.Error())
}

// ToGRPCCode maps internal error codes to gRPC codes
func (e *StreamError) ToGRPCCode() codes.Code {
	switch e.Code {
	case ErrCodeOK:
		return codes.OK
	case ErrCodeInvalidArgument, ErrCodeInvalidIterator, ErrCodeInvalidSequenceNumber,
		ErrCodeSequenceNotFound:
		return codes.InvalidArgument
	case ErrCodeStreamNotFound, ErrCodeShardNotFound:
		return codes.NotFound
	case ErrCodeStreamInUse:
		return codes.AlreadyExists
	case ErrCodeExpiredIterator:
		return codes.FailedPrecondition
	case ErrCodeLimitExceeded:
		return codes.OutOfRange
	default:
		return codes.Internal
	}
}

// NewStreamError creates a new StreamError
func NewStreamError(code ErrorCode, message string, cause error) *StreamError {
	return &StreamError{
		Code:    code,
		Message: message,
		Details: make(map[string]interface{}),
		Cause:   cause,
	}
}

// WithDetail adds a detail to the error
func (e *StreamError) WithDetail(key string, value interface{}) *StreamError {
	e.Details[key] = value
	return e
}

// Convenience constructors for common errors

func InvalidArgument(message string, cause error) *StreamError {
	return NewStreamError(ErrCodeInvalidArgument, message, cause)
}

func StreamNotFound(name string) *StreamError {
	return NewStreamError(ErrCodeStreamNotFound, fmt.Sprintf("stream not found: %s", name), nil).
		WithDetail("stream_name", name)
}

func ShardNotFound(streamName, shardID string) *StreamError {
	return NewStreamError(ErrCodeShardNotFound, fmt.Sprintf("shard not found: %s in stream %s", shardID, streamName), nil).
		WithDetail("stream_name", streamName).
		WithDetail("shard_id", shardID)
}

func StreamInUse(name string) *StreamError {
	return NewStreamError(ErrCodeStreamInUse, fmt.Sprintf("stream already exists: %s", name), nil).
		WithDetail("stream_name", name)
}

func SequenceNotFound(shardID, sequenceNumber string) *StreamError {
	return NewStreamError(ErrCodeSequenceNotFound, fmt.Sprintf("sequence number %s does not exist in shard %s", sequenceNumber, shardID), nil).
		WithDetail("shard_id", shardID).
		WithDetail("sequence_number", sequenceNumber)
}

func InvalidSequenceNumber(sequenceNumber, reason string) *StreamError {
	return NewStreamError(ErrCodeInvalidSequenceNumber, fmt.Sprintf("invalid sequence number '%s': %s", sequenceNumber, reason), nil).
		WithDetail("sequence_number", sequenceNumber).
		WithDetail("reason", reason)
}

func InvalidIteratorType(iteratorType string) *StreamError {
	return NewStreamError(ErrCodeInvalidArgument, fmt.Sprintf("invalid shard iterator type: %s", iteratorType), nil).
		WithDetail("iterator_type", iteratorType)
}

func InvalidIterator(reason string, cause error) *StreamError {
	return NewStreamError(ErrCodeInvalidIterator, fmt.Sprintf("invalid shard iterator: %s", reason), cause)
}

func ExpiredIterator(age, ttl time.Duration) *StreamError {
	return NewStreamError(ErrCodeExpiredIterator, fmt.Sprintf("shard iterator expired: issued %v ago, validity %v", age, ttl), nil).
		WithDetail("age", age.String()).
		WithDetail("ttl", ttl.String())
}

func LimitExceeded(resource string, current, limit int) *StreamError {
	return NewStreamError(ErrCodeLimitExceeded, fmt.Sprintf("%s limit exceeded: %d/%d", resource, current, limit), nil).
		WithDetail("resource", resource).
		WithDetail("current", current).
		WithDetail("limit", limit)
}

func InternalError(message string, cause error) *StreamError {
	return NewStreamError(ErrCodeInternal, message, cause)
}

// IsStreamError checks if an error is a StreamError
func IsStreamError(err error) bool {
	_, ok := err.(*StreamError)
	return ok
}

// GetCode extracts the error code from an error
func GetCode(err error) ErrorCode {
	if se, ok := err.(*StreamError); ok {
		return se.Code
	}
	return ErrCodeInternal
}
