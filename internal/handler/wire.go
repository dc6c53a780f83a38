package handler

import (
	"github.com/devrev/streamdb/internal/model"
	"github.com/devrev/streamdb/internal/service"
)

// Wire shapes for the JSON API. Field names follow the emulated protocol;
// []byte payloads marshal as base64 strings, matching its blob encoding.

type createStreamInput struct {
	StreamName string `json:"StreamName"`
	ShardCount int    `json:"ShardCount"`
}

type describeStreamInput struct {
	StreamName string `json:"StreamName"`
}

type describeStreamOutput struct {
	StreamDescription streamDescription `json:"StreamDescription"`
}

type streamDescription struct {
	StreamName    string             `json:"StreamName"`
	StreamARN     string             `json:"StreamARN"`
	StreamStatus  string             `json:"StreamStatus"`
	Shards        []shardDescription `json:"Shards"`
	HasMoreShards bool               `json:"HasMoreShards"`
}

type shardDescription struct {
	ShardID             string              `json:"ShardId"`
	HashKeyRange        hashKeyRange        `json:"HashKeyRange"`
	SequenceNumberRange sequenceNumberRange `json:"SequenceNumberRange"`
}

type hashKeyRange struct {
	StartingHashKey string `json:"StartingHashKey"`
	EndingHashKey   string `json:"EndingHashKey"`
}

type sequenceNumberRange struct {
	StartingSequenceNumber string `json:"StartingSequenceNumber"`
	EndingSequenceNumber   string `json:"EndingSequenceNumber,omitempty"`
}

type listStreamsOutput struct {
	StreamNames    []string `json:"StreamNames"`
	HasMoreStreams bool     `json:"HasMoreStreams"`
}

type deleteStreamInput struct {
	StreamName string `json:"StreamName"`
}

type putRecordInput struct {
	StreamName      string `json:"StreamName"`
	PartitionKey    string `json:"PartitionKey"`
	ExplicitHashKey string `json:"ExplicitHashKey,omitempty"`
	Data            []byte `json:"Data"`
}

type putRecordOutput struct {
	ShardID        string `json:"ShardId"`
	SequenceNumber string `json:"SequenceNumber"`
}

type putRecordsInput struct {
	StreamName string                 `json:"StreamName"`
	Records    []putRecordsInputEntry `json:"Records"`
}

type putRecordsInputEntry struct {
	PartitionKey    string `json:"PartitionKey"`
	ExplicitHashKey string `json:"ExplicitHashKey,omitempty"`
	Data            []byte `json:"Data"`
}

type putRecordsOutput struct {
	FailedRecordCount int                     `json:"FailedRecordCount"`
	Records           []putRecordsOutputEntry `json:"Records"`
}

type putRecordsOutputEntry struct {
	ShardID        string `json:"ShardId,omitempty"`
	SequenceNumber string `json:"SequenceNumber,omitempty"`
	ErrorCode      string `json:"ErrorCode,omitempty"`
	ErrorMessage   string `json:"ErrorMessage,omitempty"`
}

type getShardIteratorInput struct {
	StreamName             string `json:"StreamName"`
	ShardID                string `json:"ShardId"`
	ShardIteratorType      string `json:"ShardIteratorType"`
	StartingSequenceNumber string `json:"StartingSequenceNumber,omitempty"`
}

type getShardIteratorOutput struct {
	ShardIterator string `json:"ShardIterator"`
}

type getRecordsInput struct {
	ShardIterator string `json:"ShardIterator"`
	Limit         *int   `json:"Limit,omitempty"`
}

type getRecordsOutput struct {
	Records            []wireRecord `json:"Records"`
	NextShardIterator  string       `json:"NextShardIterator"`
	MillisBehindLatest int64        `json:"MillisBehindLatest"`
}

type wireRecord struct {
	SequenceNumber              string  `json:"SequenceNumber"`
	ApproximateArrivalTimestamp float64 `json:"ApproximateArrivalTimestamp"`
	PartitionKey                string  `json:"PartitionKey"`
	Data                        []byte  `json:"Data"`
}

func toWireDescription(desc *model.StreamDescription) describeStreamOutput {
	shards := make([]shardDescription, len(desc.Shards))
	for i, sh := range desc.Shards {
		shards[i] = shardDescription{
			ShardID: sh.ShardID,
			HashKeyRange: hashKeyRange{
				StartingHashKey: sh.HashKeyRange.StartingHashKey,
				EndingHashKey:   sh.HashKeyRange.EndingHashKey,
			},
			SequenceNumberRange: sequenceNumberRange{
				StartingSequenceNumber: sh.SequenceNumberRange.StartingSequenceNumber,
				EndingSequenceNumber:   sh.SequenceNumberRange.EndingSequenceNumber,
			},
		}
	}

	return describeStreamOutput{
		StreamDescription: streamDescription{
			StreamName:    desc.StreamName,
			StreamARN:     desc.StreamARN,
			StreamStatus:  string(desc.StreamStatus),
			Shards:        shards,
			HasMoreShards: desc.HasMoreShards,
		},
	}
}

func toWireRecords(records []model.Record) []wireRecord {
	out := make([]wireRecord, len(records))
	for i, r := range records {
		out[i] = wireRecord{
			SequenceNumber:              r.SequenceNumber,
			ApproximateArrivalTimestamp: float64(r.ArrivalTimestamp.UnixMilli()) / 1000.0,
			PartitionKey:                r.PartitionKey,
			Data:                        r.Data,
		}
	}
	return out
}

func toWirePutRecords(result *service.PutRecordsResult) putRecordsOutput {
	entries := make([]putRecordsOutputEntry, len(result.Records))
	for i, r := range result.Records {
		entries[i] = putRecordsOutputEntry{
			ShardID:        r.ShardID,
			SequenceNumber: r.SequenceNumber,
			ErrorCode:      r.ErrorCode,
			ErrorMessage:   r.ErrorMessage,
		}
	}
	return putRecordsOutput{
		FailedRecordCount: result.FailedRecordCount,
		Records:           entries,
	}
}
