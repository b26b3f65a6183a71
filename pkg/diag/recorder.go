// Package diag records broadcast events to a Parquet file for later
// offline analysis, opt-in via the coordinator's -record flag.
package diag

import (
	"io"

	"github.com/segmentio/parquet-go"
)

// BroadcastEvent is one row of the broadcast diagnostic log: the inputs
// and outputs of a single broadcast-engine run (§4.9).
type BroadcastEvent struct {
	TimestampMS       int64  `parquet:"timestamp_ms"`
	Region            string `parquet:"region"`
	Payload           string `parquet:"payload"`
	ParticipantCount  int32  `parquet:"participant_count"`
	HighestServerMS   int64  `parquet:"highest_server_ms"`
	HighestRegionMS   int64  `parquet:"highest_region_ms"`
	TargetTimestampMS int64  `parquet:"target_timestamp_ms"`
}

// Recorder appends BroadcastEvent rows to an underlying Parquet file.
type Recorder struct {
	file   io.Closer
	writer *parquet.GenericWriter[BroadcastEvent]
}

// NewRecorder wraps w as a Parquet writer of BroadcastEvent rows.
func NewRecorder(w io.WriteCloser) *Recorder {
	return &Recorder{
		file:   w,
		writer: parquet.NewGenericWriter[BroadcastEvent](w),
	}
}

// RecordBroadcast appends one broadcast event as a Parquet row.
func (r *Recorder) RecordBroadcast(event BroadcastEvent) error {
	_, err := r.writer.Write([]BroadcastEvent{event})
	return err
}

// Close flushes the Parquet footer and closes the underlying file.
func (r *Recorder) Close() error {
	if err := r.writer.Close(); err != nil {
		r.file.Close()
		return err
	}
	return r.file.Close()
}
