package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"campusattend/internal/attendance"
	"campusattend/internal/metrics"
)

// TypeScanLog tags messages carrying an attendance.ScanLog.
const TypeScanLog = "scanlog"

// ScanPublisher adapts a Queue to attendance.ScanSink.
type ScanPublisher struct {
	Q Queue
}

// PublishScan enqueues entry for the worker to persist.
func (p ScanPublisher) PublishScan(ctx context.Context, entry attendance.ScanLog) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode scan log: %w", err)
	}
	return p.Q.Publish(ctx, Message{Type: TypeScanLog, Body: body})
}

// DecodeScanLog extracts the entry from a scan log message.
func DecodeScanLog(msg Message) (attendance.ScanLog, error) {
	if msg.Type != TypeScanLog {
		return attendance.ScanLog{}, fmt.Errorf("unexpected message type %q", msg.Type)
	}
	var entry attendance.ScanLog
	if err := json.Unmarshal(msg.Body, &entry); err != nil {
		return attendance.ScanLog{}, fmt.Errorf("decode scan log: %w", err)
	}
	return entry, nil
}

// PersistScanLogs consumes q until ctx is done and writes every scan log
// through store. Bad messages and failed writes are logged and skipped.
func PersistScanLogs(ctx context.Context, q Queue, store attendance.Store, log *zap.Logger) error {
	messages, err := q.Consume(ctx)
	if err != nil {
		return fmt.Errorf("queue consume init: %w", err)
	}
	for msg := range messages {
		entry, err := DecodeScanLog(msg)
		if err != nil {
			log.Warn("dropping queue message", zap.String("type", msg.Type), zap.Error(err))
			continue
		}
		if err := store.InsertScanLog(ctx, entry); err != nil {
			log.Error("persist scan log failed", zap.String("id", entry.ID), zap.Error(err))
			continue
		}
		metrics.ScanLogsPersisted.Inc()
	}
	return nil
}
