package core

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"bloodcore/internal/infra/blob"
)

const defaultArchiveBatchSize = 64

// BlobArchiver is an EventSink adapter that batches events into JSONL
// segments and writes them to blob storage under date-partitioned keys.
// Audit storage stays outside the engine; this is delivery, not ownership.
type BlobArchiver struct {
	store     blob.Store
	prefix    string
	batchSize int
	clock     func() time.Time

	mu  sync.Mutex
	buf []Event
}

var _ EventSink = (*BlobArchiver)(nil)

// NewBlobArchiver wraps a blob store as an event sink. Events flush every
// batchSize publishes (default 64) or on an explicit Flush.
func NewBlobArchiver(store blob.Store, prefix string, batchSize int) *BlobArchiver {
	if prefix == "" {
		prefix = "audit"
	}
	if batchSize <= 0 {
		batchSize = defaultArchiveBatchSize
	}
	return &BlobArchiver{
		store:     store,
		prefix:    prefix,
		batchSize: batchSize,
		clock:     func() time.Time { return time.Now().UTC() },
	}
}

// SetClock swaps the segment-naming clock, for tests.
func (a *BlobArchiver) SetClock(fn func() time.Time) {
	if fn != nil {
		a.clock = fn
	}
}

// Publish buffers the event, flushing a segment when the batch fills.
func (a *BlobArchiver) Publish(ctx context.Context, event Event) error {
	a.mu.Lock()
	a.buf = append(a.buf, event)
	ready := len(a.buf) >= a.batchSize
	a.mu.Unlock()
	if ready {
		return a.Flush(ctx)
	}
	return nil
}

// Flush writes all buffered events as one JSONL segment. Buffered events are
// retained on write failure so nothing is lost between retries.
func (a *BlobArchiver) Flush(ctx context.Context) error {
	a.mu.Lock()
	batch := a.buf
	a.buf = nil
	a.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, event := range batch {
		if err := enc.Encode(event); err != nil {
			a.restore(batch)
			return fmt.Errorf("encode event: %w", err)
		}
	}
	now := a.clock()
	key := fmt.Sprintf("%s/%s/segment-%s.jsonl", a.prefix, now.Format("2006/01/02"), uuid.NewString())
	if _, err := a.store.Put(ctx, key, &body, blob.PutOptions{ContentType: "application/x-ndjson"}); err != nil {
		a.restore(batch)
		return fmt.Errorf("archive segment %s: %w", key, err)
	}
	return nil
}

func (a *BlobArchiver) restore(batch []Event) {
	a.mu.Lock()
	a.buf = append(batch, a.buf...)
	a.mu.Unlock()
}
