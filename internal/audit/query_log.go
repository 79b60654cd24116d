// Package audit keeps a persistent log of every upstream ledger query:
// what ran, how long it took, how many rows came back, and how it failed.
// The log is the first place to look when the upstream starts throttling.
package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// QueryRecord is one executed ledger query.
type QueryRecord struct {
	ID        uuid.UUID     `json:"id"`
	QueryHash string        `json:"queryHash"`
	Duration  time.Duration `json:"durationMs"`
	Rows      int           `json:"rows"`
	Status    string        `json:"status"`
	Error     string        `json:"error,omitempty"`
	At        time.Time     `json:"at"`
}

// Status values for QueryRecord.
const (
	StatusOK     = "ok"
	StatusFailed = "failed"
)

// QueryFilters narrows a log listing.
type QueryFilters struct {
	Since  time.Time
	Status string
	Limit  int
}

// Recorder adapts the query log to the ledger client's observer hook.
// Writes happen off the request path through a buffered channel; when the
// buffer is full the record is dropped and counted, a slow log store must
// never stall ledger queries.
type Recorder struct {
	service *Service
	logger  *slog.Logger
	feed    chan QueryRecord
	done    chan struct{}
}

const recorderBuffer = 256

// NewRecorder starts the background writer.
func NewRecorder(service *Service, logger *slog.Logger) *Recorder {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Recorder{
		service: service,
		logger:  logger,
		feed:    make(chan QueryRecord, recorderBuffer),
		done:    make(chan struct{}),
	}
	go r.drain()
	return r
}

// ObserveQuery implements the ledger client's observer hook.
func (r *Recorder) ObserveQuery(_ context.Context, queryHash string, duration time.Duration, rows int, err error) {
	rec := QueryRecord{
		ID:        uuid.New(),
		QueryHash: queryHash,
		Duration:  duration,
		Rows:      rows,
		Status:    StatusOK,
		At:        time.Now().UTC(),
	}
	if err != nil {
		rec.Status = StatusFailed
		rec.Error = err.Error()
	}
	select {
	case r.feed <- rec:
	default:
		r.logger.Warn("query log buffer full, record dropped", slog.String("hash", queryHash))
	}
}

// Close stops the writer after draining buffered records.
func (r *Recorder) Close() {
	close(r.feed)
	<-r.done
}

func (r *Recorder) drain() {
	defer close(r.done)
	for rec := range r.feed {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := r.service.Record(ctx, rec); err != nil {
			r.logger.Warn("query log write failed", slog.Any("error", err))
		}
		cancel()
	}
}
