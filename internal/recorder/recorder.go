// Package recorder persists the run log. Every event a session emits is
// kept in memory and optionally appended to a JSONL file, one record per
// line, so a run can be dumped, diffed and restored. A postgres sink can
// additionally batch the rows into the database for dashboards.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/your-org/tick-session-engine/internal/market"
)

// LogMessage is one logged payload. Exactly one field is set.
type LogMessage struct {
	Order     *market.Order           `json:"order,omitempty"`
	Account   *market.AccountSnapshot `json:"account,omitempty"`
	Indicator *market.Indicator       `json:"indicator,omitempty"`
}

// LogRecord is one line of the run log: a microsecond timestamp and the
// payloads recorded at that instant.
type LogRecord struct {
	T    market.MicroSec `json:"t"`
	Data []LogMessage    `json:"data"`
}

// Recorder collects log records in memory and, when a path was given,
// appends them to a JSONL file as they arrive. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []LogRecord

	file *os.File
	buf  *bufio.Writer
	enc  *json.Encoder
}

// New creates a recorder. An empty path keeps the log in memory only.
func New(path string) (*Recorder, error) {
	r := &Recorder{}
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err != nil {
			return nil, fmt.Errorf("failed to open run log %s: %w", path, err)
		}
		r.file = f
		r.buf = bufio.NewWriter(f)
		r.enc = json.NewEncoder(r.buf)
	}
	return r, nil
}

// Record logs one session event. Unknown event kinds are ignored.
func (r *Recorder) Record(e market.Event) {
	var msg LogMessage
	switch v := e.(type) {
	case *market.Order:
		msg.Order = v
	case market.AccountSnapshot:
		msg.Account = &v
	case market.Indicator:
		msg.Indicator = &v
	default:
		return
	}
	r.append(LogRecord{T: e.EventTime(), Data: []LogMessage{msg}})
}

func (r *Recorder) append(rec LogRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if r.enc != nil {
		// Encode errors surface on Close via Flush.
		_ = r.enc.Encode(rec)
	}
}

// Records returns a copy of the in-memory log.
func (r *Recorder) Records() []LogRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]LogRecord, len(r.records))
	copy(out, r.records)
	return out
}

// Len returns the number of records logged so far.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// Dump writes the in-memory log as JSONL.
func (r *Recorder) Dump(w io.Writer) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	enc := json.NewEncoder(w)
	for _, rec := range r.records {
		if err := enc.Encode(rec); err != nil {
			return fmt.Errorf("failed to dump run log: %w", err)
		}
	}
	return nil
}

// Restore replaces the in-memory log with records read from a JSONL
// stream, as produced by Dump or the file sink.
func (r *Recorder) Restore(reader io.Reader) error {
	var records []LogRecord
	dec := json.NewDecoder(reader)
	for {
		var rec LogRecord
		if err := dec.Decode(&rec); err == io.EOF {
			break
		} else if err != nil {
			return fmt.Errorf("failed to restore run log: %w", err)
		}
		records = append(records, rec)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = records
	return nil
}

// Close flushes and closes the file sink, if any.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.file == nil {
		return nil
	}
	if err := r.buf.Flush(); err != nil {
		r.file.Close()
		return fmt.Errorf("failed to flush run log: %w", err)
	}
	return r.file.Close()
}
