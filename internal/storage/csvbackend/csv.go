package csvbackend

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/FranksOps/v6scout/internal/storage"
)

// ensure csvBackend implements storage.Backend
var _ storage.Backend = (*csvBackend)(nil)

type csvBackend struct {
	mu   sync.Mutex
	file *os.File
}

// headers defines the CSV column order
var headers = []string{
	"id",
	"run_id",
	"index",
	"domain",
	"outcome",
	"addresses",
	"attempts",
	"node",
	"duration_ms",
	"created_at",
	"error",
}

// addrSep joins addresses in one cell; it cannot occur inside an IPv6 address.
const addrSep = " "

// New creates a new CSV-backed storage.Backend.
func New(filePath string) (storage.Backend, error) {
	// Open file for appending, create if it doesn't exist
	f, err := os.OpenFile(filePath, os.O_APPEND|os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("csvbackend: open: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("csvbackend: stat: %w", err)
	}

	if info.Size() == 0 {
		w := csv.NewWriter(f)
		if err := w.Write(headers); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: write header: %w", err)
		}
		w.Flush()
		if err := w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("csvbackend: flush header: %w", err)
		}
	}

	return &csvBackend{
		file: f,
	}, nil
}

func (b *csvBackend) Save(ctx context.Context, record *storage.QueryRecord) error {
	row := []string{
		record.ID,
		record.RunID,
		strconv.Itoa(record.Index),
		record.Domain,
		record.Outcome,
		strings.Join(record.Addresses, addrSep),
		strconv.Itoa(record.Attempts),
		record.Node,
		strconv.FormatInt(record.Duration.Milliseconds(), 10),
		record.CreatedAt.Format(time.RFC3339Nano),
		record.Error,
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	// Ensure we're at the end of the file for appending (just in case)
	if _, err := b.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("csvbackend: seek: %w", err)
	}

	w := csv.NewWriter(b.file)
	if err := w.Write(row); err != nil {
		return fmt.Errorf("csvbackend: write: %w", err)
	}
	w.Flush()

	if err := w.Error(); err != nil {
		return fmt.Errorf("csvbackend: flush: %w", err)
	}
	return nil
}

func (b *csvBackend) Query(ctx context.Context, filter storage.Filter) ([]*storage.QueryRecord, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, err := b.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("csvbackend: seek: %w", err)
	}
	defer func() {
		// Restore pointer to end for writing
		_, _ = b.file.Seek(0, io.SeekEnd)
	}()

	r := csv.NewReader(b.file)

	if _, err := r.Read(); err != nil {
		if err == io.EOF {
			return []*storage.QueryRecord{}, nil
		}
		return nil, fmt.Errorf("csvbackend: read header: %w", err)
	}

	var matched []*storage.QueryRecord
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("csvbackend: read: %w", err)
		}

		if len(row) != len(headers) {
			continue // skip malformed rows
		}

		index, _ := strconv.Atoi(row[2])
		attempts, _ := strconv.Atoi(row[6])
		durationMs, _ := strconv.ParseInt(row[8], 10, 64)
		createdAt, _ := time.Parse(time.RFC3339Nano, row[9])

		addrs := []string{}
		if row[5] != "" {
			addrs = strings.Split(row[5], addrSep)
		}

		rec := &storage.QueryRecord{
			ID:        row[0],
			RunID:     row[1],
			Index:     index,
			Domain:    row[3],
			Outcome:   row[4],
			Addresses: addrs,
			Attempts:  attempts,
			Node:      row[7],
			Duration:  time.Duration(durationMs) * time.Millisecond,
			CreatedAt: createdAt,
			Error:     row[10],
		}
		if filter.Match(rec) {
			matched = append(matched, rec)
		}
	}

	return filter.Page(matched), nil
}

func (b *csvBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.file.Close()
}
