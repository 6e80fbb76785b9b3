package sim

import (
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/gocarina/gocsv"
)

// StepRecord is one committed step of a run, as written to CSV.
type StepRecord struct {
	Step       int     `csv:"step"`
	Clusters   int     `csv:"clusters"`
	Connected  bool    `csv:"connected"`
	Remaining  int     `csv:"remaining"`
	Destroyed  int     `csv:"destroyed"`
	MeanSpeed  float64 `csv:"mean_speed"`
	DurationMS float64 `csv:"duration_ms"`
}

// History records the per-step trajectory of a run for later export.
// Safe for concurrent use; the controller appends, exporters read.
type History struct {
	mu      sync.Mutex
	records []StepRecord
}

// NewHistory creates an empty recorder.
func NewHistory() *History {
	return &History{}
}

// Add appends one record.
func (h *History) Add(r StepRecord) {
	h.mu.Lock()
	h.records = append(h.records, r)
	h.mu.Unlock()
}

// Reset discards all records. Called on reinitialize.
func (h *History) Reset() {
	h.mu.Lock()
	h.records = h.records[:0]
	h.mu.Unlock()
}

// Len returns the number of recorded steps.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.records)
}

// Records returns a copy of the recorded steps.
func (h *History) Records() []StepRecord {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]StepRecord, len(h.records))
	copy(out, h.records)
	return out
}

// ExportCSV writes the records as CSV, header included.
func (h *History) ExportCSV(w io.Writer) error {
	records := h.Records()
	if err := gocsv.Marshal(&records, w); err != nil {
		return fmt.Errorf("writing history csv: %w", err)
	}
	return nil
}

// WriteCSVFile writes the records to a CSV file at path.
func (h *History) WriteCSVFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating history file: %w", err)
	}
	defer f.Close()
	return h.ExportCSV(f)
}
