package gallery

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
)

// ExportTrip appends a finished trip to a plain text travel journal.
func ExportTrip(trip Trip, filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	fileExists := false
	if info, err := os.Stat(filename); err == nil && info.Size() > 0 {
		fileExists = true
	}

	file, err := os.OpenFile(filename, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	var sb strings.Builder
	if fileExists {
		sb.WriteString("\n\n")
	}
	sb.WriteString(fmt.Sprintf("Memory Trip to %s\n", trip.Location))
	sb.WriteString(fmt.Sprintf("Finished: %s\n", trip.CreatedAt.Format("2006-01-02 15:04:05")))
	sb.WriteString(strings.Repeat("=", 50) + "\n\n")

	sb.WriteString("Packed items:\n")
	for i, item := range trip.Items {
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, item))
	}

	if trip.Summary != "" {
		sb.WriteString("\nJournal:\n")
		sb.WriteString(strings.TrimSpace(trip.Summary) + "\n")
	}
	sb.WriteString(strings.Repeat("-", 40) + "\n")

	if _, err := file.WriteString(sb.String()); err != nil {
		return fmt.Errorf("failed to write to file: %w", err)
	}
	return nil
}

// Exporting wraps a store and appends every saved trip to a journal file.
// Journal errors are logged; the save itself still counts.
type Exporting struct {
	Store
	path string
	mu   sync.Mutex
}

func WithExport(store Store, path string) *Exporting {
	return &Exporting{Store: store, path: path}
}

func (e *Exporting) Save(ctx context.Context, trip Trip) (Trip, error) {
	saved, err := e.Store.Save(ctx, trip)
	if err != nil {
		return saved, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := ExportTrip(saved, e.path); err != nil {
		log.Error().Err(err).Str("file", e.path).Msg("failed to export trip")
	}
	return saved, nil
}
