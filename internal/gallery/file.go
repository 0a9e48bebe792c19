package gallery

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps the gallery as one JSON document on disk.
type FileStore struct {
	path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

func (f *FileStore) Save(ctx context.Context, trip Trip) (Trip, error) {
	trip, err := prepare(trip)
	if err != nil {
		return Trip{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	trips, err := f.read()
	if err != nil {
		return Trip{}, err
	}
	trips = append([]Trip{trip}, trips...)
	if len(trips) > MaxTrips {
		trips = trips[:MaxTrips]
	}
	if err := f.write(trips); err != nil {
		return Trip{}, err
	}
	return trip, nil
}

func (f *FileStore) List(ctx context.Context) ([]Trip, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	trips, err := f.read()
	if err != nil {
		return nil, err
	}
	return newestFirst(trips), nil
}

func (f *FileStore) Delete(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	trips, err := f.read()
	if err != nil {
		return err
	}
	for i, t := range trips {
		if t.ID == id {
			return f.write(append(trips[:i], trips[i+1:]...))
		}
	}
	return ErrTripNotFound
}

func (f *FileStore) read() ([]Trip, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return []Trip{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read gallery: %w", err)
	}
	trips := []Trip{}
	if len(data) == 0 {
		return trips, nil
	}
	if err := json.Unmarshal(data, &trips); err != nil {
		return nil, fmt.Errorf("failed to decode gallery: %w", err)
	}
	return trips, nil
}

// write replaces the file atomically so a crash never leaves half a gallery.
func (f *FileStore) write(trips []Trip) error {
	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	data, err := json.MarshalIndent(trips, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode gallery: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".gallery-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to write gallery: %w", err)
	}
	if err := os.Rename(tmp.Name(), f.path); err != nil {
		return fmt.Errorf("failed to replace gallery: %w", err)
	}
	return nil
}
