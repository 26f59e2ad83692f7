// Package snapshot writes one JSON document per world. It is the sink used
// when no database is configured.
package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/tibia-housing-crawler/internal/housing"
	"github.com/JakeFAU/tibia-housing-crawler/internal/metrics"
)

// ContentType of every document written.
const ContentType = "application/json"

// BlobStore stores rendered documents.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, r io.Reader) (string, error)
}

// Statistics counts a world's listings across both families.
type Statistics struct {
	Total      int `json:"total"`
	Rented     int `json:"rented"`
	Auctioned  int `json:"auctioned"`
	Available  int `json:"available"`
	Guildhalls int `json:"guildhalls"`
}

// Document is the persisted shape of one world.
type Document struct {
	Server     string            `json:"server"`
	RunID      string            `json:"runId,omitempty"`
	Timestamp  string            `json:"timestamp"`
	LastUpdate int64             `json:"lastUpdate"`
	Statistics Statistics        `json:"statistics"`
	Houses     []housing.Listing `json:"houses"`
}

// Writer renders listings into documents and implements housing.Sink.
type Writer struct {
	blobs  BlobStore
	clock  housing.Clock
	runID  string
	logger *zap.Logger
}

var _ housing.Sink = (*Writer)(nil)

// NewWriter builds a Writer. runID is stamped on every document.
func NewWriter(blobs BlobStore, clock housing.Clock, runID string, logger *zap.Logger) (*Writer, error) {
	if blobs == nil {
		return nil, fmt.Errorf("blob store is required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{blobs: blobs, clock: clock, runID: runID, logger: logger.Named("snapshot")}, nil
}

// ObjectPath returns the path a world's document is stored under.
func ObjectPath(server string) string {
	return path.Join("servers", server+".json")
}

// Build assembles the document for a world. Listings are sorted by id.
func Build(server string, runID string, now time.Time, listings []housing.Listing) Document {
	sorted := append([]housing.Listing(nil), listings...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	stats := Statistics{Total: len(sorted)}
	for _, l := range sorted {
		switch l.Status {
		case housing.StatusRented:
			stats.Rented++
		case housing.StatusAuctioned:
			stats.Auctioned++
		case housing.StatusAvailable:
			stats.Available++
		}
		if l.Guildhall {
			stats.Guildhalls++
		}
	}
	return Document{
		Server:     server,
		RunID:      runID,
		Timestamp:  now.UTC().Format(time.RFC3339),
		LastUpdate: now.UnixMilli(),
		Statistics: stats,
		Houses:     sorted,
	}
}

// Persist writes the world's document, replacing any previous one.
func (w *Writer) Persist(ctx context.Context, server housing.Server, listings []housing.Listing) (housing.ServerResult, error) {
	result := housing.ServerResult{Server: server.Name}
	doc := Build(server.Name, w.runID, w.clock.Now(), listings)
	if doc.Houses == nil {
		doc.Houses = []housing.Listing{}
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		result.Failed = len(listings)
		return result, fmt.Errorf("encode %s snapshot: %w", server.Name, err)
	}

	uri, err := w.blobs.PutObject(ctx, ObjectPath(server.Name), ContentType, &buf)
	if err != nil {
		result.Failed = len(listings)
		return result, fmt.Errorf("write %s snapshot: %w", server.Name, err)
	}

	for _, l := range listings {
		metrics.ObserveListingStored(string(l.Family()))
		if l.Guildhall {
			result.Guildhalls++
		} else {
			result.Houses++
		}
	}
	w.logger.Info("snapshot saved",
		zap.String("server", server.Name),
		zap.String("uri", uri),
		zap.Int("total", doc.Statistics.Total),
		zap.Int("rented", doc.Statistics.Rented),
		zap.Int("auctioned", doc.Statistics.Auctioned),
		zap.Int("available", doc.Statistics.Available),
	)
	return result, nil
}
