package maat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
)

// Catalog document names written by PublishCatalog.
const (
	CatalogScenes   = "scenes.json"
	CatalogKeywords = "keywords.json"
	CatalogApps     = "apps.json"
	CatalogStats    = "stats.json"
)

// PublishCatalog writes the public scene list, the keyword histogram, the
// web-app list and the stats to p. Every document is taken from a current
// snapshot. Returns the number of documents written.
func (s *Service) PublishCatalog(ctx context.Context, p Publisher) (int, error) {
	stats, err := s.Stats(ctx)
	if err != nil {
		return 0, fmt.Errorf("collecting stats: %w", err)
	}
	scenes, err := s.PublicScenes(ctx)
	if err != nil {
		return 0, fmt.Errorf("collecting scenes: %w", err)
	}
	apps, err := s.Apps(ctx)
	if err != nil {
		return 0, fmt.Errorf("collecting apps: %w", err)
	}

	docs := []struct {
		name string
		v    any
	}{
		{CatalogScenes, scenes},
		{CatalogKeywords, stats.Keywords},
		{CatalogApps, apps},
		{CatalogStats, stats},
	}

	written := 0
	for _, d := range docs {
		data, err := json.MarshalIndent(d.v, "", "  ")
		if err != nil {
			return written, fmt.Errorf("encoding %s: %w", d.name, err)
		}
		if err := p.Put(ctx, d.name, bytes.NewReader(data), int64(len(data))); err != nil {
			return written, fmt.Errorf("publishing %s: %w", d.name, err)
		}
		written++
		s.logger.Info("catalog document published", "name", d.name, "bytes", len(data))
	}
	return written, nil
}
