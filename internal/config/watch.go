package config

import (
	"context"
	"os"
	"reflect"
	"time"

	"github.com/rs/zerolog"
)

// WatchResources reloads resources.yaml on change and calls onUpdate with the latest config.
// It performs an initial load before entering the watch loop. A rewrite that
// leaves every resource unchanged does not reach onUpdate.
func WatchResources(ctx context.Context, path string, interval time.Duration, logger *zerolog.Logger, onUpdate func(*ResourcesConfig)) error {
	if path == "" {
		path = "configs/resources.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	current, err := LoadResourcesConfig(path)
	if err != nil {
		return err
	}
	if onUpdate != nil {
		onUpdate(current)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	lastMod := info.ModTime()

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				info, err := os.Stat(path)
				if err != nil {
					continue // transient errors
				}
				if !info.ModTime().After(lastMod) {
					continue
				}
				cfg, err := LoadResourcesConfig(path)
				if err != nil {
					logger.Warn().Err(err).Str("path", path).Msg("resources config reload failed; keeping previous")
					continue
				}
				lastMod = info.ModTime()
				diff := diffResources(current, cfg)
				if diff.empty() {
					logger.Debug().Str("path", path).Msg("resources config touched without changes")
					continue
				}
				current = cfg
				logger.Info().
					Int("added", diff.Added).
					Int("removed", diff.Removed).
					Int("changed", diff.Changed).
					Str("config", cfg.String()).
					Msg("resources config reloaded")
				if onUpdate != nil {
					onUpdate(cfg)
				}
			}
		}
	}()

	return nil
}

// resourceDiff counts resources by ID between two loads.
type resourceDiff struct {
	Added   int
	Removed int
	Changed int
}

func (d resourceDiff) empty() bool {
	return d.Added == 0 && d.Removed == 0 && d.Changed == 0
}

func diffResources(prev, next *ResourcesConfig) resourceDiff {
	var d resourceDiff
	old := make(map[int64]ResourceConfig)
	if prev != nil {
		for _, r := range prev.Resources {
			old[r.ID] = r
		}
	}
	if next == nil {
		d.Removed = len(old)
		return d
	}
	for _, r := range next.Resources {
		o, ok := old[r.ID]
		switch {
		case !ok:
			d.Added++
		case !reflect.DeepEqual(o, r):
			d.Changed++
		}
		delete(old, r.ID)
	}
	d.Removed = len(old)
	return d
}
