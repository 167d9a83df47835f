package janitor

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"campusattend/internal/metrics"
)

// DefaultRetention is how long a rendered QR artifact is kept.
const DefaultRetention = time.Hour

// PurgeResult summarises one sweep.
type PurgeResult struct {
	Scanned int
	Deleted int
	Failed  int
}

// Janitor deletes stale QR artifacts from a directory.
type Janitor struct {
	dir       string
	retention time.Duration
	log       *zap.Logger
	flight    singleflight.Group

	now    func() time.Time
	remove func(string) error
}

// New creates a janitor for dir.
func New(dir string, retention time.Duration, log *zap.Logger) *Janitor {
	if retention <= 0 {
		retention = DefaultRetention
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Janitor{
		dir:       dir,
		retention: retention,
		log:       log,
		now:       time.Now,
		remove:    os.Remove,
	}
}

// Purge removes *.png files in the artifact dir whose mtime is older than
// now-retention. A failed delete is logged and counted; the sweep goes on.
// Temp files from in-progress renders are never touched.
func (j *Janitor) Purge(ctx context.Context, now time.Time, retention time.Duration) (PurgeResult, error) {
	var res PurgeResult
	entries, err := os.ReadDir(j.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return res, nil
		}
		return res, fmt.Errorf("read artifact dir: %w", err)
	}

	cutoff := now.Add(-retention)
	for _, e := range entries {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		name := e.Name()
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".png") {
			continue
		}
		res.Scanned++

		info, err := e.Info()
		if err != nil {
			// Gone between ReadDir and Info: someone else cleaned it.
			continue
		}
		if !info.ModTime().Before(cutoff) {
			continue
		}

		if err := j.remove(filepath.Join(j.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			res.Failed++
			metrics.ArtifactsPurged.WithLabelValues("failed").Inc()
			j.log.Warn("artifact delete failed", zap.String("name", name), zap.Error(err))
			continue
		}
		res.Deleted++
		metrics.ArtifactsPurged.WithLabelValues("deleted").Inc()
	}

	if res.Deleted > 0 || res.Failed > 0 {
		j.log.Info("artifact sweep finished",
			zap.Int("scanned", res.Scanned), zap.Int("deleted", res.Deleted), zap.Int("failed", res.Failed))
	}
	return res, nil
}

// Trigger starts a background sweep unless one is already running. It never
// blocks the caller.
func (j *Janitor) Trigger() {
	j.flight.DoChan("purge", func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		res, err := j.Purge(ctx, j.now(), j.retention)
		if err != nil {
			j.log.Warn("artifact sweep aborted", zap.Error(err))
		}
		return res, err
	})
}

// Schedule runs Purge on a cron spec (e.g. "@every 10m") until the returned
// cron is stopped. Overlapping runs are skipped.
func (j *Janitor) Schedule(spec string) (*cron.Cron, error) {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger)))
	if _, err := c.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 4*time.Minute)
		defer cancel()
		if _, err := j.Purge(ctx, j.now(), j.retention); err != nil {
			j.log.Warn("scheduled artifact sweep failed", zap.Error(err))
		}
	}); err != nil {
		return nil, fmt.Errorf("janitor schedule %q: %w", spec, err)
	}
	c.Start()
	j.log.Info("janitor scheduled", zap.String("schedule", spec), zap.Duration("retention", j.retention))
	return c, nil
}
