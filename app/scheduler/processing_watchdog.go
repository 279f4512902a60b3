// Package scheduler
package scheduler

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/werkpilot/cost-model-service/config"
	"github.com/werkpilot/cost-model-service/models"
	"github.com/werkpilot/cost-model-service/repository"
	"github.com/werkpilot/cost-model-service/utils"
	"gopkg.in/natefinch/lumberjack.v2"
)

var watchdogReclaimedTotal = promauto.NewCounter(
	prometheus.CounterOpts{
		Name: "processing_watchdog_reclaimed_total",
		Help: "Articles moved from processing to failed by the watchdog",
	},
)

// ProcessingWatchdog periodically scans for articles stuck in the processing
// state and marks them failed so clients stop polling forever. An article is
// stuck when the pipeline crashed or was killed between claiming it and
// writing a terminal status.
type ProcessingWatchdog struct {
	articleRepo  repository.ArticleRepository
	logger       *log.Logger
	interval     time.Duration
	stuckTimeout time.Duration

	logOutput io.Closer
}

// NewProcessingWatchdog creates a watchdog from the processing configuration
func NewProcessingWatchdog(articleRepo repository.ArticleRepository, cfg config.ProcessingConfig) *ProcessingWatchdog {
	interval := cfg.WatchdogInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	stuckTimeout := cfg.StuckTimeout
	if stuckTimeout <= 0 {
		stuckTimeout = 30 * time.Minute
	}

	w := &ProcessingWatchdog{
		articleRepo:  articleRepo,
		interval:     interval,
		stuckTimeout: stuckTimeout,
	}

	// Initialize watchdog-specific logger (to stdout and a rotated file)
	if err := w.initWatchdogLogger(); err != nil {
		// Fallback to default stdout logger if file logger init fails
		w.logger = log.Default()
		w.logger.Printf("watchdog: failed to initialize file logger: %v", err)
	}

	return w
}

// initWatchdogLogger configures a logger that writes to both stdout and a rotated file under data/ (or /data)
func (w *ProcessingWatchdog) initWatchdogLogger() error {
	// Prefer relative data/ then fallback to /data for containerized environments
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		rotated := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "watchdog.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		w.logOutput = rotated
		mw := io.MultiWriter(os.Stdout, rotated)
		// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
		w.logger = log.New(mw, "watchdog ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return fmt.Errorf("could not create watchdog log file in any candidate directory")
}

// Start launches the watchdog loop in a background goroutine and returns a stop function
func (w *ProcessingWatchdog) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(w.interval)
		defer ticker.Stop()

		w.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.runOnce(ctx)
			}
		}
	}()

	return func() {
		cancel()
		if w.logOutput != nil {
			_ = w.logOutput.Close()
		}
	}
}

func (w *ProcessingWatchdog) runOnce(parent context.Context) {
	ctx, cancel := context.WithTimeout(parent, 30*time.Second)
	defer cancel()

	cutoff := utils.UTCNow().Add(-w.stuckTimeout)
	stuck, err := w.articleRepo.ListStuckProcessing(ctx, cutoff)
	if err != nil {
		w.logger.Printf("watchdog: listing stuck articles failed: %v", err)
		return
	}
	if len(stuck) == 0 {
		return
	}
	w.logger.Printf("watchdog: found %d articles stuck in processing since before %s", len(stuck), cutoff.Format(time.RFC3339))

	for _, article := range stuck {
		if err := w.markTimedOut(ctx, article); err != nil {
			w.logger.Printf("watchdog: marking article id=%d failed: %v", article.ID, err)
			continue
		}
		watchdogReclaimedTotal.Inc()
		w.logger.Printf("watchdog: article id=%d name=%q marked failed after exceeding %s", article.ID, article.Name, w.stuckTimeout)
	}
}

// markTimedOut records the timeout as a terminal failure on the article
func (w *ProcessingWatchdog) markTimedOut(ctx context.Context, article *models.Article) error {
	message := fmt.Sprintf("processing exceeded %s", w.stuckTimeout)
	if article.ProcessingStartedAt != nil {
		message = fmt.Sprintf("processing started at %s exceeded %s", article.ProcessingStartedAt.Format(time.RFC3339), w.stuckTimeout)
	}

	return w.articleRepo.UpdateFields(ctx, article.ID, map[string]any{
		"processing_status":       models.ProcessingStatusFailed,
		"processing_error_kind":   models.ProcessingErrorWatchdogTimeout,
		"processing_error":        message,
		"processing_completed_at": utils.UTCNow(),
	})
}
