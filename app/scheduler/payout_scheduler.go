// Package scheduler
package scheduler

import (
	"context"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	businessflow "github.com/Misty-clouds/eurobankv2/business_flow"

	"github.com/Misty-clouds/eurobankv2/app/middleware"
	"gopkg.in/natefinch/lumberjack.v2"
)

// PayoutScheduler periodically sweeps the withdrawal queue and dispatches
// pending payouts to the processor.
type PayoutScheduler struct {
	dispatcher businessflow.PayoutDispatcher
	logger     *log.Logger
	interval   time.Duration
}

// NewPayoutScheduler creates a new payout scheduler
func NewPayoutScheduler(dispatcher businessflow.PayoutDispatcher, interval time.Duration) *PayoutScheduler {
	if interval <= 0 {
		interval = time.Minute
	}

	s := &PayoutScheduler{
		dispatcher: dispatcher,
		interval:   interval,
	}

	// Scheduler-specific logger (stdout plus rotating file)
	if err := s.initSchedulerLogger(); err != nil {
		s.logger = log.Default()
		s.logger.Printf("scheduler: failed to initialize file logger: %v", err)
	}

	return s
}

// initSchedulerLogger configures a logger that writes to both stdout and a rotating file under data/ (or /data)
func (s *PayoutScheduler) initSchedulerLogger() error {
	// Prefer relative data/ then fallback to /data for containerized environments
	candidates := []string{
		filepath.Join("data"),
		"/data",
	}
	for _, dir := range candidates {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			continue
		}
		rotator := &lumberjack.Logger{
			Filename:   filepath.Join(dir, "scheduler.log"),
			MaxSize:    50, // megabytes
			MaxBackups: 5,
			MaxAge:     30, // days
			Compress:   true,
		}
		mw := io.MultiWriter(os.Stdout, rotator)
		// log.Logger is goroutine-safe; include timestamps with microseconds and UTC
		s.logger = log.New(mw, "scheduler ", log.LstdFlags|log.Lmicroseconds|log.LUTC)
		return nil
	}
	return os.ErrPermission
}

// Start launches the scheduler loop in a background goroutine and returns a stop function
func (s *PayoutScheduler) Start(parent context.Context) func() {
	ctx, cancel := context.WithCancel(parent)

	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.runOnce(ctx)

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.runOnce(ctx)
			}
		}
	}()

	return cancel
}

func (s *PayoutScheduler) runOnce(ctx context.Context) {
	started := time.Now()

	res, err := s.dispatcher.Sweep(ctx)
	if err != nil {
		middleware.SweepRuns.WithLabelValues("error").Inc()
		s.logger.Printf("scheduler: sweep failed: %v", err)
		return
	}

	if !res.Enabled {
		middleware.SweepRuns.WithLabelValues("disabled").Inc()
		s.logger.Printf("scheduler: automatic withdrawals disabled, sweep skipped")
		return
	}

	middleware.SweepRuns.WithLabelValues("ok").Inc()
	middleware.PayoutsDispatched.Add(float64(res.Dispatched))
	middleware.PayoutsRejected.Add(float64(res.Failed))
	s.logger.Printf("scheduler: sweep done in %s: selected=%d dispatched=%d failed=%d skipped=%d status_checked=%d status_updated=%d",
		time.Since(started).Round(time.Millisecond),
		res.Selected, res.Dispatched, res.Failed, res.Skipped,
		res.StatusChecked, res.StatusUpdated,
	)
}
