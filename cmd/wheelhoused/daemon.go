package main

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-kit/kit/log"

	"github.com/wheelhouse-build/wheelhouse/pkg/forge"
	"github.com/wheelhouse-build/wheelhouse/pkg/reconcile"
	"github.com/wheelhouse-build/wheelhouse/pkg/release"
)

// Daemon runs the reconciliation sweep and the merge gate on intervals and
// keeps the latest report around for the HTTP API.
type Daemon struct {
	Sweeper *reconcile.Sweeper
	Fixer   *release.Fixer // nil unless --apply
	Gate    *forge.Gate    // nil unless the forge is configured

	SweepInterval time.Duration
	GateInterval  time.Duration
	SweepTimeout  time.Duration

	initOnce  sync.Once
	sweepSoon chan struct{}
	gateSoon  chan struct{}

	mu         sync.RWMutex
	lastReport *reconcile.Report
}

func (d *Daemon) ensureInit() {
	d.initOnce.Do(func() {
		d.sweepSoon = make(chan struct{}, 1)
		d.gateSoon = make(chan struct{}, 1)
	})
}

// AskForSweep schedules a sweep, or if one is already waiting, lets that
// happen.
func (d *Daemon) AskForSweep() {
	d.ensureInit()
	select {
	case d.sweepSoon <- struct{}{}:
	default:
	}
}

func (d *Daemon) AskForGatePass() {
	d.ensureInit()
	select {
	case d.gateSoon <- struct{}{}:
	default:
	}
}

// Loop services the sweep and gate timers until stop is closed. We want to
// sweep at least every SweepInterval; being asked to sweep may intervene,
// in which case the next timed sweep is rescheduled.
func (d *Daemon) Loop(stop chan struct{}, wg *sync.WaitGroup, logger log.Logger) {
	defer wg.Done()
	d.ensureInit()

	sweepTimer := time.NewTimer(d.SweepInterval)
	gateTimer := time.NewTimer(d.GateInterval)

	if d.Gate == nil {
		logger.Log("info", "merge gate not configured; bot pull requests will not be merged")
	}
	if d.Fixer == nil {
		logger.Log("info", "running in observe-only mode; no fixes will be applied")
	}

	d.AskForSweep()
	d.AskForGatePass()

	for {
		select {
		case <-stop:
			logger.Log("stopping", "true")
			return

		case <-d.sweepSoon:
			if !sweepTimer.Stop() {
				select {
				case <-sweepTimer.C:
				default:
				}
			}
			d.sweep(logger)
			sweepTimer.Reset(d.SweepInterval)

		case <-sweepTimer.C:
			d.AskForSweep()

		case <-d.gateSoon:
			if !gateTimer.Stop() {
				select {
				case <-gateTimer.C:
				default:
				}
			}
			if d.Gate != nil {
				d.gatePass(logger)
			}
			gateTimer.Reset(d.GateInterval)

		case <-gateTimer.C:
			d.AskForGatePass()
		}
	}
}

func (d *Daemon) sweep(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), d.SweepTimeout)
	defer cancel()

	started := time.Now()
	report, err := d.Sweeper.Sweep(ctx)
	if err != nil {
		logger.Log("sweep", "failed", "err", err)
		return
	}
	logger.Log("sweep", "done",
		"packages", report.Summary.TotalPackages,
		"issues", report.Summary.WithIssues,
		"took", time.Since(started).String())

	d.mu.Lock()
	d.lastReport = report
	d.mu.Unlock()

	if d.Fixer != nil && report.Summary.WithIssues > 0 {
		result, err := d.Fixer.Apply(ctx, report)
		if err != nil {
			logger.Log("apply", "failed", "err", err)
			return
		}
		logger.Log("apply", "done",
			"rebuilt", len(result.Rebuilt),
			"released", len(result.Released),
			"skipped", len(result.Skipped))
	}
}

func (d *Daemon) gatePass(logger log.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), d.SweepTimeout)
	defer cancel()

	verdicts, err := d.Gate.Run(ctx)
	if err != nil {
		logger.Log("gate", "failed", "err", err)
		return
	}
	merged := 0
	for _, v := range verdicts {
		if v.Merged {
			merged++
		}
	}
	logger.Log("gate", "done", "considered", len(verdicts), "merged", merged)
}

func (d *Daemon) handleReport(w http.ResponseWriter, _ *http.Request) {
	d.mu.RLock()
	report := d.lastReport
	d.mu.RUnlock()

	if report == nil {
		http.Error(w, "no sweep has completed yet", http.StatusServiceUnavailable)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(report)
}
