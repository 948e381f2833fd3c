/*
scheduler.go - Automated party-day reconciliation

PURPOSE:
  Periodically recounts each unit's party passes and appends any party day
  that is missing from the unit's consumed list. A party pass and its
  party-day record are written in one transaction, so in normal operation
  this finds nothing; it repairs data imported or edited outside the
  ledger.

DESIGN:
  - Runs a background goroutine with configurable check interval
  - Runs once immediately on Start
  - Only appends days (the consumed list is append-only)

CONFIGURATION:
  - CheckInterval: How often to check (default: 1 hour)
  - Enabled: Whether the reconciler is active (default: true)

USAGE:
  reconciler := NewPartyDayReconciler(handler)
  reconciler.Start()
  // ... later
  reconciler.Stop()

SEE ALSO:
  - handlers.go: Reconcile endpoint (manual run), ReconcileAll
  - pass/ledger.go: ReconcilePartyDays
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/RL96-hub/ParkingPass/logging"
)

// PartyDayReconciler runs ReconcileAll on a ticker.
type PartyDayReconciler struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex

	lastRun    time.Time
	lastResult ReconcileDTO
	lastErr    error
}

// NewPartyDayReconciler creates a new reconciler.
func NewPartyDayReconciler(handler *Handler) *PartyDayReconciler {
	return &PartyDayReconciler{
		Handler:       handler,
		CheckInterval: time.Hour,
		Enabled:       true,
	}
}

func (pr *PartyDayReconciler) log() *logrus.Entry {
	return logging.Logger.WithField("component", "reconciler")
}

// Start begins the reconciler.
func (pr *PartyDayReconciler) Start() {
	pr.mu.Lock()
	defer pr.mu.Unlock()

	if !pr.Enabled || pr.CheckInterval <= 0 {
		pr.log().Info("Disabled, not starting")
		return
	}
	if pr.ticker != nil {
		return
	}

	pr.ticker = time.NewTicker(pr.CheckInterval)
	pr.stop = make(chan struct{})
	pr.wg.Add(1)

	go pr.run(pr.ticker, pr.stop)

	pr.log().WithField("interval", pr.CheckInterval).Info("Started")
}

// Stop stops the reconciler and waits for an in-flight run to finish.
func (pr *PartyDayReconciler) Stop() {
	pr.mu.Lock()
	ticker, stop := pr.ticker, pr.stop
	pr.ticker, pr.stop = nil, nil
	pr.mu.Unlock()

	if ticker != nil {
		ticker.Stop()
		close(stop)
		pr.wg.Wait()
		pr.log().Info("Stopped")
	}
}

func (pr *PartyDayReconciler) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer pr.wg.Done()

	// Run immediately on start
	pr.RunNow(context.Background())

	for {
		select {
		case <-ticker.C:
			pr.RunNow(context.Background())
		case <-stop:
			return
		}
	}
}

// RunNow triggers an immediate reconciliation.
func (pr *PartyDayReconciler) RunNow(ctx context.Context) (ReconcileDTO, error) {
	result, err := pr.Handler.ReconcileAll(ctx)

	pr.mu.Lock()
	pr.lastRun = time.Now()
	pr.lastResult = result
	pr.lastErr = err
	pr.mu.Unlock()

	entry := pr.log().WithFields(logrus.Fields{
		"units_checked": result.UnitsChecked,
		"days_appended": result.DaysAppended,
	})
	switch {
	case err != nil:
		entry.WithError(err).Error("Reconciliation failed")
	case result.DaysAppended > 0:
		entry.WithField("by_unit", result.ByUnit).Warn("Restored missing party days")
	default:
		entry.Debug("Reconciliation clean")
	}
	return result, err
}

// LastRun returns the time, result and error of the most recent run.
func (pr *PartyDayReconciler) LastRun() (time.Time, ReconcileDTO, error) {
	pr.mu.Lock()
	defer pr.mu.Unlock()
	return pr.lastRun, pr.lastResult, pr.lastErr
}
