package pipeline

import (
	"context"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/limnolab/chloromap/internal/session"
)

// Run processes every input path, records each outcome in the ledger
// and finalizes the session. One item's failure never aborts the run;
// only ledger finalization errors propagate, since the run's
// bookkeeping is unrecoverable at that point.
//
// Concurrency 1 processes items strictly in order. Higher limits are
// safe: items share no mutable state and the ledger serializes its own
// writes.
func (p *Pipeline) Run(ctx context.Context, paths []string, ledger *session.Ledger, concurrency int) (session.Report, error) {
	if concurrency < 1 {
		concurrency = 1
	}

	zap.L().Info("pipeline: starting run",
		zap.String("session_id", ledger.ID()),
		zap.Int("inputs", len(paths)),
		zap.Int("concurrency", concurrency),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, path := range paths {
		g.Go(func() error {
			outcome := p.ProcessItem(gctx, path)
			if outcome.Succeeded() {
				if err := ledger.RecordSuccess(path); err != nil {
					// A success that cannot be made durable counts as
					// the item's failure, keeping the ledger invariant.
					ledger.RecordFailure(path, string(FailureIO), err)
				}
			} else {
				ledger.RecordFailure(path, string(outcome.Kind), outcome.Err)
			}

			// Full-raster sample matrices are large; release them
			// before the next item rather than letting them stack up.
			runtime.GC()
			return nil
		})
	}
	_ = g.Wait()

	report, err := ledger.Finalize()
	if err != nil {
		return session.Report{}, err
	}

	zap.L().Info("pipeline: run complete",
		zap.String("session_id", report.SessionID),
		zap.Int("succeeded", report.Succeeded),
		zap.Int("failed", report.Failed),
	)
	return report, nil
}
