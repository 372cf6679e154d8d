package exam

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/prova-engine/internal/backend"
)

// autosaver runs the periodic best-effort save-progress loop. Every tick
// takes a fresh snapshot at that moment — never a stale one from an earlier
// cycle — and ships it to the backend. Failures are swallowed and retried on
// the next tick; autosave never surfaces an error to the student.
//
// The resume half of the coordinator lives in Controller.Start: a resumable
// prior attempt hydrates the answer store, timers and navigator before any
// user-driven mutation is accepted.
type autosaver struct {
	opts   Options
	client backend.Client
	log    zerolog.Logger
}

func newAutosaver(opts Options, client backend.Client, log zerolog.Logger) *autosaver {
	return &autosaver{
		opts:   opts,
		client: client,
		log:    log.With().Str("component", "autosave").Logger(),
	}
}

// run loops until ctx is cancelled. Call in a goroutine.
func (a *autosaver) run(ctx context.Context, c *Controller) {
	ticker := time.NewTicker(a.opts.AutosaveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		// Snapshots are only taken while the attempt is in progress, so a
		// save can never race a completed submission back to life.
		progress, ok := c.progressSnapshot()
		if !ok {
			continue
		}

		callCtx, cancel := context.WithTimeout(ctx, a.opts.CallTimeout)
		err := a.client.SaveProgress(callCtx, progress)
		cancel()
		if err != nil {
			if ctx.Err() == nil {
				a.log.Debug().Err(err).Msg("save failed, retrying next tick")
			}
			continue
		}
		a.log.Debug().
			Int("answers", len(progress.Answers)).
			Int("elapsed_seconds", progress.ElapsedSeconds).
			Msg("progress saved")
	}
}
