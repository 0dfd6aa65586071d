// Package bot orchestrates one poll-and-broadcast run: read the watermark,
// fetch the threads above it, then per thread enrich, deliver and advance.
package bot

import (
	"context"
	"sync"

	"gradwatch/internal/forum"
	"gradwatch/internal/notify"
	"gradwatch/internal/watermark"
	"gradwatch/pkg/logx"
)

type Fetcher interface {
	FetchNew(ctx context.Context, watermark int64) ([]forum.Thread, error)
}

// DetailFunc is one enrichment strategy (options API or legacy HTML).
type DetailFunc func(ctx context.Context, tid int64) (forum.Details, error)

type Messenger interface {
	Send(ctx context.Context, text string) error
}

type Runner struct {
	store   watermark.Store
	fetcher Fetcher
	details DetailFunc
	send    Messenger
	format  *notify.Formatter
	log     logx.Logger

	// runMu serializes whole runs. The watermark cycle is read-modify-write
	// over shared state (cached channel description, sqlite row), so two
	// interleaved runs could overwrite each other's advance.
	runMu sync.Mutex
}

func New(store watermark.Store, fetcher Fetcher, details DetailFunc, send Messenger, format *notify.Formatter, log logx.Logger) *Runner {
	return &Runner{
		store:   store,
		fetcher: fetcher,
		details: details,
		send:    send,
		format:  format,
		log:     log,
	}
}

// Run executes one complete run. Threads are processed strictly in
// ascending tid order; the watermark is advanced only after a thread's
// message is out, and the first delivery or advancement failure halts the
// remaining threads so the watermark never skips past anything undelivered.
// A halted run is still a clean outcome: the skipped threads are simply
// re-fetched next run.
//
// Run never panics; unexpected panics are logged and swallowed so an
// external scheduler sees a quiet exit, not a crash loop.
//
// Concurrent invocations are serialized: a second Run blocks until the
// first finishes, then reads the watermark the first one left behind.
func (r *Runner) Run(ctx context.Context) (err error) {
	r.runMu.Lock()
	defer r.runMu.Unlock()
	defer func() {
		if p := recover(); p != nil {
			r.log.Error("run panicked", logx.Any("panic", p))
			err = nil
		}
	}()

	last, rerr := r.store.Read(ctx)
	if rerr != nil {
		// Unreadable metadata does not abort the run: fetch bounded by
		// depth and let the write-before-read guard stop us after the
		// first delivery if persistence is really down.
		r.log.Warn("watermark unavailable, treating as unknown", logx.Err(rerr))
		last = watermark.Unknown
	}

	threads, err := r.fetcher.FetchNew(ctx, last)
	if err != nil {
		return err
	}
	r.log.Info("fetched new threads", logx.Int("count", len(threads)), logx.Int64("last_tid", last))

	delivered := 0
	for _, th := range threads {
		details, derr := r.details(ctx, th.TID)
		if derr != nil {
			// Enrichment is best-effort; the thread goes out bare.
			r.log.Warn("thread details unavailable", logx.Int64("tid", th.TID), logx.Err(derr))
			details = nil
		}
		th.Details = details

		if serr := r.send.Send(ctx, r.format.Format(th)); serr != nil {
			r.log.Error("delivery failed, stopping run", logx.Int64("tid", th.TID), logx.Err(serr))
			break
		}
		if werr := r.store.Write(ctx, th.TID); werr != nil {
			r.log.Error("watermark write failed, stopping run", logx.Int64("tid", th.TID), logx.Err(werr))
			break
		}

		r.log.Info("thread broadcast", logx.Int64("tid", th.TID), logx.String("subject", th.Subject))
		delivered++
	}

	r.log.Info("run finished", logx.Int("delivered", delivered), logx.Int("found", len(threads)))
	return nil
}
