package forum

import (
	"context"
	"slices"
)

// FetchNew walks listing pages newest-first and returns the threads with
// tid strictly greater than watermark, in ascending tid order (delivery
// order). A watermark <= 0 means "unknown": only the first page is taken
// and everything on it counts as new. Lookback stops after MaxDepth pages
// regardless of the watermark, so a very stale watermark considers at most
// MaxDepth*PageSize threads.
func (c *Client) FetchNew(ctx context.Context, watermark int64) ([]Thread, error) {
	var acc []Thread
	for page := 1; ; page++ {
		threads, err := c.ListThreads(ctx, page)
		if err != nil {
			return nil, err
		}
		acc = append(acc, threads...)

		if watermark <= 0 || page >= c.cfg.MaxDepth {
			break
		}
		// The oldest thread on this page sits at or below the watermark:
		// every unseen thread has been accumulated.
		if threads[len(threads)-1].TID <= watermark {
			break
		}
	}

	if watermark > 0 {
		acc = newerThan(acc, watermark)
	}

	// Accumulated newest-first; deliver oldest-first so the watermark
	// advances monotonically.
	slices.Reverse(acc)
	return acc, nil
}

func newerThan(threads []Thread, watermark int64) []Thread {
	kept := threads[:0]
	for _, t := range threads {
		if t.TID > watermark {
			kept = append(kept, t)
		}
	}
	return kept
}
