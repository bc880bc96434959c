package headless

import (
	"context"
	"fmt"
	"time"
)

// DefaultMaxScrolls caps scrolling on pages that keep growing.
const DefaultMaxScrolls = 20

// Scroller is the slice of a browser page the scroll loop needs.
type Scroller interface {
	Height(ctx context.Context) (int64, error)
	ScrollToBottom(ctx context.Context) error
}

// ScrollUntilStable scrolls page to the bottom until its height stops
// changing or maxScrolls height changes have been observed. It returns the
// number of scrolls that grew the page.
func ScrollUntilStable(ctx context.Context, page Scroller, maxScrolls int, pause time.Duration) (int, error) {
	if maxScrolls <= 0 {
		maxScrolls = DefaultMaxScrolls
	}
	last, err := page.Height(ctx)
	if err != nil {
		return 0, err
	}

	scrolls := 0
	for {
		if err := page.ScrollToBottom(ctx); err != nil {
			return scrolls, err
		}
		if err := pauseFor(ctx, pause); err != nil {
			return scrolls, err
		}
		height, err := page.Height(ctx)
		if err != nil {
			return scrolls, err
		}
		if height == last {
			return scrolls, nil
		}
		last = height
		scrolls++
		if scrolls >= maxScrolls {
			return scrolls, nil
		}
	}
}

func pauseFor(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("scroll canceled: %w", err)
		}
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("scroll canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
