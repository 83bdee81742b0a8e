package fare

import (
	"context"
	"errors"
	"time"

	"sjsage522/farewatch/internal/browser"
)

var errWaitTimeout = errors.New("timed out waiting for price elements")

// waitForPrices polls the session until at least one element carries class.
// It gives up with errWaitTimeout once timeout has elapsed.
func waitForPrices(ctx context.Context, session browser.Session, class string, timeout, interval time.Duration) ([]string, error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		texts, err := session.TextsByClass(waitCtx, class)
		if err == nil && len(texts) > 0 {
			return texts, nil
		}
		if err != nil && waitCtx.Err() == nil {
			return nil, err
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, errWaitTimeout
		case <-ticker.C:
		}
	}
}
