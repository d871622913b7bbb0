package probe

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"modemprobe/packages/modemhttp"
)

// WaitReady polls the health endpoint until it answers 200 or the timeout
// passes, pacing attempts with a rate limiter. Useful to warm a serverless
// backend up before timing-sensitive probes.
func (p *Prober) WaitReady(ctx context.Context, timeout, interval time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	limiter := rate.NewLimiter(rate.Every(interval), 1)
	url := p.base + "/health"

	var lastStatus int
	var lastErr error
	for {
		if err := limiter.Wait(ctx); err != nil {
			if lastErr != nil {
				return fmt.Errorf("backend %s not ready after %v: %v", url, timeout, lastErr)
			}
			return fmt.Errorf("backend %s not ready after %v: last status %d", url, timeout, lastStatus)
		}

		resp, err := p.http.Do(ctx, modemhttp.NewRequest("GET", url))
		if err != nil {
			lastErr = err
			continue
		}
		lastErr = nil
		lastStatus = resp.StatusCode
		if resp.StatusCode == 200 {
			return nil
		}
	}
}
