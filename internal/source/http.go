package source

import (
	"context"
	"io"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	logx "tgadder/pkg/logx"
)

// maxDownload caps remote spreadsheets.
const maxDownload = 64 << 20

// download GETs url, retrying network errors and 5xx/429 with jittered
// exponential backoff.
func download(ctx context.Context, url string, timeout time.Duration, retries int, log logx.Logger) ([]byte, error) {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	if retries <= 0 {
		retries = 3
	}
	client := &http.Client{Timeout: timeout}

	var lastErr error
	for attempt := range retries {
		if attempt > 0 {
			if err := backoff(ctx, attempt); err != nil {
				return nil, eris.Wrap(err, "source: download cancelled")
			}
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, eris.Wrap(err, "source: create request")
		}
		req.Header.Set("User-Agent", "tgadder/1.0")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			log.Warn("download failed, retrying", logx.Int("attempt", attempt+1), logx.Err(err))
			continue
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			_ = resp.Body.Close()
			lastErr = eris.Errorf("http %d", resp.StatusCode)
			log.Warn("download got retryable status", logx.Int("attempt", attempt+1), logx.Int("status", resp.StatusCode))
			continue
		}
		if resp.StatusCode/100 != 2 {
			_ = resp.Body.Close()
			return nil, eris.Errorf("source: download http %d", resp.StatusCode)
		}

		b, err := io.ReadAll(io.LimitReader(resp.Body, maxDownload+1))
		_ = resp.Body.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if len(b) > maxDownload {
			return nil, eris.Errorf("source: download larger than %d bytes", maxDownload)
		}
		return b, nil
	}
	return nil, eris.Wrap(lastErr, "source: download retries exhausted")
}

func backoff(ctx context.Context, attempt int) error {
	d := time.Duration(1<<min(attempt-1, 4)) * 500 * time.Millisecond
	d += time.Duration(rand.Int64N(int64(d)/2 + 1))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
