package loadgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/okian/arena/pkg/logger"
)

// HTTPClient wraps http.Client with timeout.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Get performs a GET request against the service.
func (c *HTTPClient) Get(ctx context.Context, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	return c.client.Do(req)
}

// PostVote sends a ballot on behalf of origin. The origin travels in
// X-Forwarded-For, so the server must trust proxy headers for the run to
// produce distinct voters.
func (c *HTTPClient) PostVote(ctx context.Context, origin string, b Ballot) (*http.Response, error) {
	body, err := json.Marshal(b)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/vote", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Forwarded-For", origin)
	return c.client.Do(req)
}

// fetchContest reads the current tally of a contest.
func fetchContest(ctx context.Context, c *HTTPClient, id string) (Contest, error) {
	resp, err := c.Get(ctx, "/contests/"+id)
	if err != nil {
		return Contest{}, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Contest{}, fmt.Errorf("get contest %s: status %d: %s", id, resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out Contest
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Contest{}, fmt.Errorf("decode contest: %w", err)
	}
	return out, nil
}

// submitVotes sends every attempt through a pool of workers and tallies the
// outcomes into stats.
func submitVotes(ctx context.Context, cfg *Config, client *HTTPClient, attempts []attempt, stats *Stats) {
	log := logger.Get().Named("loadgen")
	log.Info(ctx, "submitting votes", logger.Int("requests", len(attempts)), logger.Int("workers", cfg.Workers))

	var (
		mu         sync.Mutex
		wg         sync.WaitGroup
		lastReport = time.Now()
		perOrigin  = make(map[string]int, cfg.Voters)
	)
	work := make(chan attempt, cfg.Workers*workerChannelMultiplier)

	for i := 0; i < cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for a := range work {
				outcome := submitSingleVote(ctx, client, a)
				if cfg.Verbose {
					log.Debug(ctx, "vote sent", logger.String("origin", a.origin), logger.String("choice", a.ballot.Choice), logger.String("outcome", outcome))
				}

				mu.Lock()
				stats.Sent++
				switch outcome {
				case outcomeAccepted:
					stats.Accepted++
					stats.Expected[a.ballot.Choice]++
					perOrigin[a.origin]++
				case outcomeDuplicate:
					stats.Duplicate++
				case outcomeLimited:
					stats.Limited++
				default:
					stats.Failed++
				}
				if time.Since(lastReport) >= progressInterval {
					lastReport = time.Now()
					log.Info(ctx, "progress",
						logger.Int("sent", stats.Sent),
						logger.Int("of", len(attempts)),
						logger.Int("accepted", stats.Accepted),
						logger.Int("duplicate", stats.Duplicate))
				}
				mu.Unlock()
			}
		}()
	}

	go func() {
		defer close(work)
		for _, a := range attempts {
			select {
			case <-ctx.Done():
				return
			case work <- a:
			}
		}
	}()
	wg.Wait()

	for v := range uniqueOrigins(attempts) {
		if perOrigin[v] != 1 {
			stats.Unexpected++
		}
	}
}

// submitSingleVote sends one vote and classifies the response.
func submitSingleVote(ctx context.Context, client *HTTPClient, a attempt) string {
	resp, err := client.PostVote(ctx, a.origin, a.ballot)
	if err != nil {
		return outcomeFailed
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return outcomeAccepted
	case http.StatusForbidden:
		return outcomeDuplicate
	case http.StatusTooManyRequests:
		return outcomeLimited
	default:
		return outcomeFailed
	}
}

func uniqueOrigins(attempts []attempt) map[string]struct{} {
	out := make(map[string]struct{})
	for _, a := range attempts {
		out[a.origin] = struct{}{}
	}
	return out
}
