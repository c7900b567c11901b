// Package loadgen drives many distinct voters against a running arena
// server and checks that every origin was counted exactly once.
package loadgen

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/arena/pkg/logger"
)

// ErrInvalidConfig is returned when a run is configured with nonsensical values.
var ErrInvalidConfig = errors.New("invalid load configuration")

// Run executes the complete load run and returns its statistics. A non-nil
// error with non-nil stats means the run completed but verification failed.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if err := validate(cfg); err != nil {
		return nil, err
	}
	log := logger.Get().Named("loadgen")
	stats := &Stats{StartTime: time.Now(), Expected: make(map[string]int64)}

	log.Info(ctx, "starting vote load run",
		logger.String("baseURL", cfg.BaseURL),
		logger.String("contest", cfg.ContestID),
		logger.Int("voters", cfg.Voters),
		logger.Int("attempts", cfg.Attempts),
		logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)

	if err := checkServiceHealth(ctx, client); err != nil {
		return nil, fmt.Errorf("service health check failed: %w", err)
	}

	before, err := fetchContest(ctx, client, cfg.ContestID)
	if err != nil {
		return nil, fmt.Errorf("baseline read failed: %w", err)
	}

	attempts, err := generateAttempts(cfg, before)
	if err != nil {
		return nil, fmt.Errorf("vote generation failed: %w", err)
	}

	submitVotes(ctx, cfg, client, attempts, stats)

	if cfg.Settle > 0 {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case <-time.After(cfg.Settle):
		}
	}

	after, err := fetchContest(ctx, client, cfg.ContestID)
	if err != nil {
		return stats, fmt.Errorf("final read failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)

	if err := verifyResults(cfg, before, after, stats); err != nil {
		return stats, fmt.Errorf("result verification failed: %w", err)
	}
	log.Info(ctx, "run completed successfully")
	return stats, nil
}

// checkServiceHealth verifies the service is running.
func checkServiceHealth(ctx context.Context, client *HTTPClient) error {
	resp, err := client.Get(ctx, "/healthz")
	if err != nil {
		return fmt.Errorf("failed to connect to service: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}
	return nil
}

func validate(cfg *Config) error {
	switch {
	case cfg == nil:
		return fmt.Errorf("%w: nil config", ErrInvalidConfig)
	case cfg.BaseURL == "":
		return fmt.Errorf("%w: base url is required", ErrInvalidConfig)
	case cfg.ContestID == "":
		return fmt.Errorf("%w: contest id is required", ErrInvalidConfig)
	case cfg.Voters < 1:
		return fmt.Errorf("%w: voters must be positive", ErrInvalidConfig)
	case cfg.Attempts < 1:
		return fmt.Errorf("%w: attempts must be positive", ErrInvalidConfig)
	case cfg.Workers < 1:
		return fmt.Errorf("%w: workers must be positive", ErrInvalidConfig)
	}
	return nil
}

// displayFinalStats logs the final run statistics.
func displayFinalStats(ctx context.Context, stats *Stats) {
	var acceptRate, votesPerSecond float64
	if stats.Sent > 0 {
		acceptRate = float64(stats.Accepted) / float64(stats.Sent) * percentageMultiplier
	}
	if stats.Duration > 0 {
		votesPerSecond = float64(stats.Sent) / stats.Duration.Seconds()
	}

	logger.Get().Named("loadgen").Info(ctx, "final statistics",
		logger.Int("sent", stats.Sent),
		logger.Int("accepted", stats.Accepted),
		logger.Int("duplicate", stats.Duplicate),
		logger.Int("rateLimited", stats.Limited),
		logger.Int("failed", stats.Failed),
		logger.Int("unexpected", stats.Unexpected),
		logger.Duration("duration", stats.Duration),
		logger.Float64("acceptRate", acceptRate),
		logger.Float64("votesPerSecond", votesPerSecond))
}
