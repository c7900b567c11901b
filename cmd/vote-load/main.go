package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/arena/internal/loadgen"
	"github.com/okian/arena/pkg/logger"
)

// Default configuration constants.
const (
	defaultVoters   = 1000
	defaultAttempts = 2
	defaultWorkers  = 2 // multiplier for runtime.NumCPU()
	defaultTimeout  = 30 * time.Second
	defaultSettle   = 0
	defaultDeadline = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service (must trust proxy headers)")
		contest  = flag.String("contest", "battle-1", "Contest to vote on")
		voters   = flag.Int("voters", defaultVoters, "Number of distinct voter origins")
		attempts = flag.Int("attempts", defaultAttempts, "Votes sent per origin; only one may count")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent workers")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		settle   = flag.Duration("settle", defaultSettle, "Wait before reading the final tally")
		verbose  = flag.Bool("verbose", false, "Log every request")
	)
	flag.Parse()

	if err := logger.Init(); err != nil {
		os.Stderr.WriteString("Failed to setup logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultDeadline)
	defer cancel()

	cfg := &loadgen.Config{
		BaseURL:   *baseURL,
		ContestID: *contest,
		Voters:    *voters,
		Attempts:  *attempts,
		Workers:   *workers,
		Timeout:   *timeout,
		Settle:    *settle,
		Verbose:   *verbose,
	}
	if _, err := loadgen.Run(ctx, cfg); err != nil {
		os.Stderr.WriteString("Load run failed: " + err.Error() + "\n")
		os.Exit(1)
	}
}
