package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/praxisllmlab/piliangLLM/internal/config"
	"github.com/praxisllmlab/piliangLLM/internal/driver"
	"github.com/praxisllmlab/piliangLLM/internal/model"
	"github.com/praxisllmlab/piliangLLM/internal/processor"
	"github.com/praxisllmlab/piliangLLM/internal/tracker"

	// Register all backends via init()
	_ "github.com/praxisllmlab/piliangLLM/internal/processor/mistral"
	_ "github.com/praxisllmlab/piliangLLM/internal/processor/openai"
)

func main() {
	configPath := flag.String("config", "batch_config.yaml", "path to batch config YAML")
	inputPath := flag.String("input", "", "path to requests JSONL (defaults to stdin)")
	outputPath := flag.String("output", "", "path to responses JSONL (defaults to stdout)")
	resumeRun := flag.String("resume", "", "run ID to resume instead of starting fresh")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Graceful shutdown: a signal cancels the run, submitted batches are
	// cancelled best-effort by the driver.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("received %s, cancelling run", sig)
		cancel()
	}()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	requests, err := readRequests(*inputPath, cfg.Backend.Model)
	if err != nil {
		log.Fatalf("read requests: %v", err)
	}
	log.Printf("loaded %d requests", len(requests))

	opts := processor.Options{
		APIKey:        cfg.Backend.APIKey,
		Model:         cfg.Backend.Model,
		MaxConcurrent: cfg.Run.MaxConcurrent,
	}
	if cfg.Backend.BaseURL != nil {
		opts.BaseURL = *cfg.Backend.BaseURL
	}
	proc, err := processor.New(cfg.Backend.Name, opts)
	if err != nil {
		log.Fatalf("init backend %q: %v", cfg.Backend.Name, err)
	}

	var store tracker.Store
	if cfg.Redis != nil {
		rc := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rc.Ping(ctx).Err(); err != nil {
			log.Fatalf("connect redis: %v", err)
		}
		defer rc.Close()
		store = tracker.NewRedisStore(rc)
		log.Println("redis run store connected")
	}

	d := driver.New(proc, driver.Config{
		PollInterval:    cfg.Run.PollInterval(),
		RetrieveRetries: cfg.Run.RetrieveRetries,
		Metadata:        cfg.Run.Metadata,
		Store:           store,
	})

	var (
		responses []*model.GenericResponse
		summary   tracker.Summary
	)
	if *resumeRun != "" {
		responses, summary, err = d.Resume(ctx, requests, *resumeRun)
	} else {
		responses, summary, err = d.Run(ctx, requests)
	}
	if err != nil {
		log.Fatalf("run %s: %v", summary.RunID, err)
	}

	if err := writeResponses(*outputPath, responses); err != nil {
		log.Fatalf("write responses: %v", err)
	}

	printSummary(summary)
	if summary.Lost > 0 {
		os.Exit(1)
	}
}

// readRequests parses a JSONL request file. Each line is one generation
// request; the line number becomes its correlation index. Lines without a
// model fall back to the configured default.
func readRequests(path, defaultModel string) ([]*model.GenericRequest, error) {
	var in *os.File
	if path == "" {
		in = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		in = f
	}

	var requests []*model.GenericRequest
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 1024*1024), 16*1024*1024)
	line := 0
	for scanner.Scan() {
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var req model.GenericRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, fmt.Errorf("line %d: %w", line+1, err)
		}
		if req.Model == "" {
			req.Model = defaultModel
		}
		req.OriginalRowIdx = line
		requests = append(requests, &req)
		line++
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return requests, nil
}

// writeResponses emits one JSON object per response, in request order.
func writeResponses(path string, responses []*model.GenericResponse) error {
	var out *os.File
	if path == "" {
		out = os.Stdout
	} else {
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		defer f.Close()
		out = f
	}

	w := bufio.NewWriter(out)
	enc := json.NewEncoder(w)
	for _, resp := range responses {
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return w.Flush()
}

func printSummary(s tracker.Summary) {
	log.Printf("run %s finished: %d chunks (%d succeeded, %d partially failed, %d lost)",
		s.RunID, len(s.Chunks), s.Succeeded, s.PartiallyFailed, s.Lost)
	for _, c := range s.Chunks {
		if c.Error != "" {
			log.Printf("  chunk %d (batch %s): %s — %s", c.Index, c.BatchID, c.State, c.Error)
			continue
		}
		log.Printf("  chunk %d (batch %s): %s, %d/%d requests succeeded",
			c.Index, c.BatchID, c.State, c.Requests-c.Failed, c.Requests)
	}
}
