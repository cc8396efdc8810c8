package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"smartmailbox/internal/config"
	"smartmailbox/internal/ollama"
	"smartmailbox/internal/pipeline"
	"smartmailbox/internal/storage"
)

func main() {
	// Parse command line flags
	quiet := flag.Bool("quiet", false, "Only print the final summary")
	flag.Parse()

	paths := flag.Args()
	if len(paths) == 0 {
		fmt.Println("Usage:")
		fmt.Println("  Ingest a file:       ingest /path/to/message.eml")
		fmt.Println("  Ingest a directory:  ingest /path/to/directory")
		fmt.Println("  Several at once:     ingest a.eml b.eml /path/to/dir")
		os.Exit(1)
	}

	// Load configuration
	cfg := config.Load()
	logger := cfg.SetupLogger()

	files, err := collectFiles(paths)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to scan inputs: %v\n", err)
		os.Exit(1)
	}
	if len(files) == 0 {
		fmt.Fprintln(os.Stderr, "No message files found")
		os.Exit(1)
	}

	// Open the JSON store, seeding settings on first run
	_, statErr := os.Stat(filepath.Join(cfg.DataDir, storage.SettingsFile))
	firstRun := os.IsNotExist(statErr)
	store, err := storage.Open(cfg.DataDir, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	if firstRun {
		if err := store.Settings.Update(cfg.InitialSettings()); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to seed settings: %v\n", err)
			os.Exit(1)
		}
	}

	factory := func(serverURL string, timeout time.Duration) ollama.Completer {
		return ollama.NewClient(serverURL, timeout, logger)
	}
	p := pipeline.New(store, factory, cfg.EventQueueSize, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Preflight the backend so an unreachable server is reported before
	// every file fails individually.
	settings := store.Settings.Get()
	probe := ollama.NewClient(settings.ServerURL, 5*time.Second, logger)
	if err := probe.Probe(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: inference backend not ready: %v\n", err)
	}

	p.Start(ctx)

	// Submit from a goroutine so the event channel is being drained
	// while queued events are emitted; large batches would otherwise
	// fill the buffer and stall submission.
	type submitResult struct {
		accepted int
		rejected []string
		err      error
	}
	resCh := make(chan submitResult, 1)
	go func() {
		accepted, rejectedPaths, err := p.Submit(files)
		resCh <- submitResult{accepted: len(accepted), rejected: rejectedPaths, err: err}
	}()

	expected := -1
	terminal, done, failed, rejected := 0, 0, 0, 0
	submitFailed := false
	for expected < 0 || terminal < expected {
		select {
		case res := <-resCh:
			expected = res.accepted
			rejected = len(res.rejected)
			for _, path := range res.rejected {
				fmt.Printf("REJECTED       %s\n", path)
			}
			if res.err != nil {
				// Queue backpressure: files already accepted are still
				// processed, the rest never entered the queue.
				fmt.Fprintf(os.Stderr, "Submission stopped early: %v\n", res.err)
				submitFailed = true
			}
			if expected == 0 {
				fmt.Fprintln(os.Stderr, "Nothing accepted for processing")
				os.Exit(1)
			}
		case ev := <-p.Events():
			if !*quiet {
				if ev.Err != nil {
					fmt.Printf("%-14s %s (%v)\n", ev.Stage, ev.Path, ev.Err)
				} else {
					fmt.Printf("%-14s %s\n", ev.Stage, ev.Path)
				}
			}
			switch ev.Stage {
			case pipeline.StageDone:
				done++
				terminal++
			case pipeline.StageFailed:
				failed++
				terminal++
			}
		}
	}

	fmt.Printf("\nProcessed %d file(s): %d done, %d failed, %d rejected\n",
		expected, done, failed, rejected)
	if failed > 0 || rejected > 0 || submitFailed {
		os.Exit(1)
	}
}

// collectFiles expands the arguments into message file paths. Directory
// arguments are walked for .eml and .msg files.
func collectFiles(args []string) ([]string, error) {
	var files []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			// Let the pipeline report it as rejected.
			files = append(files, arg)
			continue
		}
		if !info.IsDir() {
			files = append(files, arg)
			continue
		}
		err = filepath.WalkDir(arg, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(path)) {
			case ".eml", ".msg":
				files = append(files, path)
			}
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return files, nil
}
