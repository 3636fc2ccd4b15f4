package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xhad/pdfchat/internal/logger"
	"github.com/xhad/pdfchat/internal/models"
	"github.com/xhad/pdfchat/pkg/assistant"
	"github.com/xhad/pdfchat/pkg/scraper"
)

var ingestURL string

var ingestCmd = &cobra.Command{
	Use:   "ingest [files...]",
	Short: "Index PDF documents",
	Long: `Extracts, chunks and indexes PDF files. With --url, the page is crawled
for linked PDFs which are downloaded and indexed. Use a persistent store
(sqlite or pgvector) so later commands can query the result.`,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVar(&ingestURL, "url", "", "web page to crawl for linked PDFs")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && ingestURL == "" {
		return fmt.Errorf("nothing to ingest: pass PDF files or --url")
	}
	if config.Database.Type == "memory" {
		color.New(color.FgYellow).Fprintln(cmd.ErrOrStderr(),
			"Warning: the memory store is discarded when this command exits.")
	}

	a, err := newApp(cmd.Context(), config)
	if err != nil {
		return err
	}
	defer a.Close()

	var failed int
	if len(args) > 0 {
		n, err := ingestFiles(cmd.Context(), cmd.ErrOrStderr(), a, args)
		if err != nil {
			return err
		}
		failed += n
	}
	if ingestURL != "" {
		n, err := ingestRemote(cmd.Context(), cmd.ErrOrStderr(), a, ingestURL)
		if err != nil {
			return err
		}
		failed += n
	}

	if failed > 0 {
		return fmt.Errorf("%d document(s) failed to ingest", failed)
	}
	return nil
}

// ingestFiles reads and indexes files concurrently, reporting each outcome.
// It returns the number of documents that failed.
func ingestFiles(ctx context.Context, out io.Writer, a *app, paths []string) (int, error) {
	requests := make([]func() (assistant.IngestRequest, error), len(paths))
	for i, p := range paths {
		requests[i] = func() (assistant.IngestRequest, error) {
			data, err := os.ReadFile(p)
			if err != nil {
				return assistant.IngestRequest{Filename: filepath.Base(p)}, err
			}
			return assistant.IngestRequest{Data: data, Filename: filepath.Base(p)}, nil
		}
	}
	return ingestAll(ctx, out, a, requests)
}

func ingestRemote(ctx context.Context, out io.Writer, a *app, target string) (int, error) {
	var fetched atomic.Int32
	sc, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:        target,
		MaxDepth:       config.Scraper.MaxDepth,
		RateLimit:      config.Scraper.RateLimit,
		IgnorePatterns: config.Scraper.IgnorePatterns,
		OnProgress:     func(string) { fetched.Add(1) },
	})
	if err != nil {
		return 0, fmt.Errorf("failed to initialize scraper: %w", err)
	}

	spinner := getSpinner(out, fmt.Sprintf("Crawling %s...", target))
	links, err := sc.FindPDFs(ctx)
	spinner.Finish()
	fmt.Fprintln(out)
	if err != nil {
		return 0, fmt.Errorf("failed to crawl %s: %w", target, err)
	}
	color.New(color.FgGreen).Fprintf(out, "✓ Found %d PDF links on %d pages\n", len(links), fetched.Load())

	requests := make([]func() (assistant.IngestRequest, error), len(links))
	for i, link := range links {
		requests[i] = func() (assistant.IngestRequest, error) {
			doc, err := sc.Download(ctx, link)
			if err != nil {
				return assistant.IngestRequest{Filename: link}, err
			}
			return assistant.IngestRequest{Data: doc.Data, Filename: doc.Filename}, nil
		}
	}
	return ingestAll(ctx, out, a, requests)
}

func ingestAll(ctx context.Context, out io.Writer, a *app, requests []func() (assistant.IngestRequest, error)) (int, error) {
	if len(requests) == 0 {
		return 0, nil
	}
	bar := getProgressBar(out, len(requests), "Indexing documents...")

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(config.Assistant.IngestWorkers)

	results := make([]models.IngestResult, len(requests))
	for i, load := range requests {
		g.Go(func() error {
			req, err := load()
			res := models.IngestResult{Filename: req.Filename, Err: err}
			if err == nil {
				res, _ = a.ingester.IngestWait(ctx, req, 0)
			}
			results[i] = res
			bar.Add(1)
			// Only cancellation stops the batch; per-document failures are reported below.
			return ctx.Err()
		})
	}
	err := g.Wait()
	bar.Finish()
	fmt.Fprintln(out)
	if err != nil {
		return 0, err
	}

	failed := 0
	for _, res := range results {
		if res.Err != nil {
			failed++
			color.New(color.FgRed).Fprintf(out, "✗ %s: %v\n", res.Filename, res.Err)
			continue
		}
		logger.Debug("%s -> %s", res.Filename, res.DocumentID)
		color.New(color.FgGreen).Fprintf(out, "✓ %s: %d pages, %d chunks\n", res.Filename, res.Pages, res.ChunksIndexed)
	}
	return failed, nil
}
