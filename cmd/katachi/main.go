// Package main is the katachi CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/katachi/internal/catalog"
	"github.com/hyperjump/katachi/internal/cli"
	"github.com/hyperjump/katachi/internal/config"
	"github.com/hyperjump/katachi/internal/embedding"
	"github.com/hyperjump/katachi/internal/extract"
	"github.com/hyperjump/katachi/internal/indexer"
	"github.com/hyperjump/katachi/internal/models"
	"github.com/hyperjump/katachi/internal/search"
	"github.com/hyperjump/katachi/internal/server"
	"github.com/hyperjump/katachi/internal/storage"
	"github.com/hyperjump/katachi/internal/watcher"
	"github.com/hyperjump/katachi/pkg/utils"
)

var version = "dev"

const defaultConfigPath = config.DefaultPath

// loadConfig loads config from path. When path is the default, it first looks for
// config.yaml in the current directory (for development); if that exists it is used.
// Returns the config and the path that was actually loaded.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "extract":
		runExtract()
	case "retrieve":
		runRetrieve()
	case "server":
		runServer()
	case "watch":
		runWatch()
	case "catalog":
		runCatalog()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("katachi version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`katachi - content-based image retrieval

Usage:
  katachi extract  [--config path] [--split name] [--output text|compact|json]
  katachi retrieve [--config path] [--k 5] [--output text|compact|json] [--server url] <image>
  katachi server   [--config path] [--debug]
  katachi watch    [--config path]
  katachi catalog  [--config path] [--schedule]
  katachi status   [--config path] [--output text|json] [--server url]
  katachi version
  katachi help
`)
}

// argsReorder moves any flags (and their values) that appear after positionals to the front
// of the slice so that flag.Parse() sees them. Go's flag package stops at the first non-flag
// argument, so "katachi retrieve cat.jpg --k 3" would otherwise leave --k unparsed.
func argsReorder(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

// setup loads config and builds a logger; failures exit the process.
func setup(configPath string, debugFlag bool) (*config.Config, *zap.Logger, bool) {
	cfg, resolved, err := loadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || debugFlag
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	logger.Debug("config loaded", zap.String("config_path", resolved), zap.Bool("debug", debugMode))
	return cfg, logger, debugMode
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseOutputFormat(s)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return format
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runExtract() {
	fs := flag.NewFlagSet("extract", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	split := fs.String("split", "", "extract only this split (default: all configured splits)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(argsReorder(os.Args[2:]))
	format := parseFormat(*outputFormat)

	cfg, logger, debugMode := setup(*configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, debugMode, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var reports []*models.ExtractionReport
	if *split != "" {
		report, err := components.Indexer.IndexSplitByName(ctx, *split)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
		reports = append(reports, report)
	} else {
		reports, err = components.Indexer.IndexAll(ctx)
		if err != nil {
			_ = cli.WriteExtractionReports(os.Stdout, reports, format)
			fmt.Fprintf(os.Stderr, "Extraction failed: %v\n", err)
			os.Exit(1)
		}
	}
	if err := cli.WriteExtractionReports(os.Stdout, reports, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func printRetrieveUsage(fs *flag.FlagSet) {
	fmt.Fprintf(fs.Output(), "Usage: katachi retrieve [flags] <image>\n\n")
	fs.PrintDefaults()
	fmt.Fprintf(fs.Output(), `
Prints the K corpus images most similar to <image>, best first, with cosine scores.
K above retrieval.max_k (default 100) is an error; fewer matches are printed when the
corpus holds fewer than K images.
With --server the image is uploaded to a running katachi server instead.

Examples:
  katachi retrieve query.jpg
  katachi retrieve query.jpg --k 10 --output json
  katachi retrieve --server http://localhost:8080 query.png
`)
}

func runRetrieve() {
	fs := flag.NewFlagSet("retrieve", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	k := fs.Int("k", 0, "number of matches, at most retrieval.max_k (0 = retrieval.default_k)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	serverURL := fs.String("server", "", "server URL (empty = read feature artifacts directly)")
	fs.Usage = func() { printRetrieveUsage(fs) }
	_ = fs.Parse(argsReorder(os.Args[2:]))
	if fs.NArg() != 1 {
		printRetrieveUsage(fs)
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	if *k < 0 {
		fmt.Fprintln(os.Stderr, "--k must be positive")
		os.Exit(1)
	}
	imagePath := fs.Arg(0)

	var result *models.QueryResult
	if *serverURL != "" {
		var err error
		result, err = retrieveViaHTTP(http.DefaultClient, *serverURL, imagePath, *k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
			os.Exit(1)
		}
	} else {
		cfg, logger, debugMode := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, debugMode, false)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		result, err = components.Engine.Retrieve(context.Background(), imagePath, *k)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Retrieve failed: %v\n", err)
			components.Close()
			os.Exit(1)
		}
	}
	if err := cli.WriteQueryResult(os.Stdout, result, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// retrieveViaHTTP uploads the image at imagePath to a running server.
func retrieveViaHTTP(client *http.Client, serverURL, imagePath string, k int) (*models.QueryResult, error) {
	data, err := os.ReadFile(imagePath)
	if err != nil {
		return nil, err
	}
	target := serverURL + "/api/v1/retrieve"
	if k > 0 {
		target += "?" + url.Values{"k": {strconv.Itoa(k)}}.Encode()
	}
	resp, err := client.Post(target, "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var result models.QueryResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	result.Query = imagePath
	return &result, nil
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, debugMode := setup(*configPath, *debug)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, debugMode, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()

	if cfg.Watch.Enabled {
		w := newSplitWatcher(cfg, components, logger)
		if err := w.Start(ctx); err != nil {
			logger.Fatal("Failed to start watcher", zap.Error(err))
		}
		defer w.Stop()
	}

	srv := server.NewServer(components.Engine, components.Indexer, components.Ledger, &cfg.Server, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

// newSplitWatcher wires file events in the split image directories to artifact rebuilds.
func newSplitWatcher(cfg *config.Config, components *Components, logger *zap.Logger) *watcher.Watcher {
	dirs := make(map[string]string, len(cfg.Features.Splits))
	for _, s := range cfg.Features.Splits {
		dirs[s.Name] = s.ImageDir
	}
	idx := components.Indexer
	return watcher.NewWatcher(dirs, cfg.Features.Extensions,
		func(split string) {
			report, err := idx.IndexSplitByName(context.Background(), split)
			if err != nil {
				logger.Warn("watch rebuild failed", zap.String("split", split), zap.Error(err))
				return
			}
			logger.Info("watch rebuild done", zap.String("split", split),
				zap.Int("written", report.Written), zap.Int("failed", report.Failed()))
		},
		watcher.WithDebounce(cfg.Watch.Debounce()),
		watcher.WithLogger(logger),
	)
}

func runWatch() {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, debugMode := setup(*configPath, false)
	defer logger.Sync()
	components, err := initializeComponents(cfg, logger, debugMode, true)
	if err != nil {
		logger.Fatal("Failed to initialize components", zap.Error(err))
	}
	defer components.Close()

	ctx, cancel := signalContext()
	defer cancel()
	w := newSplitWatcher(cfg, components, logger)
	if err := w.Start(ctx); err != nil {
		logger.Fatal("Failed to start watcher", zap.Error(err))
	}
	defer w.Stop()
	logger.Info("watching split directories", zap.Strings("dirs", w.Directories()))
	<-ctx.Done()
}

func runCatalog() {
	fs := flag.NewFlagSet("catalog", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	schedule := fs.Bool("schedule", false, "keep running, once per catalog.schedule_interval")
	_ = fs.Parse(os.Args[2:])

	cfg, logger, _ := setup(*configPath, false)
	defer logger.Sync()
	ledger, err := storage.NewSQLiteLedger(cfg.Storage.LedgerPath)
	if err != nil {
		logger.Fatal("Failed to open ledger", zap.Error(err))
	}
	defer ledger.Close()

	p := catalog.NewPipeline(
		catalog.Paths{Raw: cfg.Catalog.RawPath, Stage: cfg.Catalog.StagePath, Final: cfg.Catalog.FinalPath},
		catalog.WithRetries(cfg.Catalog.RetriesOrDefault()),
		catalog.WithInterval(cfg.Catalog.ScheduleInterval),
		catalog.WithLedger(ledger),
		catalog.WithLogger(logger),
	)
	ctx, cancel := signalContext()
	defer cancel()
	if *schedule {
		_ = p.Schedule(ctx)
		return
	}
	if err := p.Run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Catalog pipeline failed: %v\n", err)
		ledger.Close()
		os.Exit(1)
	}
	fmt.Printf("Catalog stored: %s\n", cfg.Catalog.FinalPath)
}

type statusResponse struct {
	Splits         []indexer.SplitStatus `json:"splits"`
	DiskUsageBytes int64                 `json:"disk_usage_bytes"`
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	serverURL := fs.String("server", "", "server URL (empty = inspect artifacts directly)")
	outputFormat := fs.String("output", "text", "output format: text, compact, or json")
	_ = fs.Parse(os.Args[2:])
	format := parseFormat(*outputFormat)

	var status statusResponse
	if *serverURL != "" {
		res, err := statusViaHTTP(http.DefaultClient, *serverURL)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			os.Exit(1)
		}
		status = *res
	} else {
		cfg, logger, debugMode := setup(*configPath, false)
		defer logger.Sync()
		components, err := initializeComponents(cfg, logger, debugMode, true)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
			os.Exit(1)
		}
		defer components.Close()
		status.Splits, status.DiskUsageBytes, err = components.Indexer.Status(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
			components.Close()
			os.Exit(1)
		}
	}
	if err := cli.WriteStatus(os.Stdout, status.Splits, status.DiskUsageBytes, format); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

func statusViaHTTP(client *http.Client, serverURL string) (*statusResponse, error) {
	resp, err := client.Get(serverURL + "/api/v1/splits")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, string(b))
	}
	var s statusResponse
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &s, nil
}

// Components holds initialized services.
type Components struct {
	Encoder embedding.Encoder
	Ledger  storage.Ledger // nil when not opened
	Engine  *search.Engine
	Indexer *indexer.Indexer
}

// Close releases the encoder and the ledger.
func (c *Components) Close() {
	if c.Encoder != nil {
		_ = c.Encoder.Close()
		c.Encoder = nil
	}
	if c.Ledger != nil {
		_ = c.Ledger.Close()
		c.Ledger = nil
	}
}

// initializeComponents builds the encoder once and shares it between retrieval and extraction.
// The ledger is opened only when withLedger is set, so read-only commands do not create it.
func initializeComponents(cfg *config.Config, logger *zap.Logger, debug bool, withLedger bool) (*Components, error) {
	encoder, err := embedding.NewEncoder(embedding.Options{
		Backend:        cfg.Embedding.Backend,
		ModelPath:      cfg.Embedding.ModelPath,
		ModelName:      cfg.Embedding.ModelName,
		RuntimeLibrary: cfg.Embedding.RuntimeLibrary,
		Dimensions:     cfg.Embedding.Dimensions,
		ImageSize:      cfg.Embedding.ImageSize,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize encoder: %w", err)
	}
	components := &Components{Encoder: encoder}
	logger.Info("encoder ready",
		zap.String("backend", cfg.Embedding.Backend),
		zap.String("model", encoder.Model()),
		zap.Int("dimensions", encoder.Dimensions()))

	extractor := extract.NewExtractor(
		extract.WithMaxPixels(cfg.Features.MaxPixels),
		extract.WithMaxAspectRatio(cfg.Features.MaxAspectRatio),
	)
	splits := make([]indexer.Split, len(cfg.Features.Splits))
	for i, s := range cfg.Features.Splits {
		splits[i] = indexer.Split{Name: s.Name, ImageDir: s.ImageDir}
	}
	idxOpts := []indexer.IndexerOption{
		indexer.WithExtensions(cfg.Features.Extensions),
		indexer.WithCache(embedding.NewEmbeddingCache(cfg.Embedding.CacheSize)),
		indexer.WithLogger(logger),
	}
	if withLedger {
		ledger, err := storage.NewSQLiteLedger(cfg.Storage.LedgerPath)
		if err != nil {
			components.Close()
			return nil, fmt.Errorf("failed to open ledger: %w", err)
		}
		components.Ledger = ledger
		idxOpts = append(idxOpts, indexer.WithLedger(ledger))
	}
	components.Indexer = indexer.NewIndexer(encoder, extractor, cfg.Features.Directory, splits, idxOpts...)

	engineOpts := []search.EngineOption{search.WithLimits(cfg.Retrieval.DefaultK, cfg.Retrieval.MaxK)}
	if debug {
		engineOpts = append(engineOpts, search.WithLogger(logger))
	}
	components.Engine = search.NewEngine(encoder, extractor, cfg.Features.Directory, cfg.Features.SplitNames(), engineOpts...)
	return components, nil
}
