package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/go-octopus/octopus"
	"github.com/go-octopus/octopus/collector"
	"github.com/go-octopus/octopus/config"
	"github.com/go-octopus/octopus/extract"
	"github.com/go-octopus/octopus/matcher"
	"github.com/go-octopus/octopus/metrics"
	"github.com/go-octopus/octopus/processor"
	"github.com/go-octopus/octopus/selector"
	"github.com/go-octopus/octopus/types"
)

var (
	cfgFile        string
	verbose        bool
	outputPath     string
	threads        int
	depth          int
	retries        int
	interval       string
	storeType      string
	storePath      string
	allowedDomains string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "octopus",
		Short: "octopus — concurrent web crawler",
		Long: `Octopus crawls the web from one or more seed URLs, following links
within the seed hosts and recording each page's URL and title.

The crawl frontier is priority-ordered and deduplicated by request
fingerprint. With a sqlite store an interrupted crawl resumes where it
left off. Extraction beyond URL and title is done programmatically with
the library; this CLI covers link-following crawls, frontier inspection
and configuration checks.`,
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(crawlCmd())
	rootCmd.AddCommand(statsCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(versionCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// crawlCmd creates the "crawl" subcommand.
func crawlCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawl [url...]",
		Short: "Crawl from the given seed URLs",
		Long:  "Crawl from the given seed URL(s), following same-host links up to the depth limit.",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runCrawl,
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "CSV output file (default: log results)")
	cmd.Flags().IntVarP(&threads, "threads", "n", 0, "number of concurrent workers (0 = config default)")
	cmd.Flags().IntVarP(&depth, "depth", "d", 3, "maximum crawl depth (-1 = use config, 0 = unlimited)")
	cmd.Flags().IntVar(&retries, "retries", -1, "retry rounds for failed requests (-1 = use config)")
	cmd.Flags().StringVar(&interval, "interval", "", "politeness interval per seed host, e.g. 500ms")
	cmd.Flags().StringVar(&storeType, "store", "", "request store: memory, sqlite or redis")
	cmd.Flags().StringVar(&storePath, "store-path", "", "sqlite store file path")
	cmd.Flags().StringVar(&allowedDomains, "allowed-domains", "", "comma-separated extra hosts to follow links into")

	return cmd
}

// runCrawl executes the crawl command.
func runCrawl(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	applyCLIOverrides(cfg)
	if err := config.Validate(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger := config.NewLogger(cfg.Logging)

	seeds := make([]*types.Request, 0, len(args))
	allowed := make(map[string]bool)
	for _, rawURL := range args {
		r, err := types.NewRequest(rawURL)
		if err != nil {
			return fmt.Errorf("invalid seed %q: %w", rawURL, err)
		}
		if !strings.HasPrefix(r.URL, "http") {
			return fmt.Errorf("invalid seed %q: seeds must be absolute http(s) URLs", rawURL)
		}
		seeds = append(seeds, r)
		allowed[r.Host()] = true
	}
	for _, h := range strings.Split(allowedDomains, ",") {
		if h = strings.ToLower(strings.TrimSpace(h)); h != "" {
			allowed[h] = true
		}
	}

	// A politeness interval from the flag becomes a site entry per seed
	// host, appended last so it wins over file-configured sites.
	if interval != "" {
		d, err := time.ParseDuration(interval)
		if err != nil {
			return fmt.Errorf("invalid interval %q: %w", interval, err)
		}
		for h := range allowed {
			cfg.Sites = append(cfg.Sites, config.SiteConfig{Host: h, Interval: d, Capacity: 1})
		}
	}

	st, opts, err := config.Build(cfg)
	if err != nil {
		return fmt.Errorf("build engine options: %w", err)
	}
	defer st.Close()

	sink := collector.Log(logger)
	var csvOut *collector.CSV
	if outputPath != "" {
		csvOut, err = collector.NewCSV(outputPath, "url", "title")
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer csvOut.Close()
		sink = csvOut.Collect
	}

	page := extract.NewSchema().
		Field("url", selector.URL()).
		Field("title", selector.CSS("title", selector.Text())).
		Link(extract.NewLink(
			selector.CSS("a[href]", selector.HTMLAttr("href"), selector.Multi()),
			extract.WithRepeatable(false),
		))
	follow := processor.Extract(page, sink)

	// Relative links resolve against the parent, so an empty host stays on
	// the seed host by construction.
	proc := func(resp *types.Response) ([]*types.Request, error) {
		children, err := follow(resp)
		if err != nil {
			return nil, err
		}
		kept := children[:0]
		for _, c := range children {
			if c.Host() == "" || allowed[c.Host()] {
				kept = append(kept, c)
			}
		}
		return kept, nil
	}

	opts = append(opts,
		octopus.WithLogger(logger),
		octopus.Process(matcher.HTML, proc),
	)

	if cfg.Metrics.Enabled {
		opts = append(opts, octopus.WithMetrics(metrics.New()))
		go serveMetrics(logger, cfg.Metrics.Port, cfg.Metrics.Path)
	}

	eng, err := octopus.New(opts...)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received signal, shutting down", "signal", sig.String())
		if err := eng.Stop(); err != nil {
			logger.Debug("stop skipped", "reason", err)
		}
	}()

	start := time.Now()
	if err := eng.Run(seeds...); err != nil {
		return fmt.Errorf("run engine: %w", err)
	}
	elapsed := time.Since(start)

	stats, err := eng.Stats()
	if err != nil {
		return fmt.Errorf("read stats: %w", err)
	}

	fmt.Printf("\nCrawl complete in %s\n", elapsed.Round(time.Millisecond))
	fmt.Printf("  Requests:  %d total, %d completed, %d failed\n", stats.All, stats.Completed, stats.Failed)
	if csvOut != nil {
		fmt.Printf("  Rows:      %d written to %s\n", csvOut.Count(), outputPath)
	}
	return nil
}

// statsCmd creates the "stats" subcommand for inspecting a store.
func statsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show the lifecycle histogram of the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyCLIOverrides(cfg)
			if err := config.Validate(cfg); err != nil {
				return fmt.Errorf("invalid config: %w", err)
			}

			st, err := config.BuildStore(&cfg.Store)
			if err != nil {
				return fmt.Errorf("open store: %w", err)
			}
			defer st.Close()

			stats, err := st.Stats()
			if err != nil {
				return fmt.Errorf("read stats: %w", err)
			}

			fmt.Printf("Store: %s\n", cfg.Store.Type)
			fmt.Printf("  All:        %d\n", stats.All)
			fmt.Printf("  Waiting:    %d\n", stats.Waiting)
			fmt.Printf("  Executing:  %d\n", stats.Executing)
			fmt.Printf("  Completed:  %d\n", stats.Completed)
			fmt.Printf("  Failed:     %d\n", stats.Failed)
			return nil
		},
	}
}

// configCmd creates the "config" subcommand for inspecting configuration.
func configCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			fmt.Printf("Engine:\n")
			fmt.Printf("  Threads:       %d\n", cfg.Engine.Threads)
			fmt.Printf("  Queue Factor:  %d\n", cfg.Engine.QueueFactor)
			fmt.Printf("  Retries:       %d\n", cfg.Engine.Retries)
			fmt.Printf("  Max Depth:     %d\n", cfg.Engine.MaxDepth)
			fmt.Printf("\nStore:\n")
			fmt.Printf("  Type:          %s\n", cfg.Store.Type)
			if cfg.Store.Path != "" {
				fmt.Printf("  Path:          %s\n", cfg.Store.Path)
			}
			if cfg.Store.Addr != "" {
				fmt.Printf("  Addr:          %s\n", cfg.Store.Addr)
			}
			fmt.Printf("\nSites:           %d configured\n", len(cfg.Sites))
			for _, s := range cfg.Sites {
				fmt.Printf("  %s", s.Host)
				if s.Interval > 0 {
					fmt.Printf(" (interval %s, capacity %d)", s.Interval, s.Capacity)
				}
				fmt.Println()
			}
			fmt.Printf("\nLogging:\n")
			fmt.Printf("  Level:         %s\n", cfg.Logging.Level)
			fmt.Printf("  Format:        %s\n", cfg.Logging.Format)
			fmt.Printf("\nMetrics:\n")
			fmt.Printf("  Enabled:       %v\n", cfg.Metrics.Enabled)
			if cfg.Metrics.Enabled {
				fmt.Printf("  Port:          %d\n", cfg.Metrics.Port)
				fmt.Printf("  Path:          %s\n", cfg.Metrics.Path)
			}
			return nil
		},
	}
}

// versionCmd creates the "version" subcommand.
func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("octopus %s\n", config.Version)
		},
	}
}

// applyCLIOverrides applies command-line flag values to the config.
func applyCLIOverrides(cfg *config.Config) {
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if threads > 0 {
		cfg.Engine.Threads = threads
	}
	if depth >= 0 {
		cfg.Engine.MaxDepth = depth
	}
	if retries >= 0 {
		cfg.Engine.Retries = retries
	}
	if storeType != "" {
		cfg.Store.Type = strings.ToLower(storeType)
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
}

// serveMetrics exposes the Prometheus endpoint for the whole crawl run.
func serveMetrics(logger *slog.Logger, port int, path string) {
	mux := http.NewServeMux()
	mux.Handle(path, promhttp.Handler())
	addr := fmt.Sprintf(":%d", port)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Warn("metrics server stopped", "addr", addr, "error", err)
	}
}
