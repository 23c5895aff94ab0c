// Package main implements the mirrorcrawler command-line tool: it walks
// every active host in the catalog, checking each one's advertised
// mirror categories against the master repository and recording the
// verdicts.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/BurntSushi/toml"
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mirrorwatch/crawler/internal/catalog"
	"github.com/mirrorwatch/crawler/internal/crawler"
	"github.com/mirrorwatch/crawler/internal/notify"
	"github.com/mirrorwatch/crawler/internal/rsyncdriver"
)

const defaultConfigPath = "/etc/mirrorcrawler/crawler.toml"

var (
	version = "dev"
	commit  = "unknown"

	configPath     string
	includePrivate bool
	threads        int
	timeoutMinutes int
	startID        int64
	stopID         int64
	categories     []string
	canary         bool
	debug          bool
)

var rootCmd = &cobra.Command{
	Use:   "mirrorcrawler",
	Short: "Verify mirror hosts against the master repository",
	Long: `mirrorcrawler walks every active host in the catalog and checks each of
its advertised mirror categories against the master repository, recording
an up-to-date/stale/unknown verdict for every directory it visits.

Find more information at: https://github.com/mirrorwatch/crawler`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Crawl hosts and record verdicts",
	Long: `Crawl loads the configuration, opens the catalog, and walks every
eligible host in parallel, bounded by --threads.

Usage:
  # Crawl every active, public host
  mirrorcrawler run

  # Crawl a specific range of host ids
  mirrorcrawler run --startid 100 --stopid 200

  # Crawl only specific categories
  mirrorcrawler run --category "Fedora Linux" --category EPEL`,
	RunE: runCrawl,
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the configuration file",
	Long:  `Validate the configuration file and report any issues, without crawling.`,
	RunE:  runValidate,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("mirrorcrawler %s (commit %s)\n", version, commit)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfigPath, "configuration file path")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "force debug-level logging regardless of configuration")

	runCmd.Flags().BoolVar(&includePrivate, "include-private", false, "also crawl hosts marked private")
	runCmd.Flags().IntVar(&threads, "threads", 0, "number of hosts to crawl concurrently (0 uses the configured default)")
	runCmd.Flags().IntVar(&timeoutMinutes, "timeout-minutes", 0, "per-host wall-clock budget in minutes (0 uses the configured default)")
	runCmd.Flags().Int64Var(&startID, "startid", 0, "only crawl hosts with id >= startid")
	runCmd.Flags().Int64Var(&stopID, "stopid", 0, "only crawl hosts with id <= stopid (0 means no upper bound)")
	runCmd.Flags().StringArrayVar(&categories, "category", nil, "limit the crawl to this category (may be repeated)")
	runCmd.Flags().BoolVar(&canary, "canary", false, "restrict each category to its repodata and iso directories (refused at startup)")
}

func loadConfig() (*crawler.Config, error) {
	cfg := crawler.NewConfig()
	if _, err := toml.DecodeFile(configPath, cfg); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(err, "configuration file not found")
		}
		return nil, errors.Wrap(err, "failed to decode config file")
	}
	if err := cfg.ApplyEnvironmentVariables(); err != nil {
		return nil, errors.Wrap(err, "failed to apply environment overrides")
	}

	if threads > 0 {
		cfg.Threads = threads
	}
	if timeoutMinutes > 0 {
		cfg.TimeoutMinutes = timeoutMinutes
	}
	if includePrivate {
		cfg.IncludePrivate = true
	}
	if len(categories) > 0 {
		cfg.Categories = categories
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func runValidate(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", configPath)
		return err
	}
	if err := cfg.Log.Apply(); err != nil {
		return errors.Wrap(err, "log config")
	}
	if err := cfg.Check(); err != nil {
		slog.Error("configuration is invalid", "error", err)
		return err
	}
	slog.Info("configuration is valid", "path", configPath)
	return nil
}

func runCrawl(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		slog.Error("failed to load configuration", "error", err, "path", configPath)
		return err
	}
	if err := cfg.Log.Apply(); err != nil {
		return errors.Wrap(err, "log config")
	}
	if err := cfg.Check(); err != nil {
		slog.Error("configuration is invalid", "error", err)
		return err
	}
	if canary {
		slog.Error("--canary is not yet implemented")
		return errors.New("--canary is not yet implemented")
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	store, err := catalog.OpenSQLiteStore(ctx, cfg.DBURL)
	if err != nil {
		slog.Error("failed to open catalog", "error", err, "db_url", cfg.DBURL)
		return err
	}
	defer store.Close()

	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.Email.Enabled {
		notifier = notify.NewSMTPNotifier(notify.SMTPConfig{
			Host:     cfg.Email.SMTPHost,
			Port:     cfg.Email.SMTPPort,
			Username: cfg.Email.SMTPUsername,
			Password: cfg.Email.SMTPPassword,
			From:     cfg.Email.MailFrom,
			To:       cfg.Email.AdminMailTo,
		})
	}

	hosts, err := store.Mirrors(ctx, cfg.IncludePrivate)
	if err != nil {
		slog.Error("failed to list hosts", "error", err)
		return err
	}

	workerCfg := crawler.WorkerConfig{
		Store:          store,
		Runner:         rsyncdriver.RsyncRunner{},
		Notifier:       notifier,
		IncludePrivate: cfg.IncludePrivate,
		Categories:     cfg.Categories,
		Timeout:        cfg.Timeout(),
		LogDir:         cfg.Email.LogDir,
		Canary:         canary,
	}

	rc := crawlAll(ctx, workerCfg, hosts, cfg.Threads)
	if rc != crawler.ExitSuccess {
		os.Exit(rc)
	}
	return nil
}

// crawlAll dispatches CrawlHost across every eligible host, bounded to
// threads concurrent crawls via an errgroup semaphore, and returns the
// worst (highest) exit code observed across all hosts.
func crawlAll(ctx context.Context, workerCfg crawler.WorkerConfig, hosts []*catalog.Host, threads int) int {
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(threads)

	results := make(chan int, len(hosts))

	for _, host := range hosts {
		if !host.Eligible(workerCfg.IncludePrivate) {
			continue
		}
		if startID > 0 && host.ID < startID {
			continue
		}
		if stopID > 0 && host.ID > stopID {
			continue
		}

		host := host
		g.Go(func() error {
			rc := crawler.CrawlHost(gctx, workerCfg, host.ID)
			results <- rc
			if rc != crawler.ExitSuccess {
				slog.Warn("host crawl finished with non-zero exit", "host", host.Name, "host_id", host.ID, "exit_code", rc)
			}
			return nil
		})
	}

	_ = g.Wait()
	close(results)

	worst := crawler.ExitSuccess
	for rc := range results {
		if rc > worst {
			worst = rc
		}
	}
	return worst
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
