package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/term"

	"reposter/pkg/auth"
	"reposter/pkg/config"
	"reposter/pkg/dedup"
	"reposter/pkg/feed"
	"reposter/pkg/fetcher"
	"reposter/pkg/logger"
	"reposter/pkg/pipeline"
	"reposter/pkg/publisher"
	"reposter/pkg/ratelimit"
)

var (
	configFile = flag.String("config", "", "Path to configuration file")
	source     = flag.String("source", "", "Source feed identifier")
	limit      = flag.Int("limit", 0, "Maximum items to process this run")
	workers    = flag.Int("workers", 0, "Number of parallel workers")
	storePath  = flag.String("store", "", "Path to the dedup database")
	mediaRoot  = flag.String("media-root", "", "Directory for downloaded media")
	endpoint   = flag.String("endpoint", "", "Destination publish endpoint")
	accountID  = flag.String("account-id", "", "Destination account id")
	account    = flag.String("account", "default", "Stored credential account name")
	logLevel   = flag.String("log-level", "", "Log level (debug, info, warn, error)")
)

func main() {
	flag.Parse()
	os.Exit(run(flag.Args()))
}

func run(args []string) int {
	if len(args) > 0 && args[0] == "auth" {
		return runAuth(args[1:])
	}

	cfg, err := config.Load(*configFile, collectFlags())
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to load configuration:", err)
		return 1
	}

	log := logger.Initialize(logger.Options{
		Level: cfg.Logging.Level,
		File:  cfg.Logging.File,
	})

	if cfg.Destination.Token == "" {
		if acct := resolveCredentials(*account, log); acct != nil {
			cfg.Destination.Token = acct.Token
			if cfg.Destination.AccountID == "" {
				cfg.Destination.AccountID = acct.AccountID
			}
		}
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary, err := execute(ctx, cfg, log)
	if summary != nil {
		fmt.Println(summary.String())
	}
	if err != nil {
		log.WithError(err).Error("run aborted")
		return 1
	}
	if summary != nil && summary.Failed > 0 {
		return 1
	}
	return 0
}

func execute(ctx context.Context, cfg *config.Config, log logger.Logger) (*pipeline.Summary, error) {
	store, err := dedup.Open(cfg.Store.Path)
	if err != nil {
		return nil, err
	}
	defer func() {
		if closeErr := store.Close(); closeErr != nil {
			log.WithError(closeErr).Warn("failed to close dedup store")
		}
	}()

	feedClient := feed.NewClient(feed.ClientOptions{
		BaseURL:     cfg.Feed.BaseURL,
		UserAgent:   cfg.Feed.UserAgent,
		Timeout:     cfg.Feed.Timeout,
		MaxAttempts: cfg.Feed.MaxRetries,
		Logger:      log,
	})
	walker := feed.NewWalker(feedClient, cfg.Feed.Source, cfg.Feed.StartToken,
		cfg.Feed.PageSize, cfg.Pipeline.ItemLimit, log)

	mediaFetcher, err := fetcher.New(fetcher.Options{
		Root:        cfg.Media.Root,
		MaxBytes:    cfg.Media.MaxFileSize,
		Timeout:     cfg.Media.Timeout,
		MaxAttempts: cfg.Media.MaxRetries,
		Logger:      log,
	})
	if err != nil {
		return nil, err
	}

	pub, err := publisher.New(publisher.Options{
		Endpoint:       cfg.Destination.Endpoint,
		Token:          cfg.Destination.Token,
		AccountID:      cfg.Destination.AccountID,
		CaptionSuffix:  cfg.Destination.CaptionSuffix,
		Timeout:        cfg.Publish.Timeout,
		MaxAttempts:    cfg.Publish.MaxAttempts,
		RateLimitFloor: cfg.Publish.RateLimitFloor,
		Limiter:        ratelimit.NewTokenBucket(cfg.Publish.PostsPerMinute, time.Minute),
		Logger:         log,
	})
	if err != nil {
		return nil, err
	}

	log.InfoWithFields("starting run", map[string]interface{}{
		"source":  cfg.Feed.Source,
		"limit":   cfg.Pipeline.ItemLimit,
		"workers": cfg.Pipeline.Workers,
	})

	return pipeline.New(pipeline.Options{
		Source:    walker,
		Store:     store,
		Fetcher:   mediaFetcher,
		Publisher: pub,
		Workers:   cfg.Pipeline.Workers,
		Logger:    log,
	}).Run(ctx)
}

func collectFlags() map[string]interface{} {
	flags := make(map[string]interface{})
	if *source != "" {
		flags["source"] = *source
	}
	if *limit > 0 {
		flags["limit"] = *limit
	}
	if *workers > 0 {
		flags["workers"] = *workers
	}
	if *storePath != "" {
		flags["store"] = *storePath
	}
	if *mediaRoot != "" {
		flags["media-root"] = *mediaRoot
	}
	if *endpoint != "" {
		flags["endpoint"] = *endpoint
	}
	if *accountID != "" {
		flags["account-id"] = *accountID
	}
	if *logLevel != "" {
		flags["log-level"] = *logLevel
	}
	return flags
}

func resolveCredentials(name string, log logger.Logger) *auth.Account {
	manager, err := auth.NewManager()
	if err != nil {
		log.WithError(err).Warn("credential manager unavailable")
		return nil
	}
	acct, err := manager.Retrieve(name)
	if err != nil {
		log.WithField("account", name).Debug("no stored credentials found")
		return nil
	}
	return acct
}

// runAuth handles `reposter auth login|logout [name]`.
func runAuth(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "usage: reposter auth <login|logout> [account]")
		return 1
	}

	name := "default"
	if len(args) > 1 {
		name = args[1]
	}

	manager, err := auth.NewManager()
	if err != nil {
		fmt.Fprintln(os.Stderr, "credential manager unavailable:", err)
		return 1
	}

	switch args[0] {
	case "login":
		token, err := promptSecret("Destination API token: ")
		if err != nil {
			fmt.Fprintln(os.Stderr, "failed to read token:", err)
			return 1
		}
		fmt.Print("Destination account id (optional): ")
		var acctID string
		fmt.Scanln(&acctID)

		if err := manager.Store(&auth.Account{
			Name:      name,
			Token:     token,
			AccountID: acctID,
		}); err != nil {
			fmt.Fprintln(os.Stderr, "failed to store credentials:", err)
			return 1
		}
		fmt.Printf("Credentials stored for account %q\n", name)
		return 0

	case "logout":
		if err := manager.Delete(name); err != nil {
			fmt.Fprintln(os.Stderr, "failed to delete credentials:", err)
			return 1
		}
		fmt.Printf("Credentials removed for account %q\n", name)
		return 0

	default:
		fmt.Fprintln(os.Stderr, "unknown auth command:", args[0])
		return 1
	}
}

func promptSecret(prompt string) (string, error) {
	fmt.Print(prompt)
	raw, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Println()
	if err != nil {
		return "", err
	}
	secret := strings.TrimSpace(string(raw))
	if secret == "" {
		return "", fmt.Errorf("empty secret")
	}
	return secret, nil
}
