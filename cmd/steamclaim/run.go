package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"steamclaim/application"
	"steamclaim/application/claim"
	"steamclaim/application/discovery"
	"steamclaim/application/redeem"
	"steamclaim/core/event"
	"steamclaim/core/eventbus"
	"steamclaim/domain/account"
	"steamclaim/domain/storefront"
	"steamclaim/infrastructure/browser"
	"steamclaim/infrastructure/cachefile"
	"steamclaim/infrastructure/logging"
	"steamclaim/infrastructure/repository"
	"steamclaim/infrastructure/steamweb"
	"steamclaim/resources"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Process every configured account against the target URL list",
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().String("urls", "urls.txt", "newline-delimited file of target URLs")
	runCmd.Flags().String("accounts", "maFiles", "directory of authenticator bundles")
	runCmd.Flags().String("accounts-backend", "mafile", "account source (mafile or mongo)")
	runCmd.Flags().String("mongo-uri", "mongodb://localhost:27017", "MongoDB connection URI for the mongo backend")
	runCmd.Flags().String("mongo-db", "steamclaim", "MongoDB database for the mongo backend")
	runCmd.Flags().String("selectors", "", "optional selector override file")
	runCmd.Flags().Bool("headless", true, "run the browser headless")
	runCmd.Flags().Int("concurrency", 1, "accounts processed at once")

	for _, name := range []string{"urls", "accounts", "accounts-backend", "mongo-uri", "mongo-db", "selectors", "headless", "concurrency"} {
		_ = viper.BindPFlag(name, runCmd.Flags().Lookup(name))
	}
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.ParseLevel(viper.GetString("log-level"))
	logger, closeLog, err := logging.Setup(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "failed to initialize logging:", err)
		return err
	}
	defer closeLog()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	urls, err := readURLFile(viper.GetString("urls"))
	if err != nil {
		logger.Error("Failed to read url list", "error", err)
		return err
	}

	selectors, err := loadSelectors(viper.GetString("selectors"))
	if err != nil {
		logger.Error("Failed to load selectors", "error", err)
		return err
	}

	store, err := cachefile.Open(viper.GetString("cache"), logger)
	if err != nil {
		logger.Error("Failed to open rewards cache", "error", err)
		return err
	}

	accountRepo, cleanup, err := buildAccountRepository(ctx, logger)
	if err != nil {
		logger.Error("Failed to initialize account repository", "error", err)
		return err
	}
	defer cleanup()

	accountService := account.NewService(accountRepo)

	eventBus := eventbus.New(100)
	defer eventBus.Close()
	eventBus.Subscribe(progressReporter(logger))

	driverCfg := browser.DefaultDriverConfig()
	driverCfg.Headless = viper.GetBool("headless")
	driverFactory := func() browser.Driver {
		return browser.NewChromeDriver(driverCfg)
	}

	web := steamweb.NewHTTPClient(steamweb.DefaultClientConfig(), logger)

	orchestrator := application.NewOrchestrator(&application.OrchestratorConfig{
		Accounts:    accountService,
		Cache:       store,
		Discoverer:  discovery.NewAgent(driverFactory, selectors, store, nil, logger),
		Redeemer:    redeem.NewExecutor(web, logger),
		Claimer:     claim.NewMachine(driverFactory, selectors, web, store, nil, logger),
		EventBus:    eventBus,
		Logger:      logger,
		Concurrency: viper.GetInt("concurrency"),
	})

	report, err := orchestrator.Run(ctx, urls)
	if err != nil {
		logger.Error("Run aborted", "error", err)
		return err
	}

	printSummary(report)
	return nil
}

// buildAccountRepository selects the account backend. The returned cleanup
// releases backend resources and is safe to call unconditionally.
func buildAccountRepository(ctx context.Context, logger *slog.Logger) (account.Repository, func(), error) {
	switch backend := viper.GetString("accounts-backend"); backend {
	case "mafile":
		repo := repository.NewFileAccountRepository(viper.GetString("accounts"), logger)
		return repo, func() {}, nil
	case "mongo":
		mongoCfg := repository.DefaultMongoDBConfig()
		mongoCfg.URI = viper.GetString("mongo-uri")
		mongoCfg.Database = viper.GetString("mongo-db")
		db, err := repository.NewMongoDB(ctx, mongoCfg, logger)
		if err != nil {
			return nil, func() {}, err
		}
		cleanup := func() {
			if err := db.Close(context.Background()); err != nil {
				logger.Warn("Failed to close MongoDB connection", "error", err)
			}
		}
		return repository.NewMongoAccountRepository(db, logger), cleanup, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown accounts backend %q", backend)
	}
}

// readURLFile loads a newline-delimited url list, skipping blanks and
// #-comments.
func readURLFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open url file: %w", err)
	}
	defer f.Close()

	var urls []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read url file: %w", err)
	}
	return urls, nil
}

// loadSelectors returns the override set when given, the embedded default
// otherwise.
func loadSelectors(override string) (*storefront.Selectors, error) {
	if override != "" {
		return storefront.LoadFile(override)
	}
	return storefront.Load(resources.Files, resources.SelectorFile)
}

// progressReporter returns an event handler that narrates run progress on
// the structured log while the orchestrator works.
func progressReporter(logger *slog.Logger) eventbus.EventHandler {
	return func(e event.Event) {
		switch ev := e.(type) {
		case *event.AccountStarted:
			logger.Info("Account started", "account", ev.AccountID(), "name", ev.Name, "urls", ev.URLs)
		case *event.AccountAuthFailed:
			logger.Warn("Account needs re-authentication", "account", ev.AccountID(), "reason", ev.Reason)
		case *event.TokensDiscovered:
			logger.Info("Tokens discovered", "account", ev.AccountID(), "app", ev.AppID, "count", ev.Count)
		case *event.TokenRedeemed:
			logger.Info("Token redemption attempted", "account", ev.AccountID(), "app", ev.AppID, "success", ev.Success)
		case *event.URLProcessed:
			logger.Info("URL processed", "account", ev.AccountID(), "url", ev.URL, "status", ev.Status, "reason", ev.Reason)
		case *event.AccountFinished:
			logger.Info("Account finished", "account", ev.AccountID(), "succeeded", ev.Succeeded)
		}
	}
}

// printSummary writes the per-account run outcome to stdout; logs go to
// stderr or the log file, so this stays machine-greppable.
func printSummary(report *application.RunReport) {
	for _, acc := range report.Accounts {
		switch {
		case acc.NeedsReauth:
			fmt.Printf("%s (%s): NEEDS REAUTH\n", acc.AccountID, acc.Name)
		case acc.Succeeded():
			fmt.Printf("%s (%s): OK (%d urls)\n", acc.AccountID, acc.Name, len(acc.URLs))
		default:
			failed := 0
			for _, u := range acc.URLs {
				if u.Failed {
					failed++
				}
			}
			fmt.Printf("%s (%s): FAILED (%d of %d urls)\n", acc.AccountID, acc.Name, failed, len(acc.URLs))
		}
	}
	if reauth := report.NeedsReauth(); len(reauth) > 0 {
		fmt.Printf("accounts needing re-authentication: %s\n", strings.Join(reauth, ", "))
	}
}
