package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/maine/latam_digest_bot/internal/app"
	"github.com/maine/latam_digest_bot/internal/classify"
	"github.com/maine/latam_digest_bot/internal/config"
	"github.com/maine/latam_digest_bot/internal/filter"
	"github.com/maine/latam_digest_bot/internal/formatter"
	"github.com/maine/latam_digest_bot/internal/gemini"
	"github.com/maine/latam_digest_bot/internal/identity"
	"github.com/maine/latam_digest_bot/internal/logging"
	"github.com/maine/latam_digest_bot/internal/ranking"
	"github.com/maine/latam_digest_bot/internal/sources"
	"github.com/maine/latam_digest_bot/internal/state"
	"github.com/maine/latam_digest_bot/internal/telegram"
)

var (
	configPath  string
	sourcesPath string
)

func main() {
	env := config.LoadEnvConfig()
	log := logging.New(env.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:           "digest",
		Short:         "LATAM startup news digest for Telegram",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/pipeline.yaml", "pipeline config path")
	rootCmd.PersistentFlags().StringVar(&sourcesPath, "sources", "configs/sources.yaml", "feed sources path")

	rootCmd.AddCommand(runCmd(env, log))
	rootCmd.AddCommand(collectCmd(env, log))
	rootCmd.AddCommand(sendCmd(env, log))
	rootCmd.AddCommand(pruneCmd(env, log))
	rootCmd.AddCommand(discoverCmd())
	rootCmd.AddCommand(chatsCmd(env))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error("command failed", "error", err)
		stop()
		os.Exit(1)
	}
}

func runCmd(env config.EnvConfig, log *slog.Logger) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Fetch feeds, select, publish and commit state",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := buildPipeline(cmd.Context(), env, log, pipelineOptions{fetch: true, publish: !dryRun, dryRun: dryRun})
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := p.Run(cmd.Context())
			report(cmd.OutOrStdout(), res, dryRun)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render the digest without publishing or committing")
	return cmd
}

func collectCmd(env config.EnvConfig, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "collect",
		Short: "Fetch and classify feeds into the dataset file",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := buildPipeline(cmd.Context(), env, log, pipelineOptions{fetch: true})
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := p.Collect(cmd.Context())
			report(cmd.OutOrStdout(), res, false)
			return err
		},
	}
}

func sendCmd(env config.EnvConfig, log *slog.Logger) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Publish a digest from the last collected dataset",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := buildPipeline(cmd.Context(), env, log, pipelineOptions{publish: !dryRun, dryRun: dryRun})
			if err != nil {
				return err
			}
			defer closeFn()

			res, err := p.SendFromDataset(cmd.Context())
			report(cmd.OutOrStdout(), res, dryRun)
			return err
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "render the digest without publishing or committing")
	return cmd
}

func pruneCmd(env config.EnvConfig, log *slog.Logger) *cobra.Command {
	return &cobra.Command{
		Use:   "prune",
		Short: "Apply retention to the state store",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, closeFn, err := buildPipeline(cmd.Context(), env, log, pipelineOptions{})
			if err != nil {
				return err
			}
			defer closeFn()

			_, err = p.Prune(cmd.Context())
			return err
		},
	}
}

func discoverCmd() *cobra.Command {
	var (
		name    string
		country string
		bucket  string
		timeout time.Duration
	)

	cmd := &cobra.Command{
		Use:   "discover [page-url]...",
		Short: "Find RSS/Atom feeds on site pages and print a sources.yaml snippet",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := &http.Client{Timeout: timeout}
			var out config.SourcesRoot

			for _, page := range args {
				feeds, err := sources.Discover(cmd.Context(), client, page)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", page, err)
					continue
				}
				for i, feed := range feeds {
					srcName := name
					if srcName == "" {
						srcName = page
					}
					if len(feeds) > 1 {
						srcName = fmt.Sprintf("%s #%d", srcName, i+1)
					}
					out.Sources = append(out.Sources, config.Source{Name: srcName, URL: feed, Country: country, Bucket: bucket})
				}
			}

			if len(out.Sources) == 0 {
				return errors.New("no feeds found")
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			defer enc.Close()
			return enc.Encode(out)
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "source name for the generated entries")
	cmd.Flags().StringVar(&country, "country", "", "ISO2 country hint")
	cmd.Flags().StringVar(&bucket, "bucket", "", "bucket hint (funding, startups)")
	cmd.Flags().DurationVar(&timeout, "timeout", 15*time.Second, "HTTP timeout per page")
	return cmd
}

func chatsCmd(env config.EnvConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "chats",
		Short: "List chats that recently messaged the bot (to find TELEGRAM_CHAT_ID)",
		RunE: func(cmd *cobra.Command, args []string) error {
			if env.TelegramBotToken == "" {
				return fmt.Errorf("%w: TELEGRAM_BOT_TOKEN environment variable is required", config.ErrNotConfigured)
			}
			chats, err := telegram.ListChats(cmd.Context(), telegram.NewClient(env.TelegramBotToken))
			if err != nil {
				return err
			}
			if len(chats) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No chats yet. Send a message to the bot or post in the channel first.")
				return nil
			}
			for _, c := range chats {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\n", c.ChatID, c.Type, c.Name)
			}
			return nil
		},
	}
}

type pipelineOptions struct {
	fetch   bool
	publish bool
	dryRun  bool
}

// buildPipeline собирает зависимости под режим. closeFn освобождает стор состояния.
func buildPipeline(ctx context.Context, env config.EnvConfig, log *slog.Logger, opts pipelineOptions) (*app.Pipeline, func(), error) {
	rootCfg, err := config.LoadRoot(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load pipeline config: %w", err)
	}

	store, closeFn, err := openStateStore(rootCfg)
	if err != nil {
		return nil, nil, err
	}

	deps := app.PipelineDeps{
		Filter:     filter.New(rootCfg.Pipeline),
		Selector:   ranking.NewSelector(rootCfg.Buckets),
		Enricher:   gemini.NoopEnricher{},
		Formatter:  formatter.NewFormatter(rootCfg.Telegram),
		StateStore: store,
		Datasets:   state.NewDatasetStore(rootCfg.State.DatasetPath),
		Logger:     log,
		DryRun:     opts.dryRun,
	}

	if opts.fetch {
		srcCfg, err := config.LoadSources(sourcesPath)
		if err != nil {
			closeFn()
			return nil, nil, fmt.Errorf("load sources config: %w", err)
		}
		limits := sources.Limits{
			MaxEntriesPerFeed: rootCfg.Fetch.MaxEntriesPerFeed,
			SummaryMaxRunes:   rootCfg.Pipeline.SummaryMaxRunes,
			MaxCategories:     rootCfg.Pipeline.MaxCategories,
		}
		deps.Collector = sources.NewRSSCollector(srcCfg.Sources, rootCfg.Fetch, limits, nil, log)
		deps.Builder = app.NewItemBuilder(
			identity.New(identity.Options{IncludeTitle: rootCfg.Pipeline.TitleInFingerprint}),
			classify.Default(),
		)
	}

	if opts.publish {
		if err := env.RequireTelegram(); err != nil {
			closeFn()
			return nil, nil, err
		}
		tgClient := telegram.NewClient(env.TelegramBotToken)
		sender := telegram.NewSender(tgClient, env.TelegramChatID, rootCfg.Telegram, log)
		if rootCfg.Telegram.LeadImage {
			pageClient := &http.Client{Timeout: time.Duration(rootCfg.Fetch.TimeoutSeconds) * time.Second}
			sender.WithImageFinder(sources.NewImageFinder(pageClient, rootCfg.Fetch.UserAgent))
		}
		deps.Publisher = sender
	}

	if rootCfg.Gemini.Enabled && env.GeminiEnabled() {
		geminiClient, err := gemini.NewClient(ctx, env.GeminiAPIKey, log)
		if err != nil {
			// обогащение необязательно: работаем с детерминированными метками
			log.Warn("gemini disabled", "error", err)
		} else {
			timeout := time.Duration(rootCfg.Gemini.TimeoutSeconds) * time.Second
			deps.Enricher = gemini.NewEnricher(geminiClient, rootCfg.Gemini.Model, timeout, classify.DefaultRules(), log)
		}
	}

	return app.NewPipeline(deps), closeFn, nil
}

func openStateStore(cfg config.Root) (app.StateStore, func(), error) {
	retention := state.RetentionFromConfig(cfg.Retention)

	switch cfg.State.Backend {
	case config.BackendSQLite:
		s, err := state.OpenSQLite(cfg.State.Path, retention)
		if err != nil {
			return nil, nil, fmt.Errorf("open state: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	default:
		return state.NewFileStore(cfg.State.Path, retention), func() {}, nil
	}
}

func report(w io.Writer, res app.Result, printPost bool) {
	if res.RunID == "" {
		return
	}
	fmt.Fprintf(w, "run %s: %s (sources %d, failed %d, entries %d, eligible %d, selected %d, published %d)\n",
		res.RunID, outcome(res), res.Sources, res.FailedSources, res.Entries, res.Eligible, res.Selected, res.Published)
	if printPost && res.Post.Text != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, res.Post.Text)
	}
}

func outcome(res app.Result) app.Outcome {
	if res.Outcome == "" {
		return "failed"
	}
	return res.Outcome
}
