package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/blogify-ai/blogify/config"
	"github.com/blogify-ai/blogify/internal/automation"
	"github.com/blogify-ai/blogify/internal/catalog"
	"github.com/blogify-ai/blogify/internal/enrich"
	srv "github.com/blogify-ai/blogify/internal/server"
	"github.com/blogify-ai/blogify/internal/store"
	"github.com/blogify-ai/blogify/internal/trends/serpapi"
	"github.com/blogify-ai/blogify/provider/gemini"
)

func main() {
	var configPath string
	root := &cobra.Command{Use: "blogify", SilenceUsage: true}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config directory or file")

	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server, scheduler and worker",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return srv.Run(ctx, cfg)
		},
	}

	var migDir, direction string
	var steps int
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			return srv.Migrate(migDir, cfg.Storage.Postgres.DSN(), direction, steps)
		},
	}
	migrateCmd.Flags().StringVar(&migDir, "dir", "file://migrations", "migrations source")
	migrateCmd.Flags().StringVar(&direction, "direction", "up", "up or down")
	migrateCmd.Flags().IntVar(&steps, "steps", 0, "number of steps (0 = all)")

	var genTopic, genTemplate string
	var genPublish bool
	generate := &cobra.Command{
		Use:   "generate",
		Short: "Run one pipeline cycle synchronously and print the result",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			orch, st, err := buildOrchestrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.DB.Close()
			res, err := orch.RunCycle(ctx, automation.Options{
				Topic:    genTopic,
				Template: genTemplate,
				Publish:  genPublish,
			})
			if err != nil {
				return fmt.Errorf("cycle %s failed: %w", res.ProcessID, err)
			}
			out, _ := json.MarshalIndent(res, "", "  ")
			fmt.Println(string(out))
			return nil
		},
	}
	generate.Flags().StringVar(&genTopic, "topic", "", "write about this topic instead of selecting one")
	generate.Flags().StringVar(&genTemplate, "template", "", "force a template id")
	generate.Flags().BoolVar(&genPublish, "publish", false, "publish immediately regardless of publish_mode")

	fetchTrends := &cobra.Command{
		Use:   "fetch-trends",
		Short: "Fetch trending topics and store the new ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(configPath)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			orch, st, err := buildOrchestrator(ctx, cfg)
			if err != nil {
				return err
			}
			defer st.DB.Close()
			n, err := orch.FetchTrends(ctx)
			if err != nil {
				return err
			}
			fmt.Printf("stored %d new topics\n", n)
			return nil
		},
	}

	var serpKey, geminiKey string
	setupKeys := &cobra.Command{
		Use:   "setup-keys",
		Short: "Write provider API keys into the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return fmt.Errorf("--config pointing at the config file is required")
			}
			if serpKey == "" && geminiKey == "" {
				return fmt.Errorf("nothing to do: pass --serpapi-key and/or --gemini-key")
			}
			v := viper.New()
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading config: %w", err)
			}
			if serpKey != "" {
				v.Set("serpapi.api_key", serpKey)
			}
			if geminiKey != "" {
				v.Set("gemini.api_key", geminiKey)
			}
			if err := v.WriteConfig(); err != nil {
				return fmt.Errorf("writing config: %w", err)
			}
			fmt.Println("keys saved")
			return nil
		},
	}
	setupKeys.Flags().StringVar(&serpKey, "serpapi-key", "", "SerpAPI key")
	setupKeys.Flags().StringVar(&geminiKey, "gemini-key", "", "Gemini key")

	diagnose := &cobra.Command{
		Use:   "diagnose",
		Short: "Check config, database, Redis and provider reachability",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDiagnose(cmd.Context(), configPath)
		},
	}

	root.AddCommand(serve, migrateCmd, generate, fetchTrends, setupKeys, diagnose)
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// buildOrchestrator assembles the pipeline for one-shot commands.
func buildOrchestrator(ctx context.Context, cfg *config.Config) (*automation.Orchestrator, *store.Store, error) {
	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	cat, err := catalog.Load(cfg.Templates.CatalogPath, cfg.Templates.Dir)
	if err != nil {
		st.DB.Close()
		return nil, nil, fmt.Errorf("loading template catalog: %w", err)
	}
	logger := log.New(log.Writer(), "", log.LstdFlags)
	orch := automation.New(
		cfg.Automation,
		st,
		serpapi.New(cfg.SerpAPI),
		gemini.New(cfg.Gemini),
		cat,
		enrich.New(logger),
		logger,
	)
	return orch, st, nil
}

// runDiagnose prints a reachability report for each dependency. Failures
// are reported but the command only errors when config cannot load at all.
func runDiagnose(ctx context.Context, configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Printf("config          FAIL  %v\n", err)
		return err
	}
	fmt.Println("config          OK")

	check := func(name string, err error) {
		if err != nil {
			fmt.Printf("%-15s FAIL  %v\n", name, err)
		} else {
			fmt.Printf("%-15s OK\n", name)
		}
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	st, err := store.NewWithDSN(ctx, cfg.Storage.Postgres.DSN())
	check("postgres", err)
	if err == nil {
		st.DB.Close()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Storage.Redis.Addr(),
		Password: cfg.Storage.Redis.Password,
		DB:       cfg.Storage.Redis.DB,
	})
	check("redis", rdb.Ping(ctx).Err())
	_ = rdb.Close()

	_, err = catalog.Load(cfg.Templates.CatalogPath, cfg.Templates.Dir)
	check("templates", err)

	if cfg.SerpAPI.APIKey == "" {
		check("serpapi", fmt.Errorf("api key not configured"))
	} else {
		_, err = serpapi.New(cfg.SerpAPI).TrendingNow(ctx)
		check("serpapi", err)
	}

	if cfg.Gemini.APIKey == "" {
		check("gemini", fmt.Errorf("api key not configured"))
	} else {
		_, err = gemini.New(cfg.Gemini).Chat(ctx, nil, "Reply with the single word: ok")
		check("gemini", err)
	}
	return nil
}
