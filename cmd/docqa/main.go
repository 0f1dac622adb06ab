package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logger"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"docqa/internal/config"
	"docqa/internal/domain"
	"docqa/internal/service"
	"docqa/internal/tui"
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string
	var cfg *config.AppConfig

	rootCmd := &cobra.Command{
		Use:          "docqa",
		Short:        "Index documents and answer questions about them",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, path, err := loadConfig(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfg = loaded
			logger.Init(
				cfg.Log.File,
				cfg.Log.Level,
				cfg.Log.FileCount,
				cfg.Log.FileSize,
				cfg.Log.KeepDays,
				cfg.Log.Console,
			)
			logutil.GetLogger(context.Background()).Debug("config loaded", zap.String("config", path))
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config (default ./config.yaml or ~/.config/docqa/config.yaml)")

	rootCmd.AddCommand(
		newIndexCmd(&cfg),
		newQueryCmd(&cfg),
		newAskCmd(&cfg),
		newServeCmd(&cfg),
		newCollectionsCmd(&cfg),
	)
	return rootCmd
}

func loadConfig(path string) (*config.AppConfig, string, error) {
	if path == "" {
		return config.LoadDefault()
	}
	cfg, err := config.Load(path)
	return cfg, path, err
}

func withApp(cmd *cobra.Command, cfg *config.AppConfig, fn func(ctx context.Context, a *app) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			logutil.GetLogger(ctx).Error("close resources failed", zap.Error(err))
		}
	}()
	return fn(ctx, a)
}

func newIndexCmd(cfg **config.AppConfig) *cobra.Command {
	var urls []string
	cmd := &cobra.Command{
		Use:   "index [file]...",
		Short: "Extract, chunk, embed and store documents",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 && len(urls) == 0 {
				return errors.New("give at least one file or --url")
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfg, func(ctx context.Context, a *app) error {
				var results []service.FileResult
				if len(args) > 0 {
					fileResults, err := a.pipeline.IngestFiles(ctx, args)
					if err != nil {
						return err
					}
					results = fileResults
				}
				for _, u := range urls {
					results = append(results, service.FileResult{Path: u, Result: a.pipeline.IngestURL(ctx, u)})
				}
				return printIndexResults(cmd, results)
			})
		},
	}
	cmd.Flags().StringSliceVar(&urls, "url", nil, "web page to fetch and index (repeatable)")
	return cmd
}

func newQueryCmd(cfg **config.AppConfig) *cobra.Command {
	var topK int
	var threshold float64
	var asJSON bool
	var strategy string
	cmd := &cobra.Command{
		Use:   "query <question>",
		Short: "Answer a single question from the indexed documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := domain.QueryRequest{Query: strings.Join(args, " "), Strategy: strategy}
			if cmd.Flags().Changed("top-k") {
				req.TopK = &topK
			}
			if cmd.Flags().Changed("threshold") {
				req.ScoreThreshold = &threshold
			}
			return withApp(cmd, *cfg, func(ctx context.Context, a *app) error {
				return printQueryResponse(cmd, a.pipeline.Query(ctx, req), asJSON)
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 0, "number of chunks to retrieve (default from config)")
	cmd.Flags().Float64VarP(&threshold, "threshold", "t", 0, "minimum similarity score (default from config)")
	cmd.Flags().StringVar(&strategy, "strategy", "", "only search chunks from this chunking strategy")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the response as JSON")
	return cmd
}

func newAskCmd(cfg **config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "ask [file]...",
		Short: "Interactive question prompt, optionally indexing files first",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfg, func(ctx context.Context, a *app) error {
				summary := fmt.Sprintf("Collection %q", a.pipeline.Collection())
				if len(args) > 0 {
					results, err := a.pipeline.IngestFiles(ctx, args)
					if err != nil {
						return err
					}
					summary = summarize(results)
				}
				timeout := time.Duration((*cfg).Generator.TimeoutSecs)*time.Second + 30*time.Second
				m := tui.New(a.pipeline, summary, timeout)
				_, err := tea.NewProgram(m, tea.WithContext(ctx)).Run()
				return err
			})
		},
	}
}

func newServeCmd(cfg **config.AppConfig) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the upload and query HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			serverCfg := (*cfg).Server
			if cmd.Flags().Changed("port") {
				serverCfg.Port = port
			}
			return withApp(cmd, *cfg, func(ctx context.Context, a *app) error {
				engine, err := newWebEngine(serverCfg, a.pipeline)
				if err != nil {
					return fmt.Errorf("init web engine: %w", err)
				}
				logutil.GetLogger(ctx).Info("http server listening", zap.Int("port", serverCfg.Port))

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				go func() {
					if err := engine.Run(); err != nil && err != http.ErrServerClosed {
						logutil.GetLogger(ctx).Error("server error", zap.Error(err))
						stop()
					}
				}()
				<-ctx.Done()
				logutil.GetLogger(ctx).Info("server stopping...")
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	return cmd
}

func newCollectionsCmd(cfg **config.AppConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "collections",
		Short: "List collections and their point counts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, *cfg, func(ctx context.Context, a *app) error {
				infos, err := a.pipeline.Collections(ctx)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(infos) == 0 {
					fmt.Fprintln(out, "no collections")
					return nil
				}
				for _, info := range infos {
					if info.Points < 0 {
						fmt.Fprintf(out, "%s\t?\n", info.Name)
						continue
					}
					fmt.Fprintf(out, "%s\t%d\n", info.Name, info.Points)
				}
				return nil
			})
		},
	}
}
