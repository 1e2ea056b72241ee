package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/harvey-licitacoes/harvey/internal/ingest"
	"github.com/harvey-licitacoes/harvey/internal/server"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the Harvey HTTP API and generative-text proxy",
	Long: `Start the Harvey server which includes:

1. JSON/HTTP API for cases, analysis, reports, chat and configuration
2. POST /api/gerar-documento-ia and POST /api/chat backed by the configured provider
3. Optional static dashboard files served at /
4. Optional upload directory watcher that analyses new editais

The generative provider API key is required (HARVEY_GENAI_API_KEY or
genai.api_key); serve exits immediately without it.

Examples:
  # Start on the default address
  HARVEY_GENAI_API_KEY=sk-... harvey serve

  # Serve a built dashboard and watch an uploads folder
  harvey serve --static ./public --watch-uploads --uploads-dir ./data/uploads`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("bind", "127.0.0.1:3000", "Bind address for the HTTP server")
	serveCmd.Flags().String("token", "", "Bearer token required on /api/ routes (optional)")
	serveCmd.Flags().Int("rps", 10, "Max API requests per second (0 disables limiting)")
	serveCmd.Flags().Int("burst", 20, "Burst size for the API rate limiter")
	serveCmd.Flags().String("static", "", "Directory of static dashboard files served at /")
	serveCmd.Flags().String("provider", "openai", "Generative provider: openai, anthropic or openrouter")
	serveCmd.Flags().String("model", "", "Provider model (provider default when empty)")
	serveCmd.Flags().Bool("watch-uploads", false, "Watch the uploads directory and analyse new files")
	serveCmd.Flags().String("uploads-dir", "data/uploads", "Directory watched for uploaded editais")
	serveCmd.Flags().String("analysis-backend", "simulated", "Edital analysis backend: simulated or llm")

	viper.BindPFlag("server.bind", serveCmd.Flags().Lookup("bind"))
	viper.BindPFlag("server.token", serveCmd.Flags().Lookup("token"))
	viper.BindPFlag("server.rps", serveCmd.Flags().Lookup("rps"))
	viper.BindPFlag("server.burst", serveCmd.Flags().Lookup("burst"))
	viper.BindPFlag("server.static_dir", serveCmd.Flags().Lookup("static"))
	viper.BindPFlag("genai.provider", serveCmd.Flags().Lookup("provider"))
	viper.BindPFlag("genai.model", serveCmd.Flags().Lookup("model"))
	viper.BindPFlag("uploads.enabled", serveCmd.Flags().Lookup("watch-uploads"))
	viper.BindPFlag("uploads.dir", serveCmd.Flags().Lookup("uploads-dir"))
	viper.BindPFlag("analysis.backend", serveCmd.Flags().Lookup("analysis-backend"))
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	config := GetConfig()
	logger := log.New(os.Stderr, "[serve] ", log.LstdFlags)

	if strings.TrimSpace(config.GenAI.APIKey) == "" {
		return errMissingAPIKey
	}

	logger.Println("Starting Harvey server")
	gen, err := buildGenerator(config, logger)
	if err != nil {
		return err
	}

	rt, err := openServices(ctx, config, logger, servicesOptions{Generator: gen})
	if err != nil {
		return err
	}
	defer rt.Close()

	svcCtx, svcCancel := context.WithCancel(ctx)
	defer svcCancel()

	go func() {
		if err := rt.bus.Run(svcCtx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Printf("bus stopped: %v", err)
		}
	}()

	srv, err := server.New(rt.app, server.Options{
		Bind:          config.Server.Bind,
		Token:         config.Server.Token,
		RPS:           config.Server.RPS,
		Burst:         config.Server.Burst,
		StaticDir:     config.Server.StaticDir,
		OpenAIBaseURL: config.Chat.OpenAIBaseURL,
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	if err := srv.Start(svcCtx); err != nil {
		return err
	}

	if config.Uploads.Enabled {
		watcher, err := ingest.NewUploadWatcher(rt.app, ingest.UploadOptions{
			Dir:          resolvePathRelativeToBase(getWorkingDir(), config.Uploads.Dir),
			Watch:        true,
			Patterns:     config.Uploads.Patterns,
			ScanExisting: config.Uploads.ScanExisting,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize upload watcher: %w", err)
		}
		go func() {
			if err := watcher.Run(svcCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Printf("upload watcher error: %v", err)
			}
		}()
	}

	<-ctx.Done()
	logger.Println("Shutting down")
	return nil
}
