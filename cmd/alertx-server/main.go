package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/alertx/alertx/internal/config"
	"github.com/alertx/alertx/internal/gemini"
	"github.com/alertx/alertx/internal/logging"
	"github.com/alertx/alertx/internal/overpass"
	"github.com/alertx/alertx/internal/server"
	"github.com/alertx/alertx/internal/telephony"
)

// CLI flags
var (
	portFlag  int
	modelFlag string
)

var rootCmd = &cobra.Command{
	Use:   "alertx-server",
	Short: "Disaster response analysis server",
	Long: `AlertX Server accepts an uploaded incident video plus optional text,
runs a pipeline of analysis agents (video analysis, location estimation
with nearby emergency facilities, incident report synthesis), places a
summarizing phone call, and streams progress events back to the client.

Examples:
  alertx-server
  alertx-server --port 9090
  alertx-server --model gemini-2.5-pro`,
	Run: runMain,
}

func init() {
	rootCmd.Flags().IntVar(&portFlag, "port", 0, "Port to listen on (overrides config)")
	rootCmd.Flags().StringVarP(&modelFlag, "model", "m", "", "Gemini model to use (overrides config)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func runMain(cmd *cobra.Command, args []string) {
	logging.Init()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	if portFlag != 0 {
		cfg.ListenPort = portFlag
	}
	if modelFlag != "" {
		cfg.Model = modelFlag
	}

	ctx := context.Background()

	gen, err := gemini.NewClient(ctx, cfg.GeminiAPIKey, cfg.Model)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create Gemini client")
	}
	if err := gemini.ValidateKey(ctx, gen); err != nil {
		log.Fatal().Err(err).Msg("Invalid API key")
	}

	finder := overpass.NewClient(cfg.OverpassURL, cfg.OverpassTimeout)

	var placer telephony.CallPlacer
	if cfg.Twilio.Enabled() {
		placer = telephony.NewTwilioPlacer(cfg.Twilio.AccountSID, cfg.Twilio.AuthToken, cfg.Twilio.From)
		log.Info().Msg("Twilio call placement configured")
	} else {
		log.Warn().Msg("Twilio credentials not set, call placement disabled")
	}

	ctrl := server.NewController(gen, finder, placer, cfg.Twilio.To)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.ListenPort),
		Handler: server.New(ctrl, cfg.AllowedOrigins).Routes(),
		// No WriteTimeout: the analyze response is a long-lived event
		// stream that stays open for the whole pipeline run.
		ReadTimeout: 60 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		log.Info().Msg("Shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	log.Info().Int("port", cfg.ListenPort).Str("model", cfg.Model).Msg("Starting alertx server")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}
}
