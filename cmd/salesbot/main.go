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

	"github.com/fatih/color"
	"github.com/spf13/pflag"

	"github.com/korberlin/WhatsApp-AI-Sales-Pipeline/config"
)

// Version is set at build time.
var version = "dev"

const banner = `
           _           _           _
 ___  __ _| | ___  ___| |__   ___ | |_
/ __|/ _' | |/ _ \/ __| '_ \ / _ \| __|
\__ \ (_| | |  __/\__ \ |_) | (_) | |_
|___/\__,_|_|\___||___/_.__/ \___/ \__|
`

// shutdownTimeout bounds how long in-flight dispatches may run after a signal.
const shutdownTimeout = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: salesbot <command> [--config PATH]")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the webhook server and the session engine")
		fmt.Println("  check    Load and validate the configuration, then exit")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	flagSet := pflag.NewFlagSet("salesbot", pflag.ContinueOnError)
	configPath := flagSet.StringP("config", "c", "", "path to the YAML config file (default: $SALESBOT_CONFIG or config.yaml)")
	if err := flagSet.Parse(os.Args[2:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx, resolveConfigPath(*configPath))
	case "check":
		err = runCheck(resolveConfigPath(*configPath))
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// resolveConfigPath returns the config file path.
// Priority: --config flag > SALESBOT_CONFIG env var > ./config.yaml
func resolveConfigPath(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	if envPath := os.Getenv("SALESBOT_CONFIG"); envPath != "" {
		return envPath
	}
	return "config.yaml"
}

func runServe(ctx context.Context, configPath string) error {
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	printSummary(configPath, cfg)

	svc, err := build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer svc.close()

	server := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           svc.webhook.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if err := svc.engine.Start(ctx); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("webhook server listening", "addr", cfg.Server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			logger.Error("webhook server failed", "error", err)
		}
	}

	// Stop intake first so no fragment lands after the engine drains
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("webhook server shutdown", "error", err)
	}
	if err := svc.engine.Stop(shutdownCtx); err != nil {
		logger.Warn("engine shutdown", "error", err)
	}

	logger.Info("salesbot stopped")
	return nil
}

func runCheck(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, err := cfg.SystemPrompt(); err != nil {
		return err
	}

	printSummary(configPath, cfg)
	color.New(color.FgGreen).Println("    configuration ok")
	return nil
}

func printSummary(configPath string, cfg *config.Config) {
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	gray := color.New(color.FgHiBlack)

	line := func(label, value string) {
		green.Print("    ▶ ")
		fmt.Printf("%-11s%s\n", label+":", value)
	}

	line("Config", configPath)
	line("HTTP", cfg.Server.Addr)
	line("Model", cfg.Completion.Provider+"/"+cfg.Completion.Model)
	line("CRM", cfg.CRM.Backend)
	line("Dedupe", cfg.Dedupe.Backend)

	green.Print("    ▶ ")
	fmt.Printf("%-11s", "Notify:")
	switch {
	case cfg.Notify.Twilio.Enabled && cfg.Notify.Matrix.Enabled:
		fmt.Print("twilio, matrix")
	case cfg.Notify.Twilio.Enabled:
		fmt.Print("twilio")
	case cfg.Notify.Matrix.Enabled:
		fmt.Print("matrix")
	default:
		gray.Print("off")
	}
	fmt.Println()

	if cfg.Knowledge.Enabled {
		line("Knowledge", cfg.Knowledge.Collection)
	}
	if cfg.WhatsApp.AppSecret == "" {
		yellow.Println("    ! webhook signatures are not verified (whatsapp.app_secret is empty)")
	}
	fmt.Println()
}
