package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/codeframe-dev/codeframe/internal/app"
	"github.com/codeframe-dev/codeframe/internal/types"
)

func main() {
	port := flag.Int("port", 3000, "HTTP server port")
	dbPath := flag.String("db", "data/codeframe.db", "SQLite database path")
	workspacesRoot := flag.String("workspaces", "data/workspaces", "parent directory of per-project workspace checkouts")
	llmBaseURL := flag.String("llm-url", "", "LLM API base URL (empty uses a fake in-process client)")
	llmAPIKey := flag.String("llm-key", os.Getenv("CODEFRAME_LLM_API_KEY"), "LLM API key")
	llmModel := flag.String("llm-model", "gpt-4o-mini", "model name, used for token counting and worker/review prompts")
	notifyWebhook := flag.String("notify-webhook", os.Getenv("CODEFRAME_NOTIFY_WEBHOOK"), "webhook URL for blocker notifications")
	notifySMTPHost := flag.String("notify-smtp-host", os.Getenv("CODEFRAME_SMTP_HOST"), "SMTP host for blocker email notifications")
	notifySMTPPort := flag.Int("notify-smtp-port", 587, "SMTP port")
	notifySMTPUser := flag.String("notify-smtp-user", os.Getenv("CODEFRAME_SMTP_USER"), "SMTP username")
	notifySMTPPass := flag.String("notify-smtp-pass", os.Getenv("CODEFRAME_SMTP_PASS"), "SMTP password")
	notifyFrom := flag.String("notify-email-from", os.Getenv("CODEFRAME_NOTIFY_FROM"), "From address for blocker email notifications")
	notifyTo := flag.String("notify-email-to", os.Getenv("CODEFRAME_NOTIFY_TO"), "comma-separated recipient addresses for blocker email notifications")
	dispatchInterval := flag.Duration("dispatch-interval", 10*time.Second, "interval between Lead.Tick dispatch sweeps")
	flag.Parse()

	var notifyTos []string
	if *notifyTo != "" {
		notifyTos = strings.Split(*notifyTo, ",")
	}

	logger := log.New(os.Stdout, "", log.LstdFlags)

	if err := os.MkdirAll(*workspacesRoot, 0o755); err != nil {
		logger.Fatalf("failed to create workspaces root: %v", err)
	}

	a, err := app.New(app.Options{
		DBPath:         *dbPath,
		WorkspacesRoot: *workspacesRoot,
		LLMBaseURL:     *llmBaseURL,
		LLMAPIKey:      *llmAPIKey,
		LLMModel:       *llmModel,
		NotifyWebhook: types.NotifyWebhookConfig{
			Enabled: *notifyWebhook != "",
			URL:     *notifyWebhook,
		},
		NotifyEmail: types.NotifyEmailConfig{
			Enabled:  *notifySMTPHost != "",
			SMTPHost: *notifySMTPHost,
			SMTPPort: *notifySMTPPort,
			Username: *notifySMTPUser,
			Password: *notifySMTPPass,
			From:     *notifyFrom,
			To:       notifyTos,
		},
		Logger: logger,
	})
	if err != nil {
		logger.Fatalf("failed to build app: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			logger.Printf("error during shutdown: %v", err)
		}
	}()

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", *port),
		Handler:      a.Router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	dispatchCtx, cancelDispatch := context.WithCancel(context.Background())
	go a.DispatchLoop(dispatchCtx, *dispatchInterval)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpServer.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	logger.Printf("codeframe listening on :%d (db=%s workspaces=%s)", *port, *dbPath, *workspacesRoot)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			logger.Printf("server error: %v", err)
		}
	case sig := <-shutdown:
		logger.Printf("received %s, shutting down", sig)
	}

	cancelDispatch()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Printf("error during HTTP shutdown: %v", err)
	}
}
