package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/loomworks/docsync/internal/config"
	"github.com/loomworks/docsync/internal/docsync"
	"github.com/loomworks/docsync/internal/document"
	"github.com/loomworks/docsync/internal/durable"
	"github.com/loomworks/docsync/internal/localbuf"
	"github.com/loomworks/docsync/internal/transport"
)

func main() {
	configPath := flag.String("config", strings.TrimSpace(os.Getenv("DOCSYNC_CONFIG")), "path to YAML config file")
	once := flag.Bool("once", false, "bootstrap, run one reconcile cycle and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}
	logger := buildLogger(cfg.LogLevel)
	slog.SetDefault(logger)

	if err := run(cfg, *once, logger); err != nil {
		logger.Error("agent failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, once bool, logger *slog.Logger) error {
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	doc := document.NewShared()

	store, err := buildStore(cfg)
	if err != nil {
		return fmt.Errorf("initialize section store: %w", err)
	}
	defer func() {
		if closeErr := durable.CloseStore(store); closeErr != nil {
			logger.Warn("failed to close section store", "error", closeErr)
		}
	}()

	tr, err := buildTransport(cfg, doc, logger)
	if err != nil {
		return fmt.Errorf("initialize realtime transport: %w", err)
	}

	session := docsync.NewSession(docsync.SessionOptions{
		DocumentID:        cfg.Document.ID,
		SectionID:         cfg.Document.SectionID,
		Document:          doc,
		Transport:         tr,
		Store:             store,
		ReconcileInterval: cfg.Reconcile.Interval,
		ReconnectBase:     cfg.Reconnect.BaseDelay,
		ReconnectMax:      cfg.Reconnect.MaxDelay,
		JitterRatio:       cfg.Reconcile.JitterRatio,
		Persist:           cfg.Durable.Persist,
		Logger:            logger,
	})

	var draft *localbuf.Buffer
	if cfg.Draft.Dir != "" {
		draft, err = localbuf.NewBuffer(localbuf.Options{
			Dir:       cfg.Draft.Dir,
			SectionID: cfg.Document.SectionID,
			Document:  doc,
			Logger:    logger,
		})
		if err != nil {
			return fmt.Errorf("initialize draft buffer: %w", err)
		}
	}

	session.Start(rootCtx)
	defer session.Stop()

	if draft != nil {
		if err := draft.Start(rootCtx); err != nil {
			return fmt.Errorf("start draft buffer: %w", err)
		}
		defer draft.Stop()
	}

	if once {
		ctx, cancel := context.WithTimeout(rootCtx, 30*time.Second)
		defer cancel()
		return session.ReconcileNow(ctx)
	}

	<-rootCtx.Done()
	logger.Info("agent stopping", "reason", rootCtx.Err())

	// Final flush so the last edits survive the shutdown: one reconcile
	// against the durable store, and the draft file as the local fallback.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := session.ReconcileNow(ctx); err != nil {
		logger.Warn("final reconcile failed", "error", err)
	}
	if draft != nil {
		if err := draft.Flush(); err != nil {
			logger.Warn("final draft flush failed", "error", err)
		}
	}
	return nil
}

// buildStore resolves the durable backend. HTTP DSNs get the realtime token
// attached so one credential covers both surfaces of docsyncd.
func buildStore(cfg *config.Config) (durable.SectionStore, error) {
	dsn := strings.TrimSpace(cfg.Durable.DSN)
	parsed, err := url.Parse(dsn)
	if err == nil && (parsed.Scheme == "http" || parsed.Scheme == "https") {
		return durable.NewHTTPSectionStore(dsn, cfg.Realtime.Token, nil), nil
	}
	return durable.BuildSectionStoreFromDSN(dsn)
}

func buildTransport(cfg *config.Config, doc *document.Shared, logger *slog.Logger) (transport.Realtime, error) {
	rawURL := strings.TrimSpace(cfg.Realtime.URL)
	if rawURL == "" {
		return transport.NewNoop(), nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid realtime url: %w", err)
	}
	switch strings.ToLower(parsed.Scheme) {
	case "ws", "wss":
		return transport.NewWebsocket(transport.WebsocketOptions{
			URL:      rawURL,
			Token:    cfg.Realtime.Token,
			Document: doc,
			Logger:   logger,
		})
	case "nats":
		return transport.NewNATS(transport.NATSOptions{
			URL:       rawURL,
			SectionID: cfg.Document.SectionID,
			Document:  doc,
			Logger:    logger,
		})
	default:
		return nil, fmt.Errorf("unsupported realtime scheme: %s", parsed.Scheme)
	}
}

func buildLogger(level string) *slog.Logger {
	var slogLevel slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		slogLevel = slog.LevelDebug
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		slogLevel = slog.LevelInfo
	}
	return slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel}))
}
