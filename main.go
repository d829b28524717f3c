package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"time"

	"partyline/internal/auth"
	"partyline/internal/chat"
	"partyline/internal/dispatch"
	"partyline/internal/files"
	"partyline/internal/filestore"
	"partyline/internal/httpapi"
	"partyline/internal/media"
	"partyline/internal/preview"
	"partyline/internal/registry"
	"partyline/internal/store"
)

// Version is injected at build time with -ldflags.
var Version = "0.1.0-dev"

func main() {
	chatAddr := flag.String("chat-addr", ":5555", "Chat plane TCP listen address")
	fileAddr := flag.String("file-addr", ":5556", "File plane TCP listen address")
	mediaAddr := flag.String("media-addr", ":5557", "Media plane UDP listen address")
	httpAddr := flag.String("http-addr", ":8080", "HTTP API listen address")
	httpsSelfSigned := flag.Bool("https", false, "Serve the HTTP API over TLS with a generated self-signed certificate")
	dbPath := flag.String("db", "partyline.db", "SQLite database path")
	filesDir := flag.String("files-dir", "", "Uploaded file directory (defaults to <db-dir>/files)")
	mediaIdle := flag.Duration("media-idle-timeout", 0, "Evict media room members idle longer than this (0 disables)")
	metricsInterval := flag.Duration("metrics-interval", 30*time.Second, "Metrics log interval (0 disables)")
	noPreviews := flag.Bool("no-link-previews", false, "Disable link preview fetching for chat messages")
	testBot := flag.Bool("testbot", false, "Run a virtual media room member that sends a periodic beacon")
	debug := flag.Bool("debug", false, "Enable debug logging (auto-enabled for dev builds)")
	flag.Parse()

	// Auto-enable debug logging for dev builds; override with -debug flag.
	level := slog.LevelInfo
	if *debug || strings.Contains(Version, "dev") {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	// Subcommands short-circuit the server: "partyline users" etc.
	if RunCLI(flag.Args(), *dbPath) {
		return
	}

	slog.Info("starting server", "version", Version,
		"chat", *chatAddr, "file", *fileAddr, "media", *mediaAddr, "http", *httpAddr, "db", *dbPath)

	sqliteStore, err := store.Open(*dbPath)
	if err != nil {
		slog.Error("open sqlite store", "err", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := sqliteStore.Close(); closeErr != nil {
			slog.Error("close sqlite store", "err", closeErr)
		}
	}()

	filesRoot := strings.TrimSpace(*filesDir)
	if filesRoot == "" {
		filesRoot = filepath.Join(filepath.Dir(*dbPath), "files")
	}
	fileStore, err := filestore.New(filesRoot, sqliteStore)
	if err != nil {
		slog.Error("initialize file store", "err", err)
		os.Exit(1)
	}

	authService := auth.NewService(sqliteStore)
	reg := registry.New()

	var previews *preview.Fetcher
	if !*noPreviews {
		previews = preview.NewFetcher()
	}
	dispatcher := dispatch.New(dispatch.DefaultHandlers(previews)...)

	chatServer := chat.NewServer(*chatAddr, authService, reg, dispatcher)
	fileServer := files.NewServer(*fileAddr, fileStore)
	relay := media.NewRelay(*mediaAddr, *mediaIdle)
	apiServer := httpapi.New(reg, relay, fileStore)

	// Bind failures are fatal; better to die at startup than to run with a
	// plane missing.
	if err := chatServer.Listen(); err != nil {
		slog.Error("bind chat plane", "err", err)
		os.Exit(1)
	}
	if err := fileServer.Listen(); err != nil {
		slog.Error("bind file plane", "err", err)
		os.Exit(1)
	}
	if err := relay.Listen(); err != nil {
		slog.Error("bind media plane", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt)
	go func() {
		<-sigCh
		slog.Info("received interrupt, shutting down")
		cancel()
	}()

	errCh := make(chan error, 4)
	go func() { errCh <- chatServer.Run(ctx) }()
	go func() { errCh <- fileServer.Run(ctx) }()
	go func() { errCh <- relay.Run(ctx) }()
	go func() {
		if *httpsSelfSigned {
			tlsConf, fingerprint, tlsErr := generateTLSConfig(365 * 24 * time.Hour)
			if tlsErr != nil {
				errCh <- tlsErr
				return
			}
			slog.Info("https api certificate", "sha256", fingerprint)
			errCh <- apiServer.RunTLS(ctx, *httpAddr, tlsConf)
			return
		}
		errCh <- apiServer.Run(ctx, *httpAddr)
	}()

	if *metricsInterval > 0 {
		go runMetrics(ctx, reg, relay, *metricsInterval)
	}
	if *testBot {
		go RunTestBot(ctx, relay.Addr().String(), "beacon")
	}

	failed := false
	for i := 0; i < 4; i++ {
		if err := <-errCh; err != nil {
			slog.Error("service failed", "err", err)
			failed = true
			cancel()
		}
	}
	if failed {
		os.Exit(1)
	}
	slog.Info("server stopped")
}
