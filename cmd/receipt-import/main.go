package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"

	"github.com/akaufmann/receipt-import/internal/catalog"
	"github.com/akaufmann/receipt-import/internal/extraction"
	"github.com/akaufmann/receipt-import/internal/importer"
	"github.com/akaufmann/receipt-import/internal/parsing"
)

//go:embed VERSION.txt
var versionFile string

var version = strings.TrimSpace(versionFile)

func main() {
	// Check for version flag before parsing other flags
	for _, arg := range os.Args[1:] {
		if arg == "--version" || arg == "-version" || arg == "-v" {
			fmt.Println(version)
			os.Exit(0)
		}
	}

	fs := ff.NewFlagSet("receipt-import")
	var (
		port        = fs.IntLong("port", 8080, "HTTP server port")
		dbPath      = fs.StringLong("db", "catalog.db", "Shop catalog database file path")
		parseFile   = fs.StringLong("parse", "", "Parse a single receipt file, print JSON and exit")
		extractFile = fs.StringLong("extract", "", "Extract text from a single receipt file, print JSON and exit")
		debug       = fs.BoolLong("debug", "Include per-line debug events in --parse output")
		authUser    = fs.StringLong("auth-user", "", "Basic auth username (optional)")
		authPass    = fs.StringLong("auth-pass", "", "Basic auth password (optional)")
		showVersion = fs.BoolLong("version", "Show version information")
	)

	if err := ff.Parse(fs, os.Args[1:],
		ff.WithEnvVarPrefix("RECEIPT_IMPORT"),
	); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", ffhelp.Flags(fs))
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	// Check version flag after parsing
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	extractor := extraction.NewExtractor()

	// One-shot extraction mode
	if *extractFile != "" {
		result := extractor.Extract(*extractFile)
		printJSON(result)
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	slog.Info("Opening catalog database...", "path", *dbPath)
	db, err := catalog.NewBoltDB(*dbPath)
	if err != nil {
		slog.Error("Failed to open catalog database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	service := importer.NewService(extractor, db)

	// One-shot parse mode
	if *parseFile != "" {
		var sink parsing.DebugSink
		var recorder *parsing.RecordingSink
		if *debug {
			recorder = &parsing.RecordingSink{}
			sink = recorder
		}

		result := service.ImportFromFile(*parseFile, sink)
		printJSON(result)
		if recorder != nil {
			printJSON(recorder.Events)
		}
		if !result.Success {
			os.Exit(1)
		}
		return
	}

	basicAuth := importer.BasicAuth{
		Username: *authUser,
		Password: *authPass,
	}
	server := importer.NewServer(service, db, basicAuth)

	// Start server in goroutine
	addr := fmt.Sprintf(":%d", *port)
	go func() {
		if err := server.Start(addr); err != nil {
			slog.Error("Server error", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("Server started", "address", fmt.Sprintf("http://localhost%s", addr))
	slog.Info("Supported shops", "shops", strings.Join(service.SupportedShops(), ", "))
	if *authUser != "" || *authPass != "" {
		slog.Info("Basic auth enabled", "user", *authUser)
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("Shutting down...")
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		slog.Error("Failed to encode output", "error", err)
		os.Exit(1)
	}
	fmt.Println(string(data))
}
