package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joshband/copy-that-sub005/internal/config"
	"github.com/joshband/copy-that-sub005/internal/engine"
	"github.com/joshband/copy-that-sub005/internal/extraction"
	"github.com/joshband/copy-that-sub005/internal/extraction/pixels"
	"github.com/joshband/copy-that-sub005/internal/extraction/visionai"
	"github.com/joshband/copy-that-sub005/internal/observability"
	"github.com/joshband/copy-that-sub005/internal/platform/envutil"
	"github.com/joshband/copy-that-sub005/internal/platform/logger"
)

// tokengraph extracts design tokens from an artifact image and writes the
// graph as a DTCG-style JSON document.
//
//	tokengraph <artifact.png> [out.json]
func main() {
	log, err := logger.New(envutil.Str("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if len(os.Args) < 2 {
		fmt.Fprintln(os.Stderr, "usage: tokengraph <artifact> [out.json]")
		os.Exit(2)
	}
	artifactPath := os.Args[1]

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if shutdown := observability.Init(ctx, log, observability.Config{
		ServiceName: "tokengraph",
		Environment: envutil.Str("APP_ENV", "development"),
	}); shutdown != nil {
		defer shutdown(context.Background())
	}

	// Extractors
	log.Info("Setting up extractors...")
	registry := extraction.NewRegistry()
	mustRegister(log, registry, pixels.NewColorHistogram(log))
	mustRegister(log, registry, pixels.NewDimensionScan(log))
	if visionai.Configured() {
		ve, err := visionai.New(log)
		if err != nil {
			log.Warn("Vision extractor unavailable", "error", err)
		} else {
			defer ve.Close()
			mustRegister(log, registry, ve)
		}
	}

	// Config
	cfg, err := config.Load(envutil.Str("TOKENGRAPH_CONFIG", ""), registry.Categories())
	if err != nil {
		log.Error("Config rejected", "error", err)
		os.Exit(1)
	}

	eng := engine.New(cfg, log, registry)

	artifact, err := os.ReadFile(artifactPath)
	if err != nil {
		log.Error("Could not read artifact", "path", artifactPath, "error", err)
		os.Exit(1)
	}

	report, err := eng.Run(ctx, extraction.Input{
		Name:     artifactPath,
		MIME:     mimeFromPath(artifactPath),
		Artifact: artifact,
	}, nil)
	if err != nil {
		log.Error("Extraction run failed", "error", err)
		os.Exit(1)
	}
	for cat, cr := range report.Categories {
		log.Info("Category done",
			"category", string(cat),
			"candidates", cr.Candidates,
			"tokens", cr.Tokens,
			"committed", cr.Committed,
			"extractor_errors", len(cr.ExtractorErrors),
		)
	}

	out, err := eng.Export()
	if err != nil {
		log.Error("Export failed", "error", err)
		os.Exit(1)
	}
	if len(os.Args) > 2 {
		if err := os.WriteFile(os.Args[2], out, 0o644); err != nil {
			log.Error("Could not write output", "path", os.Args[2], "error", err)
			os.Exit(1)
		}
		log.Info("Graph written", "path", os.Args[2], "bytes", len(out))
		return
	}
	fmt.Println(string(out))
}

func mustRegister(log *logger.Logger, r *extraction.Registry, e extraction.Extractor) {
	if err := r.Register(e); err != nil {
		log.Error("Extractor registration failed", "error", err)
		os.Exit(1)
	}
}

func mimeFromPath(p string) string {
	switch strings.ToLower(filepath.Ext(p)) {
	case ".png":
		return "image/png"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".gif":
		return "image/gif"
	default:
		return "application/octet-stream"
	}
}
