package main

import (
	"context"
	"errors"
	"flag"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/natefinch/lumberjack.v2"

	"sc2tap.ai/internal/catalog"
	"sc2tap.ai/internal/config"
	"sc2tap.ai/internal/entities"
	"sc2tap.ai/internal/persistence/indexdb"
	"sc2tap.ai/internal/persistence/objstore"
	"sc2tap.ai/internal/relay"
	"sc2tap.ai/internal/transport/viewer"
)

func main() {
	// .env only seeds SC2TAP_* defaults; a missing file is fine.
	_ = godotenv.Load(".env")

	var (
		configPath = flag.String("config", "./config.yaml", "path to config.yaml (missing file: defaults)")
		listen     = flag.String("listen", "", "bot-facing listen address (overrides config)")
		upstream   = flag.String("upstream", "", "engine websocket url (overrides config)")
		viewerAddr = flag.String("viewer", "", "viewer http address, \"off\" to disable (overrides config)")
		dataDir    = flag.String("data", "", "runtime data directory (overrides config)")
		record     = flag.Bool("record", false, "record raw frames of every session")
		indexDB    = flag.Bool("index_db", false, "index sessions and units in sqlite")
		logFile    = flag.String("log_file", "", "also write logs to this size-rotated file")
		once       = flag.Bool("once", false, "exit after the first session")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Fatalf("load config: %v", err)
		}
	}
	cfg.ApplyEnv(os.Getenv)
	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "listen":
			cfg.ListenAddr = strings.TrimSpace(*listen)
		case "upstream":
			cfg.UpstreamURL = strings.TrimSpace(*upstream)
		case "viewer":
			cfg.ViewerAddr = strings.TrimSpace(*viewerAddr)
		case "data":
			cfg.DataDir = strings.TrimSpace(*dataDir)
		case "record":
			cfg.Record = *record
		case "index_db":
			cfg.IndexDB = *indexDB
		case "log_file":
			cfg.Log.File = strings.TrimSpace(*logFile)
		}
	})
	if strings.EqualFold(cfg.ViewerAddr, "off") {
		cfg.ViewerAddr = ""
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config: %v", err)
	}

	var out io.Writer = os.Stdout
	if cfg.Log.File != "" {
		out = io.MultiWriter(os.Stdout, &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		})
	}
	logger := log.New(out, "[sc2tap] ", log.LstdFlags|log.Lmicroseconds)

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.Fatalf("load catalog: %v", err)
		}
		logger.Printf("catalog not found (%s); unit names fall back to ids", cfg.CatalogPath)
		cat = catalog.Empty()
	}

	var idx *indexdb.SQLiteIndex
	if cfg.IndexDB {
		idx, err = indexdb.OpenSQLite(filepath.Join(cfg.DataDir, "index", "sessions.sqlite"))
		if err != nil {
			logger.Fatalf("open index: %v", err)
		}
		defer idx.Close()
		if err := idx.UpsertCatalog("data.json", cat); err != nil {
			logger.Printf("index catalog: %v", err)
		}
	}

	uploader, err := buildUploader(cfg, logger)
	if err != nil {
		logger.Fatalf("upload: %v", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	reg := entities.NewRegistry(cfg.TileSize, cfg.MapSize[0], cfg.MapSize[1])
	vs := viewer.NewServer(reg, cat, logger)
	rt := &app{
		cfg:    cfg,
		log:    logger,
		cat:    cat,
		reg:    reg,
		viewer: vs,
		index:  idx,
		upload: uploader,
	}

	if cfg.ViewerAddr != "" {
		mux := http.NewServeMux()
		mux.HandleFunc("/healthz", healthz)
		mux.HandleFunc("/metrics", rt.metricsHandler())
		mux.Handle("/viewer/", vs.Handler())

		srv := &http.Server{
			Addr:              cfg.ViewerAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			<-ctx.Done()
			ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel2()
			_ = srv.Shutdown(ctx2)
		}()
		go func() {
			logger.Printf("viewer listening on %s", cfg.ViewerAddr)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Printf("viewer ListenAndServe: %v", err)
			}
		}()
	}

	exitCode := 0
sessions:
	for ctx.Err() == nil {
		err := rt.runSession(ctx)
		switch {
		case err == nil, errors.Is(err, context.Canceled):
		case errors.Is(err, relay.ErrUpstreamUnavailable):
			logger.Printf("giving up: %v", err)
			exitCode = 1
			break sessions
		default:
			logger.Printf("session ended: %v", err)
		}
		if *once {
			break
		}
	}

	logger.Printf("shutting down")
	cancel()
	uploader.Close()
	if idx != nil {
		_ = idx.Close()
	}
	if exitCode != 0 {
		os.Exit(exitCode)
	}
}

// app holds the process-wide parts that outlive a single relay session.
type app struct {
	cfg    config.Config
	log    *log.Logger
	cat    *catalog.Catalog
	reg    *entities.Registry
	viewer *viewer.Server
	index  *indexdb.SQLiteIndex
	upload *objstore.Uploader

	sessions atomic.Uint64
	current  atomic.Pointer[session]
}

// buildUploader returns nil when uploads are not configured. Uploads need
// recordings, so a configured endpoint without recording is an error.
func buildUploader(cfg config.Config, logger *log.Logger) (*objstore.Uploader, error) {
	up := cfg.Upload
	if up.Endpoint == "" {
		return nil, nil
	}
	if !cfg.Record {
		return nil, errors.New("upload.endpoint is set but recording is off")
	}
	client, err := objstore.NewClient(up.Endpoint, up.Bucket, up.Region, objstore.Credentials{
		AccessKeyID:     up.AccessKeyID,
		SecretAccessKey: up.SecretAccessKey,
	})
	if err != nil {
		return nil, err
	}
	logger.Printf("uploading recordings to %s/%s", up.Endpoint, up.Bucket)
	return objstore.NewUploader(client, objstore.UploaderConfig{Prefix: up.Prefix, Workers: up.Workers}, logger), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}
