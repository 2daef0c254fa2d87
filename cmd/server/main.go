// scanvault
//
// Entry point: wires all components together and manages graceful shutdown.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/afero"
	"google.golang.org/grpc"

	"github.com/mtiwari1/scanvault/internal/blobstore"
	"github.com/mtiwari1/scanvault/internal/config"
	"github.com/mtiwari1/scanvault/internal/grpcserver"
	"github.com/mtiwari1/scanvault/internal/ingest"
	"github.com/mtiwari1/scanvault/internal/lifecycle"
	"github.com/mtiwari1/scanvault/internal/metrics"
	"github.com/mtiwari1/scanvault/internal/query"
	"github.com/mtiwari1/scanvault/internal/repository"
	"github.com/mtiwari1/scanvault/internal/restapi"
	"github.com/mtiwari1/scanvault/internal/scanner"
	"github.com/mtiwari1/scanvault/internal/worker"
	pb "github.com/mtiwari1/scanvault/proto"
)

func main() {
	if err := run(); err != nil {
		slog.Error("scanvault exited", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load(".env")
	if err != nil {
		return err
	}

	// ── Structured logger ──
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)
	logger.Info("starting scanvault",
		slog.String("db_driver", string(cfg.Dialect)),
		slog.String("upload_dir", cfg.UploadDir),
		slog.Int("scan_workers", cfg.ScanWorkers),
	)

	// ── Metadata store ──
	startCtx, startCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer startCancel()

	db, err := repository.Open(startCtx, cfg.Dialect, cfg.DBDSN)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repository.Migrate(startCtx, db, cfg.Dialect); err != nil {
		return err
	}
	logger.Info("database connected")

	repo, err := repository.NewSQLRepo(db)
	if err != nil {
		return err
	}
	defer repo.Close()

	// ── Staged bytes ──
	blobs, err := blobstore.New(afero.NewOsFs(), cfg.UploadDir)
	if err != nil {
		return err
	}

	// ── Scan engine and bounded worker pool ──
	engine := scanner.NewResilient(
		scanner.NewClamScan(cfg.ClamscanBin, cfg.ScanTimeout, scanner.ExecRunner, logger),
		logger,
	)
	pool := worker.NewPool(cfg.ScanWorkers, engine, metrics.ScanObserver{}, logger)
	pool.Start()
	logger.Info("scan pool started", slog.Int("workers", cfg.ScanWorkers))

	// ── Services ──
	queries := query.NewEngine(repo, cfg.ExportLimit)
	files := lifecycle.NewManager(repo, blobs, cfg.ScopeToOwner, logger)
	coordinator := ingest.NewCoordinator(repo, blobs, pool, logger)

	// ── gRPC admin server ──
	grpcSrv := grpc.NewServer()
	pb.RegisterAdminServiceServer(grpcSrv, grpcserver.NewServer(queries, files, logger))

	// Both listeners are bound up front so a busy port fails startup.
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		pool.Shutdown()
		return fmt.Errorf("listen gRPC: %w", err)
	}
	httpLis, err := net.Listen("tcp", cfg.HTTPAddr)
	if err != nil {
		grpcLis.Close()
		pool.Shutdown()
		return fmt.Errorf("listen HTTP: %w", err)
	}

	serveErr := make(chan error, 2)

	go func() {
		logger.Info("gRPC server listening", slog.String("addr", cfg.GRPCAddr))
		if err := grpcSrv.Serve(grpcLis); err != nil {
			serveErr <- fmt.Errorf("gRPC serve: %w", err)
		}
	}()

	// ── REST API ──
	handler := restapi.NewHandler(restapi.Deps{
		Ingest:         coordinator,
		Gate:           ingest.NewGate(cfg.MaxUploadBytes, cfg.DeniedExtensions()),
		Blobs:          blobs,
		Query:          queries,
		Lifecycle:      files,
		DB:             repo,
		Policy:         cfg.Policy,
		IdentityHeader: cfg.IdentityHeader,
		Logger:         logger,
	})

	// No WriteTimeout: an upload response is only written once its scan finishes.
	httpSrv := &http.Server{
		Handler:           handler.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		logger.Info("HTTP server listening", slog.String("addr", cfg.HTTPAddr))
		if err := httpSrv.Serve(httpLis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- fmt.Errorf("HTTP serve: %w", err)
		}
	}()

	// ── Graceful shutdown (SIGINT / SIGTERM, or a server dying) ──
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	runErr := waitForStop(sigCh, serveErr, logger)

	// 1. Stop accepting new HTTP requests and let in-flight uploads finish.
	shutCtx, shutCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutCancel()

	if err := httpSrv.Shutdown(shutCtx); err != nil {
		logger.Error("HTTP shutdown", slog.String("error", err.Error()))
	}
	logger.Info("HTTP server stopped")

	// 2. Stop gRPC server gracefully.
	grpcSrv.GracefulStop()
	logger.Info("gRPC server stopped")

	// 3. Drain the scan pool, or abandon queued scans once the deadline passes.
	drained := make(chan struct{})
	go func() {
		pool.Shutdown()
		close(drained)
	}()
	select {
	case <-drained:
		logger.Info("scan pool drained")
	case <-shutCtx.Done():
		pool.Abort()
		logger.Warn("scan pool abandoned after shutdown timeout")
	}

	logger.Info("scanvault shutdown complete")
	return runErr
}

// waitForStop blocks until a termination signal arrives or a server stops
// serving on its own. Only the latter is reported as an error.
func waitForStop(sigCh <-chan os.Signal, serveErr <-chan error, logger *slog.Logger) error {
	select {
	case sig := <-sigCh:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		return nil
	case err := <-serveErr:
		logger.Error("server stopped unexpectedly", slog.String("error", err.Error()))
		return err
	}
}
