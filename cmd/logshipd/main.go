package main

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/pflag"
	"google.golang.org/grpc"

	"svckit/config"
	"svckit/internal/admin"
	"svckit/internal/models"
	"svckit/logger"
)

func main() {
	diag := log.New(os.Stdout, "[LOGSHIPD] ", log.LstdFlags|log.Lshortfile)

	var configDir, listenAddr, grpcAddr string
	flags := pflag.NewFlagSet("logshipd", pflag.ExitOnError)
	flags.StringVar(&configDir, "config", "./config", "directory holding logger.defaults.yml")
	flags.StringVar(&listenAddr, "listen", ":8080", "HTTP listen address for health, log submission, sink admin and /metrics")
	flags.StringVar(&grpcAddr, "grpc-listen", "", "gRPC listen address for relayed batches (disabled when empty)")
	_ = flags.Parse(os.Args[1:])

	diag.Println("Starting log shipping daemon...")

	// 1. Load configuration
	cfg, err := config.LoadConfig(configDir)
	if err != nil {
		diag.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 2. Build the logging pipeline
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	manager, err := logger.New(ctx, cfg.Logger, logger.WithDiagnostics(diag), logger.WithRegisterer(reg))
	if err != nil {
		diag.Fatalf("Failed to initialize logging pipeline: %v", err)
	}
	defer manager.Close()
	manager.Logger("logshipd").Info(ctx, "logging pipeline ready", models.F("shipping", manager.Shipping()))

	var wg sync.WaitGroup

	// 3. HTTP server
	mux := http.NewServeMux()
	admin.NewHandler(manager, cfg.Logger.ServiceName, diag).Register(mux)
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	httpServer := &http.Server{
		Addr:           listenAddr,
		Handler:        mux,
		ReadTimeout:    5 * time.Second,
		WriteTimeout:   10 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		diag.Printf("HTTP server listening on %s", listenAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			diag.Fatalf("HTTP server startup failed: %v", err)
		}
		diag.Println("HTTP server stopped listening.")
	}()

	// 4. [Conditional startup] gRPC relay server
	var grpcServer *grpc.Server
	if grpcAddr != "" {
		lis, err := net.Listen("tcp", grpcAddr)
		if err != nil {
			diag.Fatalf("Unable to listen on gRPC port %s: %v", grpcAddr, err)
		}
		grpcServer = grpc.NewServer()
		admin.NewGRPCServer(manager, diag).Register(grpcServer)
		wg.Add(1)
		go func() {
			defer wg.Done()
			diag.Printf("gRPC server listening on %s", grpcAddr)
			if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
				diag.Fatalf("gRPC server startup failed: %v", err)
			}
			diag.Println("gRPC server stopped listening.")
		}()
	} else {
		diag.Println("--grpc-listen not set, skipping gRPC server startup.")
	}

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	diag.Printf("Received shutdown signal: %s, starting graceful shutdown...", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		diag.Printf("HTTP server shutdown failed: %v", err)
	}
	if grpcServer != nil {
		grpcServer.GracefulStop()
	}
	wg.Wait()

	// Drain pending records before exit
	manager.Close()
	cancel()
	diag.Println("All servers stopped. Log shipping daemon shutdown.")
}
