package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"boxpeer/pkg/app"
	"boxpeer/pkg/config"
	"boxpeer/pkg/peer"
	"boxpeer/pkg/reconcile"
	"boxpeer/pkg/registry"
	"boxpeer/pkg/server"

	"github.com/spf13/viper"
	"google.golang.org/grpc/reflection"
)

func main() {
	// 1. Load Config
	cfgFile := flag.String("config", "", "config file (default is $HOME/.boxpeer/config.yaml)")
	flag.Parse()

	if err := config.Load(*cfgFile); err != nil {
		log.Fatalf("❌ Config error: %v", err)
	}
	app.SetupLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 2. Init Core Application
	application, err := app.NewApp(ctx)
	if err != nil {
		log.Fatalf("❌ Failed to initialize app: %v", err)
	}
	defer application.Close()
	fmt.Printf("✅ BoxPeer node initialized (account %s, role %s).\n", application.Account, application.Role)

	// 3. Setup Network
	addr := viper.GetString("peer.listen")
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("❌ Failed to listen on %s: %v", addr, err)
	}

	// 4. Setup gRPC Server
	grpcServer := server.NewGRPCServer()

	// Register Services
	peer.RegisterPinServiceServer(grpcServer, peer.NewServer(application.Store))
	if application.Ledger != nil {
		registry.RegisterLedgerServer(grpcServer, registry.NewGatewayServer(application.Ledger))
		fmt.Println("📒 Serving the in-process ledger as a gateway.")
	}

	// Enable Reflection for debugging tools (grpcurl)
	reflection.Register(grpcServer)

	// 5. Start Server (Async)
	serveErr := make(chan error, 1)
	go func() {
		fmt.Printf("🚀 gRPC Server listening on %s...\n", addr)
		serveErr <- grpcServer.Serve(lis)
	}()

	// 6. 提供者节点持续刷新可用性
	if application.Role.CanProvide() {
		interval := viper.GetDuration("reconcile.interval")
		go func() {
			err := application.Reconciler.Watch(ctx, interval, reconcile.RegistrySource(application.Registry), func(s reconcile.Snapshot) {
				slog.Info("availability refreshed",
					"pass", s.Pass,
					"resident", len(s.Resident),
					"remote_only", len(s.RemoteOnly),
					"failed", len(s.Failed))
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("availability watch stopped", "error", err)
			}
		}()
	}

	// 7. Graceful Shutdown
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			fmt.Fprintf(os.Stderr, "❌ Failed to serve: %v\n", err)
		}
	}

	fmt.Println("\n⚠️  Shutting down server...")
	grpcServer.GracefulStop()
	fmt.Println("👋 Server stopped.")
}
