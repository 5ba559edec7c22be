package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"time"

	grpcmiddleware "github.com/grpc-ecosystem/go-grpc-middleware"
	grpcrecovery "github.com/grpc-ecosystem/go-grpc-middleware/recovery"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/emrgen/docvault/internal/config"
	"github.com/emrgen/docvault/internal/jobs"
)

// Server represents the server
type Server struct {
	cfg *config.Config
}

// NewServer creates a new server
func NewServer(cfg *config.Config) *Server {
	return &Server{cfg: cfg}
}

// Start starts the server and blocks until it is told to stop
func (s *Server) Start() {
	if err := Start(s.cfg); err != nil {
		logrus.Fatalf("error starting server: %v", err)
	}
}

// NewHTTPHandler builds the full http handler for app.
func NewHTTPHandler(app *App, cfg *config.Config, limiter *RateLimiter) (http.Handler, error) {
	auth, err := NewAuthenticator(cfg.Auth)
	if err != nil {
		return nil, err
	}

	handler := NewHandler(app.Docs, app.Blobs, app.Converter, cfg.Convert.MaxUpload)
	return NewRouter(handler, RouterOptions{
		Auth:        auth,
		Limiter:     limiter,
		CORSOrigins: cfg.Server.CORSOrigins,
		Health: func(ctx context.Context) error {
			sqlDB, err := app.DB.DB()
			if err != nil {
				return err
			}
			return sqlDB.PingContext(ctx)
		},
	}), nil
}

// Start starts the grpc health and http servers
func Start(cfg *config.Config) error {
	config.SetupLogging(cfg.Log)

	grpcPort := ":" + cfg.Server.GRPCPort
	httpPort := ":" + cfg.Server.HTTPPort

	app, err := Build(context.Background(), cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := app.Close(); err != nil {
			logrus.Errorf("error closing backends: %v", err)
		}
	}()

	limiter := NewRateLimiter(cfg.Server.RateLimit, cfg.Server.RateBurst)
	apiHandler, err := NewHTTPHandler(app, cfg, limiter)
	if err != nil {
		return err
	}

	executor := jobs.NewTaskExecutor(
		jobs.NewArtifactJanitor(cfg.Jobs.JanitorSchedule, app.Store, app.Blobs),
		jobs.NewLatestRepair(cfg.Jobs.RepairSchedule, app.Docs.Chain()),
		limiter,
	)
	if err := executor.Run(); err != nil {
		return fmt.Errorf("start jobs: %w", err)
	}
	defer executor.Stop()

	gl, err := net.Listen("tcp", grpcPort)
	if err != nil {
		return err
	}

	rl, err := net.Listen("tcp", httpPort)
	if err != nil {
		return err
	}

	grpcServer := grpc.NewServer(
		grpc.UnaryInterceptor(grpcmiddleware.ChainUnaryServer(
			grpcrecovery.UnaryServerInterceptor(),
			// log the request time
			UnaryGrpcRequestTimeInterceptor(),
		)),
	)
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)

	restServer := &http.Server{
		Addr:              httpPort,
		Handler:           http.TimeoutHandler(apiHandler, cfg.Server.RequestTimeout, "request timed out"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// make sure to wait for the servers to stop before exiting
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting http server on: ", httpPort)
		logrus.Info("click on the following link to view the API documentation: http://localhost", httpPort, "/v1/docs/")
		if err := restServer.Serve(rl); err != nil {
			if !errors.Is(err, http.ErrServerClosed) {
				logrus.Errorf("error starting http server: %v", err)
			}
		}
		logrus.Infof("http server stopped")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		logrus.Info("starting grpc server on: ", grpcPort)
		if err := grpcServer.Serve(gl); err != nil {
			logrus.Infof("grpc failed to start: %v", err)
		}
		logrus.Infof("grpc server stopped")
	}()

	logrus.Infof("Press Ctrl+C to stop the server")

	// listen for interrupt signal to gracefully shut down the server
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, unix.SIGTERM, unix.SIGINT)
	<-sigs
	// clean Ctrl+C output
	fmt.Println()

	healthServer.Shutdown()
	grpcServer.GracefulStop()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := restServer.Shutdown(ctx); err != nil {
		logrus.Errorf("error stopping http server: %v", err)
	}

	wg.Wait()

	return nil
}
