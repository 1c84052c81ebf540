package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"golang.org/x/sync/errgroup"

	"gsd.app/relay/common/id"
	"gsd.app/relay/common/logger"
	"gsd.app/relay/common/otel"
	"gsd.app/relay/core/config"
	"gsd.app/relay/core/db"
	"gsd.app/relay/internal/dispatch"
	"gsd.app/relay/internal/http/middleware"
	httprouter "gsd.app/relay/internal/http/router"
	"gsd.app/relay/internal/model"
	"gsd.app/relay/internal/queue"
	"gsd.app/relay/internal/robot"
	"gsd.app/relay/internal/service"
	"gsd.app/relay/internal/solver"
	"gsd.app/relay/internal/status"
	"gsd.app/relay/internal/store"
)

func main() {
	fmt.Printf("%s\n", banner)
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.ErrorContext(ctx, "failed to load config", "error", err)
		os.Exit(1)
	}

	// OTel must init before the logger so the slog bridge has a provider
	telemetry, err := otel.Setup(ctx, cfg)
	if err != nil {
		os.Stderr.WriteString("failed to initialize otel: " + err.Error() + "\n")
		os.Exit(1)
	}

	logger.Setup(cfg)

	if telemetry != nil {
		slog.InfoContext(ctx, "otel initialized", "endpoint", cfg.OTel.Endpoint)
	} else {
		slog.InfoContext(ctx, "otel disabled (no endpoint configured)")
	}

	slog.InfoContext(ctx, "relay starting",
		"env", cfg.Env,
		"queue_backend", cfg.Queue.Backend,
		"dispatch_interval", cfg.Dispatch.Interval.String())

	if err := id.Init(1); err != nil {
		slog.ErrorContext(ctx, "failed to initialize snowflake id generator", "error", err)
		os.Exit(1)
	}

	var redisClient *redis.Client
	if cfg.RedisEnabled() {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			slog.ErrorContext(ctx, "failed to parse redis url", "error", err)
			os.Exit(1)
		}
		redisClient = redis.NewClient(redisOpts)
		if err := redisClient.Ping(ctx).Err(); err != nil {
			slog.ErrorContext(ctx, "failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer redisClient.Close()
		slog.InfoContext(ctx, "redis connected")
	}

	var database *db.DB
	if cfg.Queue.Backend == config.QueueBackendPostgres {
		database, err = db.New(ctx, cfg.DB)
		if err != nil {
			slog.ErrorContext(ctx, "failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer database.Close()
		slog.InfoContext(ctx, "database connected")
	}

	jobs, deadLetters, err := openQueues(ctx, cfg, redisClient, database)
	if err != nil {
		slog.ErrorContext(ctx, "failed to open job queue", "error", err)
		os.Exit(1)
	}
	defer jobs.Close()
	if deadLetters != nil {
		defer deadLetters.Close()
	}

	recovered, err := jobs.Recover(ctx)
	if err != nil {
		slog.ErrorContext(ctx, "failed to recover in-flight jobs", "error", err)
		os.Exit(1)
	}
	if recovered > 0 {
		slog.WarnContext(ctx, "requeued jobs left in flight by a previous run", "count", recovered)
	}

	stateStore, err := store.NewFileRobotStateStore(cfg.Robot.StatePath)
	if err != nil {
		slog.ErrorContext(ctx, "invalid robot state path", "error", err)
		os.Exit(1)
	}
	if _, err := stateStore.Reset(ctx); err != nil {
		slog.ErrorContext(ctx, "failed to reset robot state", "error", err, "path", stateStore.Path())
		os.Exit(1)
	}

	var publisher status.Publisher = status.Nop{}
	if redisClient != nil && cfg.Robot.StatusStream != "" {
		publisher = status.NewRedisPublisher(redisClient, cfg.Robot.StatusStream, slog.Default())
	}

	channel, connected := connectRobot(ctx, cfg.Robot)
	defer channel.Close()

	dispatcher, err := dispatch.New(dispatch.Deps{
		Queue:      jobs,
		DeadLetter: deadLetters,
		Solver: solver.NewExecSolver(solver.Command{
			Name: cfg.Solver.Path,
			Args: cfg.Solver.Args,
			Dir:  cfg.Solver.Dir,
		}, slog.Default()),
		Channel: channel,
		State:   stateStore,
		Status:  publisher,
		Logger:  slog.Default(),
	}, dispatch.Config{
		Interval:        cfg.Dispatch.Interval,
		SolverTimeout:   cfg.Dispatch.SolverTimeout,
		MaxAttempts:     cfg.Dispatch.MaxAttempts,
		SendNullPayload: cfg.Dispatch.SendNullPayload,
	})
	if err != nil {
		slog.ErrorContext(ctx, "failed to create dispatcher", "error", err)
		os.Exit(1)
	}

	services := service.NewServices(jobs, stateStore,
		model.Grid{Width: cfg.Grid.Width, Height: cfg.Grid.Height},
		service.WithRateLimit(cfg.Submit.RateLimit, cfg.Submit.RateBurst),
		service.WithDispatcher(dispatcher),
		service.WithLink(channel.Address(), connected),
	)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	server := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           setupRouter(cfg, services, redisClient),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// WriteTimeout stays unset: the status stream is long-lived.
		IdleTimeout: 120 * time.Second,
	}

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)

	g.Go(func() error {
		return dispatcher.Run(gctx)
	})

	g.Go(func() error {
		return robot.NewMonitor(channel, publisher, slog.Default()).Run(gctx)
	})

	g.Go(func() error {
		slog.InfoContext(ctx, "http server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		slog.InfoContext(ctx, "shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "http server shutdown error", "error", err)
		}
		// closing the link unblocks the monitor's read loop
		if err := channel.Close(); err != nil {
			slog.WarnContext(shutdownCtx, "robot channel close error", "error", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.ErrorContext(ctx, "relay stopped with error", "error", err)
	}

	if telemetry != nil {
		shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := telemetry.Shutdown(shutdownCtx); err != nil {
			slog.ErrorContext(shutdownCtx, "otel shutdown error", "error", err)
		}
	}

	slog.InfoContext(ctx, "shutdown complete")
}

func openQueues(ctx context.Context, cfg config.Config, redisClient *redis.Client, database *db.DB) (queue.Queue, queue.Queue, error) {
	switch cfg.Queue.Backend {
	case config.QueueBackendRedis:
		jobs, err := queue.NewRedisQueue(redisClient, cfg.Queue.Key, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		if cfg.Queue.DLQKey == "" {
			return jobs, nil, nil
		}
		dead, err := queue.NewRedisQueue(redisClient, cfg.Queue.DLQKey, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		return jobs, dead, nil

	case config.QueueBackendPostgres:
		jobs, err := queue.NewPostgresQueue(ctx, database, cfg.Queue.Key, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		if cfg.Queue.DLQKey == "" {
			return jobs, nil, nil
		}
		dead, err := queue.NewPostgresQueue(ctx, database, cfg.Queue.DLQKey, slog.Default())
		if err != nil {
			return nil, nil, err
		}
		return jobs, dead, nil

	default:
		jobs, err := queue.NewFileQueue(cfg.Queue.Path, queue.WithFileLogger(slog.Default()))
		if err != nil {
			return nil, nil, err
		}
		if cfg.Queue.DLQPath == "" {
			return jobs, nil, nil
		}
		dead, err := queue.NewFileQueue(cfg.Queue.DLQPath, queue.WithFileLogger(slog.Default()))
		if err != nil {
			return nil, nil, err
		}
		return jobs, dead, nil
	}
}

// connectRobot never fails: an unreachable robot yields a Disconnected
// channel so dispatch keeps draining the queue.
func connectRobot(ctx context.Context, cfg config.RobotConfig) (robot.Channel, bool) {
	if !cfg.Enabled() {
		slog.WarnContext(ctx, "robot link disabled (no ROBOT_ADDRESS configured)")
		return robot.NewDisconnected("", nil), false
	}

	dialCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	channel, err := robot.Connect(dialCtx, cfg.Address,
		robot.WithBaudRate(cfg.BaudRate),
		robot.WithLogger(slog.Default()),
	)
	if err != nil {
		slog.ErrorContext(ctx, "robot link unavailable, continuing without it", "error", err, "address", cfg.Address)
		return robot.NewDisconnected(cfg.Address, err), false
	}

	slog.InfoContext(ctx, "robot link connected", "address", channel.Address())
	return channel, true
}

func setupRouter(cfg config.Config, services *service.Services, redisClient *redis.Client) *gin.Engine {
	router := gin.New()

	// OTel creates the span, Recovery catches panics, Logger logs with trace context
	if cfg.OTel.Enabled() {
		router.Use(otelgin.Middleware(cfg.OTel.ServiceName))
	}
	router.Use(middleware.Recovery())
	router.Use(middleware.Logger())

	httprouter.SetupRoutes(router, services, httprouter.RouterConfig{
		Redis:        redisClient,
		StatusStream: cfg.Robot.StatusStream,
	})

	return router
}

const banner = `
 ██████╗ ███████╗██████╗     ██████╗ ███████╗██╗      █████╗ ██╗   ██╗
██╔════╝ ██╔════╝██╔══██╗    ██╔══██╗██╔════╝██║     ██╔══██╗╚██╗ ██╔╝
██║  ███╗███████╗██║  ██║    ██████╔╝█████╗  ██║     ███████║ ╚████╔╝
██║   ██║╚════██║██║  ██║    ██╔══██╗██╔══╝  ██║     ██╔══██║  ╚██╔╝
╚██████╔╝███████║██████╔╝    ██║  ██║███████╗███████╗██║  ██║   ██║
 ╚═════╝ ╚══════╝╚═════╝     ╚═╝  ╚═╝╚══════╝╚══════╝╚═╝  ╚═╝   ╚═╝
`
