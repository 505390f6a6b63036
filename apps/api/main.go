package main

import (
	"context"
	"expvar"
	"fmt"
	"log"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	echoapi "github.com/trezcool/masomo/attendance/apps/api/echo"
	"github.com/trezcool/masomo/attendance/core"
	"github.com/trezcool/masomo/attendance/core/catchup"
	attendancesvc "github.com/trezcool/masomo/attendance/services/attendance"
	eventsvc "github.com/trezcool/masomo/attendance/services/events"
	logsvc "github.com/trezcool/masomo/attendance/services/logger"
)

func main() {
	conf, err := core.NewConfig()
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	// set up logger
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	if err := run(conf, logger); err != nil {
		if core.IsShutdown(err) {
			logger.Error(fmt.Sprintf("unclean shutdown: %v", err), err)
			os.Exit(1)
		}
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)
	}
}

func run(conf *core.Config, logger core.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// =========================================================================
	// Set up Dependencies

	attendance, err := newAttendanceService(conf, logger)
	if err != nil {
		return errors.Wrap(err, "setting up attendance service")
	}

	publisher, history, err := newPublisher(ctx, conf, logger)
	if err != nil {
		return errors.Wrap(err, "setting up event publisher")
	}
	if history != nil {
		defer func() {
			if err := history.Close(); err != nil {
				logger.Error("closing redis", err)
			}
		}()
	}

	validate, translator := core.NewValidator()
	svc := catchup.NewService(catchup.Deps{
		Conf:       conf.Catchup,
		Attendance: attendance,
		Publisher:  publisher,
		Logger:     logger,
		Validate:   validate,
		Translator: translator,
	})
	defer svc.Shutdown()

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.Publish("catchup_sessions", expvar.Func(func() interface{} { return svc.Len() }))

	debugSrv := &http.Server{Addr: conf.Server.DebugAddress, Handler: http.DefaultServeMux}

	// =========================================================================
	// Start API Service

	opts := &echoapi.Options{
		Address:    conf.Server.Address,
		Conf:       conf,
		Logger:     logger,
		Catchup:    svc,
		Validate:   validate,
		Translator: translator,
	}
	if history != nil {
		opts.History = history
	}
	server := echoapi.NewServer(opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "api server")
		}
		return nil
	})
	g.Go(func() error {
		if err := debugSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
		return nil
	})
	g.Go(func() error {
		return svc.RunSweeper(gctx)
	})

	// =========================================================================
	// Shutdown

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Start shutdown...")

		// give outstanding requests a deadline for completion
		shutdownCtx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err := debugSrv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("could not stop debug server gracefully", err)
		}
		if err := server.Stop(shutdownCtx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
			return core.NewShutdownError("api server did not stop within " + conf.Server.ShutdownTimeout.String())
		}
		return nil
	})

	return g.Wait()
}

// newAttendanceService talks to the attendance REST API when configured,
// or serves the lesson catalog in memory (development).
func newAttendanceService(conf *core.Config, logger core.Logger) (catchup.AttendanceService, error) {
	if conf.Attendance.BaseURL != "" {
		return attendancesvc.NewHTTPService(conf.Attendance), nil
	}

	path := conf.Attendance.CatalogPath
	if root, err := core.Getwd(); err == nil && !filepath.IsAbs(path) {
		path = filepath.Join(root, path)
	}
	cat, err := attendancesvc.LoadCatalog(path)
	if err != nil {
		return nil, err
	}
	logger.Warn("attendance: using the console service", map[string]interface{}{"catalog": path, "lessons": len(cat.Lessons)})
	return attendancesvc.NewConsoleService(cat, logger), nil
}

// newPublisher publishes to redis when configured, and always to the logs in debug.
func newPublisher(ctx context.Context, conf *core.Config, logger core.Logger) (catchup.EventPublisher, *eventsvc.RedisPublisher, error) {
	if conf.Redis.Address == "" {
		return eventsvc.NewLogPublisher(logger), nil, nil
	}
	rpub, err := eventsvc.NewRedisPublisher(ctx, conf.Redis)
	if err != nil {
		return nil, nil, err
	}
	if conf.Debug {
		return eventsvc.Fanout{rpub, eventsvc.NewLogPublisher(logger)}, rpub, nil
	}
	return rpub, rpub, nil
}
