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
	"syscall"
	"time"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	echoapi "github.com/trezcool/bursar/apps/api/echo"
	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
	logsvc "github.com/trezcool/bursar/services/logger"
	notifysvc "github.com/trezcool/bursar/services/notify"
	"github.com/trezcool/bursar/services/scheduler"
	"github.com/trezcool/bursar/storage/database"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	logger.Enable(!conf.Debug)

	dbLogger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "DB : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	dbLogger.Enable(!conf.Debug)

	// set up DB
	repo, closeDB, err := database.NewRepository(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}
	defer func() {
		if err = closeDB(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	notifier, err := newNotifier(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up notifier: %v", err), err)
	}
	paymentSvc := payment.NewService(repo, notifier, logger, conf)
	studentSvc := student.NewService(repo)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	defer logger.Info("Application stopped")

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)

	// =========================================================================
	// Start Debug Service
	//
	// /debug/pprof - Added to the default mux by importing the net/http/pprof package.
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("database").Set(conf.Database.Engine)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Reconciliation Job

	if conf.Ledger.ReconcileSchedule != "" {
		job, err := scheduler.NewReconcileJob(conf.Ledger.ReconcileSchedule, paymentSvc, logger, time.Minute)
		if err != nil {
			logger.Fatal(fmt.Sprintf("setting up reconciliation job: %v", err), err)
		}
		job.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
			defer cancel()
			job.Stop(ctx)
		}()
	}

	// =========================================================================
	// Start API Service

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	server := echoapi.NewServer(&echoapi.Options{
		Address:        conf.Server.Address(),
		DisableReqLogs: conf.TestMode,
		SignalShutdown: func() { shutdown <- syscall.SIGTERM },
		Conf:           conf,
		Logger:         logger,
		Validate:       validate,
		Translator:     translator,
		PaymentSvc:     paymentSvc,
		StudentSvc:     studentSvc,
	})

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-serverErrors:
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-shutdown:
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))

		// give outstanding requests a deadline for completion
		ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
		defer cancel()

		if err = server.Stop(ctx); err != nil {
			logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)
		}
	}
}

func newNotifier(conf *core.Config) (core.Notifier, error) {
	switch conf.Notifier {
	case core.NotifierSendgrid:
		return notifysvc.NewSendgridNotifier(conf), nil
	case core.NotifierDiscord:
		return notifysvc.NewDiscordNotifier(conf)
	case core.NotifierConsole, "":
		return notifysvc.NewConsoleNotifier(conf, log.New(os.Stdout, "NOTIFY : ", log.LstdFlags)), nil
	}
	return nil, fmt.Errorf("unknown notifier %q", conf.Notifier)
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}
