package main

import (
	"database/sql"
	"log"
	"os"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/trezcool/bursar/core"
	"github.com/trezcool/bursar/core/payment"
	"github.com/trezcool/bursar/core/student"
	logsvc "github.com/trezcool/bursar/services/logger"
	notifysvc "github.com/trezcool/bursar/services/notify"
	"github.com/trezcool/bursar/storage/database"
)

var logger *log.Logger

func main() {
	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)
	conf := core.NewConfig()

	// set up DB
	repo, closeRepo, err := database.NewRepository(conf)
	errAndDie(err)

	var db *sql.DB
	if conf.Database.Engine == core.EnginePostgres {
		db, err = database.Open(conf)
		errAndDie(err)
	}

	// set up services
	appLogger := logsvc.NewRollbarLogger(logger, conf)
	appLogger.Enable(!conf.Debug)
	notifier := notifysvc.NewConsoleNotifier(conf, logger)

	_en := en.New()
	translator, _ := ut.New(_en, _en).GetTranslator("en")
	validate := validator.New()
	core.InitValidators(validate, translator)

	// start CLI
	cli := commandLine{
		conf:       conf,
		db:         db,
		studentSvc: student.NewService(repo),
		paymentSvc: payment.NewService(repo, notifier, appLogger, conf),
		validate:   validate,
		translator: translator,
		out:        os.Stdout,
	}
	err = cli.run(os.Args)

	if db != nil {
		_ = db.Close()
	}
	_ = closeRepo()

	if err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
