package main

import (
	"fmt"
	"log"
	"os"

	"github.com/go-playground/validator/v10"

	"github.com/skillsharp/lms/core"
	"github.com/skillsharp/lms/core/user"
	emailsvc "github.com/skillsharp/lms/services/email"
	logsvc "github.com/skillsharp/lms/services/logger"
	"github.com/skillsharp/lms/storage/database"
	pgrepos "github.com/skillsharp/lms/storage/database/postgres"
)

func main() {
	conf := core.NewConfig()

	zl, err := logsvc.NewZap(conf)
	if err != nil {
		log.Fatalf("building logger: %v", err)
	}
	logger := logsvc.NewRollbarLogger(zl.Named("admin"), conf)

	// set up DB
	db, err := database.Open(conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up database: %v", err), err)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	user.InitValidators(validate, translator)
	user.LoadCommonPasswords(logger)

	// start CLI
	cli := commandLine{
		db:       db.DB,
		conf:     conf,
		validate: validate,
		usrSvc: user.NewService(
			pgrepos.NewUserRepository(db),
			emailsvc.NewConsoleService(conf, logger),
			validate,
			conf,
		),
	}
	err = cli.run(os.Args)
	_ = db.Close()
	logger.Sync()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("error: %v", err), err)
		}
		os.Exit(1)
	}
}
