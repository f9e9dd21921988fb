package main

import (
	"log"
	"os"

	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
	emailsvc "github.com/MoonNight31/AppCaryamil/services/email"
	"github.com/MoonNight31/AppCaryamil/storage/database"
	sqlxrepos "github.com/MoonNight31/AppCaryamil/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	// set up DB
	errAndDie(database.CreateIfNotExist(core.Conf))
	db, err := database.Open(core.Conf)
	errAndDie(err)
	defer db.Close()

	// set up services
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, emailsvc.NewConsoleService())
	schSvc := school.NewService(sqlxrepos.NewSchoolRepository(db), usrRepo)
	msgSvc := messaging.NewService(sqlxrepos.NewMessagingRepository(db), schSvc)

	// start CLI
	cli := commandLine{
		db:      db.DB,
		usrRepo: usrRepo,
		usrSvc:  usrSvc,
		schSvc:  schSvc,
		msgSvc:  msgSvc,
	}
	if err := cli.run(os.Args); err != nil {
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
