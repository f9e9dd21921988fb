package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	echoapi "github.com/MoonNight31/AppCaryamil/apps/api/echo"
	"github.com/MoonNight31/AppCaryamil/core"
	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
	emailsvc "github.com/MoonNight31/AppCaryamil/services/email"
	logsvc "github.com/MoonNight31/AppCaryamil/services/logger"
	uploadsvc "github.com/MoonNight31/AppCaryamil/services/upload"
	"github.com/MoonNight31/AppCaryamil/storage/database"
	sqlxrepos "github.com/MoonNight31/AppCaryamil/storage/database/sqlx"
)

const shutdownTimeout = 20 * time.Second

func main() {
	if err := core.Conf.Validate(); err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stdout, "API : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		core.Conf,
	)
	logger.Enable(!core.Conf.Debug)

	// set up DB
	if err := database.CreateIfNotExist(core.Conf); err != nil {
		logger.Fatal(fmt.Sprintf("creating database: %v", err), err)
	}
	db, err := database.Open(core.Conf)
	if err != nil {
		logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
	}
	defer func() { _ = db.Close() }()

	if err = database.Migrate(db.DB); err != nil {
		logger.Fatal(fmt.Sprintf("migrating database: %v", err), err)
	}

	// set up services
	var mailSvc core.EmailService
	if core.Conf.Debug {
		mailSvc = emailsvc.NewConsoleService()
	} else {
		mailSvc = emailsvc.NewSendgridService(logger)
	}
	usrRepo := sqlxrepos.NewUserRepository(db)
	usrSvc := user.NewService(usrRepo, mailSvc)
	schSvc := school.NewService(sqlxrepos.NewSchoolRepository(db), usrRepo)
	msgSvc := messaging.NewService(sqlxrepos.NewMessagingRepository(db), schSvc)

	logger.Info(fmt.Sprintf("Application initializing : version %q", core.Conf.Build))
	defer logger.Info("Application stopped")

	server := echoapi.NewServer(&echoapi.Options{
		Address:      core.Conf.Server.Addr(),
		Logger:       logger,
		UserSvc:      usrSvc,
		SchoolSvc:    schSvc,
		MessagingSvc: msgSvc,
		Storage:      uploadsvc.NewLocalStorage(),
	})

	serverErrors := make(chan error, 1)
	go func() { serverErrors <- server.Start() }()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err = <-serverErrors:
		logger.Fatal(fmt.Sprintf("server error: %v", err), err)

	case <-server.ShutdownSignal():
		logger.Error("integrity issue reported: shutting down", nil)
		stop(server, logger)

	case sig := <-quit:
		logger.Info(fmt.Sprintf("%v: start shutdown...", sig))
		stop(server, logger)
	}
}

func stop(server echoapi.Server, logger core.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Stop(ctx); err != nil {
		logger.Fatal(fmt.Sprintf("could not stop server gracefully: %v", err), err)
	}
}
