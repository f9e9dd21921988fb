package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/MoonNight31/AppCaryamil/core/messaging"
	"github.com/MoonNight31/AppCaryamil/core/school"
	"github.com/MoonNight31/AppCaryamil/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db      *sql.DB
	usrRepo user.Repository
	usrSvc  *user.Service
	schSvc  *school.Service
	msgSvc  *messaging.Service
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate                                   - apply pending database migrations")
	fmt.Println("  createsuperuser -username UNAME -email EMAIL - create or update a superuser. The password is prompted next.")
	fmt.Println("  resetpassword -username USERNAME|EMAIL    - reset a user's password. The password is prompted next.")
	fmt.Println("  creategroups                              - ensure every classroom has its group conversation")
	fmt.Println("  populate -yes                             - seed the database with demo data")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	createSuperuserCmd := flag.NewFlagSet("createsuperuser", flag.ExitOnError)
	createSuperuserUname := createSuperuserCmd.String("username", "", "The superuser's username.")
	createSuperuserEmail := createSuperuserCmd.String("email", "", "The superuser's email.")

	resetPasswordCmd := flag.NewFlagSet("resetpassword", flag.ExitOnError)
	resetPasswordUname := resetPasswordCmd.String("username", "", "The user's username or email. The password will be prompted next.")

	populateCmd := flag.NewFlagSet("populate", flag.ExitOnError)
	populateYes := populateCmd.Bool("yes", false, "Confirm seeding demo data into the database.")

	switch args[1] {
	case "migrate":
		return cli.migrate()

	case "createsuperuser":
		if err := createSuperuserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *createSuperuserUname == "" || *createSuperuserEmail == "" {
			createSuperuserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			createSuperuserCmd.Usage()
			return errHelp
		}
		return cli.createSuperuser(*createSuperuserUname, *createSuperuserEmail, pwd)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordUname == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.promptPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordUname, pwd)

	case "creategroups":
		return cli.createGroups()

	case "populate":
		if err := populateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if !*populateYes {
			populateCmd.Usage()
			return errHelp
		}
		return cli.populate()

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) promptPassword() (string, error) {
	fmt.Print("Enter password:")
	pwd, err := readPasswordFunc(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
