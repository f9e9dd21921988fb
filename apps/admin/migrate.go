package main

import (
	"github.com/MoonNight31/AppCaryamil/storage/database"
)

var migrateFunc = database.Migrate // mockable

func (cli *commandLine) migrate() error {
	return migrateFunc(cli.db)
}
