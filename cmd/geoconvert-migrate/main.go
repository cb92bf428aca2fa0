// Command geoconvert-migrate applies, rolls back, or reports the
// status of the database schema in migrations/, wrapping goose with a
// kingpin command-line surface in the same style as
// cmd/rule-evaluator's flag parsing.
package main

import (
	"context"
	"database/sql"
	"os"

	"github.com/alecthomas/kingpin/v2"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

func main() {
	a := kingpin.New("geoconvert-migrate", "Apply or inspect the geoconvert database schema")
	a.HelpFlag.Short('h')

	databaseURL := a.Flag("database-url", "Postgres connection string").Envar("GEOCONVERT_DATABASE_URL").Required().String()
	migrationsDir := a.Flag("migrations-dir", "Directory of goose SQL migrations").Default("migrations").String()

	upCmd := a.Command("up", "Apply all pending migrations")
	downCmd := a.Command("down", "Roll back the most recently applied migration")
	statusCmd := a.Command("status", "Print the status of every migration")

	command := kingpin.MustParse(a.Parse(os.Args[1:]))

	db, err := sql.Open("pgx", *databaseURL)
	if err != nil {
		kingpin.Fatalf("opening database: %v", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		kingpin.Fatalf("setting dialect: %v", err)
	}

	ctx := context.Background()
	switch command {
	case upCmd.FullCommand():
		err = goose.UpContext(ctx, db, *migrationsDir)
	case downCmd.FullCommand():
		err = goose.DownContext(ctx, db, *migrationsDir)
	case statusCmd.FullCommand():
		err = goose.StatusContext(ctx, db, *migrationsDir)
	}
	if err != nil {
		kingpin.Fatalf("%s: %v", command, err)
	}
}
