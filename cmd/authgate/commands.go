package main

import (
	"fmt"

	"authgate/cmd/internal/app"
	"authgate/cmd/internal/db"

	"github.com/urfave/cli/v2"
)

// Build information, set via ldflags.
var (
	Version = "dev"
	Commit  = "unknown"
)

func newApp() *cli.App {
	return &cli.App{
		Name:    "authgate",
		Usage:   "Session and token authentication server",
		Version: fmt.Sprintf("%s (commit: %s)", Version, Commit),
		Commands: []*cli.Command{
			serveCommand(),
			migrateCommand(),
		},
		// Running without a subcommand serves.
		Action: serve,
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:   "serve",
		Usage:  "Rebuild the session cache and serve HTTP (configured through AUTHGATE_* variables)",
		Action: serve,
	}
}

func serve(c *cli.Context) error {
	return app.Serve(c.Context)
}

func migrateCommand() *cli.Command {
	dsn := &cli.StringFlag{
		Name:    "database-url",
		Usage:   "Postgres connection string",
		EnvVars: []string{app.EnvPrefix + "_DATABASE_URL"},
	}
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply or roll back the embedded schema migrations",
		Subcommands: []*cli.Command{
			{
				Name:   "up",
				Usage:  "Apply all pending migrations",
				Flags:  []cli.Flag{dsn},
				Action: migrateAction(db.Up),
			},
			{
				Name:   "down",
				Usage:  "Roll back all migrations",
				Flags:  []cli.Flag{dsn},
				Action: migrateAction(db.Down),
			},
		},
	}
}

func migrateAction(dir db.Direction) cli.ActionFunc {
	return func(c *cli.Context) error {
		if err := db.Migrate(c.String("database-url"), dir); err != nil {
			return err
		}
		fmt.Fprintf(c.App.Writer, "migrate %s: ok\n", dir)
		return nil
	}
}
