package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"

	"github.com/urfave/cli/v2"
)

var version = "1.0.0"

func main() {
	if err := run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

var dbFlags = []cli.Flag{
	&cli.StringFlag{
		Name:     "db",
		Usage:    "PostgreSQL connection string",
		Required: true,
		EnvVars:  []string{"DATABASE_URL"},
	},
	&cli.IntFlag{
		Name:    "max-conns",
		Value:   2,
		EnvVars: []string{"DB_MAX_CONNS"},
	},
}

func run(args []string) error {
	app := cli.App{
		Name:    "reviewctl",
		Usage:   "maintenance tasks for the review bot database",
		Version: version,
		Flags:   dbFlags,
	}
	app.Commands = []*cli.Command{
		cmdMigrate,
		cmdPurgeReviews,
		cmdStats,
		cmdBroadcasts,
	}
	return app.Run(args)
}
