package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/smarttransit/rail-ticket-engine/internal/config"
	"github.com/smarttransit/rail-ticket-engine/internal/database"
	"github.com/spf13/pflag"
)

func main() {
	var (
		dbURLFlag string
		driver    string
		yes       bool
	)
	flagSet := pflag.NewFlagSet("clear-data", pflag.ContinueOnError)
	flagSet.StringVar(&dbURLFlag, "database-url", "", "PostgreSQL connection string (overrides DATABASE_URL)")
	flagSet.StringVar(&driver, "driver", "pgx", "database driver: pgx or postgres")
	flagSet.BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return
		}
		log.Fatal(err)
	}

	// Try loading .env from current working directory (optional)
	// This avoids having to pass secrets on the command line.
	_ = godotenv.Load()

	dbURL := dbURLFlag
	if dbURL == "" {
		dbURL = os.Getenv("DATABASE_URL")
	}
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set and --database-url was not provided")
	}

	if !yes {
		fmt.Printf("This deletes every user, train, seat and order. Type 'yes' to continue: ")
		var answer string
		fmt.Scanln(&answer)
		if answer != "yes" {
			fmt.Println("Aborted.")
			return
		}
	}

	// Build minimal database config without loading full app config
	dbCfg := config.DatabaseConfig{
		URL:                dbURL,
		Driver:             driver,
		MaxConnections:     2,
		MaxIdleConnections: 1,
	}

	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)

	db, err := database.NewConnection(dbCfg, logger)
	if err != nil {
		log.Fatalf("failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	fmt.Println("Connected to database. Truncating tables...")
	if err := database.TruncateAll(ctx, db); err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Println("All data cleared successfully (tables truncated, identities reset).")

	counts, err := database.CountRows(ctx, db)
	if err != nil {
		log.Fatalf("%v", err)
	}

	fmt.Println("Post-clear row counts:")
	for _, table := range database.Tables {
		fmt.Printf("  %-12s %d\n", table, counts[table])
	}
}
