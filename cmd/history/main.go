package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"nuclight.org/terabox-relay-bot/app/storage"
	e "nuclight.org/terabox-relay-bot/pkg/entities"
	"nuclight.org/terabox-relay-bot/pkg/logger"
)

var opts struct {
	DBPath string        `long:"db-path" env:"DB_PATH" required:"true" description:"path to the sqlite database file"`
	Count  int           `short:"c" long:"count" default:"50" description:"number of records to show"`
	Since  time.Duration `long:"since" default:"24h" description:"window of the outcome summary"`
}

func main() {
	if err := parseOptions(os.Args[1:]); err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(logger.LevelFromEnv())

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	db, err := storage.NewSQLite(ctx, opts.DBPath)
	if err != nil {
		log.Error("creating sqlite3 database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("closing sqlite3 database", "error", err)
		}
	}()

	records, err := db.ListTransfers(ctx, opts.Count)
	if err != nil {
		log.Error("listing transfers from database", "error", err)
		return
	}

	log.Debug("records loaded from database", "count", len(records))

	for _, rec := range records {
		fmt.Printf("%s  %-10s  chat=%d  %s\n",
			rec.CreatedAt.Local().Format(time.DateTime), rec.Outcome, rec.ChatID, rec.Link)
		if rec.Title != "" {
			fmt.Printf("    %s (%s) in %s\n", rec.Title, rec.Size, rec.FinishedAt.Sub(rec.CreatedAt).Round(time.Second))
		}
		if rec.Reason != "" {
			fmt.Printf("    reason: %s\n", rec.Reason)
		}
	}

	counts, err := db.CountOutcomes(ctx, time.Now().Add(-opts.Since))
	if err != nil {
		log.Error("counting outcomes", "error", err)
		return
	}

	fmt.Printf("\nlast %s:", opts.Since)
	for _, o := range []e.Outcome{e.OutcomeUploaded, e.OutcomeFailed, e.OutcomeUnresolved, e.OutcomeRejected} {
		fmt.Printf(" %s=%d", o, counts[o])
	}
	fmt.Println()
}

// parseOptions reads an optional .env file before the flags, like the bot does.
func parseOptions(args []string) error {
	_ = godotenv.Load()

	_, err := flags.NewParser(&opts, flags.Default).ParseArgs(args)
	return err
}
