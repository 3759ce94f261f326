package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"nuclight.org/terabox-relay-bot/app/relay"
	"nuclight.org/terabox-relay-bot/app/resolver"
	"nuclight.org/terabox-relay-bot/app/storage"
	"nuclight.org/terabox-relay-bot/app/telegram"
	"nuclight.org/terabox-relay-bot/app/transfer"
	"nuclight.org/terabox-relay-bot/pkg/links"
	"nuclight.org/terabox-relay-bot/pkg/logger"
	"nuclight.org/terabox-relay-bot/pkg/report"
)

var opts struct {
	TelegramAPIToken   string        `long:"telegram-api-token" env:"TELEGRAM_API_TOKEN" required:"true" description:"telegram api token"`
	TelegramWorkersNum int           `long:"telegram-workers-num" env:"TELEGRAM_WORKERS_NUM" default:"5" description:"number of workers for telegram bot"`
	TargetChannel      string        `long:"target-channel" env:"TARGET_CHANNEL_ID" required:"true" description:"chat id or @username of the channel receiving files"`
	ConnectRetries     int           `long:"connect-retries" env:"CONNECT_RETRIES" default:"3" description:"attempts to connect to telegram before giving up"`
	ConnectDelay       time.Duration `long:"connect-delay" env:"CONNECT_DELAY" default:"5s" description:"delay between connect attempts"`
	ResolverURL        string        `long:"resolver-url" env:"RESOLVER_URL" description:"link resolution service endpoint (default: https://terabox-pro-api.vercel.app/api)"`
	ResolveTimeout     time.Duration `long:"resolve-timeout" env:"RESOLVE_TIMEOUT" default:"60s" description:"timeout of one resolver request, 0 disables it"`
	TransferTimeout    time.Duration `long:"transfer-timeout" env:"TRANSFER_TIMEOUT" default:"0" description:"timeout of one download and upload, 0 disables it"`
	Domains            []string      `long:"domain" env:"TERABOX_DOMAINS" env-delim:"," description:"supported link domain, repeatable (default: teraboxlink.com, 1024terabox.com)"`
	PlayerURL          string        `long:"player-url" env:"PLAYER_URL" description:"base url of the watch online player (default: http://localhost:8000/player.html)"`
	TempDir            string        `long:"temp-dir" env:"TEMP_DIR" description:"directory for temporary files, system default if empty"`
	DBPath             string        `long:"db-path" env:"DB_PATH" default:"./db/relay.sqlite" description:"path to the sqlite database file"`
	SentryDSN          string        `long:"sentry-dsn" env:"SENTRY_DSN" description:"sentry dsn, reporting is disabled if empty"`
	LogLevel           string        `long:"log-level" env:"LOG_LEVEL" default:"debug" description:"debug, info, warn or error"`
}

var Revision = "dev"

func main() {
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	level, err := logger.ParseLevel(opts.LogLevel)
	if err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.NewLogger(level)
	log.Info("starting bot", "revision", Revision)

	if err = report.Init(opts.SentryDSN, Revision); err != nil {
		log.Error("initializing error reporting", "error", err)
		os.Exit(1)
	}
	defer report.Flush()

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

	bot := &telegram.Client{
		Log:            log,
		APIToken:       opts.TelegramAPIToken,
		WorkersNum:     opts.TelegramWorkersNum,
		TargetChannel:  opts.TargetChannel,
		ConnectRetries: opts.ConnectRetries,
		ConnectDelay:   opts.ConnectDelay,
	}

	bot.Handler = &relay.Handler{
		Log:   log,
		Links: &links.Validator{Domains: opts.Domains},
		Resolver: &resolver.Client{
			BaseURL:    opts.ResolverURL,
			HTTPClient: http.DefaultClient,
			Timeout:    opts.ResolveTimeout,
		},
		Transfer: &transfer.Relay{
			Log:        log,
			HTTPClient: http.DefaultClient,
			Uploader:   bot,
			TempDir:    opts.TempDir,
			Timeout:    opts.TransferTimeout,
		},
		Notifier:  bot,
		History:   db,
		PlayerURL: opts.PlayerURL,
	}

	err = bot.Start(ctx)
	if err != nil {
		log.Error("starting bot", "error", err)
		report.Flush()
		os.Exit(1)
	}

	<-ctx.Done()
	log.Info("stopping bot")

	bot.Stop()
}
