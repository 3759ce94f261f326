package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
	"nuclight.org/terabox-relay-bot/app/resolver"
	"nuclight.org/terabox-relay-bot/app/transfer"
	"nuclight.org/terabox-relay-bot/pkg/links"
	"nuclight.org/terabox-relay-bot/pkg/logger"
)

var opts struct {
	ResolverURL string        `long:"resolver-url" env:"RESOLVER_URL" description:"link resolution service endpoint (default: https://terabox-pro-api.vercel.app/api)"`
	Timeout     time.Duration `long:"timeout" env:"RESOLVE_TIMEOUT" default:"60s" description:"timeout of one resolver request"`
	Domains     []string      `long:"domain" env:"TERABOX_DOMAINS" env-delim:"," description:"supported link domain, repeatable (default: teraboxlink.com, 1024terabox.com)"`
	OutputDir   string        `short:"o" long:"output" description:"download resolved files into this directory"`
	Workers     int           `short:"w" long:"workers" default:"3" description:"number of concurrent workers"`

	Args struct {
		Links []string `positional-arg-name:"link" required:"1"`
	} `positional-args:"yes"`
}

var (
	resolved   int64
	downloaded int64
	failed     int64
)

func main() {
	_ = godotenv.Load()

	_, err := flags.Parse(&opts)
	if err != nil {
		os.Exit(1)
	}

	log := logger.NewLogger(logger.LevelFromEnv())
	log.Info("starting resolve", "links", len(opts.Args.Links))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if opts.OutputDir != "" {
		if err := os.MkdirAll(opts.OutputDir, 0755); err != nil {
			log.Error("creating output directory", "error", err)
			os.Exit(1)
		}
	}

	validator := &links.Validator{Domains: opts.Domains}
	res := &resolver.Client{
		BaseURL:    opts.ResolverURL,
		HTTPClient: http.DefaultClient,
		Timeout:    opts.Timeout,
	}
	fetcher := &transfer.Relay{
		Log:        log,
		HTTPClient: http.DefaultClient,
	}

	taskChan := make(chan string, len(opts.Args.Links))
	for _, link := range opts.Args.Links {
		if !validator.IsValid(link) {
			log.Warn("unsupported link skipped", "link", link)
			atomic.AddInt64(&failed, 1)
			continue
		}
		taskChan <- link
	}
	close(taskChan)

	var (
		wg    sync.WaitGroup
		outMu sync.Mutex
	)

	for i := 0; i < max(opts.Workers, 1); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for link := range taskChan {
				select {
				case <-ctx.Done():
					return
				default:
				}

				r := res.Resolve(ctx, link)
				if !r.Success {
					log.Error("resolving link", "link", link, "reason", r.Reason)
					atomic.AddInt64(&failed, 1)
					continue
				}
				atomic.AddInt64(&resolved, 1)

				outMu.Lock()
				fmt.Printf("%s\n  title: %s\n  size:  %s\n  url:   %s\n", link, r.Title, r.Size, r.DirectLink)
				outMu.Unlock()

				if opts.OutputDir == "" {
					continue
				}

				path := filepath.Join(opts.OutputDir, safeFileName(r.Title))
				n, err := download(ctx, fetcher, r.DirectLink, path)
				if err != nil {
					log.Error("downloading file", "error", err, "link", link)
					atomic.AddInt64(&failed, 1)
					continue
				}

				atomic.AddInt64(&downloaded, 1)
				log.Info("file saved", "path", path, "size", humanize.IBytes(uint64(n)))
			}
		}()
	}

	wg.Wait()

	log.Info("done",
		"resolved", resolved,
		"downloaded", downloaded,
		"failed", failed,
	)

	if failed > 0 {
		os.Exit(1)
	}
}

func download(ctx context.Context, fetcher *transfer.Relay, url, path string) (int64, error) {
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating file: %w", err)
	}

	n, err := fetcher.Fetch(ctx, url, f)
	if cerr := f.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("closing file: %w", cerr)
	}
	if err != nil {
		_ = os.Remove(path)
		return n, err
	}

	return n, nil
}

func safeFileName(title string) string {
	name := strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', 0:
			return '_'
		}
		return r
	}, strings.TrimSpace(title))

	if name == "" || name == "." || name == ".." {
		return "download"
	}

	return name
}
