package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/dustin/go-humanize"
	"nuclight.org/terabox-relay-bot/pkg/logger"
	"nuclight.org/terabox-relay-bot/pkg/report"
)

const DefaultChunkSize = 8 * 1024

type HTTPClient interface {
	Do(*http.Request) (*http.Response, error)
}

// Uploader delivers a document to the target channel.
type Uploader interface {
	SendDocument(ctx context.Context, name string, content io.Reader) error
}

// Relay downloads a remote file into a temporary file and forwards it to the
// target channel. The temporary file never outlives a Transfer call.
type Relay struct {
	Log        logger.Logger
	HTTPClient HTTPClient
	Uploader   Uploader

	// TempDir is where temporary files are created, empty means os.TempDir
	TempDir string

	// ChunkSize is the read size of the download loop, zero means DefaultChunkSize
	ChunkSize int

	// Timeout bounds download plus upload, zero means no limit besides ctx
	Timeout time.Duration
}

// Transfer relays remoteURL to the target channel as a document named name.
// Any failure is logged and reported as false, the upload is attempted at most once.
func (r *Relay) Transfer(ctx context.Context, remoteURL, name string) bool {
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	err := r.transfer(ctx, remoteURL, name)
	if err != nil {
		r.Log.Error("relaying file", "file_name", name, "url", remoteURL, "error", err)
		report.Capture(err, map[string]string{"stage": "transfer"})
		return false
	}

	return true
}

func (r *Relay) transfer(ctx context.Context, remoteURL, name string) error {
	log := r.Log.With("file_name", name)

	tmp, err := os.CreateTemp(r.TempDir, "relay-*"+filepath.Ext(name))
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		_ = tmp.Close()
		if err := os.Remove(tmp.Name()); err != nil && !errors.Is(err, os.ErrNotExist) {
			log.Warn("removing temp file", "path", tmp.Name(), "error", err)
		}
	}()

	n, err := r.Fetch(ctx, remoteURL, tmp)
	if err != nil {
		return fmt.Errorf("downloading file: %w", err)
	}

	log.Debug("file downloaded", "size", humanize.IBytes(uint64(n)))

	if _, err = tmp.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("rewinding temp file: %w", err)
	}

	if err = r.Uploader.SendDocument(ctx, name, tmp); err != nil {
		return fmt.Errorf("uploading document: %w", err)
	}

	log.Info("file uploaded", "size", humanize.IBytes(uint64(n)))

	return nil
}

// Fetch streams remoteURL into w chunk by chunk and returns the number of bytes written.
func (r *Relay) Fetch(ctx context.Context, remoteURL string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, remoteURL, nil)
	if err != nil {
		return 0, fmt.Errorf("creating request: %w", err)
	}

	client := r.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("doing request: %w", err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", res.StatusCode)
	}

	size := r.ChunkSize
	if size <= 0 {
		size = DefaultChunkSize
	}

	return copyChunks(w, res.Body, make([]byte, size))
}

// copyChunks is io.CopyBuffer without the ReaderFrom/WriterTo shortcuts, so
// memory use stays at one chunk whatever the writer is.
func copyChunks(dst io.Writer, src io.Reader, buf []byte) (int64, error) {
	var written int64
	for {
		nr, rerr := src.Read(buf)
		if nr > 0 {
			nw, werr := dst.Write(buf[:nr])
			written += int64(nw)
			if werr != nil {
				return written, fmt.Errorf("writing chunk: %w", werr)
			}
			if nw != nr {
				return written, io.ErrShortWrite
			}
		}
		if rerr == io.EOF {
			return written, nil
		}
		if rerr != nil {
			return written, fmt.Errorf("reading chunk: %w", rerr)
		}
	}
}
