// Package materialize writes the artifacts of a finished job to disk.
package materialize

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "golang.org/x/image/webp"

	"github.com/aceteam-ai/dream-cli/internal/horde"
)

// ErrFaulted is returned when asked to save a faulted result.
var ErrFaulted = errors.New("refusing to save a faulted result")

// Saved describes one written artifact.
type Saved struct {
	Path       string
	Generation horde.Generation
	Bytes      int
}

// Config holds configuration for the materializer.
type Config struct {
	// Filename is the output name; with several generations each file is
	// prefixed with its index
	Filename string

	// Timeout bounds each artifact download (default: 60s)
	Timeout time.Duration

	// HTTPClient overrides the download client
	HTTPClient *http.Client

	// LogFn is an optional callback for logging
	LogFn func(level, msg string)
}

// Materializer fetches or decodes generations and writes them out.
type Materializer struct {
	config     Config
	httpClient *http.Client
}

// New creates a materializer.
func New(cfg Config) *Materializer {
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Materializer{config: cfg, httpClient: httpClient}
}

func (m *Materializer) log(level, format string, args ...any) {
	if m.config.LogFn != nil {
		m.config.LogFn(level, fmt.Sprintf(format, args...))
	}
}

// OutputName returns the file name for generation index out of total.
// A single generation keeps filename unchanged; otherwise the base name is
// prefixed with "<index>_".
func OutputName(filename string, index, total int) string {
	if total <= 1 {
		return filename
	}
	dir, base := filepath.Split(filename)
	return dir + fmt.Sprintf("%d_%s", index, base)
}

// Save writes every generation of result. It stops at the first failure and
// returns what was written so far.
func (m *Materializer) Save(ctx context.Context, result *horde.JobResult) ([]Saved, error) {
	if result == nil {
		return nil, nil
	}
	if result.Faulted {
		return nil, ErrFaulted
	}

	total := len(result.Generations)
	saved := make([]Saved, 0, total)
	for i, gen := range result.Generations {
		path := OutputName(m.config.Filename, i, total)

		var (
			n   int
			err error
		)
		if isURL(gen.Img) {
			m.log("debug", "Downloading '%s' from %s", gen.ID, gen.Img)
			n, err = m.download(ctx, gen.Img, path)
		} else {
			n, err = m.decode(gen.Img, path)
		}
		if err != nil {
			return saved, fmt.Errorf("generation %d (%s): %w", i, gen.ID, err)
		}
		saved = append(saved, Saved{Path: path, Generation: gen, Bytes: n})
	}
	return saved, nil
}

func isURL(ref string) bool {
	return strings.HasPrefix(ref, "https://") || strings.HasPrefix(ref, "http://")
}

// download writes the URL body verbatim.
func (m *Materializer) download(ctx context.Context, url, path string) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("download failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("download returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("failed to read download: %w", err)
	}
	if err := writeFile(path, data); err != nil {
		return 0, err
	}
	return len(data), nil
}

// decode turns inline base64 into an image file in the format implied by
// the output extension.
func (m *Materializer) decode(b64, path string) (int, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return 0, fmt.Errorf("invalid base64 image: %w", err)
	}
	img, format, err := image.Decode(bytes.NewReader(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid image data: %w", err)
	}

	var buf bytes.Buffer
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".png":
		err = png.Encode(&buf, img)
	case ".jpg", ".jpeg":
		err = jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95})
	case ".gif":
		err = gif.Encode(&buf, img, nil)
	default:
		if "."+format != ext {
			m.log("warning", "No encoder for %q, writing %s data unchanged", ext, format)
		}
		buf.Write(raw)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to encode %s: %w", path, err)
	}

	if err := writeFile(path, buf.Bytes()); err != nil {
		return 0, err
	}
	return buf.Len(), nil
}

func writeFile(path string, data []byte) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
