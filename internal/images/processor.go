// Package images downloads, normalizes and stores character images.
package images

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	"net/http"
	"time"

	"character-nexus/backend/pkg/logger"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	_ "golang.org/x/image/webp"
)

// ContentType of every image the processor writes.
const ContentType = "image/jpeg"

var allowedFormats = map[string]bool{"jpeg": true, "png": true, "gif": true, "webp": true}

// Options tunes the processor.
type Options struct {
	MaxSize         int64
	MaxDimension    int
	Quality         int
	DownloadTimeout time.Duration
	UserAgent       string
}

// Processor turns remote or uploaded images into bounded JPEG files.
type Processor struct {
	store  Store
	client *http.Client
	opts   Options
	log    *logger.Logger
}

func NewProcessor(store Store, opts Options, log *logger.Logger) *Processor {
	if opts.MaxSize <= 0 {
		opts.MaxSize = 5 << 20
	}
	if opts.MaxDimension <= 0 {
		opts.MaxDimension = 1024
	}
	if opts.Quality <= 0 || opts.Quality > 100 {
		opts.Quality = 80
	}
	if opts.DownloadTimeout <= 0 {
		opts.DownloadTimeout = 15 * time.Second
	}
	if log == nil {
		log = logger.GetGlobal()
	}
	return &Processor{
		store:  store,
		client: &http.Client{Timeout: opts.DownloadTimeout},
		opts:   opts,
		log:    log.WithComponent("images"),
	}
}

// Store returns the backing store.
func (p *Processor) Store() Store {
	return p.store
}

// DownloadAndSave fetches url, processes the image and returns the stored
// filename.
func (p *Processor) DownloadAndSave(ctx context.Context, url string) (string, error) {
	data, err := p.download(ctx, url)
	if err != nil {
		return "", err
	}
	return p.Save(ctx, data)
}

func (p *Processor) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build image request: %w", err)
	}
	if p.opts.UserAgent != "" {
		req.Header.Set("User-Agent", p.opts.UserAgent)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("download image: unexpected status %s", resp.Status)
	}

	data, err := readAll(resp.Body, p.opts.MaxSize)
	if err != nil {
		return nil, fmt.Errorf("download image: %w", err)
	}
	p.log.Debug("Image downloaded", "url", url, "size", len(data))
	return data, nil
}

// Save processes raw image bytes and stores the result under a new name.
func (p *Processor) Save(ctx context.Context, data []byte) (string, error) {
	out, err := p.Process(data)
	if err != nil {
		return "", err
	}

	filename := uuid.NewString() + ".jpg"
	if err := p.store.Save(ctx, filename, out, ContentType); err != nil {
		return "", fmt.Errorf("store image: %w", err)
	}

	p.log.Info("Image saved", "filename", filename, "original_size", len(data), "processed_size", len(out))
	return filename, nil
}

// Process decodes data, applies EXIF orientation, fits it inside the maximum
// dimension without enlarging and re-encodes it as JPEG. Re-encoding drops
// all metadata.
func (p *Processor) Process(data []byte) ([]byte, error) {
	if int64(len(data)) > p.opts.MaxSize {
		return nil, fmt.Errorf("image exceeds %d bytes", p.opts.MaxSize)
	}

	_, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("unrecognized image: %w", err)
	}
	if !allowedFormats[format] {
		return nil, fmt.Errorf("invalid image format %q", format)
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	img = imaging.Fit(img, p.opts.MaxDimension, p.opts.MaxDimension, imaging.Lanczos)

	// JPEG has no alpha channel; flatten onto white.
	bounds := img.Bounds()
	flat := imaging.New(bounds.Dx(), bounds.Dy(), color.White)
	flat = imaging.Overlay(flat, img, image.Pt(0, 0), 1.0)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, flat, imaging.JPEG, imaging.JPEGQuality(p.opts.Quality)); err != nil {
		return nil, fmt.Errorf("encode image: %w", err)
	}
	return buf.Bytes(), nil
}

// Delete removes a stored image. Empty names are ignored.
func (p *Processor) Delete(ctx context.Context, filename string) error {
	if filename == "" {
		return nil
	}
	if err := p.store.Delete(ctx, filename); err != nil {
		return err
	}
	p.log.Info("Image deleted", "filename", filename)
	return nil
}
