package images

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"character-nexus/backend/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		img.Set(x, h/2, color.NRGBA{R: 255, A: 255})
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newProcessor(t *testing.T, opts Options) (*Processor, *LocalStore) {
	t.Helper()
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)
	return NewProcessor(store, opts, logger.Discard()), store
}

func decodedSize(t *testing.T, store *LocalStore, filename string) image.Point {
	t.Helper()
	rc, err := store.Open(context.Background(), filename)
	require.NoError(t, err)
	defer rc.Close()

	cfg, format, err := image.DecodeConfig(rc)
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return image.Pt(cfg.Width, cfg.Height)
}

func TestDownloadAndSaveFitsLargeImage(t *testing.T) {
	data := pngBytes(t, 2048, 1024)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	p, store := newProcessor(t, Options{})

	filename, err := p.DownloadAndSave(context.Background(), srv.URL+"/avatar.png")
	require.NoError(t, err)
	assert.True(t, ValidFilename(filename), filename)
	assert.Equal(t, image.Pt(1024, 512), decodedSize(t, store, filename))
}

func TestProcessDoesNotEnlarge(t *testing.T) {
	p, store := newProcessor(t, Options{})

	filename, err := p.Save(context.Background(), pngBytes(t, 64, 32))
	require.NoError(t, err)
	assert.Equal(t, image.Pt(64, 32), decodedSize(t, store, filename))
}

func TestProcessRejectsBadInput(t *testing.T) {
	p, _ := newProcessor(t, Options{MaxSize: 1024})

	_, err := p.Process([]byte("definitely not an image"))
	assert.Error(t, err)

	_, err = p.Process(make([]byte, 2048))
	assert.ErrorContains(t, err, "exceeds")

	var truncatedBMP bytes.Buffer
	truncatedBMP.WriteString("BM")
	_, err = p.Process(truncatedBMP.Bytes())
	assert.Error(t, err)
}

func TestDownloadFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(bytes.Repeat([]byte{0xff}, 4096))
	}))
	defer srv.Close()

	p, _ := newProcessor(t, Options{MaxSize: 1024})

	_, err := p.DownloadAndSave(context.Background(), srv.URL+"/missing")
	assert.ErrorContains(t, err, "unexpected status")

	_, err = p.DownloadAndSave(context.Background(), srv.URL+"/big")
	assert.ErrorContains(t, err, "exceeds 1024 bytes")
}

func TestLocalStoreGuardsPaths(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	store, err := NewLocalStore(dir)
	require.NoError(t, err)

	for _, name := range []string{"../db.sqlite", "..%2Fx.jpg", "a/b.jpg", "notes.txt", ""} {
		_, err := store.Open(ctx, name)
		assert.ErrorIs(t, err, ErrInvalidFilename, name)
		assert.ErrorIs(t, store.Save(ctx, name, []byte("x"), ContentType), ErrInvalidFilename, name)
	}

	name := "3f2504e0-4f89-41d3-9a0c-0305e82c3301.jpg"
	_, err = store.Open(ctx, name)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Save(ctx, name, []byte("img"), ContentType))
	_, err = os.Stat(filepath.Join(dir, name))
	require.NoError(t, err)

	rc, err := store.Open(ctx, name)
	require.NoError(t, err)
	body, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "img", string(body))

	require.NoError(t, store.Delete(ctx, name))
	require.NoError(t, store.Delete(ctx, name), "deleting a missing file is not an error")
	assert.NoError(t, store.Ping(ctx))
}

func TestValidFilename(t *testing.T) {
	assert.True(t, ValidFilename("3F2504E0-4F89-41D3-9A0C-0305E82C3301.webp"))
	assert.False(t, ValidFilename("3f2504e0-4f89-11d3-9a0c-0305e82c3301.jpg"), "not a v4 uuid")
	assert.False(t, ValidFilename("3f2504e0-4f89-41d3-9a0c-0305e82c3301.png"))
}
