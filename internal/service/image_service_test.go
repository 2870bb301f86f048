package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zola/internal/config"
	"zola/internal/models"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 120, A: 200})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func dataURL(mime string, data []byte) string {
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data)
}

func newTestImageService(t *testing.T) (*ImageService, *LocalMediaStore, *int) {
	t.Helper()
	store := NewLocalMediaStore(t.TempDir(), "/medias/")
	svc := NewImageService(store, &config.Config{MaxAvatarBytes: 1024 * 1024, MaxCoverBytes: 1024 * 1024})
	encodes := 0
	svc.encode = func(img image.Image, q int) ([]byte, error) {
		encodes++
		return encodeJPEG(img, q)
	}
	return svc, store, &encodes
}

func storedConfig(t *testing.T, store *LocalMediaStore, rel string) image.Config {
	t.Helper()
	raw, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(rel)))
	require.NoError(t, err)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "jpeg", format)
	return cfg
}

func TestDecodeDataURL(t *testing.T) {
	t.Parallel()
	payload := pngBytes(t, 4, 4)

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		got, err := DecodeDataURL(dataURL("image/png", payload), 1024)
		require.NoError(t, err)
		assert.Equal(t, payload, got)
	})

	t.Run("too large is rejected before decoding", func(t *testing.T) {
		t.Parallel()
		// not valid base64, so only the size check can produce this error
		raw := "data:image/png;base64," + strings.Repeat("!", 4000)
		_, err := DecodeDataURL(raw, 1024)
		assert.ErrorIs(t, err, models.ErrImageTooLarge)
	})

	t.Run("not a data url", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeDataURL("https://example.com/a.png", 1024)
		assert.ErrorIs(t, err, models.ErrInvalidImage)
	})

	t.Run("declared type not an image", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeDataURL(dataURL("text/plain", payload), 1024)
		assert.ErrorIs(t, err, models.ErrInvalidImage)
	})

	t.Run("content not an image", func(t *testing.T) {
		t.Parallel()
		_, err := DecodeDataURL(dataURL("image/png", []byte("hello world")), 1024)
		assert.ErrorIs(t, err, models.ErrInvalidImage)
	})
}

// normalizeAvatar encodes and stores upload the way ProfileSettings does.
func normalizeAvatar(ctx context.Context, svc *ImageService, user *models.User, upload string) (string, bool, error) {
	data, err := svc.EncodeAvatar(ctx, user, upload)
	if err != nil || data == nil {
		return user.Avatar, false, err
	}
	rel, err := svc.StoreAvatar(ctx, user, data)
	return rel, err == nil, err
}

func TestImageService_Avatar(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("first upload fits within 512", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestImageService(t)
		user := &models.User{ID: uuid.New()}

		rel, changed, err := normalizeAvatar(ctx, svc, user, dataURL("image/png", pngBytes(t, 1024, 512)))
		require.NoError(t, err)
		assert.True(t, changed)
		assert.Equal(t, user.AvatarPath(), rel)

		cfg := storedConfig(t, store, rel)
		assert.Equal(t, 512, cfg.Width)
		assert.Equal(t, 256, cfg.Height)
	})

	t.Run("later uploads fit the previous dimensions", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestImageService(t)
		user := &models.User{ID: uuid.New()}

		rel, err := svc.DefaultAvatar(ctx, user)
		require.NoError(t, err)
		user.Avatar = rel

		first, err := svc.encode(image.NewRGBA(image.Rect(0, 0, 100, 50)), 90)
		require.NoError(t, err)
		require.NoError(t, store.Save(ctx, rel, first))

		_, changed, err := normalizeAvatar(ctx, svc, user, dataURL("image/png", pngBytes(t, 400, 400)))
		require.NoError(t, err)
		assert.True(t, changed)

		cfg := storedConfig(t, store, rel)
		assert.Equal(t, 50, cfg.Width)
		assert.Equal(t, 50, cfg.Height)
	})

	t.Run("unchanged avatar is not re-encoded", func(t *testing.T) {
		t.Parallel()
		svc, store, encodes := newTestImageService(t)
		user := &models.User{ID: uuid.New()}

		rel, err := svc.DefaultAvatar(ctx, user)
		require.NoError(t, err)
		user.Avatar = rel
		require.Equal(t, 1, *encodes)

		for _, same := range []string{rel, store.URL(rel)} {
			got, changed, err := normalizeAvatar(ctx, svc, user, same)
			require.NoError(t, err)
			assert.False(t, changed)
			assert.Equal(t, rel, got)
		}

		stored, err := os.ReadFile(filepath.Join(store.Root(), filepath.FromSlash(rel)))
		require.NoError(t, err)
		_, changed, err := normalizeAvatar(ctx, svc, user, dataURL("image/jpeg", stored))
		require.NoError(t, err)
		assert.False(t, changed)

		assert.Equal(t, 1, *encodes)
	})

	t.Run("undecodable image is a validation error", func(t *testing.T) {
		t.Parallel()
		svc, _, encodes := newTestImageService(t)
		user := &models.User{ID: uuid.New()}

		broken := append([]byte{}, pngBytes(t, 10, 10)[:40]...)
		_, _, err := normalizeAvatar(ctx, svc, user, dataURL("image/png", broken))
		require.Error(t, err)
		assert.True(t, models.IsCode(err, models.CodeValidation))
		assert.Zero(t, *encodes)
	})

	t.Run("encoding writes nothing", func(t *testing.T) {
		t.Parallel()
		svc, store, _ := newTestImageService(t)
		user := &models.User{ID: uuid.New()}

		data, err := svc.EncodeAvatar(ctx, user, dataURL("image/png", pngBytes(t, 64, 64)))
		require.NoError(t, err)
		require.NotEmpty(t, data)
		_, err = os.Stat(filepath.Join(store.Root(), filepath.FromSlash(user.AvatarPath())))
		assert.True(t, os.IsNotExist(err))
	})

	t.Run("oversized image is a validation error", func(t *testing.T) {
		t.Parallel()
		svc, _, _ := newTestImageService(t)
		svc.maxAvatarBytes = 16
		_, _, err := normalizeAvatar(ctx, svc, &models.User{ID: uuid.New()}, dataURL("image/png", pngBytes(t, 20, 20)))
		appErr := models.AsAppError(err)
		require.NotNil(t, appErr)
		assert.Equal(t, models.CodeValidation, appErr.Code)
		assert.Equal(t, "avatar", appErr.Field)
	})
}

func TestImageService_DefaultAvatar(t *testing.T) {
	t.Parallel()
	svc, store, _ := newTestImageService(t)
	user := &models.User{ID: uuid.New()}

	rel, err := svc.DefaultAvatar(context.Background(), user)
	require.NoError(t, err)
	assert.Equal(t, "avatar/"+user.ID.String()+".jpg", rel)

	cfg := storedConfig(t, store, rel)
	assert.Equal(t, AvatarSize, cfg.Width)
	assert.Equal(t, AvatarSize, cfg.Height)
}

func TestImageService_Cover(t *testing.T) {
	t.Parallel()
	svc, store, encodes := newTestImageService(t)
	book := &models.Book{ID: 7}
	ctx := context.Background()

	enc, err := svc.EncodeCover(book, dataURL("image/png", pngBytes(t, 60, 90)))
	require.NoError(t, err)
	require.NotNil(t, enc)
	_, err = os.Stat(filepath.Join(store.Root(), "cover", "7.jpg"))
	assert.True(t, os.IsNotExist(err), "encoding writes nothing")

	require.NoError(t, svc.StoreCover(ctx, book, enc))
	require.NotNil(t, book.Cover)
	assert.Equal(t, "cover/7.jpg", *book.Cover)

	raw, err := os.ReadFile(filepath.Join(store.Root(), "cover", "7.jpg"))
	require.NoError(t, err)
	_, err = jpeg.Decode(bytes.NewReader(raw))
	require.NoError(t, err)
	_, err = os.Stat(filepath.Join(store.Root(), "cover", "7.webp"))
	require.NoError(t, err)

	before := *encodes
	again, err := svc.EncodeCover(book, store.URL(*book.Cover))
	require.NoError(t, err)
	assert.Nil(t, again)
	assert.Equal(t, before, *encodes)
	assert.NoError(t, svc.StoreCover(ctx, book, nil))

	_, err = svc.EncodeCover(book, "data:image/png;base64,AAAA")
	assert.True(t, models.IsCode(err, models.CodeValidation))
}

func TestLocalMediaStore(t *testing.T) {
	t.Parallel()
	store := NewLocalMediaStore(t.TempDir(), "/medias")
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, "avatar/a.jpg", []byte("one")))
	require.NoError(t, store.Save(ctx, "avatar/a.jpg", []byte("two")))

	f, err := store.Open(ctx, "avatar/a.jpg")
	require.NoError(t, err)
	defer f.Close()
	var buf bytes.Buffer
	_, err = buf.ReadFrom(f)
	require.NoError(t, err)
	assert.Equal(t, "two", buf.String())

	assert.Equal(t, "/medias/avatar/a.jpg", store.URL("avatar/a.jpg"))
	assert.Equal(t, "", store.URL(""))

	// traversal stays inside the root
	require.NoError(t, store.Save(ctx, "../escape.txt", []byte("x")))
	_, err = os.Stat(filepath.Join(store.Root(), "escape.txt"))
	assert.NoError(t, err)
}
