package service

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif" // Register GIF decoder
	"image/jpeg"
	_ "image/png" // Register PNG decoder
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/chai2010/webp"
	"github.com/gabriel-vasile/mimetype"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // Register WebP decoder

	"zola/internal/config"
	"zola/internal/models"
	"zola/internal/observability"
)

const (
	AvatarSize      = 512
	AvatarQuality   = 100
	CoverMaxSize    = 1440
	JPEGQuality     = 82
	WebPQuality     = 70
	defaultMaxBytes = 5 * 1024 * 1024
)

//go:embed assets/avatar.png
var defaultAvatarPNG []byte

// MediaStore persists media files addressed by a slash-separated relative path.
type MediaStore interface {
	Save(ctx context.Context, rel string, data []byte) error
	Open(ctx context.Context, rel string) (io.ReadCloser, error)
	URL(rel string) string
}

// LocalMediaStore keeps media under a root directory on disk.
type LocalMediaStore struct {
	root    string
	baseURL string
}

func NewLocalMediaStore(root, baseURL string) *LocalMediaStore {
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	return &LocalMediaStore{root: root, baseURL: baseURL}
}

// Root is the directory served under the media URL.
func (s *LocalMediaStore) Root() string {
	return s.root
}

func (s *LocalMediaStore) resolve(rel string) (string, error) {
	clean := path.Clean("/" + rel)
	if clean == "/" {
		return "", fmt.Errorf("invalid media path %q", rel)
	}
	return filepath.Join(s.root, filepath.FromSlash(clean)), nil
}

// Save overwrites rel atomically: the data lands in a temp file which is then renamed.
func (s *LocalMediaStore) Save(_ context.Context, rel string, data []byte) error {
	full, err := s.resolve(rel)
	if err != nil {
		return err
	}
	dir := filepath.Dir(full)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), full)
}

func (s *LocalMediaStore) Open(_ context.Context, rel string) (io.ReadCloser, error) {
	full, err := s.resolve(rel)
	if err != nil {
		return nil, err
	}
	// #nosec G304: full is rooted under s.root by resolve
	return os.Open(full)
}

func (s *LocalMediaStore) URL(rel string) string {
	if rel == "" {
		return ""
	}
	return s.baseURL + strings.TrimPrefix(rel, "/")
}

type encodeFunc func(img image.Image, quality int) ([]byte, error)

// ImageService decodes uploaded data URLs and writes normalized avatars and covers.
type ImageService struct {
	store          MediaStore
	maxAvatarBytes int
	maxCoverBytes  int
	encode         encodeFunc
}

func NewImageService(store MediaStore, cfg *config.Config) *ImageService {
	s := &ImageService{
		store:          store,
		maxAvatarBytes: defaultMaxBytes,
		maxCoverBytes:  defaultMaxBytes,
		encode:         encodeJPEG,
	}
	if cfg != nil {
		if cfg.MaxAvatarBytes > 0 {
			s.maxAvatarBytes = cfg.MaxAvatarBytes
		}
		if cfg.MaxCoverBytes > 0 {
			s.maxCoverBytes = cfg.MaxCoverBytes
		}
	}
	return s
}

// URL turns a stored path into the public media URL.
func (s *ImageService) URL(rel string) string {
	return s.store.URL(rel)
}

// DecodeDataURL returns the payload of a base64 image data URL. The size cap
// applies to the decoded length and is checked before anything is decoded.
func DecodeDataURL(raw string, maxBytes int) ([]byte, error) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(raw), "data:")
	if !ok {
		return nil, models.ErrInvalidImage
	}
	header, payload, ok := strings.Cut(rest, ",")
	if !ok || !strings.HasSuffix(header, ";base64") {
		return nil, models.ErrInvalidImage
	}
	if !isAllowedImageMIME(strings.TrimSuffix(header, ";base64")) {
		return nil, models.ErrInvalidImage
	}

	size := base64.StdEncoding.DecodedLen(len(payload)) - strings.Count(payload[max(0, len(payload)-2):], "=")
	if maxBytes > 0 && size > maxBytes {
		return nil, models.ErrImageTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, models.ErrInvalidImage
	}
	if !isAllowedImageMIME(mimetype.Detect(data).String()) {
		return nil, models.ErrInvalidImage
	}
	return data, nil
}

func imageFieldError(field string, err error, maxBytes int) *models.AppError {
	if errors.Is(err, models.ErrImageTooLarge) {
		return models.NewFieldError(field, fmt.Sprintf("Image file too large (max %dMB).", maxBytes/(1024*1024)))
	}
	return models.NewFieldError(field, "Upload a valid image. The file you uploaded was either not an image or a corrupted image.")
}

// unchanged reports whether upload refers to the file already stored at current.
func (s *ImageService) unchanged(current, upload string) bool {
	if current == "" {
		return false
	}
	return upload == current || upload == s.store.URL(current)
}

func (s *ImageService) readStored(ctx context.Context, rel string) ([]byte, error) {
	f, err := s.store.Open(ctx, rel)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(f)
}

// EncodeAvatar converts upload into the JPEG to store as the user's avatar.
// The image is flattened to RGB, shrunk to fit the previous avatar's
// dimensions (512x512 when there is none) and re-encoded at quality 100.
// It returns nil when upload is the avatar already on file, in which case
// nothing is encoded. Nothing is written; see StoreAvatar.
func (s *ImageService) EncodeAvatar(ctx context.Context, user *models.User, upload string) ([]byte, error) {
	if upload == "" || s.unchanged(user.Avatar, upload) {
		return nil, nil
	}

	data, err := DecodeDataURL(upload, s.maxAvatarBytes)
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("avatar", "rejected").Inc()
		return nil, imageFieldError("avatar", err, s.maxAvatarBytes)
	}

	boundW, boundH := AvatarSize, AvatarSize
	if user.Avatar != "" {
		if stored, readErr := s.readStored(ctx, user.Avatar); readErr == nil {
			if bytes.Equal(stored, data) {
				observability.AvatarProcessing.WithLabelValues("avatar", "unchanged").Inc()
				return nil, nil
			}
			if cfg, _, cfgErr := image.DecodeConfig(bytes.NewReader(stored)); cfgErr == nil && cfg.Width > 0 && cfg.Height > 0 {
				boundW, boundH = cfg.Width, cfg.Height
			}
		}
	}

	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("avatar", "rejected").Inc()
		return nil, imageFieldError("avatar", models.ErrInvalidImage, s.maxAvatarBytes)
	}

	out, err := s.encode(resizeToFit(flattenRGB(decoded), boundW, boundH), AvatarQuality)
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("avatar", "failed").Inc()
		return nil, models.NewInternalError(err)
	}
	return out, nil
}

// StoreAvatar writes an encoded avatar and returns its storage path.
func (s *ImageService) StoreAvatar(ctx context.Context, user *models.User, data []byte) (string, error) {
	rel := user.AvatarPath()
	if err := s.store.Save(ctx, rel, data); err != nil {
		observability.AvatarProcessing.WithLabelValues("avatar", "failed").Inc()
		return "", models.NewInternalError(err)
	}
	observability.AvatarProcessing.WithLabelValues("avatar", "ok").Inc()
	return rel, nil
}

// DefaultAvatar writes the bundled placeholder as user's avatar.
func (s *ImageService) DefaultAvatar(ctx context.Context, user *models.User) (string, error) {
	decoded, _, err := image.Decode(bytes.NewReader(defaultAvatarPNG))
	if err != nil {
		return "", models.NewInternalError(err)
	}
	out, err := s.encode(scaleTo(flattenRGB(decoded), AvatarSize, AvatarSize), AvatarQuality)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	rel := user.AvatarPath()
	if err := s.store.Save(ctx, rel, out); err != nil {
		return "", models.NewInternalError(err)
	}
	observability.AvatarProcessing.WithLabelValues("default", "ok").Inc()
	return rel, nil
}

// EncodedCover is a cover upload converted to JPEG and WebP, not yet stored.
type EncodedCover struct {
	jpg  []byte
	webp []byte
}

// EncodeCover decodes upload and encodes it for storage. It returns nil
// when upload is empty or is the cover book already has. Bad uploads come
// back as a cover field error.
func (s *ImageService) EncodeCover(book *models.Book, upload string) (*EncodedCover, error) {
	if upload == "" || (book.Cover != nil && s.unchanged(*book.Cover, upload)) {
		return nil, nil
	}

	data, err := DecodeDataURL(upload, s.maxCoverBytes)
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("cover", "rejected").Inc()
		return nil, imageFieldError("cover", err, s.maxCoverBytes)
	}
	decoded, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("cover", "rejected").Inc()
		return nil, imageFieldError("cover", models.ErrInvalidImage, s.maxCoverBytes)
	}

	img := resizeToFit(flattenRGB(decoded), CoverMaxSize, CoverMaxSize)
	jpg, err := s.encode(img, JPEGQuality)
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("cover", "failed").Inc()
		return nil, models.NewInternalError(err)
	}
	wp, err := encodeWebP(img, WebPQuality)
	if err != nil {
		observability.AvatarProcessing.WithLabelValues("cover", "failed").Inc()
		return nil, models.NewInternalError(err)
	}
	return &EncodedCover{jpg: jpg, webp: wp}, nil
}

// StoreCover writes c as book's cover and sets book.Cover to the JPEG path.
// The WebP variant is written first so a failure leaves the JPEG untouched.
func (s *ImageService) StoreCover(ctx context.Context, book *models.Book, c *EncodedCover) error {
	if c == nil {
		return nil
	}
	if err := s.store.Save(ctx, book.CoverPath("webp"), c.webp); err != nil {
		observability.AvatarProcessing.WithLabelValues("cover", "failed").Inc()
		return models.NewInternalError(err)
	}
	rel := book.CoverPath("jpg")
	if err := s.store.Save(ctx, rel, c.jpg); err != nil {
		observability.AvatarProcessing.WithLabelValues("cover", "failed").Inc()
		return models.NewInternalError(err)
	}
	book.Cover = &rel
	observability.AvatarProcessing.WithLabelValues("cover", "ok").Inc()
	return nil
}

// flattenRGB paints src over white so transparent regions do not turn black in JPEG.
func flattenRGB(src image.Image) image.Image {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), image.NewUniform(color.White), image.Point{}, draw.Src)
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Over)
	return dst
}

func resizeToFit(src image.Image, maxWidth, maxHeight int) image.Image {
	bounds := src.Bounds()
	w := bounds.Dx()
	h := bounds.Dy()
	if w <= 0 || h <= 0 {
		return src
	}
	if w <= maxWidth && h <= maxHeight {
		return src
	}

	scale := min(float64(maxWidth)/float64(w), float64(maxHeight)/float64(h))
	return scaleTo(src, max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)))
}

func scaleTo(src image.Image, width, height int) image.Image {
	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Over, nil)
	return dst
}

func encodeJPEG(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: quality}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func encodeWebP(img image.Image, quality int) ([]byte, error) {
	buf := bytes.NewBuffer(nil)
	if err := webp.Encode(buf, img, &webp.Options{Quality: float32(quality)}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func isAllowedImageMIME(contentType string) bool {
	switch strings.ToLower(strings.TrimSpace(contentType)) {
	case "image/jpeg", "image/jpg", "image/png", "image/gif", "image/webp":
		return true
	default:
		return false
	}
}
