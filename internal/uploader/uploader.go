// Package uploader sends media payloads to the hosted image endpoint,
// preprocessing them client-side first: decode, downscale, re-encode.
package uploader

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"image"
	_ "image/gif" // register GIF decoder
	"image/jpeg"
	_ "image/png" // register PNG decoder
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"photogram/internal/models"
	"photogram/internal/observability"

	"github.com/chai2010/webp"
	xdraw "golang.org/x/image/draw"
	_ "golang.org/x/image/webp" // register WebP decoder
)

const (
	DefaultMaxUploadSizeMB = 10
	MasterMaxSize          = 2048
	JPEGQuality            = 82
	WebPQuality            = 70
)

// UploadInput is a media payload received from the form surface.
type UploadInput struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Uploader preprocesses and posts media to the hosted endpoint.
type Uploader struct {
	endpoint           string
	preset             string
	http               *http.Client
	maxUploadSizeBytes int64
	logger             *observability.Logger
}

// New creates an uploader targeting the given endpoint and preset.
func New(endpoint, preset string, maxUploadSizeMB int) *Uploader {
	if maxUploadSizeMB <= 0 {
		maxUploadSizeMB = DefaultMaxUploadSizeMB
	}
	return &Uploader{
		endpoint:           endpoint,
		preset:             preset,
		http:               &http.Client{Timeout: 60 * time.Second},
		maxUploadSizeBytes: int64(maxUploadSizeMB) * 1024 * 1024,
		logger:             observability.GlobalLogger,
	}
}

// Upload validates, downscales, and re-encodes the payload, posts it as a
// multipart form, and returns the public URL the endpoint assigns.
func (u *Uploader) Upload(ctx context.Context, in UploadInput) (string, error) {
	if len(in.Content) == 0 {
		return "", models.NewValidationError("No file uploaded")
	}
	if int64(len(in.Content)) > u.maxUploadSizeBytes {
		return "", models.NewValidationError(fmt.Sprintf("File too large (max %dMB)", u.maxUploadSizeBytes/(1024*1024)))
	}

	detectedType := http.DetectContentType(in.Content)
	if !strings.HasPrefix(detectedType, "image/") {
		return "", models.NewValidationError("Invalid image type")
	}

	decoded, _, err := image.Decode(bytes.NewReader(in.Content))
	if err != nil {
		return "", models.NewValidationError("Invalid image file")
	}

	master := resizeToFit(decoded, MasterMaxSize, MasterMaxSize)

	encoded, contentType, err := encodeMaster(master)
	if err != nil {
		return "", models.NewInternalError(err)
	}

	url, err := u.post(ctx, in.Filename, contentType, encoded)
	if err != nil {
		return "", err
	}

	u.logger.InfoContext(ctx, "media uploaded",
		"filename", in.Filename,
		"bytes", len(encoded),
		"url", url,
	)
	return url, nil
}

// encodeMaster prefers WebP and falls back to JPEG when encoding fails.
func encodeMaster(img image.Image) ([]byte, string, error) {
	var buf bytes.Buffer
	if err := webp.Encode(&buf, img, &webp.Options{Quality: WebPQuality}); err == nil {
		return buf.Bytes(), "image/webp", nil
	}

	buf.Reset()
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: JPEGQuality}); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), "image/jpeg", nil
}

func resizeToFit(img image.Image, maxW, maxH int) image.Image {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxW && h <= maxH {
		return img
	}

	scaleW := float64(maxW) / float64(w)
	scaleH := float64(maxH) / float64(h)
	scale := scaleW
	if scaleH < scale {
		scale = scaleH
	}

	dstW := int(float64(w) * scale)
	dstH := int(float64(h) * scale)
	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, b, xdraw.Over, nil)
	return dst
}

func (u *Uploader) post(ctx context.Context, filename, contentType string, content []byte) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if _, err := part.Write(content); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := writer.WriteField("upload_preset", u.preset); err != nil {
		return "", models.NewInternalError(err)
	}
	if err := writer.Close(); err != nil {
		return "", models.NewInternalError(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.endpoint, &body)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	resp, err := u.http.Do(req)
	if err != nil {
		return "", models.NewInternalError(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", models.NewInternalError(err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", models.NewInternalError(fmt.Errorf("upload endpoint returned status %d", resp.StatusCode))
	}

	var decoded struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return "", models.NewInternalError(err)
	}
	if decoded.URL == "" {
		return "", models.NewInternalError(fmt.Errorf("upload endpoint returned no url"))
	}
	return decoded.URL, nil
}
