// Package media validates user-supplied image files and renders previews.
package media

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"image/jpeg"
	"path"
	"strings"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp"
)

// ImageTypes are the accepted image content types.
var ImageTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

// MB is one mebibyte.
const MB = 1 << 20

// Rejection reasons.
var (
	ErrUnsupportedType = fmt.Errorf("%w: unsupported file type", errs.ErrValidation)
	ErrTooLarge        = fmt.Errorf("%w: file too large", errs.ErrValidation)
)

// Detect returns the sniffed content type of data without parameters.
func Detect(data []byte) string {
	m := mimetype.Detect(data)
	t, _, _ := strings.Cut(m.String(), ";")
	return t
}

// Check validates f against the allowed types and the size limit and returns the
// effective content type. A declared type must agree with the sniffed one.
func Check(f model.FileInput, allowed []string, maxSize int64) (string, error) {
	sniffed := Detect(f.Data)
	if !contains(allowed, sniffed) {
		return "", fmt.Errorf("%s: %w", f.Name, ErrUnsupportedType)
	}
	if declared := normalize(f.MimeType); declared != "" && declared != "application/octet-stream" && declared != sniffed {
		return "", fmt.Errorf("%s: declared %s, content %s: %w", f.Name, declared, sniffed, ErrUnsupportedType)
	}
	if int64(len(f.Data)) > maxSize {
		return "", fmt.Errorf("%s: %w", f.Name, ErrTooLarge)
	}
	return sniffed, nil
}

// Extension returns the lower-case extension of name without the dot, falling
// back to the canonical extension of contentType.
func Extension(name, contentType string) string {
	if ext := strings.TrimPrefix(path.Ext(name), "."); ext != "" {
		return strings.ToLower(ext)
	}
	if m := mimetype.Lookup(contentType); m != nil {
		return strings.TrimPrefix(m.Extension(), ".")
	}
	return "bin"
}

// Preview renders a JPEG thumbnail that fits in size x size and returns it as a data URI.
func Preview(data []byte, size int) (string, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return "", fmt.Errorf("decode preview: %w", err)
	}
	if img.Bounds().Dx() > size || img.Bounds().Dy() > size {
		img = imaging.Fit(img, size, size, imaging.Lanczos)
	}
	buf := new(bytes.Buffer)
	if err := jpeg.Encode(buf, img, &jpeg.Options{Quality: 80}); err != nil {
		return "", err
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func normalize(t string) string {
	t, _, _ = strings.Cut(t, ";")
	t = strings.ToLower(strings.TrimSpace(t))
	if t == "image/jpg" {
		return "image/jpeg"
	}
	return t
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}
