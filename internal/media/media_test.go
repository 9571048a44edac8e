package media

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"strings"
	"testing"

	"github.com/and161185/fashion-nexus/internal/errs"
	"github.com/and161185/fashion-nexus/internal/model"
	"github.com/stretchr/testify/require"
)

func pngOf(t *testing.T, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCheck(t *testing.T) {
	data := pngOf(t, 4, 4)

	ct, err := Check(model.FileInput{Name: "a.png", MimeType: "image/png", Data: data}, ImageTypes, 5*MB)
	require.NoError(t, err)
	require.Equal(t, "image/png", ct)

	_, err = Check(model.FileInput{Name: "a.png", Data: data}, ImageTypes, 10)
	require.ErrorIs(t, err, ErrTooLarge)
	require.ErrorIs(t, err, errs.ErrValidation)

	_, err = Check(model.FileInput{Name: "notes.txt", MimeType: "text/plain", Data: []byte("hello")}, ImageTypes, 5*MB)
	require.ErrorIs(t, err, ErrUnsupportedType)

	_, err = Check(model.FileInput{Name: "a.gif", MimeType: "image/gif", Data: data}, ImageTypes, 5*MB)
	require.ErrorIs(t, err, ErrUnsupportedType, "declared type must match content")
}

func TestExtension(t *testing.T) {
	require.Equal(t, "png", Extension("Me.PNG", "image/png"))
	require.Equal(t, "jpg", Extension("", "image/jpeg"))
	require.Equal(t, "bin", Extension("", "application/x-unknown-thing"))
}

func TestPreview(t *testing.T) {
	uri, err := Preview(pngOf(t, 400, 200), 128)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(uri, "data:image/jpeg;base64,"))

	_, err = Preview([]byte("not an image"), 128)
	require.Error(t, err)
}
