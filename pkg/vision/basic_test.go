package vision

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pngBytes(t *testing.T, w, h int) []byte {
	t.Helper()

	var buf bytes.Buffer
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestBasicAnalyzeAcceptsValidImage(t *testing.T) {
	data := pngBytes(t, 320, 240)

	res, err := NewBasicClient().Analyze(context.Background(), Input{
		Filename: "sticker.png",
		Size:     int64(len(data)),
		Data:     data,
	})

	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 320, res.Width)
	assert.Equal(t, 240, res.Height)
	assert.Equal(t, "png", res.Format)
}

func TestBasicAnalyzeRejectsEmptyImage(t *testing.T) {
	res, err := NewBasicClient().Analyze(context.Background(), Input{
		Filename: "sticker.png",
		Size:     0,
	})

	require.NoError(t, err)
	assert.False(t, res.OK)
}

func TestBasicAnalyzeRejectsOversizedImage(t *testing.T) {
	res, err := NewBasicClient().Analyze(context.Background(), Input{
		Filename: "sticker.jpg",
		Size:     6 * 1024 * 1024,
	})

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "exceeds")
}

func TestBasicAnalyzeRejectsBadExtension(t *testing.T) {
	data := pngBytes(t, 320, 240)

	res, err := NewBasicClient().Analyze(context.Background(), Input{
		Filename: "sticker.gif",
		Size:     int64(len(data)),
		Data:     data,
	})

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "extension")
}

func TestBasicAnalyzeRejectsLowResolution(t *testing.T) {
	data := pngBytes(t, 100, 100)

	res, err := NewBasicClient().Analyze(context.Background(), Input{
		Filename: "sticker.png",
		Size:     int64(len(data)),
		Data:     data,
	})

	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "resolution")
}

func TestBasicAnalyzeUndecodableButValidExtension(t *testing.T) {
	// 无法解码时不做分辨率校验，按扩展名放行
	data := []byte("not an image")

	res, err := NewBasicClient().Analyze(context.Background(), Input{
		Filename: "sticker.jpg",
		Size:     int64(len(data)),
		Data:     data,
	})

	require.NoError(t, err)
	assert.True(t, res.OK)
}
