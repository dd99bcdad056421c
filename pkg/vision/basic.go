package vision

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"strings"

	// 注册解码器，image.DecodeConfig 依赖
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"stika/config"
)

var allowedExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".webp": true,
}

// BasicClient 本地基础校验：大小、扩展名、最小分辨率
type BasicClient struct{}

func NewBasicClient() *BasicClient {
	return &BasicClient{}
}

func (c *BasicClient) Analyze(ctx context.Context, in Input) (*Result, error) {
	cfg := config.Cfg

	if in.Size <= 0 {
		return &Result{OK: false, Reason: "image is empty"}, nil
	}

	if in.Size > cfg.VerificationImageMaxBytes {
		return &Result{
			OK:     false,
			Reason: fmt.Sprintf("image exceeds %d bytes", cfg.VerificationImageMaxBytes),
		}, nil
	}

	ext := strings.ToLower(filepath.Ext(in.Filename))
	if !allowedExtensions[ext] {
		return &Result{
			OK:     false,
			Reason: fmt.Sprintf("unsupported image extension %q", ext),
		}, nil
	}

	// 解码失败不直接判不通过，仅在能解码时才校验分辨率
	imgCfg, format, err := image.DecodeConfig(bytes.NewReader(in.Data))
	if err != nil {
		return &Result{OK: true, Format: strings.TrimPrefix(ext, ".")}, nil
	}

	minDim := cfg.VerificationImageMinDimension
	if imgCfg.Width < minDim || imgCfg.Height < minDim {
		return &Result{
			OK:     false,
			Reason: fmt.Sprintf("image resolution %dx%d below minimum %dx%d", imgCfg.Width, imgCfg.Height, minDim, minDim),
			Width:  imgCfg.Width,
			Height: imgCfg.Height,
			Format: format,
		}, nil
	}

	return &Result{
		OK:     true,
		Width:  imgCfg.Width,
		Height: imgCfg.Height,
		Format: format,
	}, nil
}
