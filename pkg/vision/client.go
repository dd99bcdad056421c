package vision

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"stika/config"
	"stika/pkg/logger"
)

// Input 待校验的照片
type Input struct {
	Filename string
	Size     int64
	Data     []byte
}

// Result 照片校验结论
type Result struct {
	OK     bool
	Reason string // 未通过时的原因
	Width  int
	Height int
	Format string
}

// Client 照片校验客户端接口
// 当前仅实现本地基础校验，后续可接入真正的 CV 服务
type Client interface {
	Analyze(ctx context.Context, in Input) (*Result, error)
}

var (
	visionClient Client
	visionOnce   sync.Once
	visionErr    error
)

// Init 初始化照片校验客户端
func Init() error {
	visionOnce.Do(func() {
		cfg := config.Cfg

		switch cfg.VisionProvider {
		case "basic":
			visionClient = NewBasicClient()
		case "mock":
			visionClient = NewMockClient()
		default:
			visionErr = fmt.Errorf("unsupported vision provider: %s", cfg.VisionProvider)
		}

		if visionErr != nil {
			logger.Logger.Error("Failed to initialize vision client", zap.Error(visionErr))
			return
		}

		logger.Logger.Info("Vision client initialized successfully",
			zap.String("provider", cfg.VisionProvider),
		)
	})

	return visionErr
}

func GetClient() Client {
	if visionClient == nil {
		panic("Vision client not initialized, call vision.Init() first")
	}
	return visionClient
}

func Analyze(ctx context.Context, in Input) (*Result, error) {
	return GetClient().Analyze(ctx, in)
}
