package vision

import (
	"context"
	"errors"
	"sync"
)

type MockCall struct {
	Filename string
	Size     int64
}

// MockClient 可配置的照片校验 mock，实现 Client 接口
type MockClient struct {
	mu    sync.Mutex
	Calls []MockCall

	// RejectNext 置为 true 时，下一次调用返回不通过并自动复位
	RejectNext bool
	// FailNext 置为 true 时，下一次调用返回 mock 错误并自动复位
	FailNext bool
}

func NewMockClient() *MockClient {
	return &MockClient{
		Calls: make([]MockCall, 0),
	}
}

func (m *MockClient) Analyze(ctx context.Context, in Input) (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.Calls = append(m.Calls, MockCall{
		Filename: in.Filename,
		Size:     in.Size,
	})

	if m.FailNext {
		m.FailNext = false
		return nil, errors.New("mock vision failure")
	}

	if m.RejectNext {
		m.RejectNext = false
		return &Result{OK: false, Reason: "mock rejection"}, nil
	}

	return &Result{OK: true, Width: 640, Height: 480, Format: "jpeg"}, nil
}
