// Package sandbox 在隔离环境中运行候选人代码：每次调用运行一个测试用例，
// 输出 stdout、是否超时或超内存。瞬时故障统一包装为 ErrUnavailable。
package sandbox

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrUnavailable 沙箱暂时不可用（daemon 不可达、远端 5xx 等），调用方可重试
var ErrUnavailable = errors.New("sandbox unavailable")

var ErrUnsupportedLanguage = errors.New("sandbox: unsupported language")

type RunRequest struct {
	Language string
	Code     string
	Stdin    string
	Timeout  time.Duration
	MemoryMB int
}

type RunResult struct {
	Stdout         string
	Stderr         string
	ExitCode       int
	TimedOut       bool
	MemoryExceeded bool
	CompileError   bool
	Duration       time.Duration
}

// Failed 非零退出、超时、超内存都算测试失败
func (r RunResult) Failed() bool {
	return r.TimedOut || r.MemoryExceeded || r.CompileError || r.ExitCode != 0
}

type Runner interface {
	Run(ctx context.Context, req RunRequest) (RunResult, error)
	Name() string
}

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}
