package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

type Judge0Options struct {
	URL    string
	APIKey string
	Host   string
	Client *http.Client
}

// Judge0 状态码
const (
	judge0Accepted          = 3
	judge0WrongAnswer       = 4
	judge0TimeLimitExceeded = 5
	judge0CompilationError  = 6
	judge0InternalError     = 13
	judge0ExecFormatError   = 14
)

// Judge0Runner 通过 Judge0 同步提交（wait=true）运行单个测试
type Judge0Runner struct {
	opts   Judge0Options
	client *http.Client
}

func NewJudge0Runner(opts Judge0Options) *Judge0Runner {
	client := opts.Client
	if client == nil {
		client = &http.Client{}
	}
	opts.URL = strings.TrimRight(opts.URL, "/")
	return &Judge0Runner{opts: opts, client: client}
}

func (r *Judge0Runner) Name() string { return "judge0" }

type judge0Submission struct {
	SourceCode    string  `json:"source_code"`
	LanguageID    int     `json:"language_id"`
	Stdin         string  `json:"stdin"`
	CPUTimeLimit  float64 `json:"cpu_time_limit"`
	WallTimeLimit float64 `json:"wall_time_limit"`
	MemoryLimit   int     `json:"memory_limit"`
}

type judge0Result struct {
	Stdout        *string `json:"stdout"`
	Stderr        *string `json:"stderr"`
	CompileOutput *string `json:"compile_output"`
	Message       *string `json:"message"`
	ExitCode      *int    `json:"exit_code"`
	Time          *string `json:"time"`
	Memory        *int    `json:"memory"`
	Status        struct {
		ID          int    `json:"id"`
		Description string `json:"description"`
	} `json:"status"`
}

func (r *Judge0Runner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	lang, ok := LookupLanguage(req.Language)
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}

	seconds := req.Timeout.Seconds()
	body, err := json.Marshal(judge0Submission{
		SourceCode:    base64.StdEncoding.EncodeToString([]byte(req.Code)),
		LanguageID:    lang.Judge0ID,
		Stdin:         base64.StdEncoding.EncodeToString([]byte(req.Stdin)),
		CPUTimeLimit:  seconds,
		WallTimeLimit: seconds * 2,
		MemoryLimit:   req.MemoryMB * 1024,
	})
	if err != nil {
		return RunResult{}, err
	}

	// 远端排队时间不算作用例超时，只给 HTTP 调用一个宽松上限
	callCtx, cancel := context.WithTimeout(ctx, req.Timeout*3+30*time.Second)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost,
		r.opts.URL+"/submissions?base64_encoded=true&wait=true", bytes.NewReader(body))
	if err != nil {
		return RunResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.opts.APIKey != "" {
		httpReq.Header.Set("X-RapidAPI-Key", r.opts.APIKey)
	}
	if r.opts.Host != "" {
		httpReq.Header.Set("X-RapidAPI-Host", r.opts.Host)
	}

	start := time.Now()
	resp, err := r.client.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return RunResult{}, ctx.Err()
		}
		return RunResult{}, unavailable(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return RunResult{}, unavailable(err)
	}
	if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
		return RunResult{}, unavailable(fmt.Errorf("judge0 status %d", resp.StatusCode))
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return RunResult{}, fmt.Errorf("judge0 rejected submission: status %d: %s", resp.StatusCode, string(data))
	}

	var res judge0Result
	if err := json.Unmarshal(data, &res); err != nil {
		return RunResult{}, unavailable(fmt.Errorf("decode judge0 response: %w", err))
	}
	return r.toResult(res, req, time.Since(start))
}

func (r *Judge0Runner) toResult(res judge0Result, req RunRequest, elapsed time.Duration) (RunResult, error) {
	switch res.Status.ID {
	case judge0InternalError, judge0ExecFormatError:
		return RunResult{}, unavailable(errors.New("judge0: " + res.Status.Description))
	}

	out := RunResult{Duration: elapsed}
	if res.Stdout != nil {
		decoded, err := base64.StdEncoding.DecodeString(*res.Stdout)
		if err != nil {
			return RunResult{}, fmt.Errorf("decode stdout: %w", err)
		}
		out.Stdout = string(decoded)
	}
	if res.Stderr != nil {
		if decoded, err := base64.StdEncoding.DecodeString(*res.Stderr); err == nil {
			out.Stderr = string(decoded)
		}
	}
	if res.ExitCode != nil {
		out.ExitCode = *res.ExitCode
	}

	switch res.Status.ID {
	case judge0Accepted, judge0WrongAnswer:
	case judge0TimeLimitExceeded:
		out.TimedOut = true
	case judge0CompilationError:
		out.CompileError = true
	default:
		// 7-12 运行时错误
		if out.ExitCode == 0 {
			out.ExitCode = 1
		}
		if res.Memory != nil && req.MemoryMB > 0 && *res.Memory >= req.MemoryMB*1024 {
			out.MemoryExceeded = true
		}
	}
	return out, nil
}
