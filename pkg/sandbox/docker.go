package sandbox

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/google/uuid"
)

type DockerOptions struct {
	Host           string
	Pull           bool
	MaxOutputBytes int
	PidsLimit      int64
	NanoCPUs       int64
	// User 容器内运行用户，默认 nobody
	User string
}

// DockerRunner 每个测试用例一个一次性容器：无网络、限制内存与进程数
type DockerRunner struct {
	docker *client.Client
	opts   DockerOptions

	pulledMu sync.Mutex
	pulled   map[string]bool
}

func NewDockerRunner(opts DockerOptions) (*DockerRunner, error) {
	cli, err := client.NewClientWithOpts(
		client.WithHost(opts.Host),
		client.WithAPIVersionNegotiation(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	if opts.MaxOutputBytes <= 0 {
		opts.MaxOutputBytes = 64 * 1024
	}
	if opts.PidsLimit <= 0 {
		opts.PidsLimit = 64
	}
	if opts.NanoCPUs <= 0 {
		opts.NanoCPUs = 1_000_000_000
	}
	if opts.User == "" {
		opts.User = "65534:65534"
	}
	return &DockerRunner{docker: cli, opts: opts, pulled: make(map[string]bool)}, nil
}

func (r *DockerRunner) Name() string { return "docker" }

func (r *DockerRunner) Ping(ctx context.Context) error {
	if _, err := r.docker.Ping(ctx); err != nil {
		return fmt.Errorf("docker ping failed: %w", err)
	}
	return nil
}

func (r *DockerRunner) Run(ctx context.Context, req RunRequest) (RunResult, error) {
	lang, ok := LookupLanguage(req.Language)
	if !ok {
		return RunResult{}, fmt.Errorf("%w: %s", ErrUnsupportedLanguage, req.Language)
	}
	if err := r.ensureImage(ctx, lang.Image); err != nil {
		return RunResult{}, unavailable(err)
	}

	containerConfig := r.containerConfig(lang, req)
	hostConfig := r.hostConfig(req)

	resp, err := r.docker.ContainerCreate(ctx, containerConfig, hostConfig, nil, nil, "sandbox-"+uuid.NewString())
	if err != nil {
		return RunResult{}, unavailable(err)
	}
	defer func() {
		rmCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = r.docker.ContainerRemove(rmCtx, resp.ID, container.RemoveOptions{Force: true})
	}()

	runCtx, cancel := context.WithTimeout(ctx, req.Timeout)
	defer cancel()

	start := time.Now()
	if err := r.docker.ContainerStart(runCtx, resp.ID, container.StartOptions{}); err != nil {
		return RunResult{}, unavailable(err)
	}

	result := RunResult{}
	statusCh, errCh := r.docker.ContainerWait(runCtx, resp.ID, container.WaitConditionNotRunning)
	select {
	case st := <-statusCh:
		result.ExitCode = int(st.StatusCode)
	case err := <-errCh:
		if !errors.Is(runCtx.Err(), context.DeadlineExceeded) {
			if ctx.Err() != nil {
				return RunResult{}, ctx.Err()
			}
			return RunResult{}, unavailable(err)
		}
		result.TimedOut = true
	case <-runCtx.Done():
		if ctx.Err() != nil {
			return RunResult{}, ctx.Err()
		}
		result.TimedOut = true
	}
	result.Duration = time.Since(start)

	inspectCtx, cancelInspect := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelInspect()

	if result.TimedOut {
		_ = r.docker.ContainerKill(inspectCtx, resp.ID, "KILL")
		return result, nil
	}

	if info, err := r.docker.ContainerInspect(inspectCtx, resp.ID); err == nil && info.State != nil {
		result.MemoryExceeded = info.State.OOMKilled
	}

	stdout, stderr, err := r.readLogs(inspectCtx, resp.ID)
	if err != nil {
		return RunResult{}, unavailable(err)
	}
	result.Stdout = stdout
	result.Stderr = stderr
	// 约定：编译失败退出码 97
	result.CompileError = lang.Compile != "" && result.ExitCode == compileFailedExit
	return result, nil
}

const compileFailedExit = 97

func buildScript(lang Language) string {
	script := fmt.Sprintf(
		`mkdir -p /tmp/src && cd /tmp/src && printf '%%s' "$SANDBOX_CODE" | base64 -d > %s && printf '%%s' "$SANDBOX_STDIN" | base64 -d > stdin.txt && `,
		lang.File,
	)
	if lang.Compile != "" {
		script += fmt.Sprintf("{ %s || exit %d; } && ", lang.Compile, compileFailedExit)
	}
	return script + lang.Run + " < stdin.txt"
}

func (r *DockerRunner) readLogs(ctx context.Context, id string) (string, string, error) {
	logs, err := r.docker.ContainerLogs(ctx, id, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
	})
	if err != nil {
		return "", "", fmt.Errorf("failed to get logs: %w", err)
	}
	defer logs.Close()

	stdout := &limitedBuffer{max: r.opts.MaxOutputBytes}
	stderr := &limitedBuffer{max: r.opts.MaxOutputBytes}
	if _, err := stdcopy.StdCopy(stdout, stderr, logs); err != nil {
		return "", "", fmt.Errorf("failed to read logs: %w", err)
	}
	return stdout.String(), stderr.String(), nil
}

func (r *DockerRunner) ensureImage(ctx context.Context, image string) error {
	r.pulledMu.Lock()
	done := r.pulled[image]
	r.pulledMu.Unlock()
	if done {
		return nil
	}

	if _, _, err := r.docker.ImageInspectWithRaw(ctx, image); err != nil {
		if !r.opts.Pull {
			return fmt.Errorf("image %s not present: %w", image, err)
		}
		out, err := r.docker.ImagePull(ctx, image, types.ImagePullOptions{})
		if err != nil {
			return err
		}
		_, _ = io.Copy(io.Discard, out)
		out.Close()
	}

	r.pulledMu.Lock()
	r.pulled[image] = true
	r.pulledMu.Unlock()
	return nil
}

// limitedBuffer 超出上限的输出直接丢弃
type limitedBuffer struct {
	buf bytes.Buffer
	max int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if remain := b.max - b.buf.Len(); remain > 0 {
		if len(p) > remain {
			b.buf.Write(p[:remain])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	return b.buf.String()
}

// containerConfig 代码与输入经 base64 环境变量传入
func (r *DockerRunner) containerConfig(lang Language, req RunRequest) *container.Config {
	return &container.Config{
		Image:           lang.Image,
		Cmd:             []string{"sh", "-c", buildScript(lang)},
		WorkingDir:      "/tmp",
		User:            r.opts.User,
		NetworkDisabled: true,
		Env: []string{
			"SANDBOX_CODE=" + base64.StdEncoding.EncodeToString([]byte(req.Code)),
			"SANDBOX_STDIN=" + base64.StdEncoding.EncodeToString([]byte(req.Stdin)),
			"HOME=/tmp",
			"GOCACHE=/tmp/.gocache",
		},
		Labels: map[string]string{"collabhub.sandbox": "true"},
	}
}

// hostConfig 无网络、丢弃全部 capability、禁止提权，内存不允许 swap
func (r *DockerRunner) hostConfig(req RunRequest) *container.HostConfig {
	memory := int64(req.MemoryMB) * 1024 * 1024
	pids := r.opts.PidsLimit
	return &container.HostConfig{
		NetworkMode: "none",
		AutoRemove:  false,
		CapDrop:     []string{"ALL"},
		SecurityOpt: []string{"no-new-privileges"},
		Tmpfs:       map[string]string{"/tmp": "rw,exec,mode=1777,size=128m"},
		Resources: container.Resources{
			Memory:     memory,
			MemorySwap: memory,
			PidsLimit:  &pids,
			NanoCPUs:   r.opts.NanoCPUs,
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyDisabled},
	}
}
