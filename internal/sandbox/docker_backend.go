package sandbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
)

const (
	labelRole = "socratic.role"
	roleValue = "syntax-check"

	// Containers idle on a day-long sleep; the Checker replaces one that has
	// exited.
	idleSeconds = "86400"
)

// DockerBackend runs checks in containers on the local Docker daemon.
type DockerBackend struct {
	cli *client.Client
}

// NewDockerBackend connects to Docker using the DOCKER_* environment and
// fails fast when the daemon does not answer.
func NewDockerBackend() (*DockerBackend, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, fmt.Errorf("docker daemon unreachable: %w", err)
	}
	return &DockerBackend{cli: cli}, nil
}

// Start launches an idle, locked-down Python container: no network, a
// read-only root filesystem and no capabilities. Sources reach it on stdin.
func (b *DockerBackend) Start(ctx context.Context, cfg Config) (string, error) {
	if err := b.pull(ctx, cfg.Image); err != nil {
		return "", err
	}

	pids := int64(16)
	initProc := true
	hc := &container.HostConfig{
		NetworkMode:    "none",
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		Init:           &initProc,
		Resources: container.Resources{
			Memory:    int64(cfg.MemoryMB) << 20,
			NanoCPUs:  int64(cfg.CPULimit * 1e9),
			PidsLimit: &pids,
		},
	}
	cc := &container.Config{
		Image:           cfg.Image,
		Cmd:             []string{"sleep", idleSeconds},
		User:            "nobody",
		NetworkDisabled: cfg.NetworkOff,
		Labels:          map[string]string{labelRole: roleValue},
	}

	created, err := b.cli.ContainerCreate(ctx, cc, hc, nil, nil, "")
	if err != nil {
		return "", fmt.Errorf("create %s container: %w", cfg.Image, err)
	}
	if err := b.cli.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		_ = b.cli.ContainerRemove(ctx, created.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("start container %s: %w", shortID(created.ID), err)
	}
	return created.ID, nil
}

// Running reports whether the container is up. A container Docker no
// longer knows about is simply not running.
func (b *DockerBackend) Running(ctx context.Context, id string) (bool, error) {
	info, err := b.cli.ContainerInspect(ctx, id)
	if client.IsErrNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return info.State != nil && info.State.Running, nil
}

// Run execs cmd in the container, feeding stdin and collecting the
// demultiplexed output. The timeout covers the whole exec.
func (b *DockerBackend) Run(ctx context.Context, id string, cmd []string, stdin string, timeout time.Duration) (*ExecResult, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	created, err := b.cli.ContainerExecCreate(ctx, id, container.ExecOptions{
		Cmd:          cmd,
		AttachStdin:  true,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		return nil, fmt.Errorf("exec create: %w", err)
	}

	started := time.Now()
	stream, err := b.cli.ContainerExecAttach(ctx, created.ID, container.ExecAttachOptions{})
	if err != nil {
		return nil, fmt.Errorf("exec attach: %w", err)
	}
	defer stream.Close()

	if _, err := io.WriteString(stream.Conn, stdin); err != nil {
		return nil, fmt.Errorf("write stdin: %w", err)
	}
	if err := stream.CloseWrite(); err != nil {
		return nil, fmt.Errorf("close stdin: %w", err)
	}

	var stdout, stderr bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdout, &stderr, stream.Reader); err != nil {
		return nil, fmt.Errorf("read exec output: %w", err)
	}

	state, err := b.cli.ContainerExecInspect(ctx, created.ID)
	if err != nil {
		return nil, fmt.Errorf("exec inspect: %w", err)
	}
	return &ExecResult{
		ExitCode: state.ExitCode,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(started),
	}, nil
}

// Remove force-removes the container.
func (b *DockerBackend) Remove(ctx context.Context, id string) error {
	err := b.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true})
	if client.IsErrNotFound(err) {
		return nil
	}
	return err
}

// Close releases the Docker client.
func (b *DockerBackend) Close() error {
	return b.cli.Close()
}

func (b *DockerBackend) pull(ctx context.Context, ref string) error {
	if _, err := b.cli.ImageInspect(ctx, ref); err == nil {
		return nil
	}
	progress, err := b.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	defer progress.Close()
	if _, err := io.Copy(io.Discard, progress); err != nil {
		return fmt.Errorf("pull %s: %w", ref, err)
	}
	return nil
}
