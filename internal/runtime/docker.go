// Package runtime starts and stops service containers through the Docker
// daemon.
package runtime

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/rs/zerolog"

	"convoy/internal/core"
)

// DockerRuntime implements core.Runtime against the Docker daemon. All
// containers join one bridge network so services resolve each other by name;
// each service's port is additionally published on the loopback interface so
// readiness probes can reach it from the host.
type DockerRuntime struct {
	cli     *client.Client
	network string
	log     zerolog.Logger
}

// NewDockerRuntime creates a runtime using the environment's Docker daemon.
func NewDockerRuntime(networkName string, logger zerolog.Logger) (*DockerRuntime, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("failed to create docker client: %w", err)
	}
	return &DockerRuntime{
		cli:     cli,
		network: networkName,
		log:     logger.With().Str("component", "runtime").Logger(),
	}, nil
}

// Start pulls the service's image, creates its container, and starts it. The
// container is named after the service. On a failed start the created
// container is removed, best effort.
func (r *DockerRuntime) Start(ctx context.Context, svc *core.Service) (string, error) {
	if err := r.ensureNetwork(ctx); err != nil {
		return "", err
	}

	r.log.Info().Str("service", svc.Name).Str("image", svc.Image).Msg("pulling image")
	reader, err := r.cli.ImagePull(ctx, svc.Image, image.PullOptions{})
	if err != nil {
		return "", fmt.Errorf("failed to pull image %s: %w", svc.Image, err)
	}
	// Drain the pull progress stream; the daemon finishes the pull only once
	// it is consumed.
	if _, err := io.Copy(io.Discard, reader); err != nil {
		r.log.Warn().Err(err).Str("service", svc.Name).Msg("failed to drain image pull output")
	}
	reader.Close()

	cfg := &container.Config{
		Image: svc.Image,
		Env:   envList(svc),
		Tty:   false,
	}
	hostCfg := &container.HostConfig{
		Binds: svc.Volumes,
	}
	if svc.Port > 0 {
		port := nat.Port(fmt.Sprintf("%d/tcp", svc.Port))
		cfg.ExposedPorts = nat.PortSet{port: struct{}{}}
		hostCfg.PortBindings = nat.PortMap{
			port: []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: strconv.Itoa(svc.Port)}},
		}
	}
	netCfg := &network.NetworkingConfig{
		EndpointsConfig: map[string]*network.EndpointSettings{
			r.network: {Aliases: []string{svc.Name}},
		},
	}

	resp, err := r.cli.ContainerCreate(ctx, cfg, hostCfg, netCfg, nil, svc.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container for %s: %w", svc.Name, err)
	}

	if err := r.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		if rmErr := r.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true}); rmErr != nil {
			r.log.Warn().Err(rmErr).Str("service", svc.Name).Msg("failed to remove container after failed start")
		}
		return "", fmt.Errorf("failed to start container for %s: %w", svc.Name, err)
	}

	inspect, err := r.cli.ContainerInspect(ctx, resp.ID)
	if err == nil && inspect.State != nil && !inspect.State.Running {
		return "", fmt.Errorf("container for %s exited immediately (exit code %d)", svc.Name, inspect.State.ExitCode)
	}

	r.log.Info().Str("service", svc.Name).Str("container", resp.ID).Msg("container started")
	return resp.ID, nil
}

// Stop stops and removes the named service's container. A missing container
// is not an error; the goal is only that it is not running.
func (r *DockerRuntime) Stop(ctx context.Context, name string) error {
	if err := r.cli.ContainerStop(ctx, name, container.StopOptions{}); err != nil {
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to stop container %s: %w", name, err)
		}
		return nil
	}
	if err := r.cli.ContainerRemove(ctx, name, container.RemoveOptions{RemoveVolumes: false}); err != nil {
		if !client.IsErrNotFound(err) {
			return fmt.Errorf("failed to remove container %s: %w", name, err)
		}
	}
	r.log.Info().Str("service", name).Msg("container stopped and removed")
	return nil
}

// Restart restarts the named service's container in place, without
// re-pulling the image.
func (r *DockerRuntime) Restart(ctx context.Context, name string) error {
	if err := r.cli.ContainerRestart(ctx, name, container.StopOptions{}); err != nil {
		return fmt.Errorf("failed to restart container %s: %w", name, err)
	}
	r.log.Info().Str("service", name).Msg("container restarted")
	return nil
}

// ensureNetwork creates the shared bridge network if it does not exist.
func (r *DockerRuntime) ensureNetwork(ctx context.Context) error {
	if _, err := r.cli.NetworkInspect(ctx, r.network, network.InspectOptions{}); err == nil {
		return nil
	}
	if _, err := r.cli.NetworkCreate(ctx, r.network, network.CreateOptions{Driver: "bridge"}); err != nil {
		// A sibling start may have created it concurrently.
		if _, inspectErr := r.cli.NetworkInspect(ctx, r.network, network.InspectOptions{}); inspectErr == nil {
			return nil
		}
		return fmt.Errorf("failed to create network %s: %w", r.network, err)
	}
	r.log.Info().Str("network", r.network).Msg("network created")
	return nil
}

// envList flattens the service's environment, defaulting PORT from the
// declared listen port. User-defined values win.
func envList(svc *core.Service) []string {
	env := make(map[string]string, len(svc.Env)+1)
	if svc.Port > 0 {
		env["PORT"] = strconv.Itoa(svc.Port)
	}
	for k, v := range svc.Env {
		env[k] = v
	}
	list := make([]string, 0, len(env))
	for k, v := range env {
		list = append(list, k+"="+v)
	}
	return list
}
