package server

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"

	"github.com/stackql/stackql-deploy/pkg/errors"
)

const (
	// defaultImage is the official stackql server image.
	defaultImage = "stackql/stackql"

	// serverLabel marks containers started by stackql-deploy so
	// stop-server can find them. Its value is the published port.
	serverLabel = "io.stackql.deploy.server"
)

// dockerRuntime runs the stackql server in a labeled container with
// the pgwire port published on the host.
type dockerRuntime struct {
	logger *log.Logger
}

func (r *dockerRuntime) Start(ctx context.Context, opts StartOptions) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to create docker client", err)
	}
	defer cli.Close()

	img := opts.Image
	if img == "" {
		img = defaultImage
	}

	if _, err := cli.ImageInspect(ctx, img); err != nil {
		r.logger.Infof("pulling image %s...", img)
		reader, err := cli.ImagePull(ctx, img, image.PullOptions{})
		if err != nil {
			return errors.Wrap(errors.ErrCodeServer, fmt.Sprintf("failed to pull image %s", img), err)
		}
		_, _ = io.Copy(io.Discard, reader)
		reader.Close()
	}

	// The server binds all interfaces inside the container; the host
	// binding controls reachability.
	port := nat.Port(fmt.Sprintf("%d/tcp", opts.Port))
	config := &container.Config{
		Image:        img,
		Cmd:          serverArgs("0.0.0.0", opts),
		ExposedPorts: nat.PortSet{port: struct{}{}},
		Labels:       map[string]string{serverLabel: strconv.Itoa(opts.Port)},
	}
	hostConfig := &container.HostConfig{
		PortBindings: nat.PortMap{port: []nat.PortBinding{{HostPort: strconv.Itoa(opts.Port)}}},
	}

	name := fmt.Sprintf("stackql-server-%d", opts.Port)
	resp, err := cli.ContainerCreate(ctx, config, hostConfig, nil, nil, name)
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to create server container", err)
	}

	if err := cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return errors.Wrap(errors.ErrCodeServer, "failed to start server container", err)
	}
	r.logger.Debugf("server container %s started", resp.ID[:12])

	if err := waitReady(ctx, opts.Host, opts.Port, readyTimeout); err != nil {
		_ = cli.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return err
	}
	return nil
}

func (r *dockerRuntime) Stop(ctx context.Context, port int) error {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to create docker client", err)
	}
	defer cli.Close()

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%d", serverLabel, port)),
		),
	})
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to list server containers", err)
	}
	if len(containers) == 0 {
		return errors.Newf(errors.ErrCodeServer, "no stackql server container found for port %d", port)
	}

	for _, c := range containers {
		r.logger.Debugf("removing server container %s", c.ID[:12])
		if err := cli.ContainerStop(ctx, c.ID, container.StopOptions{}); err != nil {
			return errors.Wrap(errors.ErrCodeServer, "failed to stop server container", err)
		}
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{}); err != nil {
			return errors.Wrap(errors.ErrCodeServer, "failed to remove server container", err)
		}
	}
	return nil
}
