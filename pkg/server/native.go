package server

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"

	"github.com/stackql/stackql-deploy/pkg/errors"
)

// nativeRuntime runs the stackql binary as a detached local process,
// tracked by a per-port pid file under the state dir.
type nativeRuntime struct {
	logger   *log.Logger
	stateDir string
}

func (r *nativeRuntime) Start(ctx context.Context, opts StartOptions) error {
	if opts.BinaryPath == "" {
		return errors.New(errors.ErrCodeServer, "stackql binary path is required for the native runtime")
	}
	if err := os.MkdirAll(r.stateDir, 0o755); err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to create state dir", err)
	}

	args := serverArgs(opts.Host, opts)
	r.logger.Debugf("starting server: %s %s", opts.BinaryPath, strings.Join(args, " "))

	logPath := filepath.Join(r.stateDir, fmt.Sprintf("stackql-%d.log", opts.Port))
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to open server log file", err)
	}
	defer logFile.Close()

	// The server must outlive this process, so the command carries no
	// context.
	cmd := exec.Command(opts.BinaryPath, args...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	if err := cmd.Start(); err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to start stackql server", err)
	}

	pid := cmd.Process.Pid
	if err := r.writePidFile(opts.Port, pid); err != nil {
		return err
	}
	r.logger.Debugf("server process started with pid %d, log at %s", pid, logPath)

	// Reap the child if it exits on its own so it never lingers as a
	// zombie while this process lives.
	go func() { _ = cmd.Wait() }()

	if err := waitReady(ctx, opts.Host, opts.Port, readyTimeout); err != nil {
		_ = cmd.Process.Kill()
		r.removePidFile(opts.Port)
		return err
	}
	return nil
}

func (r *nativeRuntime) Stop(ctx context.Context, port int) error {
	pid, err := r.readPidFile(port)
	if err != nil {
		return err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		r.removePidFile(port)
		return errors.Newf(errors.ErrCodeServer, "no process with pid %d", pid)
	}

	r.logger.Debugf("stopping server process %d", pid)
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		// SIGTERM is not deliverable on every platform; fall back to a
		// hard kill.
		if err := proc.Kill(); err != nil {
			return errors.Wrap(errors.ErrCodeServer, fmt.Sprintf("failed to stop process %d", pid), err)
		}
	}

	r.removePidFile(port)
	return nil
}

func (r *nativeRuntime) pidFilePath(port int) string {
	return filepath.Join(r.stateDir, fmt.Sprintf("stackql-%d.pid", port))
}

func (r *nativeRuntime) writePidFile(port, pid int) error {
	if err := os.WriteFile(r.pidFilePath(port), []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return errors.Wrap(errors.ErrCodeServer, "failed to write pid file", err)
	}
	return nil
}

func (r *nativeRuntime) readPidFile(port int) (int, error) {
	data, err := os.ReadFile(r.pidFilePath(port))
	if os.IsNotExist(err) {
		return 0, errors.Newf(errors.ErrCodeServer,
			"no pid file for port %d, the server may not have been started by stackql-deploy", port)
	}
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeServer, "failed to read pid file", err)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeServer, "malformed pid file", err)
	}
	return pid, nil
}

func (r *nativeRuntime) removePidFile(port int) {
	_ = os.Remove(r.pidFilePath(port))
}
