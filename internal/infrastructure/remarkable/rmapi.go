// Package remarkable talks to the reMarkable cloud through the rmapi command-line tool.
package remarkable

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"ReaderSync/internal/domain"
	"ReaderSync/internal/ports"
)

const missingDirMarker = "directory doesn't exist"

// Result is the outcome of one rmapi invocation.
type Result struct {
	ExitCode int
	Stdout   []byte
	Stderr   []byte
}

// Runner executes rmapi with the given arguments.
type Runner interface {
	Run(ctx context.Context, args ...string) (Result, error)
}

// ExecRunner runs the real binary.
type ExecRunner struct {
	Binary string
}

// Run executes the binary. A non-zero exit is reported in Result, not as an error.
func (r ExecRunner) Run(ctx context.Context, args ...string) (Result, error) {
	bin := r.Binary
	if bin == "" {
		bin = "rmapi"
	}
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	if err != nil {
		return res, fmt.Errorf("run %s: %w", bin, err)
	}
	return res, nil
}

// Device is the DeviceStore backed by rmapi.
type Device struct {
	runner Runner
	logger *slog.Logger
}

var _ ports.DeviceStore = (*Device)(nil)

// NewDevice wires a runner.
func NewDevice(runner Runner, logger *slog.Logger) *Device {
	if runner == nil {
		runner = ExecRunner{}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Device{runner: runner, logger: logger}
}

// CheckBinary verifies rmapi is installed and runnable.
func (d *Device) CheckBinary(ctx context.Context) error {
	res, err := d.runner.Run(ctx, "version")
	if err != nil {
		return fmt.Errorf("couldn't find rmapi binary: %w", err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("couldn't find rmapi binary: %s", describe(res))
	}
	d.logger.Debug("rmapi available", "version", strings.TrimSpace(string(res.Stdout)))
	return nil
}

// List returns the document names in folder.
func (d *Device) List(ctx context.Context, folder string) ([]string, error) {
	res, err := d.runner.Run(ctx, "-ni", "ls", folder)
	if err != nil {
		return nil, fmt.Errorf("ls %s: %w", folder, err)
	}
	if res.ExitCode != 0 {
		if strings.Contains(string(res.Stderr), missingDirMarker) {
			return nil, fmt.Errorf("ls %s: %w", folder, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("ls %s: %s", folder, describe(res))
	}
	return parseListing(res.Stdout), nil
}

// parseListing keeps "[f]\t<name>" entries.
func parseListing(out []byte) []string {
	var names []string
	sc := bufio.NewScanner(bytes.NewReader(out))
	for sc.Scan() {
		kind, name, ok := strings.Cut(sc.Text(), "\t")
		if !ok || kind != "[f]" || name == "" {
			continue
		}
		names = append(names, name)
	}
	return names
}

// Mkdir creates folder.
func (d *Device) Mkdir(ctx context.Context, folder string) error {
	return d.simple(ctx, "mkdir "+folder, "mkdir", folder)
}

// Put uploads a local file into folder.
func (d *Device) Put(ctx context.Context, localPath, folder string) error {
	return d.simple(ctx, "put "+localPath, "-ni", "put", localPath, folder)
}

// Remove deletes a document.
func (d *Device) Remove(ctx context.Context, remotePath string) error {
	return d.simple(ctx, "rm "+remotePath, "-ni", "rm", remotePath)
}

type statResponse struct {
	CurrentPage int  `json:"CurrentPage"`
	PageCount   *int `json:"PageCount"`
}

// Stat reads the reading progress of a document.
func (d *Device) Stat(ctx context.Context, remotePath string) (domain.FileStat, error) {
	res, err := d.runner.Run(ctx, "-ni", "stat", remotePath)
	if err != nil {
		return domain.FileStat{}, fmt.Errorf("stat %s: %w", remotePath, err)
	}
	if res.ExitCode != 0 {
		return domain.FileStat{}, fmt.Errorf("stat %s: %s", remotePath, describe(res))
	}

	var body statResponse
	if err := json.Unmarshal(res.Stdout, &body); err != nil {
		return domain.FileStat{}, fmt.Errorf("stat %s: decode: %w", remotePath, err)
	}
	st := domain.FileStat{CurrentPage: body.CurrentPage}
	if body.PageCount != nil {
		st.PageCount = *body.PageCount
	}
	return st, nil
}

func (d *Device) simple(ctx context.Context, what string, args ...string) error {
	res, err := d.runner.Run(ctx, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", what, err)
	}
	if res.ExitCode != 0 {
		return fmt.Errorf("%s: %s", what, describe(res))
	}
	return nil
}

func describe(res Result) string {
	return fmt.Sprintf("exit code %d: %s %s", res.ExitCode,
		strings.TrimSpace(string(res.Stdout)), strings.TrimSpace(string(res.Stderr)))
}
