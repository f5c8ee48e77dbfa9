package archiver

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Packager turns a plaintext file into a password protected archive at outputPath.
type Packager interface {
	Package(ctx context.Context, inputPath, outputPath, passphrase string) error
}

// CommandPackager shells out to 7-Zip (or a compatible binary). The archive format
// follows the output extension.
type CommandPackager struct {
	toolPath string
	timeout  time.Duration
	log      *slog.Logger
}

func NewCommandPackager(toolPath string, timeout time.Duration, log *slog.Logger) *CommandPackager {
	return &CommandPackager{toolPath: toolPath, timeout: timeout, log: log}
}

func (p *CommandPackager) Package(ctx context.Context, inputPath, outputPath, passphrase string) error {
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, p.toolPath, toolArgs(inputPath, outputPath, passphrase)...)
	cmd.WaitDelay = 5 * time.Second
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		p.log.Error("archive tool failed.", slog.String("tool", p.toolPath), slog.Int("exit_code", exitCode),
			slog.String("stderr", truncate(stderr.String(), 1000)), slog.String("err", err.Error()))
		return fmt.Errorf("%w: %s exited with code %d", ErrPackaging, filepath.Base(p.toolPath), exitCode)
	}
	p.log.Debug("archive created.", slog.Duration("elapsed", time.Since(start)))

	return nil
}

func toolArgs(inputPath, outputPath, passphrase string) []string {
	args := []string{"a", "-p" + passphrase, "-y"}
	if strings.EqualFold(filepath.Ext(outputPath), ".zip") {
		args = append(args, "-mem=AES256")
	}
	return append(args, outputPath, inputPath)
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
