// Package runner is the host side of the CLI contract: it spawns the analyzer
// binary for one image and decodes the JSON document it prints.
package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/logging"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/internal/utils"
	"github.com/RanaMohamed6720/Pets-Detection-Segmentation-Web-Application/pkg/types"
)

// DefaultTimeout bounds a single analyzer run
const DefaultTimeout = 60 * time.Second

// ErrTimeout is returned when the analyzer does not finish in time
var ErrTimeout = errors.New("analyzer timed out")

// Runner invokes the analyzer binary
type Runner struct {
	binary  string
	args    []string
	timeout time.Duration
	logger  *logrus.Logger
}

// Option configures a Runner
type Option func(*Runner)

// WithTimeout sets the per-run timeout
func WithTimeout(d time.Duration) Option {
	return func(r *Runner) { r.timeout = d }
}

// WithArgs adds arguments placed before the image path, such as flags
func WithArgs(args ...string) Option {
	return func(r *Runner) { r.args = append(r.args, args...) }
}

// WithLogger sets the logger used for child stderr and temp file handling
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// New creates a runner for binary
func New(binary string, opts ...Option) *Runner {
	r := &Runner{binary: binary, timeout: DefaultTimeout, logger: logging.Discard()}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// AnalyzeBytes writes the image to a temp file, analyzes it and removes the file
func (r *Runner) AnalyzeBytes(ctx context.Context, image io.Reader) (*types.AnalysisResult, error) {
	path, err := utils.WriteTempFile("pet-*.jpg", image)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer func() {
		if err := os.Remove(path); err != nil {
			r.logger.WithError(err).WithField("path", path).Warn("failed to delete temp file")
		}
	}()

	if info, err := os.Stat(path); err == nil {
		r.logger.WithFields(logrus.Fields{"path": path, "size": utils.FormatFileSize(info.Size())}).Debug("temp image written")
	}
	return r.Analyze(ctx, path)
}

// Analyze runs the analyzer on imagePath.
//
// A failure document printed by the analyzer is returned as a result, not an
// error, whatever the exit code. An error means no document could be read.
func (r *Runner) Analyze(ctx context.Context, imagePath string) (*types.AnalysisResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	args := append(append([]string(nil), r.args...), imagePath)
	cmd := exec.CommandContext(ctx, r.binary, args...)
	// children that inherited the pipes must not keep Wait blocked after a kill
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	runErr := cmd.Run()
	r.logStderr(stderr.Bytes())

	if ctx.Err() == context.DeadlineExceeded {
		return nil, errors.Wrapf(ErrTimeout, "after %s", r.timeout)
	}

	result, parseErr := parseOutput(stdout.Bytes())
	if parseErr == nil {
		r.logger.WithFields(logrus.Fields{
			"image":   imagePath,
			"success": result.Success,
			"elapsed": time.Since(start).String(),
		}).Debug("analyzer finished")
		return result, nil
	}

	output := strings.TrimSpace(stdout.String() + "\n" + stderr.String())
	if runErr != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			code = exitErr.ExitCode()
		}
		return nil, errors.Wrapf(runErr, "analyzer failed (exit code %d):\n%s", code, output)
	}
	return nil, errors.Wrapf(parseErr, "unreadable analyzer output:\n%s", output)
}

func (r *Runner) logStderr(data []byte) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			r.logger.WithField("stream", "stderr").Debug(line)
		}
	}
}

// parseOutput decodes the last line of output that holds a JSON object
func parseOutput(out []byte) (*types.AnalysisResult, error) {
	lines := strings.Split(strings.TrimSpace(string(out)), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		line := strings.TrimSpace(lines[i])
		if !strings.HasPrefix(line, "{") {
			continue
		}
		var result types.AnalysisResult
		if err := json.Unmarshal([]byte(line), &result); err != nil {
			return nil, errors.Wrap(err, "invalid result document")
		}
		return &result, nil
	}
	return nil, errors.New("no result document in output")
}
