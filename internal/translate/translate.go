// Package translate drives the external translator subprocess: building its
// command line, escalating to the OCR workaround when plain runs fail, and
// locating the mono output file the tool leaves behind.
package translate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/pdfduo/pdfduo/internal/config"
	"github.com/pdfduo/pdfduo/internal/fsx"
)

// watermarkTokens are the flag values accepted by different translator
// versions for unwatermarked output; they are tried in order.
var watermarkTokens = []string{"NoWaterMark", "no_watermark"}

// ErrOutputNotFound means the translator exited zero but left no mono file
// behind.
var ErrOutputNotFound = errors.New("translator produced no output")

const tempInputPrefix = "__temp_input_"

const maxAttempts = 3

// Invoker runs the translator executable.
type Invoker struct {
	cfg    config.Translator
	logger *slog.Logger

	// runCmd is swappable for tests.
	runCmd func(ctx context.Context, name string, args []string, dir string) error
}

// NewInvoker builds an Invoker from the translator configuration.
func NewInvoker(cfg config.Translator, logger *slog.Logger) *Invoker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Invoker{
		cfg:    cfg,
		logger: logger,
		runCmd: func(ctx context.Context, name string, args []string, dir string) error {
			cmd := exec.CommandContext(ctx, name, args...)
			cmd.Dir = dir
			return cmd.Run()
		},
	}
}

// ExpectedMonoPath returns where the translator writes the translated-only
// document for the given input stem.
func ExpectedMonoPath(outDir, stem, langOut string) string {
	return filepath.Join(outDir, fmt.Sprintf("%s.no_watermark.%s.mono.pdf", stem, langOut))
}

// isPrintableASCII reports whether every rune of s is printable ASCII. The
// translator mangles output names derived from anything else.
func isPrintableASCII(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7e {
			return false
		}
	}
	return true
}

// buildArgs assembles the translator command line for one invocation.
func (i *Invoker) buildArgs(input, outDir, watermarkToken string, ocr bool) []string {
	args := []string{
		"--no-dual",
		"--lang-in", i.cfg.LangIn,
		"--lang-out", i.cfg.LangOut,
		"--watermark-output-mode", watermarkToken,
		"--qps", strconv.Itoa(i.cfg.QPS),
		"--no-auto-extract-glossary",
		"--output", outDir,
	}
	if ocr {
		args = append(args, "--ocr-workaround")
	}

	switch i.cfg.Service {
	case "pro":
		args = append(args, "--siliconflow", "--siliconflow-model", i.cfg.Model)
		if i.cfg.APIKey != "" {
			args = append(args, "--siliconflow-api-key", i.cfg.APIKey)
		}
		if i.cfg.BaseURL != "" {
			args = append(args, "--siliconflow-base", i.cfg.BaseURL)
		}
	default:
		args = append(args, "--siliconflowfree")
	}

	return append(args, input)
}

// unrecoverable reports whether retrying the invocation cannot help. A
// wall-clock timeout is recoverable: the OCR workaround sometimes unsticks a
// document the plain run hangs on.
func unrecoverable(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, exec.ErrNotFound)
}

// run executes the translator once, trying each watermark token until one is
// accepted. A nonzero exit is how old versions reject an unknown token, so
// only exit errors advance to the next token.
func (i *Invoker) run(ctx context.Context, input, outDir string, ocr bool) error {
	runCtx := ctx
	if i.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, i.cfg.Timeout)
		defer cancel()
	}

	var lastErr error
	for _, token := range watermarkTokens {
		args := i.buildArgs(input, outDir, token, ocr)
		i.logger.Debug("running translator", "exe", i.cfg.Exe, "input", input, "token", token, "ocr", ocr)

		err := i.runCmd(runCtx, i.cfg.Exe, args, outDir)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return fmt.Errorf("translator interrupted: %w", ctx.Err())
		}
		if runCtx.Err() != nil {
			return fmt.Errorf("translator timed out after %s: %w", i.cfg.Timeout, runCtx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			lastErr = fmt.Errorf("translator failed: %w", err)
			continue
		}
		return fmt.Errorf("starting translator: %w", err)
	}
	return lastErr
}

// findLatestMatch returns the newest file matching pattern, or "" when none
// match.
func findLatestMatch(pattern string) string {
	matches, err := filepath.Glob(pattern)
	if err != nil || len(matches) == 0 {
		return ""
	}
	var newest string
	var newestMod time.Time
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			continue
		}
		if newest == "" || info.ModTime().After(newestMod) {
			newest = m
			newestMod = info.ModTime()
		}
	}
	return newest
}

// invoke runs the translator once for input, working around non-ASCII
// filenames with a temporary copy, and returns the mono output path.
func (i *Invoker) invoke(ctx context.Context, input, outDir string, ocr bool) (string, error) {
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	expected := ExpectedMonoPath(outDir, stem, i.cfg.LangOut)

	runInput := input
	tempStem := ""
	if !isPrintableASCII(stem) {
		tempStem = tempInputPrefix + uuid.NewString()[:8]
		runInput = filepath.Join(outDir, tempStem+".pdf")
		if err := fsx.CopyFile(input, runInput); err != nil {
			return "", fmt.Errorf("staging ascii input copy: %w", err)
		}
		defer os.Remove(runInput)
	}

	if err := i.run(ctx, runInput, outDir, ocr); err != nil {
		return "", err
	}

	if tempStem != "" {
		// The output is named after the temporary stem; give it back the
		// real name.
		produced := findLatestMatch(filepath.Join(outDir, tempStem+"*mono.pdf"))
		if produced == "" {
			return "", fmt.Errorf("%w for %s", ErrOutputNotFound, input)
		}
		if err := os.Rename(produced, expected); err != nil {
			return "", fmt.Errorf("renaming translator output: %w", err)
		}
	}

	if _, err := os.Stat(expected); err == nil {
		return expected, nil
	}
	// Some translator versions name the output slightly differently; accept
	// the newest mono file derived from the input stem.
	if produced := findLatestMatch(filepath.Join(outDir, stem+"*mono.pdf")); produced != "" {
		return produced, nil
	}
	return "", fmt.Errorf("%w for %s", ErrOutputNotFound, input)
}

// Translate produces the translated-only document for input, escalating to
// the OCR workaround on failure. A third invocation is made only when the
// OCR attempt exits zero but its output cannot be located; any other failure
// of the OCR attempt is final. usedOCR reports whether the successful
// attempt ran with the workaround.
func (i *Invoker) Translate(ctx context.Context, input, outDir string) (monoPath string, usedOCR bool, err error) {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ocr := attempt > 1
		path, err := i.invoke(ctx, input, outDir, ocr)
		if err == nil {
			return path, ocr, nil
		}
		if unrecoverable(err) {
			return "", false, err
		}
		i.logger.Warn("translation attempt failed", "input", input, "attempt", attempt, "ocr", ocr, "error", err)
		lastErr = err
		if attempt == 2 && !errors.Is(err, ErrOutputNotFound) {
			break
		}
	}
	return "", false, fmt.Errorf("translation failed after ocr fallback: %w", lastErr)
}

// CleanupNewCSVs removes CSV files in dir modified at or after since. The
// translator drops progress CSVs next to its output; only files from this
// run are touched. Returns the removed filenames.
func CleanupNewCSVs(dir string, since time.Time) []string {
	cutoff := since.Add(-time.Second)
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil
	}
	var removed []string
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil || info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(m); err == nil {
			removed = append(removed, filepath.Base(m))
		}
	}
	return removed
}
