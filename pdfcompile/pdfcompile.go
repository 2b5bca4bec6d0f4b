// Package pdfcompile runs a LaTeX engine on a .tex file and reports
// the resulting PDF. The engine runs twice so cross-references and
// page totals settle.
package pdfcompile

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	passes      = 2
	passTimeout = 120 * time.Second
)

// Result describes one compilation.
type Result struct {
	PDFPath string
	Details []string
}

// Compiler shells out to a LaTeX engine.
type Compiler struct {
	// Command is the engine binary, pdflatex by default.
	Command string
	logger  zerolog.Logger
}

// New creates a Compiler. An empty command selects pdflatex.
func New(command string, logger zerolog.Logger) *Compiler {
	if command == "" {
		command = "pdflatex"
	}
	return &Compiler{
		Command: command,
		logger:  logger.With().Str("component", "pdfcompile").Logger(),
	}
}

// Compile runs the engine twice on texPath inside its own directory.
// On failure the returned error carries the first error lines from the
// engine output.
func (c *Compiler) Compile(ctx context.Context, texPath string) (*Result, error) {
	dir := filepath.Dir(texPath)
	name := filepath.Base(texPath)

	var output []byte
	for pass := 1; pass <= passes; pass++ {
		passCtx, cancel := context.WithTimeout(ctx, passTimeout)
		cmd := exec.CommandContext(passCtx, c.Command,
			"-interaction=nonstopmode", "-halt-on-error", name)
		cmd.Dir = dir
		out, err := cmd.CombinedOutput()
		cancel()
		output = out

		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			details := errorLines(out)
			c.logger.Error().Int("pass", pass).Strs("details", details).Msg("compilation failed")
			return &Result{Details: details}, fmt.Errorf("%s failed on pass %d: %w", c.Command, pass, err)
		}
		c.logger.Debug().Int("pass", pass).Msg("compilation pass complete")
	}

	pdfPath := strings.TrimSuffix(texPath, filepath.Ext(texPath)) + ".pdf"
	if _, err := os.Stat(pdfPath); err != nil {
		return &Result{Details: errorLines(output)}, fmt.Errorf("%s reported success but produced no PDF", c.Command)
	}
	return &Result{PDFPath: pdfPath}, nil
}

// errorLines pulls the "!" error lines out of engine output, capped at
// five so pipeline failures stay readable.
func errorLines(output []byte) []string {
	var lines []string
	for _, line := range bytes.Split(output, []byte("\n")) {
		if bytes.HasPrefix(bytes.TrimSpace(line), []byte("!")) {
			lines = append(lines, string(bytes.TrimSpace(line)))
			if len(lines) == 5 {
				break
			}
		}
	}
	return lines
}
