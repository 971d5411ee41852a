package pdftext

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
)

// CommandRunner runs an external program and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput()
}

// PageRenderer turns PDF bytes into one PNG per page, in page order.
type PageRenderer interface {
	Render(ctx context.Context, data []byte, maxPages int) ([][]byte, error)
}

// PopplerRenderer rasterizes pages with pdftoppm.
type PopplerRenderer struct {
	runner CommandRunner
	binary string
	dpi    int
}

// NewPopplerRenderer runs binary (default "pdftoppm") through runner, or os/exec when runner is nil.
func NewPopplerRenderer(runner CommandRunner, binary string) *PopplerRenderer {
	if runner == nil {
		runner = execRunner{}
	}
	if strings.TrimSpace(binary) == "" {
		binary = "pdftoppm"
	}
	return &PopplerRenderer{runner: runner, binary: binary, dpi: 150}
}

func (r *PopplerRenderer) Render(ctx context.Context, data []byte, maxPages int) ([][]byte, error) {
	dir, err := os.MkdirTemp("", "polis-render-*")
	if err != nil {
		return nil, fmt.Errorf("create render dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, data, 0o600); err != nil {
		return nil, fmt.Errorf("write render input: %w", err)
	}
	prefix := filepath.Join(dir, "page")

	args := []string{"-png", "-r", strconv.Itoa(r.dpi)}
	if maxPages > 0 {
		args = append(args, "-l", strconv.Itoa(maxPages))
	}
	args = append(args, input, prefix)
	if out, err := r.runner.Run(ctx, r.binary, args...); err != nil {
		return nil, fmt.Errorf("%s: %w: %s", r.binary, err, strings.TrimSpace(string(out)))
	}

	// pdftoppm pads page numbers to the same width within one run.
	files, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, fmt.Errorf("list rendered pages: %w", err)
	}
	sort.Strings(files)
	if len(files) == 0 {
		return nil, errors.New("renderer produced no pages")
	}

	pages := make([][]byte, 0, len(files))
	for _, file := range files {
		image, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read rendered page: %w", err)
		}
		pages = append(pages, image)
	}
	return pages, nil
}
