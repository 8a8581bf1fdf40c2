package edgar

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/daryltucker/llm-pipeline/internal/output"
)

// Options control ProcessPath.
type Options struct {
	// EmitConfig is a config path written after a single-file extraction.
	EmitConfig string
	// Model is the model name used in the emitted config.
	Model string
}

var filingPatterns = []string{"*.htm", "*.html", "*.txt"}

// ProcessPath extracts a single filing to output, or every filing in the
// input directory into the output directory. It returns how many sections
// were written.
func ProcessPath(input, out string, opts Options) (int, error) {
	st, err := os.Stat(input)
	if err != nil {
		return 0, fmt.Errorf("invalid input path: %w", err)
	}

	if !st.IsDir() {
		ok, err := ProcessFile(input, out, opts)
		if err != nil || !ok {
			return 0, err
		}
		return 1, nil
	}

	if err := os.MkdirAll(out, 0755); err != nil {
		return 0, err
	}

	var files []string
	for _, pattern := range filingPatterns {
		matches, err := filepath.Glob(filepath.Join(input, pattern))
		if err != nil {
			return 0, err
		}
		files = append(files, matches...)
	}

	written := 0
	for _, f := range files {
		stem := strings.TrimSuffix(filepath.Base(f), filepath.Ext(f))
		dest := filepath.Join(out, stem+"_MD-and-A.txt")
		// config emission would clobber itself in directory mode
		ok, err := ProcessFile(f, dest, Options{Model: opts.Model})
		if err != nil {
			output.Logger.Error("Failed to process filing", "file", f, "error", err)
			continue
		}
		if ok {
			written++
		}
	}
	return written, nil
}

// ProcessFile extracts one filing. It reports false when no MD&A was found.
func ProcessFile(input, out string, opts Options) (bool, error) {
	output.Logger.Info("Parsing file", "file", input)

	section, ok, err := ExtractFile(input)
	if err != nil {
		return false, err
	}
	if !ok {
		output.Logger.Warn("MD&A not found", "file", input)
		return false, nil
	}

	if dir := filepath.Dir(out); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return false, err
		}
	}
	if err := os.WriteFile(out, []byte(section), 0644); err != nil {
		return false, err
	}
	output.Logger.Info("MD&A written", "file", out)

	if opts.EmitConfig != "" {
		promptID := strings.TrimSuffix(filepath.Base(out), filepath.Ext(out))
		if err := EmitConfig(opts.EmitConfig, out, opts.Model, promptID); err != nil {
			return true, err
		}
	}
	return true, nil
}
