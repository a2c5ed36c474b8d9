package codegen

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"golang.org/x/exp/slog"

	"tvmc/internal/ast"
)

// ---------------------------------------------------------------------------
// Options controls the behaviour of the code-generation pipeline.
// ---------------------------------------------------------------------------

// Options configures the codegen pipeline.
type Options struct {
	// Target VM limits. If nil, the default configuration is used.
	Target *Target

	// BuildDir is the directory where all build artifacts are written.
	// Defaults to "./build" relative to the working directory.
	BuildDir string

	// OutputName is the base name for the output file (without extension).
	// Defaults to the contract name.
	OutputName string

	// Logger receives pipeline events. Nil discards them.
	Logger *slog.Logger

	// SkipWrite stops after rendering the listing.
	SkipWrite bool
}

// DefaultOptions returns sensible defaults (default target, build/ directory).
func DefaultOptions() *Options {
	return &Options{
		BuildDir: "build",
	}
}

// ---------------------------------------------------------------------------
// Result is returned by Generate with everything the pipeline produced.
// ---------------------------------------------------------------------------

type Result struct {
	Program  *Program
	Listing  string // assembly text
	CodeFile string // path to the .code file (empty if SkipWrite)
}

// ---------------------------------------------------------------------------
// Generate: the public entry point for the full codegen pipeline
//
// Pipeline: validated contract → fragments (lower) → listing (emit) → .code file
// ---------------------------------------------------------------------------

// Generate runs the code-generation pipeline on a validated contract.
func Generate(contract *ast.ContractDefinition, opts *Options) (*Result, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	target := opts.Target
	if target == nil {
		target = DefaultTarget()
	}
	logger := opts.Logger
	if logger == nil {
		logger = discardLogger()
	}

	// --- Determine output name ---
	outputName := opts.OutputName
	if outputName == "" {
		outputName = contract.Name
	}
	// Sanitize: replace dots/spaces/separators with underscores.
	outputName = strings.Map(func(r rune) rune {
		if r == '.' || r == ' ' || r == '/' || r == '\\' {
			return '_'
		}
		return r
	}, outputName)

	// --- Step 1: Lower ---
	logger.Debug("Lowering contract", "contract", contract.Name, "target", target.String())
	prog, err := Lower(contract, target, logger)
	if err != nil {
		return nil, err
	}
	result := &Result{Program: prog}

	// --- Step 2: Emit listing ---
	result.Listing = Emit(prog)
	if opts.SkipWrite {
		return result, nil
	}

	// --- Step 3: Write .code file ---
	buildDir := opts.BuildDir
	if buildDir == "" {
		buildDir = "build"
	}
	if err := os.MkdirAll(buildDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "cannot create build directory %s", buildDir)
	}
	path := filepath.Join(buildDir, outputName+".code")
	if err := os.WriteFile(path, []byte(result.Listing), 0644); err != nil {
		return nil, errors.Wrapf(err, "cannot write %s", path)
	}
	result.CodeFile = path
	logger.Info("Wrote code", "file", path, "fragments", len(prog.Functions))
	return result, nil
}
