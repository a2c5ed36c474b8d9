package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/olekukonko/tablewriter"
	"github.com/urfave/cli/v2"
	"golang.org/x/exp/slog"

	"tvmc/internal/ast"
	"tvmc/internal/codegen"
	"tvmc/internal/config"
	"tvmc/internal/loader"
	"tvmc/internal/semantic"
	"tvmc/internal/types"
)

const VERSION = "0.2.0"

var (
	configFlag = &cli.StringFlag{
		Name:  "config",
		Usage: "TOML file overriding VM limits and intrinsic tables",
	}
	debugFlag = &cli.BoolFlag{
		Name:  "debug",
		Usage: "Log pipeline events and dump the loaded contracts",
	}
	contractFlag = &cli.StringFlag{
		Name:  "contract",
		Usage: "Only process the named contract",
	}
	outFlag = &cli.StringFlag{
		Name:  "out",
		Value: "build",
		Usage: "Directory receiving the .code files",
	}
	functionFlag = &cli.StringFlag{
		Name:  "function",
		Usage: "Lay out this function's parameters instead of the persistent state",
	}
)

var (
	errorColor   = color.New(color.FgRed, color.Bold)
	warningColor = color.New(color.FgYellow)
	okColor      = color.New(color.FgGreen)
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorColor.Sprint("error:"), err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "tvmc",
		Usage:   "TVM backend for resolved smart-contract descriptions",
		Version: VERSION,
		Flags:   []cli.Flag{configFlag, debugFlag},
		Commands: []*cli.Command{
			{
				Name:      "check",
				Usage:     "Validate contracts against the ABI rules",
				ArgsUsage: "<contracts.yaml>",
				Flags:     []cli.Flag{contractFlag},
				Action:    checkCommand,
			},
			{
				Name:      "build",
				Usage:     "Validate contracts and write their TVM assembly",
				ArgsUsage: "<contracts.yaml>",
				Flags:     []cli.Flag{contractFlag, outFlag},
				Action:    buildCommand,
			},
			{
				Name:      "layout",
				Usage:     "Print the cell layout of a contract's state or a function's parameters",
				ArgsUsage: "<contracts.yaml>",
				Flags:     []cli.Flag{contractFlag, functionFlag},
				Action:    layoutCommand,
			},
			{
				Name:   "config",
				Usage:  "Print the effective configuration as TOML",
				Action: configCommand,
			},
		},
	}
}

// ---------------------------------------------------------------------------
// Shared setup
// ---------------------------------------------------------------------------

type session struct {
	cfg    *config.Config
	logger *slog.Logger
	target *codegen.Target
	tables *semantic.Tables
	unit   *ast.SourceUnit
}

func loadConfig(ctx *cli.Context) (*config.Config, error) {
	path := ctx.String(configFlag.Name)
	if path == "" {
		return config.Default(), nil
	}
	return config.Load(path)
}

func newSession(ctx *cli.Context) (*session, error) {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return nil, err
	}
	level := slog.LevelInfo
	if ctx.Bool(debugFlag.Name) {
		level = slog.LevelDebug
	}
	s := &session{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})),
		target: codegen.TargetFromConfig(cfg),
		tables: semantic.TablesFromConfig(cfg),
	}

	if ctx.NArg() != 1 {
		return nil, errors.Newf("expected one contract description, got %d arguments", ctx.NArg())
	}
	path := ctx.Args().First()
	s.logger.Debug("Loading contracts", "file", path, "target", s.target.String())
	if s.unit, err = loader.Load(path, s.logger); err != nil {
		return nil, err
	}
	if ctx.Bool(debugFlag.Name) {
		fmt.Fprint(os.Stderr, ast.DebugString(s.unit))
	}
	return s, nil
}

// contracts returns the contracts selected by --contract, or all of them.
func (s *session) contracts(ctx *cli.Context) ([]*ast.ContractDefinition, error) {
	name := ctx.String(contractFlag.Name)
	if name == "" {
		return s.unit.Contracts, nil
	}
	c := s.unit.Contract(name)
	if c == nil {
		return nil, errors.Newf("no contract named %q", name)
	}
	return []*ast.ContractDefinition{c}, nil
}

// validate checks every contract and prints the diagnostics. It returns the
// contracts that may proceed to emission.
func (s *session) validate(w io.Writer, contracts []*ast.ContractDefinition) ([]*ast.ContractDefinition, int, error) {
	opts := &semantic.Options{Tables: s.tables, Target: s.target, Logger: s.logger}
	var clean []*ast.ContractDefinition
	failed := 0
	for _, c := range contracts {
		diags, err := semantic.Check(c, s.unit.Pragmas, opts)
		if err != nil {
			return nil, 0, err
		}
		printDiagnostics(w, diags)
		if semantic.HasErrors(diags) {
			failed++
			continue
		}
		clean = append(clean, c)
	}
	return clean, failed, nil
}

func printDiagnostics(w io.Writer, diags []semantic.Diagnostic) {
	for _, d := range diags {
		severity := warningColor.Sprint(d.Severity)
		if d.Severity == semantic.Error {
			severity = errorColor.Sprint(d.Severity)
		}
		fmt.Fprintf(w, "%s: %s: %s\n", d.Pos, severity, d.Message)
	}
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

func checkCommand(ctx *cli.Context) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	contracts, err := s.contracts(ctx)
	if err != nil {
		return err
	}
	_, failed, err := s.validate(colorable.NewColorableStdout(), contracts)
	if err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d contract(s) failed validation", failed), 1)
	}
	okColor.Printf("%d contract(s) OK\n", len(contracts))
	return nil
}

func buildCommand(ctx *cli.Context) error {
	start := time.Now()
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	contracts, err := s.contracts(ctx)
	if err != nil {
		return err
	}
	clean, failed, err := s.validate(colorable.NewColorableStdout(), contracts)
	if err != nil {
		return err
	}
	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d contract(s) failed validation", failed), 1)
	}

	fmt.Println("Build artifacts:")
	for _, c := range clean {
		if c.Name == s.cfg.ABI.StdlibContract {
			continue
		}
		res, err := codegen.Generate(c, &codegen.Options{
			Target:   s.target,
			BuildDir: ctx.String(outFlag.Name),
			Logger:   s.logger,
		})
		if err != nil {
			return errors.Wrapf(err, "contract %s", c.Name)
		}
		fmt.Printf("  %-16s %s (%d fragments)\n", c.Name, res.CodeFile, len(res.Program.Functions))
	}
	fmt.Printf("Compile time: %s\n", time.Since(start))
	return nil
}

func layoutCommand(ctx *cli.Context) error {
	s, err := newSession(ctx)
	if err != nil {
		return err
	}
	name := ctx.String(contractFlag.Name)
	if name == "" {
		if len(s.unit.Contracts) == 0 {
			return errors.New("no contracts loaded")
		}
		name = s.unit.Contracts[len(s.unit.Contracts)-1].Name
	}
	c := s.unit.Contract(name)
	if c == nil {
		return errors.Newf("no contract named %q", name)
	}

	members, offset := codegen.StateMembers(c), 0
	if fname := ctx.String(functionFlag.Name); fname != "" {
		var fn *ast.FunctionDefinition
		for _, f := range c.Functions {
			if f.Name == fname {
				fn = f
				break
			}
		}
		if fn == nil {
			return errors.Newf("contract %s has no function %q", c.Name, fname)
		}
		members, offset = nil, 32
		for _, p := range fn.Params {
			members = append(members, types.Member{Name: p.Name, Type: p.Type})
		}
	}

	var entries []codegen.LayoutEntry
	if err := codegen.Catch(func() { entries = codegen.Layout(members, offset, s.target) }); err != nil {
		return err
	}
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Member", "Type", "Cell", "Bit offset", "Bits", "Refs"})
	for _, e := range entries {
		table.Append([]string{
			e.Path, e.Type.String(),
			strconv.Itoa(e.Cell), strconv.Itoa(e.BitOffset),
			strconv.Itoa(e.Bits), strconv.Itoa(e.Refs),
		})
	}
	table.Render()
	return nil
}

func configCommand(ctx *cli.Context) error {
	cfg, err := loadConfig(ctx)
	if err != nil {
		return err
	}
	out, err := config.Marshal(cfg)
	if err != nil {
		return errors.Wrap(err, "encoding configuration")
	}
	_, err = os.Stdout.Write(out)
	return err
}
