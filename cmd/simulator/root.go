package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/signalsfoundry/item-routing-simulator/core"
	"github.com/signalsfoundry/item-routing-simulator/internal/logging"
	"github.com/signalsfoundry/item-routing-simulator/internal/roundlog"
	"github.com/signalsfoundry/item-routing-simulator/internal/scenario"
	"github.com/signalsfoundry/item-routing-simulator/internal/service"
	"github.com/signalsfoundry/item-routing-simulator/model"
)

type rootOptions struct {
	logLevel  string
	logFormat string
}

func (o *rootOptions) logger(cmd *cobra.Command) logging.Logger {
	return logging.New(logging.Config{
		Level:  o.logLevel,
		Format: o.logFormat,
		Output: cmd.ErrOrStderr(),
	})
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	root := &cobra.Command{
		Use:          "simulator",
		Short:        "Simulate agents passing items in rounds",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", envOr("LOG_LEVEL", "warn"), "log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&opts.logFormat, "log-format", envOr("LOG_FORMAT", "text"), "log format (text or json)")

	root.AddCommand(newRunCmd(opts), newValidateCmd(opts), newConvertCmd())
	return root
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// loadInput reads the scenario at path, or the built-in example when
// path is empty.
func loadInput(path string) ([]model.AgentSpec, error) {
	if path == "" {
		return scenario.Canonical(), nil
	}
	return scenario.LoadFile(path)
}

type runOptions struct {
	input    string
	relief   string
	rounds   int
	traceOut string
	format   string
	dump     bool
}

type runOutput struct {
	Relief         string               `json:"relief"`
	Rounds         int                  `json:"rounds"`
	Modulus        uint64               `json:"modulus,omitempty"`
	Inspections    []uint64             `json:"inspections"`
	MonkeyBusiness uint64               `json:"monkey_business"`
	Queues         [][]model.WorryLevel `json:"queues,omitempty"`
}

func newRunCmd(root *rootOptions) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario and report monkey business",
		Long: "Run a scenario for a number of rounds and report per-agent inspection counts\n" +
			"and the product of the two highest. Without --input the built-in example is used.\n" +
			"Without --rounds, floor relief runs 20 rounds and modulus relief 10000.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd, root.logger(cmd))
		},
	}
	f := cmd.Flags()
	f.StringVarP(&o.input, "input", "i", "", "scenario file (.json, notes otherwise; .zst compressed accepted)")
	f.StringVar(&o.relief, "relief", "floor", "relief policy: floor or modulus")
	f.IntVarP(&o.rounds, "rounds", "n", 0, "rounds to run")
	f.StringVar(&o.traceOut, "trace-out", "", "write a zstd JSONL round trace to this path")
	f.StringVar(&o.format, "format", "text", "output format: text or json")
	f.BoolVar(&o.dump, "dump", false, "print final queues and inspection counts")
	return cmd
}

func (o *runOptions) run(cmd *cobra.Command, log logging.Logger) error {
	if o.format != "text" && o.format != "json" {
		return fmt.Errorf("unknown --format %q", o.format)
	}
	relief, err := service.ParseRelief(o.relief)
	if err != nil {
		return err
	}
	rounds := o.rounds
	if rounds == 0 {
		rounds = 20
		if relief.Kind() == core.ReliefModulus {
			rounds = 10000
		}
	}
	if rounds < 0 {
		return fmt.Errorf("--rounds must not be negative")
	}

	specs, err := loadInput(o.input)
	if err != nil {
		return err
	}
	engine, err := core.NewEngine(specs, relief, core.WithLogger(log))
	if err != nil {
		return err
	}

	var trace *roundlog.Writer
	if o.traceOut != "" {
		trace, err = roundlog.Create(o.traceOut)
		if err != nil {
			return err
		}
		trace.Attach(engine)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	runErr := engine.RunContext(ctx, rounds)
	if trace != nil {
		if err := trace.Close(); err != nil && runErr == nil {
			runErr = fmt.Errorf("round trace: %w", err)
		}
	}
	if runErr != nil {
		return runErr
	}

	score, err := engine.MonkeyBusiness()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if o.format == "json" {
		res := runOutput{
			Relief:         relief.String(),
			Rounds:         engine.RoundsCompleted(),
			Modulus:        engine.Modulus(),
			Inspections:    engine.InspectionCounts(),
			MonkeyBusiness: score,
		}
		if o.dump {
			res.Queues = engine.Queues()
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res)
	}
	return writeText(out, engine, relief, score, o.dump)
}

func writeText(w io.Writer, e *core.Engine, relief core.ReliefPolicy, score uint64, dump bool) error {
	if _, err := fmt.Fprintf(w, "relief: %s\nrounds: %d\n", relief, e.RoundsCompleted()); err != nil {
		return err
	}
	if e.Modulus() != 0 {
		if _, err := fmt.Fprintf(w, "modulus: %d\n", e.Modulus()); err != nil {
			return err
		}
	}
	if dump {
		if err := core.DumpQueues(w, e); err != nil {
			return err
		}
	}
	if err := core.DumpInspections(w, e); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "monkey business: %d\n", score)
	return err
}

func newValidateCmd(root *rootOptions) *cobra.Command {
	var input string
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check that a scenario parses and can run under both relief policies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := loadInput(input)
			if err != nil {
				return err
			}
			log := root.logger(cmd)
			if _, err := core.NewEngine(specs, core.FloorDivide(3), core.WithLogger(log)); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "ok: %d agents\n", len(specs))

			e, err := core.NewEngine(specs, core.ModulusReduction(), core.WithLogger(log))
			if err != nil {
				fmt.Fprintf(out, "modulus relief unavailable: %v\n", err)
				return nil
			}
			fmt.Fprintf(out, "modulus: %d\n", e.Modulus())
			return nil
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "scenario file")
	return cmd
}

func newConvertCmd() *cobra.Command {
	var input, output string
	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Convert a scenario to JSON",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			specs, err := loadInput(input)
			if err != nil {
				return err
			}
			if output == "" || output == "-" {
				return scenario.EncodeJSON(cmd.OutOrStdout(), specs)
			}
			f, err := os.Create(output)
			if err != nil {
				return err
			}
			if err := scenario.EncodeJSON(f, specs); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "", "scenario file")
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path (default stdout)")
	return cmd
}
