package main

import (
	"fmt"
	"io"
	"os"

	"github.com/fyrsmithlabs/xtraceback/internal/config"
	"github.com/fyrsmithlabs/xtraceback/pkg/traceback"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

type formatFlags struct {
	color       string
	compact     bool
	hideRuntime bool
	context     int
}

func newFormatCmd(configPath *string) *cobra.Command {
	var flags formatFlags

	cmd := &cobra.Command{
		Use:   "format [file|-]",
		Short: "Render a goroutine dump from a file or stdin",
		Long: `Render a goroutine dump, as printed by the Go runtime on a crash or by
runtime.Stack, with source context and shortened paths.

Text before the first goroutine (the panic message) is kept as the header.

Examples:
  # Render a file
  xtraceback format crash.log

  # Render from stdin, without colour
  cat crash.log | xtraceback format --color never -

  # Show every goroutine separately, hiding runtime frames
  xtraceback format --compact=false --hide-runtime crash.log`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFormat(cmd, args, *configPath, flags)
		},
	}

	cmd.Flags().StringVar(&flags.color, "color", "", "colour output: auto, always or never")
	cmd.Flags().BoolVar(&flags.compact, "compact", true, "group goroutines with identical stacks")
	cmd.Flags().BoolVar(&flags.hideRuntime, "hide-runtime", false, "hide frames inside the Go runtime")
	cmd.Flags().IntVar(&flags.context, "context", 0, "source lines shown around each frame")
	return cmd
}

func runFormat(cmd *cobra.Command, args []string, configPath string, flags formatFlags) error {
	ctx := cmd.Context()
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	var in io.Reader
	name := "stdin"
	if len(args) == 0 || args[0] == "-" {
		in = cmd.InOrStdin()
	} else {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", args[0], err)
		}
		defer f.Close()
		in = f
		name = args[0]
	}

	dump, err := traceback.Parse(in)
	if err != nil {
		return fmt.Errorf("failed to parse %s: %w", name, err)
	}

	opts := optionsFromConfig(a.cfg.Traceback)
	if cmd.Flags().Changed("color") {
		opts.Color = traceback.ColorMode(flags.color)
	}
	if cmd.Flags().Changed("compact") {
		opts.Compact = flags.compact
	}
	if cmd.Flags().Changed("hide-runtime") {
		opts.HideRuntime = flags.hideRuntime
	}
	if cmd.Flags().Changed("context") {
		if flags.context < 0 {
			return fmt.Errorf("--context must be >= 0, got %d", flags.context)
		}
		opts.Context = flags.context
	}
	switch opts.Color {
	case traceback.ColorAuto, traceback.ColorAlways, traceback.ColorNever:
	default:
		return fmt.Errorf("--color must be auto, always or never, got %q", opts.Color)
	}

	a.logger.Debug(ctx, "rendering dump",
		zap.String("source", name),
		zap.Int("goroutines", len(dump.Goroutines)))

	return traceback.New(opts).Format(cmd.OutOrStdout(), nil, dump)
}

func optionsFromConfig(c config.TracebackConfig) traceback.Options {
	return traceback.Options{
		Color:        traceback.ColorMode(c.Color),
		ShortenPaths: c.ShortenPaths,
		Context:      c.Context,
		NoSource:     c.NoSource,
		HideRuntime:  c.HideRuntime,
		Compact:      c.Compact,
		MaxFrames:    c.MaxFrames,
	}
}
