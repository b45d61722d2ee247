package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fyrsmithlabs/xtraceback/pkg/compat"
	"github.com/fyrsmithlabs/xtraceback/pkg/excepthook"
	"github.com/fyrsmithlabs/xtraceback/pkg/traceback"
	"github.com/spf13/cobra"
)

func newDemoCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Render a sample panic through a traceback scope",
		Long: `Run a function that panics inside a traceback scope. The panic is
recovered, rendered to stderr through the scope's formatter, and the
previous presentation state is restored afterwards.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDemo(cmd, *configPath)
		},
	}
}

func runDemo(cmd *cobra.Command, configPath string) error {
	ctx := cmd.Context()
	a, err := setup(ctx, configPath)
	if err != nil {
		return err
	}
	defer a.close(ctx)

	opts := []compat.Option{
		compat.WithLogger(a.logger),
		compat.WithTracer(a.tel.Tracer(instrumentationName)),
		compat.WithMeter(a.tel.Meter(instrumentationName)),
		compat.WithOutput(cmd.ErrOrStderr()),
		compat.WithTraceback(a.cfg.Traceback.Level),
	}
	if path := string(a.cfg.Traceback.CrashOutput); path != "" {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
		if err != nil {
			return fmt.Errorf("failed to open crash output %s: %w", path, err)
		}
		defer f.Close()
		opts = append(opts, compat.WithCrashOutput(f))
	}

	guard := compat.New(traceback.New(optionsFromConfig(a.cfg.Traceback)), opts...)

	err = guard.Run(func() (err error) {
		defer excepthook.Recover(&err)
		_ = lookupPort(map[string][]int{"http": {8080}}, "grpc")
		return nil
	})

	var pe *excepthook.PanicError
	if !errors.As(err, &pe) {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "recovered: %v\n", pe.Value)
	return err
}

func lookupPort(ports map[string][]int, name string) int {
	return firstPort(ports[name])
}

func firstPort(ports []int) int {
	return ports[0]
}
