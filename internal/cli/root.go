// Package cli builds the netmirage command tree: plan, apply, destroy, and
// version.
package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/walexzzy/netmirage/internal/config"
	"github.com/walexzzy/netmirage/internal/setup"
	"github.com/walexzzy/netmirage/internal/worklinux"
	"github.com/walexzzy/netmirage/internal/worklog"
)

type outputFormat string

const (
	outHuman outputFormat = "human"
	outJSON  outputFormat = "json"
	outYAML  outputFormat = "yaml"
)

// Set implements pflag.Value for validation.
func (o *outputFormat) Set(v string) error {
	switch v {
	case string(outHuman), string(outJSON), string(outYAML):
		*o = outputFormat(v)
		return nil
	default:
		return fmt.Errorf("invalid output format: %s", v)
	}
}
func (o *outputFormat) String() string { return string(*o) }
func (o *outputFormat) Type() string   { return "outputFormat" }

// Version gets overridden via -ldflags at build time (e.g. -X github.com/walexzzy/netmirage/internal/cli.Version=v1.2.3)
var Version = "dev"

// Commit and BuildDate can also be injected (optional)
var (
	Commit    = ""
	BuildDate = ""
)

// Exit codes for different error classes, mirroring the error taxonomy
// internal/setup and internal/worklinux report against.
const (
	exitCodeInvalidInput         = 2
	exitCodeExhaustion           = 3
	exitCodeUnderspecified       = 4
	exitCodeTopologyInconsistent = 5
	exitCodeExternalFailure      = 6
	exitCodeUnsupportedPlatform  = 7
)

// NewRootCmd constructs a new *cobra.Command tree with isolated state.
func NewRootCmd(out io.Writer) *cobra.Command {
	var format = outHuman
	var configPath string
	var logLevel string

	rootCmd := &cobra.Command{Use: "netmirage", Short: "Plan and emulate large virtual networks", Long: "netmirage turns a GraphML topology description into a plan of namespace, interface, and route operations, and can apply that plan to the running kernel."}
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if !cmd.Flags().Changed("output") {
			if envFmt := os.Getenv("NETMIRAGE_FORMAT"); envFmt != "" {
				_ = format.Set(envFmt) // ignore invalid env value (explicit)
			}
		}
		return nil
	}
	rootCmd.SetOut(out)
	rootCmd.PersistentFlags().VarP(&format, "output", "o", "output format: human|json|yaml")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "netmirage.yaml", "path to the YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "minimum log level: debug|info|warning|error")

	render := func(v any) error {
		w := rootCmd.OutOrStdout()
		switch format {
		case outHuman, "":
			_, err := fmt.Fprintln(w, v)
			return err
		case outJSON:
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(v)
		case outYAML:
			enc := yaml.NewEncoder(w)
			if err := enc.Encode(v); err != nil {
				_ = enc.Close()
				return err
			}
			return enc.Close()
		default:
			return errors.New("unknown output format")
		}
	}

	renderCalls := func(calls []setup.Call) error {
		if format == outHuman {
			for _, c := range calls {
				if _, err := fmt.Fprintln(rootCmd.OutOrStdout(), c.String()); err != nil {
					return err
				}
			}
			return nil
		}
		type record struct {
			Op   string   `json:"op" yaml:"op"`
			Args []string `json:"args" yaml:"args"`
		}
		records := make([]record, len(calls))
		for i, c := range calls {
			records[i] = record{Op: c.Method, Args: c.Args}
		}
		return render(records)
	}

	newLogSink := func() *worklog.Logrus {
		logger := logrus.New()
		logger.SetOutput(rootCmd.ErrOrStderr())
		if lvl, err := logrus.ParseLevel(logLevel); err == nil {
			logger.SetLevel(lvl)
		}
		return worklog.New(logger)
	}

	loadDriverInputs := func() (config.Config, setup.SetupParams, setup.SetupGraphMLParams, error) {
		cfg, err := config.Load(configPath)
		if err != nil {
			return config.Config{}, setup.SetupParams{}, setup.SetupGraphMLParams{}, err
		}
		params, gmlParams, err := cfg.ToSetupParams()
		if err != nil {
			return config.Config{}, setup.SetupParams{}, setup.SetupGraphMLParams{}, err
		}
		return cfg, params, gmlParams, nil
	}

	topologySource := func(cfg config.Config) setup.Source {
		if cfg.SrcFile == "" {
			return setup.Source{Seekable: false, Open: func() (io.Reader, error) { return os.Stdin, nil }}
		}
		return setup.Source{
			Seekable: true,
			Open:     func() (io.Reader, error) { return os.Open(cfg.SrcFile) },
		}
	}

	// ---- Commands ----

	planCmd := &cobra.Command{Use: "plan", Short: "Compute a network plan without touching the kernel", Long: "plan loads the configured topology, runs the full setup driver against an in-memory recorder, and prints every operation the driver would have asked the host to perform.", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, params, gmlParams, err := loadDriverInputs()
		if err != nil {
			return err
		}
		rec := setup.NewRecorder()
		driver := setup.NewDriver(params, rec, newLogSink())
		if err := driver.Run(gmlParams, topologySource(cfg)); err != nil {
			return err
		}
		return renderCalls(rec.Calls)
	}}

	applyCmd := &cobra.Command{Use: "apply", Short: "Apply a network plan to the running kernel", Long: "apply performs the same planning as plan, but backs every operation with real network-namespace and veth plumbing. It requires Linux and CAP_NET_ADMIN.", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, params, gmlParams, err := loadDriverInputs()
		if err != nil {
			return err
		}
		host := worklinux.New(params.NSPrefix)
		driver := setup.NewDriver(params, host, newLogSink())
		return driver.Run(gmlParams, topologySource(cfg))
	}}

	destroyCmd := &cobra.Command{Use: "destroy", Short: "Tear down every namespace previously created by apply", RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		host := worklinux.New(cfg.NSPrefix)
		deleted, err := host.DestroyHosts()
		if err != nil {
			return err
		}
		return render(fmt.Sprintf("removed %d namespaces", deleted))
	}}

	versionCmd := &cobra.Command{Use: "version", Short: "Print version information", RunE: func(cmd *cobra.Command, args []string) error {
		return render(map[string]string{"version": Version, "commit": Commit, "build_date": BuildDate})
	}}

	rootCmd.AddCommand(planCmd, applyCmd, destroyCmd, versionCmd)
	return rootCmd
}

// Execute builds and runs the CLI using os.Stdout.
func Execute() {
	cmd := NewRootCmd(os.Stdout)
	if err := cmd.Execute(); err != nil {
		code := 1
		switch {
		case errors.Is(err, setup.ErrInvalidInput):
			code = exitCodeInvalidInput
		case errors.Is(err, setup.ErrExhaustion):
			code = exitCodeExhaustion
		case errors.Is(err, setup.ErrUnderspecified):
			code = exitCodeUnderspecified
		case errors.Is(err, setup.ErrTopologyInconsistent):
			code = exitCodeTopologyInconsistent
		case errors.Is(err, setup.ErrExternalFailure), errors.Is(err, setup.ErrBug):
			code = exitCodeExternalFailure
		case errors.Is(err, worklinux.ErrUnsupportedPlatform):
			code = exitCodeUnsupportedPlatform
		}
		fmt.Fprintf(os.Stderr, "netmirage: %v\n", err)
		os.Exit(code)
	}
}
