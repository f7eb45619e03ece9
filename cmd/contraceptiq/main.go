// Package main implements the contraceptiq command line client.
//
// It runs the same assessment, eligibility and intake flows as the mobile
// app against local model files or a remote risk service.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/thebtf/contraceptiq/internal/config"
	"github.com/thebtf/contraceptiq/internal/remote"
	"github.com/thebtf/contraceptiq/pkg/models"
)

var Version = "dev"

// app holds state shared by the commands of one invocation.
type app struct {
	cfg        *config.Config
	configPath string
	remoteURL  string
	logLevel   string
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "contraceptiq",
		Short: "Contraceptive discontinuation risk and eligibility tools",
		Long: `contraceptiq scores discontinuation risk from intake answers, computes
WHO MEC eligibility, ranks methods by preference and hands intakes to
clinicians through consultation codes.

Answers are read from a JSON file, or from stdin when the file is "-".`,
		Version:      Version,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.setup(cmd)
		},
	}

	root.PersistentFlags().StringVar(&a.configPath, "config", config.SettingsPath(), "settings file (JSON or YAML)")
	root.PersistentFlags().StringVar(&a.remoteURL, "remote-url", "", "risk service URL (overrides settings)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "log level (overrides settings)")

	root.AddCommand(
		newAssessCmd(a),
		newMECCmd(),
		newRecommendCmd(),
		newIntakeCmd(a),
		newFeaturesCmd(),
	)
	return root
}

// setup loads settings and configures logging.
func (a *app) setup(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("load settings: %w", err)
	}
	if a.remoteURL != "" {
		cfg.RemoteURL = a.remoteURL
	}
	if a.logLevel != "" {
		cfg.LogLevel = a.logLevel
	}
	a.cfg = cfg

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: cmd.ErrOrStderr()})
	return nil
}

// remoteClient returns a client for the configured service, or nil.
func (a *app) remoteClient() *remote.Client {
	if a.cfg.RemoteURL == "" {
		return nil
	}
	return remote.NewClient(remote.Config{
		BaseURL:    a.cfg.RemoteURL,
		Timeout:    a.cfg.RemoteTimeout(),
		MaxRetries: a.cfg.RemoteMaxRetries,
	})
}

// readAnswers reads a JSON object of intake answers from path, or from in
// when path is "-".
func readAnswers(path string, in io.Reader) (map[string]any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read answers: %w", err)
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse answers: %w", err)
	}
	if nested, ok := raw["patient_data"].(map[string]any); ok {
		raw = nested
	}
	return raw, nil
}

// parseAnswers reads and normalizes answers, logging keys it does not know.
func parseAnswers(path string, in io.Reader) (map[string]any, models.PatientAnswers, error) {
	raw, err := readAnswers(path, in)
	if err != nil {
		return nil, nil, err
	}
	answers, ignored := models.ParseAnswers(raw)
	if len(ignored) > 0 {
		log.Warn().Strs("keys", ignored).Msg("Ignoring unrecognized intake fields")
	}
	return raw, answers, nil
}

// printJSON writes v as indented JSON.
func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
