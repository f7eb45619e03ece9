package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/thebtf/contraceptiq/internal/apperr"
	"github.com/thebtf/contraceptiq/internal/assess"
	"github.com/thebtf/contraceptiq/internal/riskmodel"
)

func newAssessCmd(a *app) *cobra.Command {
	var noDevice bool

	cmd := &cobra.Command{
		Use:   "assess <answers.json>",
		Short: "Score discontinuation risk for one set of intake answers",
		Long: `Runs the on-device models from the configured model directory and falls
back to the remote service when they cannot produce a result.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, answers, err := parseAnswers(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}

			var predictor assess.Predictor
			onDevice := a.cfg.OnDeviceEnabled && !noDevice
			if onDevice {
				runner := riskmodel.NewRunner(
					riskmodel.NewONNXLoader(a.cfg.ONNXLibraryPath),
					riskmodel.BundleFromDir(a.cfg.ModelDir),
				)
				defer func() {
					_ = runner.Close()
					_ = riskmodel.ShutdownRuntime()
				}()
				predictor = runner
			}

			opts := []assess.Option{assess.WithOnDevice(onDevice)}
			if client := a.remoteClient(); client != nil {
				opts = append(opts, assess.WithRemote(client))
			}
			svc := assess.NewService(predictor, opts...)

			result, err := svc.AssessRisk(cmd.Context(), answers)
			if err != nil {
				return fmt.Errorf("%s: %w", apperr.UserMessage(err), err)
			}
			return printJSON(cmd.OutOrStdout(), result)
		},
	}

	cmd.Flags().BoolVar(&noDevice, "no-device", false, "skip on-device inference and use the remote service")
	return cmd
}
