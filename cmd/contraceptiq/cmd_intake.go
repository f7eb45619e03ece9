package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/thebtf/contraceptiq/internal/features"
	"github.com/thebtf/contraceptiq/internal/remote"
)

var errNoRemote = errors.New("no remote service configured (set --remote-url or CONTRACEPTIQ_REMOTE_URL)")

func newIntakeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "intake",
		Short: "Hand intake answers to a clinician through a consultation code",
	}

	submit := &cobra.Command{
		Use:   "submit <answers.json>",
		Short: "Store answers on the service and print the consultation code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.remoteClient()
			if client == nil {
				return errNoRemote
			}
			raw, err := readAnswers(args[0], cmd.InOrStdin())
			if err != nil {
				return err
			}
			code, err := client.SubmitIntake(cmd.Context(), raw)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), code)
			return err
		},
	}

	fetch := &cobra.Command{
		Use:   "fetch <code>",
		Short: "Print the consultation record for a code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := a.remoteClient()
			if client == nil {
				return errNoRemote
			}
			rec, err := client.FetchIntake(cmd.Context(), strings.ToUpper(strings.TrimSpace(args[0])))
			if errors.Is(err, remote.ErrNotFound) {
				return fmt.Errorf("code %s is invalid or expired", args[0])
			}
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}

	cmd.AddCommand(submit, fetch)
	return cmd
}

func newFeaturesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "features",
		Short: "List model inputs in encoding order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			required := make(map[string]bool, len(features.RequiredKeys))
			for _, k := range features.RequiredKeys {
				required[string(k)] = true
			}
			for i, k := range features.FeatureOrder {
				mark := ""
				if required[string(k)] {
					mark = " *"
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%2d %s%s\n", i, k, mark); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
