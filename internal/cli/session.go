package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/shaiso/tableflow/internal/domain"
)

// NewSessionCmd создаёт группу команд для сессий вычислителя.
func NewSessionCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Open, run and close evaluator sessions",
	}

	cmd.AddCommand(
		newSessionInitCmd(clientFn, outputFn),
		newSessionRunCmd(clientFn, outputFn),
		newSessionCloseCmd(clientFn, outputFn),
	)

	return cmd
}

func newSessionInitCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "init FLOW_ID",
		Short: "Open a session for a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			s, err := client.InitSession(args[0])
			if err != nil {
				return err
			}

			out.Success("Session opened: %s", s.SessionID)
			if s.Validation != "" {
				out.Detail("validation: " + s.Validation)
			}
			out.Print(
				[]string{"SESSION", "FLOW", "STATE"},
				[][]string{{s.SessionID, s.FlowID, s.State}},
				s,
			)
			return nil
		},
	}
}

func newSessionRunCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	var (
		setFile string
		changed []string
		subflow string
		full    bool
	)

	cmd := &cobra.Command{
		Use:   "run SESSION_ID",
		Short: "Run a pass, optionally replacing variables first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			req := RunRequest{Subflow: subflow, Changed: changed, Full: full}
			if setFile != "" {
				data, err := os.ReadFile(setFile)
				if err != nil {
					return fmt.Errorf("failed to read set file: %w", err)
				}
				req.Set, err = domain.DecodeVariables(data, domain.FormatFromPath(setFile))
				if err != nil {
					return fmt.Errorf("invalid set file: %w", err)
				}
			}

			res, err := client.RunSession(args[0], req)
			if err != nil {
				return err
			}

			out.Pass(res)
			return nil
		},
	}

	cmd.Flags().StringVar(&setFile, "set", "", "JSON or YAML file with a list of variables to replace")
	cmd.Flags().StringSliceVar(&changed, "changed", nil, "Variable IDs to mark as changed")
	cmd.Flags().StringVar(&subflow, "subflow", "", "Subflow to evaluate (default: main)")
	cmd.Flags().BoolVar(&full, "full", false, "Re-evaluate every element")

	return cmd
}

func newSessionCloseCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "close SESSION_ID",
		Short: "Close a session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.CloseSession(args[0]); err != nil {
				return err
			}

			out.Success("Session closed: %s", args[0])
			return nil
		},
	}
}
