package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shaiso/tableflow/internal/domain"
)

// NewFlowCmd создаёт группу команд для управления flows.
func NewFlowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flow",
		Short: "Manage flows",
	}

	cmd.AddCommand(
		newFlowListCmd(clientFn, outputFn),
		newFlowShowCmd(clientFn, outputFn),
		newFlowPushCmd(clientFn, outputFn),
		newFlowDeleteCmd(clientFn, outputFn),
		newFlowSignatureCmd(clientFn, outputFn),
	)

	return cmd
}

func newFlowListCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all flows",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			flows, err := client.ListFlows()
			if err != nil {
				return err
			}

			headers := []string{"ID", "NAME", "WORKFLOW", "MAIN", "SUBFLOWS", "UPDATED"}
			rows := make([][]string, len(flows))
			for i, f := range flows {
				rows[i] = []string{f.ID, f.Name, f.Workflow, f.Main, strconv.Itoa(len(f.Subflows)), f.UpdatedAt}
			}

			out.Print(headers, rows, flows)
			return nil
		},
	}
}

func newFlowShowCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show flow subflows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			resp, err := client.GetFlow(args[0])
			if err != nil {
				return err
			}
			if resp.Flow == nil {
				return fmt.Errorf("flow %s has no body", args[0])
			}

			out.Print(
				[]string{"SUBFLOW", "NAME", "PARENT", "ELEMENTS", "VARIABLES"},
				subflowRows(resp.Flow),
				resp,
			)
			return nil
		},
	}
}

func subflowRows(f *domain.Flow) [][]string {
	ids := make([]string, 0, len(f.Subflows))
	for id := range f.Subflows {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	rows := make([][]string, 0, len(ids))
	for _, id := range ids {
		sf := f.Subflows[id]
		if sf == nil {
			continue
		}
		name := sf.Name
		if id == f.Main {
			name += " (main)"
		}
		rows = append(rows, []string{id, name, sf.Parent, strconv.Itoa(len(sf.Elements)), strconv.Itoa(len(sf.Variables))})
	}
	return rows
}

func newFlowPushCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "push FILE",
		Short: "Upload workflows, templates and flows from a JSON or YAML document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			doc, err := domain.LoadDocumentFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read document: %w", err)
			}

			for _, id := range sortedKeys(doc.Workflows) {
				wf := doc.Workflows[id]
				if wf.ID == "" {
					wf.ID = id
				}
				if err := client.PutWorkflow(wf); err != nil {
					return fmt.Errorf("workflow %s: %w", id, err)
				}
				out.Success("Workflow pushed: %s", id)
			}

			for _, id := range sortedKeys(doc.Templates) {
				tpl := doc.Templates[id]
				if tpl.ID == "" {
					tpl.ID = id
				}
				if err := client.PutTemplate(tpl); err != nil {
					return fmt.Errorf("template %s: %w", id, err)
				}
				out.Success("Template pushed: %s", id)
			}

			for _, id := range pushOrder(doc.Flows) {
				f := doc.Flows[id]
				if f.ID == "" {
					f.ID = id
				}
				if _, err := client.PutFlow("", f); err != nil {
					out.Failure(err)
					return fmt.Errorf("flow %s: %w", id, err)
				}
				out.Success("Flow pushed: %s", id)
			}
			return nil
		},
	}
}

// pushOrder упорядочивает flows так, что зависимости загружаются раньше
// зависящих от них: API проверяет цели function по текущему реестру.
func pushOrder(flows map[string]*domain.Flow) []string {
	order := make([]string, 0, len(flows))
	state := make(map[string]int, len(flows)) // 1 — в обходе, 2 — готов

	var visit func(id string)
	visit = func(id string) {
		if state[id] != 0 {
			return
		}
		state[id] = 1
		if f := flows[id]; f != nil {
			deps := append([]string(nil), f.Flows...)
			sort.Strings(deps)
			for _, dep := range deps {
				if _, ok := flows[dep]; ok {
					visit(dep)
				}
			}
		}
		state[id] = 2
		order = append(order, id)
	}

	for _, id := range sortedKeys(flows) {
		visit(id)
	}
	return order
}

func newFlowDeleteCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete a flow",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			if err := client.DeleteFlow(args[0]); err != nil {
				return err
			}

			out.Success("Flow deleted: %s", args[0])
			return nil
		},
	}
}

func newFlowSignatureCmd(clientFn func() *Client, outputFn func() *Output) *cobra.Command {
	return &cobra.Command{
		Use:   "signature ID",
		Short: "Show flow inputs and outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			client := clientFn()
			out := outputFn()

			sig, err := client.GetSignature(args[0])
			if err != nil {
				return err
			}

			out.Print(
				[]string{"FLOW", "MAIN", "INPUTS", "OUTPUTS"},
				[][]string{{sig.ID, sig.Main, strings.Join(sig.Inputs, ","), strings.Join(sig.Outputs, ",")}},
				sig,
			)
			return nil
		},
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
