package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/petrijr/docflow/internal/config"
	"github.com/petrijr/docflow/internal/engine"
	"github.com/petrijr/docflow/pkg/api"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <instance-id>",
	Short: "Print the state and history of an instance",
	Args:  cobra.ExactArgs(1),
	RunE:  runInspect,
}

func runInspect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	ctx := cmd.Context()

	b := newBackends(cfg)
	defer b.Close(ctx)

	store, err := b.historyStore(ctx)
	if err != nil {
		return err
	}
	history, err := store.Load(ctx, args[0])
	if err != nil {
		return err
	}
	inst, err := engine.Project(args[0], history)
	if err != nil {
		return err
	}
	return renderInstance(cmd.OutOrStdout(), inst, history)
}

func renderInstance(w io.Writer, inst *api.Instance, history []api.HistoryEntry) error {
	waiting := make([]string, 0, len(inst.WaitingFor))
	for _, s := range inst.WaitingFor {
		waiting = append(waiting, string(s))
	}

	summary, err := pterm.DefaultTable.WithData(pterm.TableData{
		{"Instance", inst.ID},
		{"Title", inst.Input.Title},
		{"Application", inst.Input.ApplicationID},
		{"State", string(inst.State)},
		{"Status", inst.Status},
		{"Waiting for", strings.Join(waiting, ", ")},
		{"Output", inst.Output},
		{"Failure", inst.Failure},
		{"Created", inst.CreatedAt.Format(time.RFC3339)},
		{"Updated", inst.UpdatedAt.Format(time.RFC3339)},
	}).Srender()
	if err != nil {
		return err
	}

	rows := pterm.TableData{{"#", "Kind", "Name", "Recorded", "Payload"}}
	for _, e := range history {
		rows = append(rows, []string{
			strconv.FormatInt(e.Sequence, 10),
			string(e.Kind),
			e.Name,
			e.RecordedAt.Format(time.RFC3339Nano),
			string(e.Payload),
		})
	}
	entries, err := pterm.DefaultTable.WithHasHeader().WithData(rows).Srender()
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "%s\n\n%s\n", summary, entries)
	return err
}

func init() {
	// pterm colours are meant for terminals only.
	if fi, err := os.Stdout.Stat(); err == nil && fi.Mode()&os.ModeCharDevice == 0 {
		pterm.DisableColor()
	}
}
