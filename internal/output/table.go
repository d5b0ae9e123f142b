package output

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/geetools/exportsched/internal/core"
	"github.com/geetools/exportsched/internal/platform"
	"github.com/geetools/exportsched/internal/scheduler"
)

var jobHeader = table.Row{
	"#",
	"Job",
	"Phase",
	"State",
	"Depends",
	"Handle",
}

// JobSummary renders one row per job in the given order.
func JobSummary(jobs []*scheduler.Job) string {
	t := table.NewWriter()
	t.AppendHeader(jobHeader)

	counts := map[scheduler.Phase]int{}
	for i, j := range jobs {
		phase := j.Phase()
		counts[phase]++
		t.AppendRow(table.Row{
			i + 1,
			j.ID(),
			PhaseColorize(PhaseSymbol(phase)+" "+phase.String(), phase),
			StateColorize(j.State().String(), j.State()),
			strings.Join(j.Dependencies(), ", "),
			core.HandleOf(j.RemoteJob()),
		})
	}
	t.AppendFooter(table.Row{
		"", "",
		fmt.Sprintf("%d succeeded", counts[scheduler.PhaseSucceeded]),
		fmt.Sprintf("%d failed", counts[scheduler.PhaseFailed]),
		fmt.Sprintf("%d pending", counts[scheduler.PhasePending]+counts[scheduler.PhaseRunning]),
		"",
	})
	return t.Render()
}

var operationHeader = table.Row{
	"Operation",
	"Type",
	"State",
	"Progress",
	"Started",
	"Description",
}

// Operations renders platform operations as listed by the client.
func Operations(ops []platform.Operation) string {
	t := table.NewWriter()
	t.AppendHeader(operationHeader)

	for _, op := range ops {
		started := ""
		if !op.Metadata.StartTime.IsZero() {
			started = op.Metadata.StartTime.Local().Format("2006-01-02 15:04:05")
		}
		t.AppendRow(table.Row{
			op.ID(),
			op.Metadata.Type,
			StateColorize(op.State().String(), op.State()),
			fmt.Sprintf("%.0f%%", op.Metadata.Progress*100),
			started,
			op.Metadata.Description,
		})
	}
	if len(ops) == 0 {
		t.AppendRow(table.Row{"(none)", "", "", "", "", ""})
	}
	return t.Render()
}
