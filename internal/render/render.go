// Package render draws observations, assignees and the dashboard for a
// terminal.
package render

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"

	"auditline/internal/domain"
	"auditline/internal/evidence"
	"auditline/internal/store"
)

const barWidth = 24

type Renderer struct {
	mu      sync.Mutex
	out     io.Writer
	lip     *lipgloss.Renderer
	palette Palette
}

func New(out io.Writer) *Renderer {
	return &Renderer{out: out, lip: lipgloss.NewRenderer(out), palette: Light}
}

// SetDark switches palettes. It satisfies theme.Applier.
func (r *Renderer) SetDark(dark bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.palette = PaletteFor(dark)
}

func (r *Renderer) Palette() Palette {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.palette
}

func (r *Renderer) badge(b Badge, label string) string {
	return r.lip.NewStyle().
		Foreground(b.Foreground).
		Background(b.Background).
		Padding(0, 1).
		Render(label)
}

func (r *Renderer) SeverityBadge(s domain.Severity) string {
	return r.badge(r.Palette().SeverityBadge(s), string(s))
}

func (r *Renderer) StatusBadge(s domain.Status) string {
	return r.badge(r.Palette().StatusBadge(s), string(s))
}

func (r *Renderer) faint(s string) string {
	return r.lip.NewStyle().Foreground(r.Palette().FaintText).Render(s)
}

func (r *Renderer) header(s string) string {
	return r.lip.NewStyle().Bold(true).Foreground(r.Palette().Header).Render(s)
}

func (r *Renderer) table() table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(r.out)
	tw.SetStyle(table.StyleLight)
	return tw
}

// Observations renders a filtered list. total is the unfiltered count.
func (r *Renderer) Observations(list []domain.Observation, total int) {
	if total == 0 {
		fmt.Fprintln(r.out, r.faint("No observations yet. Create one with: al observation create"))
		return
	}
	if len(list) == 0 {
		fmt.Fprintln(r.out, r.faint("No observations found matching your filters"))
		return
	}
	tw := r.table()
	tw.AppendHeader(table.Row{"ID", "Title", "Severity", "Status", "Assigned To", "Evidence", "Created"})
	for _, o := range list {
		tw.AppendRow(table.Row{
			o.ID,
			o.Title,
			r.SeverityBadge(o.Severity),
			r.StatusBadge(o.Status),
			o.AssignedTo,
			evidenceLabel(o.Evidence),
			formatTime(o.CreatedAt),
		})
	}
	tw.Render()
	fmt.Fprintln(r.out, r.faint(fmt.Sprintf("Showing %d of %d observations", len(list), total)))
}

// Observation renders every field of one record.
func (r *Renderer) Observation(o domain.Observation) {
	fmt.Fprintln(r.out, r.header(o.Title))
	tw := r.table()
	tw.AppendRow(table.Row{"ID", o.ID})
	tw.AppendRow(table.Row{"Severity", r.SeverityBadge(o.Severity)})
	tw.AppendRow(table.Row{"Status", r.StatusBadge(o.Status)})
	tw.AppendRow(table.Row{"Assigned To", o.AssignedTo})
	desc := o.Description
	if desc == "" {
		desc = r.faint("No description provided")
	}
	tw.AppendRow(table.Row{"Description", desc})
	tw.AppendRow(table.Row{"Evidence", evidenceLabel(o.Evidence)})
	tw.AppendRow(table.Row{"Created", formatTime(o.CreatedAt)})
	if o.UpdatedAt != nil {
		tw.AppendRow(table.Row{"Updated", formatTime(*o.UpdatedAt)})
	}
	tw.Render()
}

func (r *Renderer) Assignees(names []string) {
	if len(names) == 0 {
		fmt.Fprintln(r.out, r.faint("No assignees yet. Add one with: al assignee add <name>"))
		return
	}
	tw := r.table()
	tw.AppendHeader(table.Row{"#", "Assignee"})
	for i, n := range names {
		tw.AppendRow(table.Row{i + 1, n})
	}
	tw.Render()
}

// Dashboard renders totals, a status distribution and the most recent
// observations.
func (r *Renderer) Dashboard(st store.Stats, recent []domain.Observation) {
	fmt.Fprintln(r.out, r.header("Audit dashboard"))
	tw := r.table()
	tw.AppendHeader(table.Row{"Status", "Count", "Share"})
	tw.AppendRow(table.Row{"Total", st.Total, ""})
	for _, c := range st.ByStatus {
		tw.AppendRow(table.Row{r.StatusBadge(c.Status), c.Count, r.bar(c.Percent)})
	}
	tw.Render()

	sev := r.table()
	sev.AppendHeader(table.Row{"Severity", "Count"})
	for _, c := range st.BySeverity {
		sev.AppendRow(table.Row{r.SeverityBadge(c.Severity), c.Count})
	}
	sev.Render()

	if len(recent) == 0 {
		fmt.Fprintln(r.out, r.faint("No observations yet."))
		return
	}
	fmt.Fprintln(r.out, r.header("Recent observations"))
	r.Observations(recent, st.Total)
}

func (r *Renderer) bar(percent float64) string {
	filled := int(math.Round(percent / 100 * barWidth))
	filled = max(0, min(barWidth, filled))
	style := r.lip.NewStyle().Foreground(r.Palette().Accent)
	return style.Render(strings.Repeat("█", filled)) +
		r.faint(strings.Repeat("░", barWidth-filled)) +
		fmt.Sprintf(" %3.0f%%", percent)
}

// Evidence describes an encoded evidence value without dumping its payload.
func (r *Renderer) Evidence(uri *string) {
	if evidence.KindOf(uri) == evidence.KindNone {
		fmt.Fprintln(r.out, r.faint("no evidence"))
		return
	}
	mt, data, err := evidence.Decode(*uri)
	if err != nil {
		fmt.Fprintln(r.out, r.faint("unreadable evidence: "+err.Error()))
		return
	}
	tw := r.table()
	tw.AppendRow(table.Row{"Kind", evidence.KindOf(uri).String()})
	tw.AppendRow(table.Row{"Media type", mt})
	tw.AppendRow(table.Row{"Size", fmt.Sprintf("%d bytes", len(data))})
	tw.AppendRow(table.Row{"Encoded length", len(*uri)})
	tw.Render()
}

func evidenceLabel(uri *string) string {
	switch evidence.KindOf(uri) {
	case evidence.KindImage:
		return "image (" + evidence.MediaType(*uri) + ")"
	case evidence.KindAttachment:
		return "file (" + evidence.MediaType(*uri) + ")"
	default:
		return "-"
	}
}

func formatTime(t time.Time) string {
	return t.Local().Format("2006-01-02 15:04")
}
