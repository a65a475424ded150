package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"

	"gopkg.in/yaml.v3"
)

const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ValidFormats lists the accepted --format values.
var ValidFormats = []string{FormatText, FormatJSON, FormatYAML}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

type textRenderer interface {
	renderText(w io.Writer)
}

// Printer writes views in the selected format.
type Printer struct {
	Format string
	Writer io.Writer
}

func (p Printer) Print(v textRenderer) error {
	switch p.Format {
	case FormatJSON:
		enc := json.NewEncoder(p.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case FormatYAML:
		enc := yaml.NewEncoder(p.Writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		v.renderText(p.Writer)
		return nil
	}
}

const labelWidth = 29

func line(w io.Writer, label string, value any) {
	fmt.Fprintf(w, "%-*s%v\n", labelWidth, label+":", value)
}

func (v StatsView) renderText(w io.Writer) {
	line(w, "Computed at", v.ComputedAt)
	line(w, "Tracked sessions", v.TotalTracked)
	line(w, "Active", v.Active)
	line(w, "Abandoned", v.Abandoned)
	line(w, "Recovered", v.Recovered)
	line(w, "Expired", v.Expired)
	line(w, "Recovered after abandonment", v.RecoveredAfterAbandonment)
	line(w, "Recovered directly", v.RecoveredDirect)
	line(w, "Recovery rate", v.RecoveryRate)
	avg := v.AverageTimeToRecovery
	if avg == "" {
		avg = "n/a"
	}
	line(w, "Avg time to recovery", avg)
	line(w, "Abandoned value", v.AbandonedValue)
	line(w, "Active value", v.ActiveValue)
}

func (v SessionView) renderText(w io.Writer) {
	line(w, "Session", v.ID)
	line(w, "Email", v.Email)
	if v.DisplayName != "" {
		line(w, "Name", v.DisplayName)
	}
	line(w, "State", v.State)
	line(w, "Created at", v.CreatedAt)
	line(w, "Last updated at", v.LastUpdatedAt)
	if v.AbandonedAt != "" {
		line(w, "Abandoned at", v.AbandonedAt)
	}
	if v.RecoveredAt != "" {
		line(w, "Recovered at", v.RecoveredAt)
	}
	if v.ExpiredAt != "" {
		line(w, "Expired at", v.ExpiredAt)
	}
	line(w, "Total", v.Total)
	for _, it := range v.Items {
		fmt.Fprintf(w, "  %-12s %3d x %-12s %s\n", it.ProductID, it.Quantity, it.UnitPrice, it.Name)
	}
}

func (v SweepView) renderText(w io.Writer) {
	if len(v.Transitions) == 0 {
		fmt.Fprintln(w, "No transitions.")
		return
	}
	for _, t := range v.Transitions {
		fmt.Fprintf(w, "%s  %-24s %-9s -> %s\n", t.At, t.Email, t.From, t.To)
	}
	fmt.Fprintf(w, "%d transition(s) applied.\n", len(v.Transitions))
}
