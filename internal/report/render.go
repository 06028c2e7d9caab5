package report

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// Format selects a report rendering.
type Format string

const (
	Markdown Format = "md"
	JSON     Format = "json"
	YAML     Format = "yaml"
)

// ParseFormat accepts md, markdown, json, yaml and yml.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "md", "markdown":
		return Markdown, nil
	case "json":
		return JSON, nil
	case "yaml", "yml":
		return YAML, nil
	default:
		return "", fmt.Errorf("report: unknown format %q (want md, json or yaml)", s)
	}
}

// Write renders r to w.
func Write(w io.Writer, r *Report, format Format) error {
	switch format {
	case JSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: encode json: %w", err)
		}
		return nil
	case YAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("report: encode yaml: %w", err)
		}
		if err := enc.Close(); err != nil {
			return fmt.Errorf("report: encode yaml: %w", err)
		}
		return nil
	case Markdown:
		if _, err := io.WriteString(w, markdown(r)); err != nil {
			return fmt.Errorf("report: write markdown: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("report: unknown format %q", format)
	}
}

func markdown(r *Report) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Deduplication Report\n\n")
	fmt.Fprintf(&b, "**Run:** `%s`  \n", r.RunID)
	fmt.Fprintf(&b, "**Mode:** %s  \n", r.Mode)
	fmt.Fprintf(&b, "**Generated:** %s  \n", r.GeneratedAt.Format("2006-01-02T15:04:05Z07:00"))
	fmt.Fprintf(&b, "**Records scanned:** %d  \n", r.TotalRecords)
	fmt.Fprintf(&b, "**Passes:** %d\n\n", r.Passes)

	b.WriteString("## Safe to Merge (High/Medium Confidence)\n\n")
	if len(r.SafeToMerge) == 0 {
		b.WriteString("_None._\n")
	} else {
		b.WriteString("| Group | Category | Reason | Survivor | Losers |\n")
		b.WriteString("| :--- | :--- | :--- | :--- | :--- |\n")
		for _, g := range r.SafeToMerge {
			losers := make([]string, len(g.Losers))
			for i, l := range g.Losers {
				losers[i] = fmt.Sprintf("%s (`%s`, %s)", cell(l.Name), l.ID, g.Rationales[l.ID])
			}
			fmt.Fprintf(&b, "| **%s** | %s | %s | **%s** (`%s`, %s) | %s |\n",
				groupLabel(g.Pass, g.GroupID), g.Category, cell(g.Reason),
				cell(g.Survivor.Name), g.Survivor.ID, orDash(cell(g.Survivor.City)), strings.Join(losers, "<br>"))
		}
	}

	b.WriteString("\n## Data Integrity Issues (Coordinate Errors)\n\n")
	b.WriteString("Names match but the coordinates disagree. Correct the coordinates, then re-run.\n\n")
	if len(r.IntegrityIssues) == 0 {
		b.WriteString("_None._\n")
	}
	for _, g := range r.IntegrityIssues {
		fmt.Fprintf(&b, "### %s: %s\n", groupLabel(g.Pass, g.GroupID), g.Members[0].Name)
		fmt.Fprintf(&b, "*Reason: %s*\n\n", g.Reason)
		for _, m := range g.Members {
			fmt.Fprintf(&b, "- %s (%s) [%s] - ID: `%s`\n", m.Name, orDash(m.City), coords(m), m.ID)
		}
		b.WriteString("\n")
	}

	b.WriteString("\n## Name Collisions (Do Not Merge)\n\n")
	if len(r.Collisions) == 0 {
		b.WriteString("_None._\n")
	}
	for _, g := range r.Collisions {
		names := make([]string, len(g.Members))
		for i, m := range g.Members {
			names[i] = fmt.Sprintf("%s (%s)", m.Name, orDash(m.City))
		}
		fmt.Fprintf(&b, "- **%s**: %s [%s]\n", groupLabel(g.Pass, g.GroupID), strings.Join(names, " vs "), g.Reason)
	}

	if r.Mode == Execute {
		b.WriteString("\n## Execution\n\n")
		fmt.Fprintf(&b, "Merged: %d, failed: %d\n\n", r.Summary.Merged, r.Summary.Failed)
		for _, e := range r.Executions {
			status := "ok"
			switch {
			case !e.Merged:
				status = "FAILED: " + e.Error
			case len(e.TenantsDropped) > 0:
				status = "ok, dropped duplicate tenants " + strings.Join(e.TenantsDropped, ", ")
			}
			fmt.Fprintf(&b, "- `%s` %s\n", e.LogLine, status)
		}
	}

	return b.String()
}

func groupLabel(pass int, id string) string {
	if pass <= 1 {
		return id
	}
	return fmt.Sprintf("%s (pass %d)", id, pass)
}

func coords(m Member) string {
	if m.Latitude == nil || m.Longitude == nil {
		return "no coordinates"
	}
	return fmt.Sprintf("%.6f, %.6f", *m.Latitude, *m.Longitude)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// cell escapes table separators.
func cell(s string) string {
	return strings.ReplaceAll(s, "|", `\|`)
}
