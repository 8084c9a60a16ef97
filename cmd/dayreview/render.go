package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/ashureev/dayreview/internal/domain"
	"github.com/ashureev/dayreview/internal/engine"
)

const topAppCount = 10

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	return fmt.Sprintf("%dh%02dm", h, m)
}

func scoreString(v float64) string {
	s := fmt.Sprintf("%5.1f", v)
	switch {
	case v >= 65:
		return color.GreenString(s)
	case v < 40:
		return color.RedString(s)
	default:
		return color.YellowString(s)
	}
}

func writeApps(sb *strings.Builder, day domain.DaySummary) {
	apps := day.TopApps(topAppCount)
	if len(apps) == 0 {
		sb.WriteString(color.HiBlackString("  no activity recorded\n"))
		return
	}
	for _, u := range apps {
		fmt.Fprintf(sb, "  %-28s %-14s %8s  %s\n",
			u.AppID,
			color.CyanString(string(u.Category)),
			formatDuration(u.TotalDuration),
			color.HiBlackString(fmt.Sprintf("%d sessions", u.SessionCount)),
		)
	}
}

func writeCategories(sb *strings.Builder, day domain.DaySummary) {
	durations := day.CategoryDurations()
	for _, c := range domain.Categories {
		if d, ok := durations[c]; ok && d > 0 {
			fmt.Fprintf(sb, "  %-14s %8s\n", c, formatDuration(d))
		}
	}
}

func writeReport(sb *strings.Builder, r domain.Report) {
	label := string(r.Source)
	if r.Preview {
		label += ", preview"
	}
	fmt.Fprintf(sb, "  mood   %s   stress %s   %s\n", scoreString(r.MoodIndex), scoreString(r.StressIndex), color.HiBlackString("("+label+")"))
	fmt.Fprintf(sb, "  %s\n", color.New(color.Bold).Sprint(r.Caption))
	if r.Summary != "" {
		fmt.Fprintf(sb, "  %s\n", r.Summary)
	}
}

func header(sb *strings.Builder, title string) {
	sb.WriteString(color.CyanString(title) + "\n")
	sb.WriteString(strings.Repeat("─", 60) + "\n")
}

func renderStats(s engine.Stats) string {
	var sb strings.Builder
	header(&sb, fmt.Sprintf("Today %s", s.Date))

	state := color.GreenString("monitoring")
	if s.Paused {
		state = color.YellowString("paused")
	}
	fmt.Fprintf(&sb, "  %s   tracked %s   keys %d   mouse %d\n", state, formatDuration(s.Tracked()), s.KeyTotal(), s.MouseTotal())
	if s.Current != nil {
		fmt.Fprintf(&sb, "  now: %s since %s\n", s.Current.AppID, s.Current.Start.Local().Format("15:04"))
	}
	sb.WriteString("\n")
	writeCategories(&sb, s.DaySummary)
	sb.WriteString("\n")
	writeApps(&sb, s.DaySummary)

	p := s.Productivity
	fmt.Fprintf(&sb, "\n  productivity %.1f%%   leisure %.1f%%   balance %.1f\n", p.ProductivityRatio, p.LeisureRatio, p.BalanceScore)
	return sb.String()
}

func renderDay(day domain.DaySummary) string {
	var sb strings.Builder
	state := "open"
	if day.Sealed {
		state = "sealed"
	}
	header(&sb, fmt.Sprintf("%s (%s)", day.Date, state))
	fmt.Fprintf(&sb, "  tracked %s   keys %d   mouse %d\n\n", formatDuration(day.Tracked()), day.KeyTotal(), day.MouseTotal())
	writeCategories(&sb, day)
	sb.WriteString("\n")
	writeApps(&sb, day)
	if day.Report != nil {
		sb.WriteString("\n")
		writeReport(&sb, *day.Report)
	}
	return sb.String()
}

func renderReport(r domain.Report) string {
	var sb strings.Builder
	header(&sb, fmt.Sprintf("Report %s", r.Date))
	writeReport(&sb, r)
	return sb.String()
}

func renderStatus(st engine.Status) string {
	if st.Paused {
		return color.YellowString("Monitoring paused") + fmt.Sprintf(" (day %s)\n", st.OpenDay.Date)
	}
	return color.GreenString("Monitoring active") + fmt.Sprintf(" (day %s)\n", st.OpenDay.Date)
}

func renderHistory(days []domain.DaySummary) string {
	if len(days) == 0 {
		return "No days recorded\n"
	}
	var sb strings.Builder
	header(&sb, "History")
	for _, d := range days {
		line := fmt.Sprintf("  %s  %8s", d.Date, formatDuration(d.Tracked()))
		switch {
		case d.Report != nil:
			line += fmt.Sprintf("  mood %s  stress %s  %s", scoreString(d.Report.MoodIndex), scoreString(d.Report.StressIndex), d.Report.Caption)
		case !d.Sealed:
			line += "  " + color.HiBlackString("(open)")
		default:
			line += "  " + color.HiBlackString("(report pending)")
		}
		sb.WriteString(line + "\n")
	}
	return sb.String()
}
