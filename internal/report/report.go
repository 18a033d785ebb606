// Package report renders course progress for the terminal.
package report

import (
	"fmt"
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/mahaa2402/e-learning-2ndversion-sub000/internal/engine"
)

// ProgressBar displays a horizontal progress bar.
type ProgressBar struct {
	Label       string
	Percent     float64
	ShowPercent bool
	Width       int
}

// View renders the progress bar.
func (p ProgressBar) View() string {
	var result string

	if p.Label != "" {
		result += lipgloss.NewStyle().Foreground(Text).Render(p.Label) + "  "
	}

	labelWidth := lipgloss.Width(result)
	percentWidth := 0
	if p.ShowPercent {
		percentWidth = 6 // " 100%"
	}

	barWidth := p.Width - labelWidth - percentWidth
	if barWidth < 4 {
		barWidth = 4
	}

	filled := int(float64(barWidth) * p.Percent)
	filled = max(0, min(filled, barWidth))

	result += ProgressFilled.Render(strings.Repeat(" ", filled)) +
		ProgressEmpty.Render(strings.Repeat(" ", barWidth-filled))

	if p.ShowPercent {
		result += Hint.Render(fmt.Sprintf("  %d%%", int(p.Percent*100)))
	}
	return result
}

// Status is the one-word state of a module row.
func Status(m engine.ModuleProgress) string {
	switch {
	case m.IsCompleted:
		return "completed"
	case !m.IsUnlocked:
		return "locked"
	case m.CooldownRemaining > 0:
		return "cooling down " + m.CooldownRemaining.Round(time.Minute).String()
	case m.HasQuiz && m.AttemptCount > 0:
		return fmt.Sprintf("retake (attempt %d)", m.AttemptCount+1)
	default:
		return "unlocked"
	}
}

func statusStyle(m engine.ModuleProgress) lipgloss.Style {
	switch {
	case m.IsCompleted:
		return Completed
	case !m.IsUnlocked:
		return Locked
	case m.CooldownRemaining > 0:
		return CoolingDown
	default:
		return Unlocked
	}
}

// Progress renders a learner's course progress at the given width.
func Progress(p *engine.Progress, width int) string {
	var b strings.Builder

	title := p.CourseTitle
	if title == "" {
		title = p.CourseID
	}
	b.WriteString(Title.Render(title))
	b.WriteString("  ")
	b.WriteString(Hint.Render(p.LearnerID))
	b.WriteString("\n\n")

	b.WriteString(ProgressBar{
		Label:       fmt.Sprintf("%d/%d modules", p.Summary.Completed, p.Summary.Total),
		Percent:     float64(p.Summary.Percent) / 100,
		ShowPercent: true,
		Width:       width,
	}.View())
	b.WriteString("\n\n")

	idWidth := len("Module")
	for _, m := range p.Modules {
		idWidth = max(idWidth, len(m.ModuleID))
	}
	for _, m := range p.Modules {
		quiz := " "
		if m.HasQuiz {
			quiz = "?"
		}
		row := fmt.Sprintf("%2d. %-*s %s  %s", m.Index+1, idWidth, m.ModuleID, quiz, Status(m))
		b.WriteString(statusStyle(m).Render(row))
		b.WriteString("\n")
	}

	switch {
	case p.Certificate != nil:
		b.WriteString("\n")
		b.WriteString(Card.Render(fmt.Sprintf("Certificate %s\nissued %s",
			p.Certificate.ID, p.Certificate.IssuedAt.Format(time.RFC1123))))
		b.WriteString("\n")
	case p.Summary.NextModule != "":
		b.WriteString("\n")
		b.WriteString(Hint.Render("next: " + p.Summary.NextModule))
		b.WriteString("\n")
	}
	return b.String()
}
