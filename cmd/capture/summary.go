package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/yungbote/casestudy-backend/internal/capture"
	"github.com/yungbote/casestudy-backend/internal/transcription/speakerid"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Underline(true).Foreground(lipgloss.Color("62"))
	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245")).Width(18)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	warnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
)

func renderSummary(sessionName string, s *capture.Summary, participants []capture.Participant) string {
	roles := map[string]string{}
	for _, p := range participants {
		roles[p.Name] = p.RoleCode
	}

	var b strings.Builder
	title := "Capture summary"
	if sessionName != "" {
		title += ": " + sessionName
	}
	b.WriteString(titleStyle.Render(title) + "\n")
	row := func(label, value string) {
		b.WriteString(labelStyle.Render(label) + value + "\n")
	}
	row("duration", s.Duration.Round(time.Second).String())
	row("rolling chunks", fmt.Sprint(s.RollingChunks))
	if s.Corrections > 0 {
		row("live corrections", fmt.Sprint(s.Corrections))
	}
	if s.FullVersion > 0 {
		row("full transcript", okStyle.Render(fmt.Sprintf("version %d", s.FullVersion)))
	} else {
		row("full transcript", warnStyle.Render("not posted"))
	}
	if s.StreamErr != nil {
		row("stream", errStyle.Render(s.StreamErr.Error()))
	}

	for _, tag := range capture.SortedTags(s.Mapping) {
		name := s.Mapping[tag]
		value := name
		switch {
		case speakerid.IsPlaceholder(name):
			value = warnStyle.Render("unresolved")
		case roles[name] != "":
			value = okStyle.Render(fmt.Sprintf("%s (%s)", name, roles[name]))
		default:
			value = okStyle.Render(name)
		}
		row(speakerid.Placeholder(tag), value)
	}
	return b.String()
}
