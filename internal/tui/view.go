package tui

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/olliecrow/campnet_monitor/internal/display"
)

type styles struct {
	title   lipgloss.Style
	dim     lipgloss.Style
	panel   lipgloss.Style
	label   lipgloss.Style
	value   lipgloss.Style
	ok      lipgloss.Style
	warn    lipgloss.Style
	bad     lipgloss.Style
	accent  lipgloss.Style
	error   lipgloss.Style
	help    lipgloss.Style
	loading lipgloss.Style
}

func defaultStyles(noColor bool) styles {
	basePanel := lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	if noColor {
		return styles{
			title:   lipgloss.NewStyle().Bold(true),
			dim:     lipgloss.NewStyle(),
			panel:   basePanel,
			label:   lipgloss.NewStyle().Bold(true),
			value:   lipgloss.NewStyle(),
			ok:      lipgloss.NewStyle().Bold(true),
			warn:    lipgloss.NewStyle().Bold(true),
			bad:     lipgloss.NewStyle().Bold(true),
			accent:  lipgloss.NewStyle().Bold(true),
			error:   lipgloss.NewStyle().Bold(true),
			help:    lipgloss.NewStyle(),
			loading: lipgloss.NewStyle(),
		}
	}
	return styles{
		title:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("230")).Background(lipgloss.Color("24")).Padding(0, 1),
		dim:     lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		panel:   basePanel.BorderForeground(lipgloss.Color("61")),
		label:   lipgloss.NewStyle().Foreground(lipgloss.Color("109")),
		value:   lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		ok:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42")),
		warn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214")),
		bad:     lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196")),
		accent:  lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81")),
		error:   lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("203")),
		help:    lipgloss.NewStyle().Foreground(lipgloss.Color("245")),
		loading: lipgloss.NewStyle().Foreground(lipgloss.Color("117")),
	}
}

func (m Model) View() string {
	if m.width <= 0 || m.height <= 0 {
		return "initializing..."
	}

	header := m.renderHeader()
	body := m.renderBody()
	footer := m.renderFooter()

	top := lipgloss.JoinVertical(lipgloss.Left, header, body, "")
	combined := pinFooterToBottom(top, footer, m.height)
	return clipToViewport(combined, m.width, m.height)
}

func (m Model) renderHeader() string {
	title := m.styles.title.Render(" campnet monitor ")

	stateText := "signed out"
	stateStyle := m.styles.dim
	switch {
	case m.fetching:
		stateText = "refreshing"
		stateStyle = m.styles.loading
	case m.lastError != "":
		stateText = "error"
		stateStyle = m.styles.bad
	case m.quota != nil:
		stateText = "healthy"
		stateStyle = m.styles.ok
	case m.committed.Complete():
		stateText = "waiting"
	}

	left := title + "  " + m.styles.label.Render("state: ") + stateStyle.Render(stateText)
	if !m.nextFetchAt.IsZero() && !m.fetching {
		refreshText := "[next refresh in " + humanDuration(m.nextFetchAt.Sub(m.now)) + "]"
		left += " " + m.styles.dim.Render(refreshText)
	}
	right := m.styles.dim.Render("utc " + m.now.Format("2006-01-02 15:04:05"))
	return joinWithPaddingKeepRight(left, right, m.width)
}

func (m Model) renderBody() string {
	contentWidth := max(20, m.width-4)
	return lipgloss.JoinVertical(lipgloss.Left,
		m.renderQuotaPanel(contentWidth),
		m.renderLoginPanel(contentWidth),
		m.renderToast(contentWidth),
	)
}

func (m Model) renderQuotaPanel(width int) string {
	inner := max(8, width-horizontalOverhead(m.styles.panel))
	title := m.styles.accent.Render("data balance")
	if m.committed.Complete() {
		title += m.styles.dim.Render(" [" + m.committed.Username + "]")
	}

	panel := display.Build(m.committed, m.quota)
	var lines []string
	if !panel.Visible {
		lines = []string{title, m.quotaPlaceholder()}
	} else {
		lines = append(lines, title, m.renderGauge(panel.Gauge, inner))
		for _, line := range panel.Lines {
			lines = append(lines, m.styles.label.Render(line.Title+" ")+m.styles.value.Render(strings.TrimSpace(line.Amount+" "+line.Unit)))
		}
		if !m.lastSuccessAt.IsZero() {
			lines = append(lines, m.styles.dim.Render("updated "+humanDuration(m.now.Sub(m.lastSuccessAt))+" ago"))
		}
		if m.lastError != "" {
			lines = append(lines, m.styles.error.Render("last error: "+m.lastError))
		}
	}
	for i := range lines {
		lines[i] = ansi.Truncate(lines[i], inner, "...")
	}
	return m.styles.panel.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) quotaPlaceholder() string {
	switch {
	case !m.committed.Complete():
		return m.styles.dim.Render("sign in below to see your data balance")
	case m.lastError != "":
		return m.styles.error.Render("last error: " + m.lastError)
	case m.fetching:
		return m.styles.loading.Render("loading data balance...")
	default:
		return m.styles.dim.Render("no data balance reported yet")
	}
}

// renderGauge draws Value between Lower and Upper, colored by rating.
func (m Model) renderGauge(g display.Gauge, width int) string {
	label := fmt.Sprintf(" %s %s left [%s]", display.FormatAmount(g.Value), g.Unit, g.Rating)
	barWidth := width - lipgloss.Width(label)
	if barWidth < 4 {
		barWidth = 4
	}
	filled := int(math.Round(g.Fraction() * float64(barWidth)))
	bar := strings.Repeat("█", filled) + strings.Repeat("░", barWidth-filled)
	return ratingStyle(g.Rating, m.styles).Render(bar) + m.styles.value.Render(label)
}

func ratingStyle(r display.Rating, styles styles) lipgloss.Style {
	switch r {
	case display.RatingPoor:
		return styles.bad
	case display.RatingAverage:
		return styles.warn
	default:
		return styles.ok
	}
}

func (m Model) renderLoginPanel(width int) string {
	inner := max(8, width-horizontalOverhead(m.styles.panel))
	hint := "enter verify · tab switch field"
	if m.verifying {
		hint = "verifying..."
	}
	lines := []string{
		m.styles.accent.Render("sign in"),
		m.username.View(),
		m.password.View(),
		m.styles.help.Render(hint),
	}
	for i := range lines {
		lines[i] = ansi.Truncate(lines[i], inner, "...")
	}
	return m.styles.panel.Width(width).Render(strings.Join(lines, "\n"))
}

func (m Model) renderToast(width int) string {
	if m.toast == nil {
		return ""
	}
	style := m.styles.loading
	switch m.toast.level {
	case toastOK:
		style = m.styles.ok
	case toastError:
		style = m.styles.error
	}
	return ansi.Truncate(style.Render(m.toast.text), width, "...")
}

func (m Model) renderFooter() string {
	autolaunch := "off"
	if m.autolaunch {
		autolaunch = "on"
	}
	return m.styles.dim.Render("Ctrl+C to exit · Ctrl+R refresh · Ctrl+A start at login [" + autolaunch + "]")
}

func joinWithPaddingKeepRight(left, right string, width int) string {
	if width <= 0 {
		return ""
	}
	rightWidth := lipgloss.Width(right)
	if rightWidth >= width {
		return truncateRunes(right, width)
	}
	maxLeftWidth := width - rightWidth - 1
	if maxLeftWidth < 0 {
		maxLeftWidth = 0
	}
	left = truncateRunes(left, maxLeftWidth)
	leftWidth := lipgloss.Width(left)
	padding := width - leftWidth - rightWidth
	if padding < 1 {
		padding = 1
	}
	return left + strings.Repeat(" ", padding) + right
}

func truncateRunes(s string, maxRunes int) string {
	if maxRunes <= 0 {
		return ""
	}
	return ansi.Truncate(s, maxRunes, "")
}

func clipToViewport(s string, width, height int) string {
	if width <= 0 || height <= 0 {
		return ""
	}
	lines := strings.Split(s, "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	for i := range lines {
		lines[i] = truncateRunes(lines[i], width)
		pad := width - lipgloss.Width(lines[i])
		if pad > 0 {
			lines[i] += strings.Repeat(" ", pad)
		}
	}
	for len(lines) < height {
		lines = append(lines, strings.Repeat(" ", width))
	}
	return strings.Join(lines, "\n")
}

func pinFooterToBottom(top, footer string, height int) string {
	if height <= 0 {
		return ""
	}
	footerLines := []string{}
	if footer != "" {
		footerLines = strings.Split(footer, "\n")
	}
	topLines := []string{}
	if top != "" {
		topLines = strings.Split(top, "\n")
	}

	maxTopLines := height - len(footerLines)
	if maxTopLines < 0 {
		maxTopLines = 0
	}
	if len(topLines) > maxTopLines {
		topLines = topLines[:maxTopLines]
	}
	for len(topLines) < maxTopLines {
		topLines = append(topLines, "")
	}

	all := append(topLines, footerLines...)
	if len(all) == 0 {
		return ""
	}
	return strings.Join(all, "\n")
}

func humanDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	if d < time.Second {
		return "<1s"
	}
	if d < time.Minute {
		return d.String()
	}
	if d < time.Hour {
		return fmt.Sprintf("%dm%ds", int(d.Minutes()), int(d.Seconds())%60)
	}
	if d < 24*time.Hour {
		return fmt.Sprintf("%dh%dm", int(d.Hours()), int(d.Minutes())%60)
	}
	return fmt.Sprintf("%dd%dh", int(d.Hours())/24, int(d.Hours())%24)
}

func horizontalOverhead(style lipgloss.Style) int {
	// Probe with a stable non-trivial width to avoid edge-case minimum sizing.
	const probeWidth = 40
	overhead := lipgloss.Width(style.Width(probeWidth).Render("")) - probeWidth
	if overhead < 0 {
		return 0
	}
	return overhead
}
