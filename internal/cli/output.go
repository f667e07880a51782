package cli

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/splax/unhazzle/internal/domain"
)

var (
	colorText   = lipgloss.Color("#EDEDED")
	colorMuted  = lipgloss.Color("#737373")
	colorGood   = lipgloss.Color("#22C55E")
	colorWarn   = lipgloss.Color("#EAB308")
	colorBad    = lipgloss.Color("#EF4444")
	colorAccent = lipgloss.Color("#FFFFFF")

	baseStyle = lipgloss.NewStyle().Foreground(colorText)
	dimStyle  = lipgloss.NewStyle().Foreground(colorMuted)
	boldStyle = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
)

func (a *app) render(style lipgloss.Style, s string) string {
	if !a.styled {
		return s
	}
	return style.Render(s)
}

func (a *app) showSuccess(msg string) {
	fmt.Fprintln(a.out, a.render(lipgloss.NewStyle().Foreground(colorGood), "✔ ")+a.render(baseStyle, msg))
}

func (a *app) showInfo(msg string) {
	fmt.Fprintln(a.out, a.render(dimStyle, "→ "+msg))
}

func (a *app) showError(msg string) {
	fmt.Fprintln(a.errOut, a.render(lipgloss.NewStyle().Foreground(colorBad), "✖ ")+a.render(baseStyle, msg))
}

func statusColor(s domain.EnvironmentStatus) lipgloss.Color {
	switch s {
	case domain.StatusActive:
		return colorGood
	case domain.StatusProvisioning, domain.StatusPaused:
		return colorWarn
	case domain.StatusDeleted:
		return colorMuted
	}
	return colorText
}

// renderTable prints rows under headers. colorFn may tint individual cells.
func (a *app) renderTable(headers []string, rows [][]string, colorFn func(row, col int) (lipgloss.Color, bool)) {
	styledHeaders := make([]string, len(headers))
	for i, h := range headers {
		styledHeaders[i] = a.render(boldStyle, h)
	}
	if a.styled && colorFn != nil {
		for r := range rows {
			for c := range rows[r] {
				if color, ok := colorFn(r, c); ok {
					rows[r][c] = lipgloss.NewStyle().Foreground(color).Render(rows[r][c])
				}
			}
		}
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		Headers(styledHeaders...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			return lipgloss.NewStyle().Padding(0, 1)
		})
	fmt.Fprintln(a.out, t.Render())
}

func (a *app) renderEnvironments(p domain.Project, activeID string) {
	headers := []string{"", "NAME", "TYPE", "STATUS", "DOMAIN", "CONTAINERS", "PENDING"}
	envs := make([]domain.Environment, 0, len(p.Environments))
	for _, env := range p.Environments {
		if env.Status != domain.StatusDeleted {
			envs = append(envs, env)
		}
	}
	rows := make([][]string, 0, len(envs))
	for _, env := range envs {
		marker := ""
		if env.ID == activeID {
			marker = "*"
		}
		pending := ""
		if env.PendingChanges {
			pending = "yes"
		}
		rows = append(rows, []string{marker, env.Name, string(env.Type), string(env.Status), env.BaseDomain, strconv.Itoa(len(env.Containers)), pending})
	}
	a.renderTable(headers, rows, func(row, col int) (lipgloss.Color, bool) {
		if col != 3 {
			return "", false
		}
		return statusColor(envs[row].Status), true
	})
}

func (a *app) renderCost(cost domain.CostBreakdown) {
	money := func(v float64) string { return "€" + strconv.FormatFloat(v, 'f', 2, 64) }
	rows := [][]string{
		{"Application", money(cost.Application)},
		{"Database", money(cost.Database)},
		{"Cache", money(cost.Cache)},
		{"Load balancer", money(cost.LoadBalancer)},
		{"Bandwidth", money(cost.Bandwidth)},
		{"Subtotal", money(cost.Subtotal)},
		{"Total / month", money(cost.Total)},
		{"Total / hour", money(cost.Hourly)},
	}
	a.renderTable([]string{"ITEM", "EUR"}, rows, func(row, col int) (lipgloss.Color, bool) {
		return colorAccent, row == len(rows)-2 && col == 1
	})
	if cost.Tier != "" {
		a.showInfo(fmt.Sprintf("tier %s on %d server(s)", cost.Tier, cost.Servers))
	}
}
