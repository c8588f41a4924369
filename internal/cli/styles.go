package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/AjCodes/FocusUp-sub000/internal/models"
	"github.com/AjCodes/FocusUp-sub000/internal/session"
)

var (
	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true)

	dimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	okStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("42"))

	coinStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("220")).
			Bold(true)

	rewardBoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("63")).
			Padding(0, 1)

	attributeColors = map[models.Attribute]lipgloss.Color{
		models.AttributePhysical:  lipgloss.Color("203"),
		models.AttributeCognitive: lipgloss.Color("39"),
		models.AttributeHeart:     lipgloss.Color("213"),
		models.AttributeSoul:      lipgloss.Color("141"),
	}
)

func attributeLabel(attr models.Attribute) string {
	return lipgloss.NewStyle().Foreground(attributeColors[attr]).Render(string(attr))
}

func xpLine(xp models.AttributeXP) string {
	parts := make([]string, 0, len(models.AllAttributes))
	for _, attr := range models.AllAttributes {
		parts = append(parts, fmt.Sprintf("%s %d", attributeLabel(attr), xp.Get(attr)))
	}
	return strings.Join(parts, "  ")
}

// renderReward formats what a completion earned.
func renderReward(res session.Result) string {
	lines := []string{
		coinStyle.Render(fmt.Sprintf("+%d coins", res.Coins)),
		"XP  " + xpLine(res.XP),
	}
	for _, msg := range res.Messages {
		lines = append(lines, dimStyle.Render(msg))
	}
	return rewardBoxStyle.Render(strings.Join(lines, "\n"))
}

func check(done bool) string {
	if done {
		return okStyle.Render("✓")
	}
	return " "
}
