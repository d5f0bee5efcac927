package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/vadim/tutor-support/internal/domain/chatclient/policy"
	"github.com/vadim/tutor-support/internal/domain/support/entity"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("63"))
	paneStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240")).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212"))
	mutedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	unreadStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("0")).Background(lipgloss.Color("212")).Padding(0, 1)
	ownStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("86"))
	staffStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	pendingStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241")).Italic(true)
	toastStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func (m Model) View() string {
	if m.widget.State() == policy.StateClosed {
		return titleStyle.Render("Support chat") + "\n\n" +
			mutedStyle.Render("Chat is closed.") + "\n" +
			helpStyle.Render("ctrl+o open • ctrl+c quit") + "\n"
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render("Support chat"))
	b.WriteString("  ")
	b.WriteString(mutedStyle.Render(string(m.widget.State())))
	b.WriteString("\n")

	left := m.renderConversations()
	if m.mode == modeSearch {
		left = m.renderAdmins()
	}

	right := m.viewport.View()
	if m.widget.Selected() == "" && m.mode == modeChat {
		right = mutedStyle.Render("Select a conversation with tab, or press / to find an administrator.")
	}

	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		paneStyle.Width(listWidth).Render(left),
		paneStyle.Render(right),
	))
	b.WriteString("\n")

	if toast := m.toasts.Current(time.Now(), toastTTL); toast != "" {
		b.WriteString(toastStyle.Render(toast))
		b.WriteString("\n")
	}

	b.WriteString(m.input.View())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab next chat • / find admin • enter send • esc back • ctrl+o close • ctrl+c quit"))
	return b.String()
}

func (m Model) renderConversations() string {
	convs := m.widget.Conversations()
	if len(convs) == 0 {
		return mutedStyle.Render("No conversations yet")
	}

	selected := m.widget.Selected()
	lines := make([]string, 0, len(convs)*2)
	for _, c := range convs {
		name := truncate(c.Name, listWidth-6)
		if c.ID == selected {
			name = selectedStyle.Render("> " + name)
		} else {
			name = "  " + name
		}
		if c.UnreadCount > 0 {
			name += " " + unreadStyle.Render(fmt.Sprint(c.UnreadCount))
		}
		lines = append(lines, name, "  "+mutedStyle.Render(truncate(c.LastMessagePreview, listWidth-4)))
	}
	return strings.Join(lines, "\n")
}

func (m Model) renderAdmins() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Find administrator"))
	b.WriteString("\n")

	admins := m.widget.Admins()
	if len(admins) == 0 {
		b.WriteString(mutedStyle.Render("Type at least 2 characters"))
		return b.String()
	}
	for i, a := range admins {
		line := fmt.Sprintf("%s (%s)", truncate(a.FullName, listWidth-14), a.Role)
		if i == m.adminCursor {
			line = selectedStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		b.WriteString(line)
		b.WriteString("\n")
	}
	return b.String()
}

func renderMessages(msgs []entity.Message, selfID string, width int) string {
	if len(msgs) == 0 {
		return mutedStyle.Render("No messages yet")
	}

	body := lipgloss.NewStyle().Width(max(width-2, 10))
	var b strings.Builder
	for _, msg := range msgs {
		header := fmt.Sprintf("%s · %s", senderLabel(msg, selfID), msg.CreatedAt.Local().Format("15:04"))
		switch {
		case msg.IsTemporary():
			b.WriteString(pendingStyle.Render(header + " · sending"))
		case msg.SenderID == selfID:
			b.WriteString(ownStyle.Render(header))
		case msg.SenderRole.IsStaff():
			b.WriteString(staffStyle.Render(header))
		default:
			b.WriteString(mutedStyle.Render(header))
		}
		b.WriteString("\n")
		b.WriteString(body.Render(msg.Body))
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

func senderLabel(msg entity.Message, selfID string) string {
	if msg.SenderID == selfID {
		return "You"
	}
	if msg.SenderName != "" {
		return msg.SenderName
	}
	return string(msg.SenderRole)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
