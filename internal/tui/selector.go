// =============================================================================
// Billing Status Reconciler - Payment-Status Selector
// =============================================================================
//
// This module is the interactive selection of paid direct invoices.
//
// INPUT:
//   The distinct invoice identities of the direct-invoice feed.
//
// OUTPUT:
//   Marks written into the selection.Store the Selector was given. The
//   store outlives the program, so confirmed marks feed the export.
//
// KEYS:
//   up/k, down/j  move          space  toggle paid
//   x             toggle exclude a      mark all paid
//   n             clear marks    enter  confirm
//   q, esc        cancel
//
// =============================================================================

package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
	"github.com/ginjaninja78/billing-status-reconciler/internal/export"
	"github.com/ginjaninja78/billing-status-reconciler/internal/feed"
	"github.com/ginjaninja78/billing-status-reconciler/internal/selection"
)

// UnpaidFunc recomputes the outstanding total for a selection.
type UnpaidFunc func(sel feed.Selection) decimal.Decimal

type keyMap struct {
	Up      key.Binding
	Down    key.Binding
	Paid    key.Binding
	Exclude key.Binding
	All     key.Binding
	None    key.Binding
	Confirm key.Binding
	Cancel  key.Binding
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.Paid, k.Exclude, k.All, k.None, k.Confirm, k.Cancel}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

var keys = keyMap{
	Up:      key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:    key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Paid:    key.NewBinding(key.WithKeys(" "), key.WithHelp("space", "paid")),
	Exclude: key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "exclude")),
	All:     key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all paid")),
	None:    key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "clear")),
	Confirm: key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
	Cancel:  key.NewBinding(key.WithKeys("q", "esc", "ctrl+c"), key.WithHelp("q/esc", "cancel")),
}

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#6BCB77")).
			MarginBottom(1)
	cursorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFD479")).Bold(true)
	paidStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#6BCB77"))
	excludedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888")).Strikethrough(true)
	totalStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#555555")).
			Padding(0, 1).
			MarginTop(1)
)

// Selector is a bubbletea model listing invoice identities as checkboxes.
type Selector struct {
	ids    []billing.InvoiceIdentity
	store  *selection.Store
	unpaid UnpaidFunc
	help   help.Model

	cursor int
	offset int
	height int
	total  decimal.Decimal

	confirmed bool
	cancelled bool
}

// NewSelector creates a selector over ids that writes marks into store.
// unpaid may be nil, in which case no running total is shown.
func NewSelector(ids []billing.InvoiceIdentity, store *selection.Store, unpaid UnpaidFunc) *Selector {
	if store == nil {
		store = selection.NewStore()
	}
	s := &Selector{
		ids:    ids,
		store:  store,
		unpaid: unpaid,
		help:   help.New(),
		height: 20,
	}
	s.recompute()
	return s
}

// Init implements tea.Model.
func (s *Selector) Init() tea.Cmd { return nil }

// Update implements tea.Model.
func (s *Selector) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		s.height = msg.Height - 10
		if s.height < 3 {
			s.height = 3
		}
		s.help.Width = msg.Width
		s.clampOffset()
		return s, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keys.Cancel):
			s.cancelled = true
			return s, tea.Quit
		case key.Matches(msg, keys.Confirm):
			s.confirmed = true
			return s, tea.Quit
		case key.Matches(msg, keys.Up):
			if s.cursor > 0 {
				s.cursor--
			}
		case key.Matches(msg, keys.Down):
			if s.cursor < len(s.ids)-1 {
				s.cursor++
			}
		case key.Matches(msg, keys.Paid):
			if id, ok := s.current(); ok {
				s.store.TogglePaid(id)
				s.recompute()
			}
		case key.Matches(msg, keys.Exclude):
			if id, ok := s.current(); ok {
				s.store.ToggleExcluded(id)
				s.recompute()
			}
		case key.Matches(msg, keys.All):
			for _, id := range s.ids {
				s.store.SetPaid(id, true)
			}
			s.recompute()
		case key.Matches(msg, keys.None):
			for _, id := range s.ids {
				s.store.SetPaid(id, false)
				s.store.SetExcluded(id, false)
			}
			s.recompute()
		}
		s.clampOffset()
	}
	return s, nil
}

// View implements tea.Model.
func (s *Selector) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("入金済みの請求書を選択"))
	b.WriteString("\n")

	if len(s.ids) == 0 {
		b.WriteString("直接請求の請求書はありません\n")
	}

	end := s.offset + s.height
	if end > len(s.ids) {
		end = len(s.ids)
	}
	for i := s.offset; i < end; i++ {
		b.WriteString(s.renderLine(i))
		b.WriteString("\n")
	}

	summary := fmt.Sprintf("入金済み %d / 除外 %d / 全 %d 件",
		len(s.store.PaidIdentities()), len(s.store.ExcludedIdentities()), len(s.ids))
	if s.unpaid != nil {
		summary = fmt.Sprintf("未入金合計: %s円   %s", export.FormatYen(s.total), summary)
	}
	b.WriteString(totalStyle.Render(summary))
	b.WriteString("\n")
	b.WriteString(s.help.View(keys))
	return b.String()
}

func (s *Selector) renderLine(i int) string {
	id := s.ids[i]
	mark := s.store.Mark(id)

	box := "[ ]"
	style := lipgloss.NewStyle()
	switch {
	case mark.Excluded:
		box = "[-]"
		style = excludedStyle
	case mark.Paid:
		box = "[x]"
		style = paidStyle
	}

	pointer := "  "
	if i == s.cursor {
		pointer = cursorStyle.Render("> ")
	}
	return pointer + style.Render(box+" "+id.Display())
}

func (s *Selector) current() (billing.InvoiceIdentity, bool) {
	if s.cursor < 0 || s.cursor >= len(s.ids) {
		return billing.InvoiceIdentity{}, false
	}
	return s.ids[s.cursor], true
}

func (s *Selector) recompute() {
	if s.unpaid != nil {
		s.total = s.unpaid(s.store)
	}
}

// clampOffset keeps the cursor inside the visible window.
func (s *Selector) clampOffset() {
	if s.cursor < s.offset {
		s.offset = s.cursor
	}
	if s.cursor >= s.offset+s.height {
		s.offset = s.cursor - s.height + 1
	}
}

// Confirmed reports whether the user accepted the selection.
func (s *Selector) Confirmed() bool { return s.confirmed }

// Cancelled reports whether the user abandoned the selection.
func (s *Selector) Cancelled() bool { return s.cancelled }

// Total is the last computed outstanding total.
func (s *Selector) Total() decimal.Decimal { return s.total }

// Run shows the selector on the terminal until the user confirms or
// cancels. It returns whether the selection was confirmed.
func Run(s *Selector) (bool, error) {
	p := tea.NewProgram(s, tea.WithOutput(os.Stderr))
	final, err := p.Run()
	if err != nil {
		return false, fmt.Errorf("run selector: %w", err)
	}
	if sel, ok := final.(*Selector); ok {
		return sel.Confirmed(), nil
	}
	return false, nil
}
