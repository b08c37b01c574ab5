package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/project-rig/rig-scp/pkg/conn"
)

var (
	watchInterval time.Duration
	watchCmd      = &cobra.Command{
		Use:   "watch",
		Short: "Live latency dashboard for a target",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, cleanup, err := dial()
			if err != nil {
				return err
			}
			defer cleanup()

			p := tea.NewProgram(newWatchModel(c))
			_, err = p.Run()
			return err
		},
	}
)

// Styles for the watch dashboard.
var (
	watchTitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("15")).
			Background(lipgloss.Color("57")).
			Padding(0, 1)

	watchOKStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2"))

	watchLostStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("1")).
			Bold(true)

	watchStatusStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("241")).
				PaddingLeft(1)
)

// maxSamples bounds the rolling history shown in the dashboard.
const maxSamples = 16

// sample is one ping outcome.
type sample struct {
	rtt  time.Duration
	err  error
	when time.Time
}

// tickMsg triggers the next ping.
type tickMsg time.Time

// sampleMsg carries a finished ping.
type sampleMsg sample

type watchModel struct {
	conn    *conn.Conn
	samples []sample
	sent    int
	lost    int
	width   int
}

func newWatchModel(c *conn.Conn) watchModel {
	return watchModel{conn: c}
}

func (m watchModel) Init() tea.Cmd {
	return tea.Batch(watchTick(), m.ping())
}

func watchTick() tea.Cmd {
	return tea.Tick(watchInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// ping issues one round-trip off the bubbletea goroutine.
func (m watchModel) ping() tea.Cmd {
	c := m.conn
	return func() tea.Msg {
		rtt, err := pingOnce(c)
		return sampleMsg(sample{rtt: rtt, err: err, when: time.Now()})
	}
}

func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			m.samples = nil
			m.sent = 0
			m.lost = 0
		}
		return m, nil

	case tickMsg:
		return m, tea.Batch(watchTick(), m.ping())

	case sampleMsg:
		m.sent++
		if msg.err != nil {
			m.lost++
		}
		m.samples = append(m.samples, sample(msg))
		if len(m.samples) > maxSamples {
			m.samples = m.samples[len(m.samples)-maxSamples:]
		}
		return m, nil
	}

	return m, nil
}

func (m watchModel) View() string {
	var sb strings.Builder

	sb.WriteString(watchTitleStyle.Render(fmt.Sprintf("  SCP watch — %s  ", cfg.Target)))
	sb.WriteString("\n\n")

	for _, s := range m.samples {
		when := s.when.Format("15:04:05")
		if s.err != nil {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", when,
				watchLostStyle.Render(conn.ErrName(s.err))))
		} else {
			sb.WriteString(fmt.Sprintf("  %s  %s\n", when,
				watchOKStyle.Render(s.rtt.Round(time.Microsecond).String())))
		}
	}
	if len(m.samples) == 0 {
		sb.WriteString("  waiting for the first sample…\n")
	}

	loss := 0.0
	if m.sent > 0 {
		loss = 100 * float64(m.lost) / float64(m.sent)
	}
	sb.WriteString("\n")
	sb.WriteString(watchStatusStyle.Render(fmt.Sprintf(
		"sent: %d  |  lost: %d (%.0f%%)  |  q: quit  r: reset", m.sent, m.lost, loss)))
	sb.WriteString("\n")

	return sb.String()
}

func init() {
	watchCmd.Flags().DurationVarP(&watchInterval, "interval", "i", time.Second, "time between pings")
	rootCmd.AddCommand(watchCmd)
}
