// Package tui is an interactive terminal front end for the station: one row
// per device with On, Off, Connect and Disconnect controls.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/srg/uwave/internal/device"
	"github.com/srg/uwave/internal/discovery"
	"github.com/srg/uwave/internal/registry"
)

// Station is what the UI drives.
type Station interface {
	Snapshot() []registry.Record
	Discover(ctx context.Context) (discovery.Result, error)
	Connect(ctx context.Context, id string) error
	Disconnect(id string) error
	DisconnectAll() error
}

// EventMsg delivers one registry change to the model.
type EventMsg registry.Event

// StreamClosedMsg reports that the event stream ended.
type StreamClosedMsg struct{}

// ResultMsg reports the outcome of a user command.
type ResultMsg struct {
	Op  string
	ID  string
	Err error
}

var columns = []table.Column{
	{Title: "Name", Width: 20},
	{Title: "ID", Width: 20},
	{Title: "Status", Width: 13},
	{Title: "Measurement", Width: 12},
	{Title: "Battery", Width: 8},
}

// Model is the bubbletea model.
type Model struct {
	station     Station
	events      <-chan registry.Event
	scanTimeout time.Duration

	table   table.Model
	spinner spinner.Model
	records []registry.Record
	busy    string
	status  string
	failed  bool
}

// New creates the model. events may be nil, in which case the table is only
// refreshed after commands.
func New(station Station, events <-chan registry.Event, scanTimeout time.Duration) Model {
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	m := Model{
		station:     station,
		events:      events,
		scanTimeout: scanTimeout,
		table:       t,
		spinner:     sp,
	}
	m.refresh()
	return m
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.waitForEvent())
}

func (m Model) waitForEvent() tea.Cmd {
	if m.events == nil {
		return nil
	}
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return StreamClosedMsg{}
		}
		return EventMsg(ev)
	}
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case EventMsg:
		m.refresh()
		return m, m.waitForEvent()

	case StreamClosedMsg:
		m.events = nil
		return m, nil

	case ResultMsg:
		m.busy = ""
		m.refresh()
		m.failed = msg.Err != nil
		m.status = describeResult(msg)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	if m.busy != "" {
		return m, nil
	}

	switch msg.String() {
	case "o":
		m.busy = "Searching for a device"
		return m, m.discover()
	case "f":
		m.busy = "Disconnecting all devices"
		return m, m.off()
	case "c", "enter":
		if rec, ok := m.selected(); ok {
			m.busy = "Connecting to " + rec.Name
			return m, m.connect(rec.ID)
		}
		return m, nil
	case "d", "x":
		if rec, ok := m.selected(); ok {
			m.busy = "Disconnecting " + rec.Name
			return m, m.disconnect(rec.ID)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m Model) discover() tea.Cmd {
	station, timeout := m.station, m.scanTimeout
	return func() tea.Msg {
		ctx := context.Background()
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		res, err := station.Discover(ctx)
		return ResultMsg{Op: "on", ID: res.Record.ID, Err: err}
	}
}

func (m Model) off() tea.Cmd {
	station := m.station
	return func() tea.Msg {
		return ResultMsg{Op: "off", Err: station.DisconnectAll()}
	}
}

func (m Model) connect(id string) tea.Cmd {
	station := m.station
	return func() tea.Msg {
		return ResultMsg{Op: "connect", ID: id, Err: station.Connect(context.Background(), id)}
	}
}

func (m Model) disconnect(id string) tea.Cmd {
	station := m.station
	return func() tea.Msg {
		return ResultMsg{Op: "disconnect", ID: id, Err: station.Disconnect(id)}
	}
}

func (m Model) selected() (registry.Record, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.records) {
		return registry.Record{}, false
	}
	return m.records[i], true
}

func (m *Model) refresh() {
	m.records = m.station.Snapshot()
	m.table.SetRows(Rows(m.records))
	if c := m.table.Cursor(); c >= len(m.records) && len(m.records) > 0 {
		m.table.SetCursor(len(m.records) - 1)
	}
}

func describeResult(r ResultMsg) string {
	if r.Err == nil {
		switch r.Op {
		case "on":
			return "Device ready: " + r.ID
		case "off":
			return "All devices disconnected"
		case "connect":
			return "Connected: " + r.ID
		case "disconnect":
			return "Removed: " + r.ID
		}
		return "Done"
	}
	if errors.Is(r.Err, device.ErrUserCancelled) {
		return "No device selected"
	}
	return fmt.Sprintf("%s failed: %v", r.Op, r.Err)
}

// Rows renders records as table rows.
func Rows(records []registry.Record) []table.Row {
	rows := make([]table.Row, 0, len(records))
	for _, rec := range records {
		rows = append(rows, table.Row{
			rec.Name,
			rec.ID,
			StatusText(rec.State),
			FormatMeasurement(rec.Measurement),
			FormatBattery(rec.BatteryLevel),
		})
	}
	return rows
}

// StatusText is the human label of a connection state.
func StatusText(s registry.ConnectionState) string {
	switch s {
	case registry.Connected:
		return "Connected"
	case registry.Connecting:
		return "Connecting..."
	default:
		return "Disconnected"
	}
}

// FormatMeasurement prints a reading or a dash when absent.
func FormatMeasurement(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.3f", *v)
}

// FormatBattery prints a battery percentage or a dash when absent.
func FormatBattery(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d%%", *v)
}

func (m Model) View() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("UWAVE station"))
	b.WriteString("\n\n")

	if len(m.records) == 0 {
		b.WriteString(mutedStyle.Render("  No devices. Press o to search."))
		b.WriteString("\n")
	} else {
		b.WriteString(borderStyle.Render(m.table.View()))
		b.WriteString("\n")
	}

	switch {
	case m.busy != "":
		b.WriteString(m.spinner.View() + " " + warnStyle.Render(m.busy))
	case m.failed:
		b.WriteString(errorStyle.Render(m.status))
	case m.status != "":
		b.WriteString(okStyle.Render(m.status))
	}
	b.WriteString("\n\n")
	b.WriteString(mutedStyle.Render("o on • f off • c connect • d disconnect • q quit"))
	b.WriteString("\n")
	return b.String()
}

// Run starts the program and blocks until the user quits or ctx ends.
func Run(ctx context.Context, m Model) error {
	_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
