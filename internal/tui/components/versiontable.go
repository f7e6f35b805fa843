package components

import (
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/allbin/serialflash/internal/catalog"
	"github.com/allbin/serialflash/internal/flash"
	"github.com/allbin/serialflash/internal/tui/colors"
)

// VersionTable lets the user pick the firmware version to flash
type VersionTable struct {
	table   table.Model
	entries []catalog.Entry
}

func NewVersionTable(entries []catalog.Entry, width, height int) *VersionTable {
	t := table.New(
		table.WithFocused(true),
		table.WithHeight(max(height, 5)),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(colors.Subtext0).
		BorderBottom(true).
		Bold(true).
		Foreground(colors.Text)
	s.Selected = s.Selected.
		Foreground(colors.Text).
		Background(colors.Surface1).
		Bold(false)
	t.SetStyles(s)

	vt := &VersionTable{table: t, entries: entries}
	vt.SetSize(width, height)

	rows := make([]table.Row, len(entries))
	for i, e := range entries {
		rows[i] = table.Row{e.Device.Name, e.Firmware.Name, e.Release.Name, e.Firmware.Description}
	}
	vt.table.SetRows(rows)
	return vt
}

func (vt *VersionTable) SetSize(width, height int) {
	width = max(width, 60)

	// device, firmware and version are fixed; the description takes the rest
	deviceWidth, firmwareWidth, versionWidth := 20, 20, 12
	descWidth := max(width-deviceWidth-firmwareWidth-versionWidth-10, 10)

	vt.table.SetColumns([]table.Column{
		{Title: "Device", Width: deviceWidth},
		{Title: "Firmware", Width: firmwareWidth},
		{Title: "Version", Width: versionWidth},
		{Title: "Description", Width: descWidth},
	})
	vt.table.SetWidth(width)
	vt.table.SetHeight(max(height, 5))
	vt.table.UpdateViewport()
}

func (vt *VersionTable) Len() int {
	return len(vt.entries)
}

// Select moves the cursor to v if it is listed
func (vt *VersionTable) Select(v flash.Version) {
	for i, e := range vt.entries {
		if e.Version == v {
			vt.table.SetCursor(i)
			return
		}
	}
}

// Selected returns the version under the cursor
func (vt *VersionTable) Selected() (flash.Version, bool) {
	i := vt.table.Cursor()
	if i < 0 || i >= len(vt.entries) {
		return flash.Version{}, false
	}
	return vt.entries[i].Version, true
}

func (vt *VersionTable) Update(msg tea.Msg) tea.Cmd {
	var cmd tea.Cmd
	vt.table, cmd = vt.table.Update(msg)
	return cmd
}

func (vt *VersionTable) View() string {
	return vt.table.View()
}
