// Package tui provides a terminal UI for browsing an rstore server.
package tui

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/klubi/rstore/pkg/client"
)

// maxColumns caps the number of table columns, uuid included.
const maxColumns = 6

// App is the main TUI application. It polls the rstore REST API and shows
// the resources of one resource type at a time in a navigable table.
type App struct {
	app         *tview.Application
	pages       *tview.Pages
	header      *tview.TextView
	footer      *tview.TextView
	table       *tview.Table
	filterInput *tview.InputField
	detailView  *tview.TextView
	layout      *tview.Flex

	client     *client.Client
	serverAddr string

	// Guarded by mu.
	types       []client.TypeInfo
	currentType int
	filter      string
	resources   []client.Resource
	lastErr     error

	mu sync.Mutex

	// mainFlex is the outermost vertical flex (header + content + footer).
	mainFlex *tview.Flex

	describeOpen bool
	filterOpen   bool
}

// NewApp creates a new TUI application using c to talk to the server at
// serverAddr.
func NewApp(c *client.Client, serverAddr string) *App {
	a := &App{
		app:        tview.NewApplication(),
		client:     c,
		serverAddr: serverAddr,
	}

	// -- Header --
	a.header = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.header.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Footer --
	a.footer = tview.NewTextView().
		SetDynamicColors(true).
		SetTextAlign(tview.AlignLeft)
	a.footer.SetBackgroundColor(tcell.ColorDarkBlue)

	// -- Table --
	a.table = tview.NewTable().
		SetSelectable(true, false).
		SetFixed(1, 0).
		SetSeparator(tview.Borders.Vertical)
	a.table.SetBorderPadding(0, 0, 1, 1)

	// -- Filter input --
	a.filterInput = tview.NewInputField().
		SetLabel(" Filter: ").
		SetFieldWidth(40).
		SetFieldBackgroundColor(tcell.ColorBlack).
		SetLabelColor(tcell.ColorYellow)

	a.filterInput.SetDoneFunc(func(key tcell.Key) {
		a.mu.Lock()
		if key == tcell.KeyEnter {
			a.filter = a.filterInput.GetText()
		} else {
			a.filter = ""
		}
		a.mu.Unlock()
		a.hideFilter()
		a.updateHeader()
		a.updateTable()
	})

	// -- Detail view --
	a.detailView = tview.NewTextView().
		SetDynamicColors(true).
		SetScrollable(true).
		SetWrap(true)
	a.detailView.SetBorder(true).
		SetTitle(" Resource ").
		SetBorderColor(tcell.ColorDodgerBlue)

	contentFlex := tview.NewFlex().SetDirection(tview.FlexColumn).
		AddItem(a.table, 0, 1, true)

	a.mainFlex = tview.NewFlex().SetDirection(tview.FlexRow).
		AddItem(a.header, 1, 0, false).
		AddItem(contentFlex, 0, 1, true).
		AddItem(a.footer, 1, 0, false)

	a.layout = contentFlex

	a.pages = tview.NewPages().
		AddPage("main", a.mainFlex, true, true)

	a.updateHeader()
	a.updateFooter()
	a.setupKeyBindings()

	a.app.SetRoot(a.pages, true).SetFocus(a.table)

	return a
}

// Run loads the resource types, starts the background refresh goroutine and
// runs the TUI event loop.
func (a *App) Run() error {
	types, err := a.client.ListTypes()
	if err != nil {
		return fmt.Errorf("listing resource types: %w", err)
	}
	a.mu.Lock()
	a.types = types
	a.mu.Unlock()

	a.updateHeader()
	a.refresh()
	a.updateTable()

	go func() {
		ticker := time.NewTicker(2 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			a.refresh()
			a.app.QueueUpdateDraw(a.updateTable)
		}
	}()

	return a.app.Run()
}

// ---------------------------------------------------------------------------
// Key bindings
// ---------------------------------------------------------------------------

func (a *App) setupKeyBindings() {
	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		// When the filter input has focus, let it handle its own keys.
		if a.filterOpen {
			return event
		}

		if a.describeOpen && event.Key() == tcell.KeyEscape {
			a.hideDescribe()
			return nil
		}

		switch event.Key() {
		case tcell.KeyTab:
			a.switchType(a.typeIndex() + 1)
			return nil
		case tcell.KeyBacktab:
			a.switchType(a.typeIndex() - 1)
			return nil
		case tcell.KeyEnter:
			a.showDescribe()
			return nil
		case tcell.KeyEscape:
			a.mu.Lock()
			a.filter = ""
			a.mu.Unlock()
			a.updateHeader()
			a.updateTable()
			return nil
		case tcell.KeyRune:
			r := event.Rune()
			if r >= '1' && r <= '9' {
				a.switchType(int(r - '1'))
				return nil
			}
			switch r {
			case '/':
				a.showFilter()
				return nil
			case 'q':
				a.app.Stop()
				return nil
			case 'r':
				go func() {
					a.refresh()
					a.app.QueueUpdateDraw(a.updateTable)
				}()
				return nil
			case 'd':
				a.confirmDelete()
				return nil
			case 'j':
				row, _ := a.table.GetSelection()
				if row < a.table.GetRowCount()-1 {
					a.table.Select(row+1, 0)
				}
				return nil
			case 'k':
				row, _ := a.table.GetSelection()
				if row > 1 {
					a.table.Select(row-1, 0)
				}
				return nil
			}
		}

		return event
	})
}

// ---------------------------------------------------------------------------
// Type switching
// ---------------------------------------------------------------------------

func (a *App) typeIndex() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentType
}

func (a *App) switchType(i int) {
	a.mu.Lock()
	n := len(a.types)
	if n == 0 {
		a.mu.Unlock()
		return
	}
	a.currentType = ((i % n) + n) % n
	a.resources = nil
	a.mu.Unlock()

	a.hideDescribe()
	a.updateHeader()

	go func() {
		a.refresh()
		a.app.QueueUpdateDraw(a.updateTable)
	}()
}

// currentTypeName returns the selected resource type, or "" before the
// types are loaded.
func (a *App) currentTypeName() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentType >= len(a.types) {
		return ""
	}
	return a.types[a.currentType].Name
}

// ---------------------------------------------------------------------------
// Data refresh
// ---------------------------------------------------------------------------

func (a *App) refresh() {
	name := a.currentTypeName()
	if name == "" {
		return
	}

	list, err := a.client.List(name)

	a.mu.Lock()
	defer a.mu.Unlock()
	// The user may have switched types while the request was in flight.
	if a.currentType < len(a.types) && a.types[a.currentType].Name == name {
		a.resources = list
		a.lastErr = err
	}
}

// ---------------------------------------------------------------------------
// Table rendering
// ---------------------------------------------------------------------------

func (a *App) updateTable() {
	a.table.Clear()

	a.mu.Lock()
	resources := a.resources
	filter := strings.ToLower(a.filter)
	err := a.lastErr
	a.mu.Unlock()

	if err != nil {
		a.setTableHeaders([]string{"ERROR"})
		a.table.SetCell(1, 0,
			tview.NewTableCell(fmt.Sprintf("Error: %v", err)).
				SetTextColor(tcell.ColorRed))
		return
	}

	columns := tableColumns(resources)
	a.setTableHeaders(upper(columns))

	row := 1
	for _, r := range resources {
		values := make([]string, len(columns))
		for i, c := range columns {
			values[i] = cellText(r[c])
		}
		if !matchesFilter(filter, values...) {
			continue
		}
		for col, v := range values {
			cell := tview.NewTableCell(v).SetExpansion(1)
			if col == 0 {
				cell.SetTextColor(tcell.ColorDarkCyan).SetReference(r.UUID())
			}
			a.table.SetCell(row, col, cell)
		}
		row++
	}

	if a.table.GetRowCount() > 1 {
		a.table.Select(1, 0)
	}
}

func (a *App) setTableHeaders(headers []string) {
	for col, h := range headers {
		cell := tview.NewTableCell(h).
			SetTextColor(tcell.ColorWhite).
			SetBackgroundColor(tcell.ColorDarkCyan).
			SetAttributes(tcell.AttrBold).
			SetSelectable(false).
			SetExpansion(1)
		a.table.SetCell(0, col, cell)
	}
}

// tableColumns returns "uuid" followed by the other fields present in
// resources, sorted, up to maxColumns in total.
func tableColumns(resources []client.Resource) []string {
	seen := map[string]bool{"uuid": true}
	var fields []string
	for _, r := range resources {
		for k := range r {
			if !seen[k] {
				seen[k] = true
				fields = append(fields, k)
			}
		}
	}
	sort.Strings(fields)
	if len(fields) > maxColumns-1 {
		fields = fields[:maxColumns-1]
	}
	return append([]string{"uuid"}, fields...)
}

func upper(list []string) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = strings.ToUpper(s)
	}
	return out
}

func cellText(v any) string {
	switch val := v.(type) {
	case nil:
		return "-"
	case string:
		return val
	case map[string]any, []any:
		b, _ := json.Marshal(val)
		return string(b)
	default:
		return fmt.Sprint(val)
	}
}

// matchesFilter returns true if any of the values contain the filter string.
func matchesFilter(filter string, values ...string) bool {
	if filter == "" {
		return true
	}
	for _, v := range values {
		if strings.Contains(strings.ToLower(v), filter) {
			return true
		}
	}
	return false
}

// selectedID returns the uuid of the selected row.
func (a *App) selectedID() (string, bool) {
	row, _ := a.table.GetSelection()
	if row < 1 || row >= a.table.GetRowCount() {
		return "", false
	}
	id, ok := a.table.GetCell(row, 0).GetReference().(string)
	return id, ok && id != ""
}

// ---------------------------------------------------------------------------
// Describe (detail panel)
// ---------------------------------------------------------------------------

func (a *App) showDescribe() {
	id, ok := a.selectedID()
	if !ok {
		return
	}

	var detail string
	res, err := a.client.Get(a.currentTypeName(), id)
	if err != nil {
		detail = fmt.Sprintf("[red]Error: %v[-]", err)
	} else {
		detail = describeResource(res)
	}
	a.detailView.SetText(detail)

	if !a.describeOpen {
		a.layout.AddItem(a.detailView, 0, 1, false)
		a.describeOpen = true
	}
}

func (a *App) hideDescribe() {
	if a.describeOpen {
		a.layout.RemoveItem(a.detailView)
		a.describeOpen = false
		a.app.SetFocus(a.table)
	}
}

// describeResource renders every field of r, one per line, in name order.
func describeResource(r client.Resource) string {
	fields := make([]string, 0, len(r))
	width := 0
	for k := range r {
		fields = append(fields, k)
		if len(k) > width {
			width = len(k)
		}
	}
	sort.Strings(fields)

	var b strings.Builder
	for _, f := range fields {
		value := cellText(r[f])
		if nested, ok := r[f].(map[string]any); ok {
			if pretty, err := json.MarshalIndent(nested, "  ", "  "); err == nil {
				value = string(pretty)
			}
		}
		fmt.Fprintf(&b, "[yellow]%-*s[-]  %s\n", width, f, tview.Escape(value))
	}
	return b.String()
}

// ---------------------------------------------------------------------------
// Filter
// ---------------------------------------------------------------------------

func (a *App) showFilter() {
	if a.filterOpen {
		return
	}
	a.filterOpen = true
	a.mu.Lock()
	a.filterInput.SetText(a.filter)
	a.mu.Unlock()

	// Replace footer with filter input in the main vertical flex.
	a.mainFlex.RemoveItem(a.footer)
	a.mainFlex.AddItem(a.filterInput, 1, 0, true)
	a.app.SetFocus(a.filterInput)
}

func (a *App) hideFilter() {
	if !a.filterOpen {
		return
	}
	a.filterOpen = false

	a.mainFlex.RemoveItem(a.filterInput)
	a.mainFlex.AddItem(a.footer, 1, 0, false)
	a.app.SetFocus(a.table)
}

// ---------------------------------------------------------------------------
// Delete with confirmation
// ---------------------------------------------------------------------------

func (a *App) confirmDelete() {
	id, ok := a.selectedID()
	if !ok {
		return
	}
	resourceType := a.currentTypeName()

	modal := tview.NewModal().
		SetText(fmt.Sprintf("Delete %s %q?", resourceType, id)).
		AddButtons([]string{"Delete", "Cancel"}).
		SetDoneFunc(func(buttonIndex int, buttonLabel string) {
			if buttonLabel == "Delete" {
				a.deleteResource(resourceType, id)
			}
			a.pages.RemovePage("confirm")
			a.app.SetFocus(a.table)
		})
	modal.SetBackgroundColor(tcell.ColorDarkRed)

	a.pages.AddPage("confirm", modal, true, true)
}

func (a *App) deleteResource(resourceType, id string) {
	if _, err := a.client.Delete(resourceType, id); err != nil {
		a.footer.SetText(fmt.Sprintf(" [red]Delete failed: %v[-]", err))
		go func() {
			time.Sleep(3 * time.Second)
			a.app.QueueUpdateDraw(a.updateFooter)
		}()
		return
	}

	go func() {
		a.refresh()
		a.app.QueueUpdateDraw(a.updateTable)
	}()
}

// ---------------------------------------------------------------------------
// Header & Footer
// ---------------------------------------------------------------------------

func (a *App) updateHeader() {
	a.mu.Lock()
	defer a.mu.Unlock()

	var parts []string
	for i, t := range a.types {
		label := t.Name
		if i < 9 {
			label = fmt.Sprintf("<%d>%s", i+1, t.Name)
		}
		if i == a.currentType {
			label = fmt.Sprintf("[::b][%s][::-]", label)
		}
		parts = append(parts, label)
	}
	if len(parts) == 0 {
		parts = append(parts, "[gray]no resource types[-]")
	}

	filterInfo := ""
	if a.filter != "" {
		filterInfo = fmt.Sprintf(" | [yellow]filter: %s[-]", a.filter)
	}

	a.header.SetText(fmt.Sprintf(" [::b]rstore[::-] | %s | %s%s",
		a.serverAddr, strings.Join(parts, "  "), filterInfo))
}

func (a *App) updateFooter() {
	a.footer.SetText(" [yellow]<tab>[white]Next type  [yellow]<enter>[white]Describe  [yellow]<d>[white]Delete  [yellow]</>[white]Filter  [yellow]<r>[white]Refresh  [yellow]<q>[white]Quit  [yellow]<esc>[white]Back")
}
