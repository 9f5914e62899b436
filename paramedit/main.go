package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"fyne.io/fyne/v2"
	"fyne.io/fyne/v2/app"
	"fyne.io/fyne/v2/container"
	"fyne.io/fyne/v2/dialog"
	"fyne.io/fyne/v2/theme"
	"fyne.io/fyne/v2/widget"
	log "github.com/sirupsen/logrus"

	"github.com/itohio/sensepipe/pkg/param"
)

func main() {
	paramsFlag := flag.String("params", "params.yaml", "Parameter file written by sensord")
	flag.Parse()

	application := app.NewWithID("com.itohio.sensepipe.paramedit")

	window := application.NewWindow("Sensor Parameters")
	window.Resize(fyne.NewSize(640, 480))
	window.CenterOnScreen()

	state := &editorState{
		path:   *paramsFlag,
		window: window,
		tabs:   container.NewAppTabs(),
		status: widget.NewLabel(""),
	}

	toolbar := widget.NewToolbar(
		widget.NewToolbarAction(theme.ViewRefreshIcon(), state.reload),
	)

	window.SetContent(container.NewBorder(
		toolbar,
		state.status,
		nil,
		nil,
		state.tabs,
	))
	state.reload()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		err := param.Watch(ctx, state.path, func(param.Document) {
			fyne.Do(func() {
				// Our own save.
				if time.Since(state.savedAt) < time.Second {
					return
				}
				state.status.SetText(fmt.Sprintf("%s changed on disk at %s, reload to see it",
					state.path, time.Now().Format("15:04:05")))
			})
		})
		if err != nil {
			log.Errorf("watch %s: %v", state.path, err)
		}
	}()

	window.ShowAndRun()
}

// editorState holds the document being edited.
type editorState struct {
	path   string
	doc    param.Document
	window fyne.Window
	tabs   *container.AppTabs
	status *widget.Label

	savedAt time.Time
}

// reload reads the parameter file and rebuilds one tab per node.
func (s *editorState) reload() {
	doc, err := param.ReadFile(s.path)
	if err != nil {
		dialog.ShowError(fmt.Errorf("failed to read %s: %w", s.path, err), s.window)
		return
	}
	s.doc = doc

	selected := s.tabs.SelectedIndex()
	items := make([]*container.TabItem, 0, len(doc.Nodes))
	for _, n := range doc.Nodes {
		items = append(items, s.nodeTab(n))
	}
	s.tabs.SetItems(items)
	if selected >= 0 && selected < len(items) {
		s.tabs.SelectIndex(selected)
	}

	if len(doc.Nodes) == 0 {
		s.status.SetText(fmt.Sprintf("%s has no parameters yet; start sensord once to create it", s.path))
	} else {
		s.status.SetText(fmt.Sprintf("Loaded %d nodes from %s", len(doc.Nodes), s.path))
	}
}

// nodeTab creates the form for one configuration path.
func (s *editorState) nodeTab(n param.NodeDoc) *container.TabItem {
	entries := make(map[string]*widget.Entry, len(n.Params))
	form := &widget.Form{SubmitText: "Save"}

	for _, p := range n.Params {
		entry := widget.NewEntry()
		entry.SetText(formatValue(p.Value))
		entries[p.Key] = entry
		form.Items = append(form.Items, &widget.FormItem{
			Text:     labelFor(p),
			Widget:   entry,
			HintText: p.Key,
		})
	}

	path := n.Path
	form.OnSubmit = func() {
		texts := make(map[string]string, len(entries))
		for key, e := range entries {
			texts[key] = e.Text
		}

		doc, err := applyEntries(s.doc, path, texts)
		if err != nil {
			dialog.ShowError(err, s.window)
			return
		}
		if err := param.WriteFile(s.path, doc); err != nil {
			dialog.ShowError(fmt.Errorf("failed to save parameters: %w", err), s.window)
			return
		}
		s.doc = doc
		s.savedAt = time.Now()
		s.status.SetText(fmt.Sprintf("Saved %s at %s", path, time.Now().Format("15:04:05")))
	}

	return container.NewTabItem(tabTitle(n.Path), form)
}
