package main

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/itohio/sensepipe/pkg/param"
)

// formatValue renders v the way it is shown in an entry.
func formatValue(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// labelFor returns the text shown next to a parameter entry.
func labelFor(p param.ParamDoc) string {
	if p.Label != "" {
		return p.Label
	}
	return p.Key
}

// tabTitle shortens a configuration path to a tab title.
func tabTitle(path string) string {
	t := strings.Trim(path, "/")
	if t == "" {
		return path
	}
	return t
}

// applyEntries returns a copy of doc with the node at path updated from the
// entry texts, keyed by parameter key. Nothing is changed on error.
func applyEntries(doc param.Document, path string, texts map[string]string) (param.Document, error) {
	out := param.Document{Nodes: make([]param.NodeDoc, len(doc.Nodes))}
	found := false
	for i, n := range doc.Nodes {
		cp := param.NodeDoc{Path: n.Path, Params: append([]param.ParamDoc(nil), n.Params...)}
		if n.Path == path {
			found = true
			for j, p := range cp.Params {
				text, ok := texts[p.Key]
				if !ok {
					continue
				}
				v, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
				if err != nil {
					return doc, errors.Errorf("%s: %q is not a number", labelFor(p), text)
				}
				if err := param.Finite(v); err != nil {
					return doc, errors.Wrap(err, labelFor(p))
				}
				cp.Params[j].Value = v
			}
		}
		out.Nodes[i] = cp
	}
	if !found {
		return doc, errors.Errorf("unknown node %q", path)
	}
	return out, nil
}
