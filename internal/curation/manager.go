// Package curation prunes a labeled dataset before training by carving out
// keyword subsets and removing them from the working table.
//
// Every removal produces a new snapshot; earlier snapshots are never modified,
// so Undo and Redo only move a pointer through the history.
package curation

import (
	"errors"
	"log/slog"
	"slices"
	"sort"

	"github.com/rotisserie/eris"
	"golang.org/x/text/cases"

	"github.com/hejijunhao/hierclass/internal/dataset"
)

// Principal names the current working table in subset lookups.
const Principal = "principal"

var (
	ErrDuplicateSubset = errors.New("subset already exists")
	ErrUnknownSubset   = errors.New("subset not found")
	ErrUnknownColumn   = errors.New("column not found")
	ErrNothingToUndo   = errors.New("nothing to undo")
	ErrNothingToRedo   = errors.New("nothing to redo")
)

// Options configures FilterByWords.
type Options struct {
	Mode          Mode
	CaseSensitive bool
	ExactMatch    bool   // whole words instead of substrings
	Parent        string // source subset; empty means the current principal table
}

// Subset is a named selection of rows.
type Subset struct {
	Name     string
	Parent   string
	Column   string
	Words    []string
	Excluded []string
	Applied  bool
	Rows     int

	opts  Options
	table dataset.Table
}

// WordCount is one TopWords entry.
type WordCount struct {
	Word  string
	Count int
}

// Manager tracks the principal table history and the subsets derived from it.
type Manager struct {
	original dataset.Table
	idCol    int
	textCol  int

	history []dataset.Table
	pos     int

	subsets map[string]*Subset
	order   []string
}

// New starts a manager on a copy of t. idColumn identifies rows when removing
// a subset; textColumn is the default column for TopWords.
func New(t dataset.Table, idColumn, textColumn string) (*Manager, error) {
	idCol := t.Index(idColumn)
	if idCol < 0 {
		return nil, eris.Wrapf(ErrUnknownColumn, "curation: id column %q", idColumn)
	}
	textCol := t.Index(textColumn)
	if textCol < 0 {
		return nil, eris.Wrapf(ErrUnknownColumn, "curation: text column %q", textColumn)
	}
	orig := t.Clone()
	return &Manager{
		original: orig,
		idCol:    idCol,
		textCol:  textCol,
		history:  []dataset.Table{orig},
		subsets:  map[string]*Subset{},
	}, nil
}

func (m *Manager) current() dataset.Table { return m.history[m.pos] }

// Current returns a copy of the principal table.
func (m *Manager) Current() dataset.Table { return m.current().Clone() }

// Original returns a copy of the table the manager started with.
func (m *Manager) Original() dataset.Table { return m.original.Clone() }

// FilterByWords creates subset name from the rows whose column matches words.
func (m *Manager) FilterByWords(name, column string, words []string, opts Options) (*Subset, error) {
	if name == Principal || m.subsets[name] != nil {
		return nil, eris.Wrapf(ErrDuplicateSubset, "curation: subset %q", name)
	}
	src, err := m.source(opts.Parent)
	if err != nil {
		return nil, err
	}
	col := src.Index(column)
	if col < 0 {
		return nil, eris.Wrapf(ErrUnknownColumn, "curation: filter column %q", column)
	}
	parent := opts.Parent
	if parent == Principal {
		parent = ""
	}

	mt := newMatcher(words, opts.Mode, opts.CaseSensitive, opts.ExactMatch)
	sub := &Subset{
		Name:   name,
		Parent: parent,
		Column: column,
		Words:  slices.Clone(words),
		opts:   opts,
		table:  filterRows(src, func(row []string) bool { return mt.match(dataset.Cell(row, col)) }),
	}
	sub.Rows = len(sub.table.Rows)
	m.subsets[name] = sub
	m.order = append(m.order, name)

	slog.Info("subset created", "subset", name, "parent", parent, "rows", sub.Rows, "mode", opts.Mode.String())
	return sub.snapshot(), nil
}

func (m *Manager) source(name string) (dataset.Table, error) {
	if name == "" || name == Principal {
		return m.current(), nil
	}
	s, ok := m.subsets[name]
	if !ok {
		return dataset.Table{}, eris.Wrapf(ErrUnknownSubset, "curation: subset %q", name)
	}
	return s.table, nil
}

// Exclude adds words to a subset's exclusion list and drops the subset rows
// that contain any of them.
func (m *Manager) Exclude(name string, words []string) error {
	s, ok := m.subsets[name]
	if !ok {
		return eris.Wrapf(ErrUnknownSubset, "curation: subset %q", name)
	}
	s.Excluded = append(s.Excluded, words...)
	col := s.table.Index(s.Column)
	mt := newMatcher(s.Excluded, MatchAny, s.opts.CaseSensitive, s.opts.ExactMatch)
	s.table = filterRows(s.table, func(row []string) bool { return !mt.match(dataset.Cell(row, col)) })
	s.Rows = len(s.table.Rows)
	return nil
}

// TopWords counts the words of the text column in subset name (or Principal),
// case-folded, skipping exclude and the subset's own exclusions. Ties sort by
// word. n <= 0 returns every word.
func (m *Manager) TopWords(name string, n int, exclude []string) ([]WordCount, error) {
	src, err := m.source(name)
	if err != nil {
		return nil, err
	}
	fold := cases.Fold()
	skip := map[string]bool{}
	excluded := slices.Clone(exclude)
	if s := m.subsets[name]; s != nil {
		excluded = append(excluded, s.Excluded...)
	}
	for _, w := range excluded {
		skip[fold.String(w)] = true
	}

	counts := map[string]int{}
	for _, row := range src.Rows {
		for _, tok := range tokenize(fold.String(dataset.Cell(row, m.textCol))) {
			if !skip[tok] {
				counts[tok]++
			}
		}
	}

	out := make([]WordCount, 0, len(counts))
	for w, c := range counts {
		out = append(out, WordCount{Word: w, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Word < out[j].Word
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// Apply removes the rows of subset name from the principal table, producing a
// new snapshot, and from its parent subset when propagate is set. It returns
// the number of principal rows removed; an empty subset is a no-op.
func (m *Manager) Apply(name string, propagate bool) (int, error) {
	s, ok := m.subsets[name]
	if !ok {
		return 0, eris.Wrapf(ErrUnknownSubset, "curation: subset %q", name)
	}
	if len(s.table.Rows) == 0 {
		slog.Warn("subset is empty, nothing removed", "subset", name)
		return 0, nil
	}

	ids := make(map[string]bool, len(s.table.Rows))
	for _, row := range s.table.Rows {
		ids[dataset.Cell(row, m.idCol)] = true
	}
	drop := func(row []string) bool { return !ids[dataset.Cell(row, m.idCol)] }

	cur := m.current()
	next := filterRows(cur, drop)
	m.history = append(m.history[:m.pos+1], next)
	m.pos++
	removed := len(cur.Rows) - len(next.Rows)

	if propagate && s.Parent != "" {
		if p, ok := m.subsets[s.Parent]; ok {
			before := len(p.table.Rows)
			p.table = filterRows(p.table, drop)
			p.Rows = len(p.table.Rows)
			slog.Info("parent subset reduced", "subset", p.Name, "removed", before-p.Rows, "remaining", p.Rows)
		}
	}
	s.Applied = true

	slog.Info("subset applied", "subset", name, "removed", removed, "remaining", len(next.Rows))
	return removed, nil
}

// Undo restores the principal table to the snapshot before the last Apply.
// Parent subsets reduced by that Apply are not restored.
func (m *Manager) Undo() error {
	if m.pos == 0 {
		return ErrNothingToUndo
	}
	m.pos--
	slog.Info("curation undo", "rows", len(m.current().Rows))
	return nil
}

// Redo moves forward to a snapshot undone by Undo.
func (m *Manager) Redo() error {
	if m.pos+1 >= len(m.history) {
		return ErrNothingToRedo
	}
	m.pos++
	slog.Info("curation redo", "rows", len(m.current().Rows))
	return nil
}

// Reset returns to the original table, clearing the history and all subsets.
func (m *Manager) Reset() {
	m.history = []dataset.Table{m.original}
	m.pos = 0
	m.subsets = map[string]*Subset{}
	m.order = nil
	slog.Info("curation reset", "rows", len(m.original.Rows))
}

// Subset returns a copy of subset name's rows. Principal returns Current.
func (m *Manager) Subset(name string) (dataset.Table, error) {
	src, err := m.source(name)
	if err != nil {
		return dataset.Table{}, err
	}
	return src.Clone(), nil
}

// Subsets lists the principal table first, then subsets in creation order.
func (m *Manager) Subsets() []Subset {
	out := []Subset{{Name: Principal, Rows: len(m.current().Rows)}}
	for _, name := range m.order {
		out = append(out, *m.subsets[name].snapshot())
	}
	return out
}

// snapshot copies the exported fields.
func (s *Subset) snapshot() *Subset {
	return &Subset{
		Name:     s.Name,
		Parent:   s.Parent,
		Column:   s.Column,
		Words:    slices.Clone(s.Words),
		Excluded: slices.Clone(s.Excluded),
		Applied:  s.Applied,
		Rows:     s.Rows,
	}
}

// filterRows keeps the rows for which keep is true. Row slices are shared;
// nothing in this package mutates a row after New.
func filterRows(t dataset.Table, keep func([]string) bool) dataset.Table {
	out := dataset.Table{Columns: t.Columns}
	for _, row := range t.Rows {
		if keep(row) {
			out.Rows = append(out.Rows, row)
		}
	}
	return out
}
