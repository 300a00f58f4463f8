// =============================================================================
// Billing Status Reconciler - Payment-Status Selection
// =============================================================================
//
// The direct-invoice feed has no payment status of its own. This package
// holds the human's classification of each InvoiceIdentity for the current
// run:
//   - paid:     every row sharing the identity is marked paid
//   - excluded: every row sharing the identity is dropped before grouping
//
// Identities without a mark are unpaid. The store lives for one run; it is
// read from and written to a YAML file only when asked to.
//
// =============================================================================

package selection

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/ginjaninja78/billing-status-reconciler/internal/billing"
)

// Mark is the classification of one identity.
type Mark struct {
	Paid     bool
	Excluded bool
}

// Store maps identities to marks and remembers the order they were first
// marked in.
type Store struct {
	marks map[billing.InvoiceIdentity]Mark
	order []billing.InvoiceIdentity
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{marks: make(map[billing.InvoiceIdentity]Mark)}
}

// Mark returns the current mark for id.
func (s *Store) Mark(id billing.InvoiceIdentity) Mark {
	return s.marks[id]
}

// IsPaid reports whether id is marked paid. A nil store marks nothing.
func (s *Store) IsPaid(id billing.InvoiceIdentity) bool {
	return s != nil && s.marks[id].Paid
}

// IsExcluded reports whether id is excluded.
func (s *Store) IsExcluded(id billing.InvoiceIdentity) bool {
	return s != nil && s.marks[id].Excluded
}

// SetPaid sets or clears the paid mark of id.
func (s *Store) SetPaid(id billing.InvoiceIdentity, paid bool) {
	m := s.marks[id]
	m.Paid = paid
	s.set(id, m)
}

// SetExcluded sets or clears the excluded mark of id.
func (s *Store) SetExcluded(id billing.InvoiceIdentity, excluded bool) {
	m := s.marks[id]
	m.Excluded = excluded
	s.set(id, m)
}

// TogglePaid flips the paid mark of id and returns the new value.
func (s *Store) TogglePaid(id billing.InvoiceIdentity) bool {
	paid := !s.marks[id].Paid
	s.SetPaid(id, paid)
	return paid
}

// ToggleExcluded flips the excluded mark of id and returns the new value.
func (s *Store) ToggleExcluded(id billing.InvoiceIdentity) bool {
	excluded := !s.marks[id].Excluded
	s.SetExcluded(id, excluded)
	return excluded
}

// Merge adds every mark of other to s. A mark set in either store stays set,
// so merging paid marks never clears an exclusion.
func (s *Store) Merge(other *Store) {
	if other == nil {
		return
	}
	for _, id := range other.order {
		m := s.marks[id]
		o := other.marks[id]
		m.Paid = m.Paid || o.Paid
		m.Excluded = m.Excluded || o.Excluded
		s.set(id, m)
	}
}

// Clear removes every mark.
func (s *Store) Clear() {
	s.marks = make(map[billing.InvoiceIdentity]Mark)
	s.order = nil
}

// PaidIdentities returns the identities marked paid, in marking order.
func (s *Store) PaidIdentities() []billing.InvoiceIdentity {
	return s.filter(func(m Mark) bool { return m.Paid })
}

// ExcludedIdentities returns the excluded identities, in marking order.
func (s *Store) ExcludedIdentities() []billing.InvoiceIdentity {
	return s.filter(func(m Mark) bool { return m.Excluded })
}

// Len returns the number of identities carrying any mark.
func (s *Store) Len() int {
	n := 0
	for _, m := range s.marks {
		if m.Paid || m.Excluded {
			n++
		}
	}
	return n
}

func (s *Store) set(id billing.InvoiceIdentity, m Mark) {
	if s.marks == nil {
		s.marks = make(map[billing.InvoiceIdentity]Mark)
	}
	if _, ok := s.marks[id]; !ok {
		s.order = append(s.order, id)
	}
	s.marks[id] = m
}

func (s *Store) filter(keep func(Mark) bool) []billing.InvoiceIdentity {
	var ids []billing.InvoiceIdentity
	for _, id := range s.order {
		if keep(s.marks[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}

// =============================================================================
// FLAGS
// =============================================================================

// FromFlags builds a store from "doc|counterparty|amount" strings.
func FromFlags(paid, excluded []string) (*Store, error) {
	s := NewStore()
	for _, raw := range paid {
		id, err := billing.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("--paid: %w", err)
		}
		s.SetPaid(id, true)
	}
	for _, raw := range excluded {
		id, err := billing.ParseIdentity(raw)
		if err != nil {
			return nil, fmt.Errorf("--exclude: %w", err)
		}
		s.SetExcluded(id, true)
	}
	return s, nil
}

// =============================================================================
// SELECTION FILE
// =============================================================================

// fileFormat is the YAML layout of a selection file.
type fileFormat struct {
	Paid     []billing.InvoiceIdentity `yaml:"paid"`
	Excluded []billing.InvoiceIdentity `yaml:"excluded"`
}

// LoadFile reads a selection file.
//
// PARAMETERS:
//   - path: The YAML file. A missing file is an error; callers decide
//     whether a selection file is expected.
//
// RETURNS:
//   - The store holding the file's marks.
//   - An error if the file cannot be read or holds an invalid amount.
func LoadFile(path string) (*Store, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read selection file: %w", err)
	}

	var f fileFormat
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse selection file: %w", err)
	}

	s := NewStore()
	var problems []error
	for _, id := range f.Paid {
		c, err := id.Canonical()
		if err != nil {
			problems = append(problems, err)
			continue
		}
		s.SetPaid(c, true)
	}
	for _, id := range f.Excluded {
		c, err := id.Canonical()
		if err != nil {
			problems = append(problems, err)
			continue
		}
		s.SetExcluded(c, true)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("invalid selection file %s: %w", path, errors.Join(problems...))
	}

	return s, nil
}

// SaveFile writes the store's marks to path.
func SaveFile(path string, s *Store) error {
	f := fileFormat{
		Paid:     s.PaidIdentities(),
		Excluded: s.ExcludedIdentities(),
	}
	data, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to encode selection: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write selection file: %w", err)
	}
	return nil
}
