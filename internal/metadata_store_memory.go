package internal

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/lychee-technology/formtab"
)

type memoryState struct {
	forms          map[int64]formtab.Form
	attributes     map[int64]formtab.Attribute
	views          map[int64]formtab.FormView
	attributeViews map[int64]formtab.AttributeView
	choiceSets     map[int64]struct{}
	choices        []formtab.Choice
	prompts        map[int64]formtab.Prompt
	statements     []string
	nextID         int64
}

func newMemoryState() *memoryState {
	return &memoryState{
		forms:          make(map[int64]formtab.Form),
		attributes:     make(map[int64]formtab.Attribute),
		views:          make(map[int64]formtab.FormView),
		attributeViews: make(map[int64]formtab.AttributeView),
		choiceSets:     make(map[int64]struct{}),
		prompts:        make(map[int64]formtab.Prompt),
	}
}

func (s *memoryState) clone() *memoryState {
	c := newMemoryState()
	for k, v := range s.forms {
		c.forms[k] = v
	}
	for k, v := range s.attributes {
		c.attributes[k] = v
	}
	for k, v := range s.views {
		c.views[k] = v
	}
	for k, v := range s.attributeViews {
		c.attributeViews[k] = v
	}
	for k := range s.choiceSets {
		c.choiceSets[k] = struct{}{}
	}
	for k, v := range s.prompts {
		c.prompts[k] = v
	}
	c.choices = slices.Clone(s.choices)
	c.statements = slices.Clone(s.statements)
	c.nextID = s.nextID
	return c
}

func (s *memoryState) id() int64 {
	s.nextID++
	return s.nextID
}

// MemoryMetadataStore keeps metadata in process memory. It backs dry-run
// compilation, where the DDL is recorded instead of executed.
type MemoryMetadataStore struct {
	mu    *sync.Mutex
	state *memoryState
	// parent is set on transactions.
	parent *MemoryMetadataStore
	now    func() time.Time
}

// NewMemoryMetadataStore creates an empty store.
func NewMemoryMetadataStore() *MemoryMetadataStore {
	return &MemoryMetadataStore{mu: &sync.Mutex{}, state: newMemoryState(), now: time.Now}
}

type memoryMetadataTx struct {
	*MemoryMetadataStore
	done bool
}

// Begin snapshots the store; Commit publishes the snapshot back.
func (m *MemoryMetadataStore) Begin(context.Context) (StoreTx, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return &memoryMetadataTx{MemoryMetadataStore: &MemoryMetadataStore{
		mu:     &sync.Mutex{},
		state:  m.state.clone(),
		parent: m,
		now:    m.now,
	}}, nil
}

func (t *memoryMetadataTx) Commit(context.Context) error {
	if t.done {
		return fmt.Errorf("transaction already closed")
	}
	t.done = true
	t.parent.mu.Lock()
	defer t.parent.mu.Unlock()
	t.parent.state = t.state
	return nil
}

func (t *memoryMetadataTx) Rollback(context.Context) error {
	t.done = true
	return nil
}

// Statements returns the DDL recorded so far.
func (m *MemoryMetadataStore) Statements() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.state.statements)
}

func (m *MemoryMetadataStore) FormByID(_ context.Context, id int64) (*formtab.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.state.forms[id]
	if !ok {
		return nil, formNotFound(id)
	}
	return &f, nil
}

func (m *MemoryMetadataStore) FormByName(_ context.Context, name string) (*formtab.Form, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.state.forms {
		if f.Name == name {
			return &f, nil
		}
	}
	return nil, formNotFound(name)
}

func (m *MemoryMetadataStore) ExistingNames(_ context.Context, forms, attributes []string) ([]string, []string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var fs, as []string
	for _, f := range m.state.forms {
		if slices.Contains(forms, f.Name) {
			fs = append(fs, f.Name)
		}
	}
	for _, a := range m.state.attributes {
		if slices.Contains(attributes, a.Name) {
			as = append(as, a.Name)
		}
	}
	sort.Strings(fs)
	sort.Strings(as)
	return fs, as, nil
}

func (m *MemoryMetadataStore) AttributeByID(_ context.Context, id int64) (*formtab.Attribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.state.attributes[id]
	if !ok {
		return nil, attributeNotFound(id)
	}
	return &a, nil
}

func (m *MemoryMetadataStore) AttributesByForm(_ context.Context, formID int64) ([]formtab.Attribute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []formtab.Attribute
	for _, a := range m.state.attributes {
		if a.FormID == formID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryMetadataStore) ViewByID(_ context.Context, id int64) (*formtab.FormView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.state.views[id]
	if !ok {
		return nil, viewNotFound(id)
	}
	return &v, nil
}

func (m *MemoryMetadataStore) ViewsByForm(_ context.Context, formID int64) ([]formtab.FormView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []formtab.FormView
	for _, v := range m.state.views {
		if v.FormID == formID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryMetadataStore) LatestView(_ context.Context, formID int64, name string) (*formtab.FormView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var best *formtab.FormView
	for _, v := range m.state.views {
		if v.FormID == formID && v.Name == name && (best == nil || v.Revision > best.Revision) {
			v := v
			best = &v
		}
	}
	if best == nil {
		return nil, viewNotFound(name)
	}
	return best, nil
}

func (m *MemoryMetadataStore) AttributeViewByID(_ context.Context, id int64) (*formtab.AttributeView, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	av, ok := m.state.attributeViews[id]
	if !ok {
		return nil, formtab.NewNotFoundError(formtab.ErrCodeViewNotFound, "attribute view", id)
	}
	return &av, nil
}

func (m *MemoryMetadataStore) AttributeViewsByView(_ context.Context, viewID int64) ([]formtab.AttributeView, error) {
	return m.attributeViews(func(av formtab.AttributeView) bool { return av.FormViewID == viewID }), nil
}

func (m *MemoryMetadataStore) AttributeViewsByAttribute(_ context.Context, attributeID int64) ([]formtab.AttributeView, error) {
	return m.attributeViews(func(av formtab.AttributeView) bool { return av.AttributeID == attributeID }), nil
}

func (m *MemoryMetadataStore) attributeViews(match func(formtab.AttributeView) bool) []formtab.AttributeView {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []formtab.AttributeView
	for _, av := range m.state.attributeViews {
		if match(av) {
			out = append(out, av)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryMetadataStore) ChoiceSetExists(_ context.Context, setID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.state.choiceSets[setID]
	return ok, nil
}

func (m *MemoryMetadataStore) LockChoiceSet(ctx context.Context, setID int64) error {
	ok, _ := m.ChoiceSetExists(ctx, setID)
	if !ok {
		return choiceSetNotFound(setID)
	}
	return nil
}

func (m *MemoryMetadataStore) Choices(_ context.Context, setID int64) ([]formtab.Choice, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []formtab.Choice
	for _, c := range m.state.choices {
		if c.SetID == setID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Order != b.Order {
			return a.Order < b.Order
		}
		if a.ChoiceID != b.ChoiceID {
			return a.ChoiceID < b.ChoiceID
		}
		return a.Language < b.Language
	})
	return out, nil
}

func (m *MemoryMetadataStore) MaxChoiceID(_ context.Context, setID, floor int64) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var maxID int64
	for _, c := range m.state.choices {
		if c.SetID == setID && c.ChoiceID >= floor && c.ChoiceID > maxID {
			maxID = c.ChoiceID
		}
	}
	return maxID, nil
}

func (m *MemoryMetadataStore) Prompts(_ context.Context, attributeID int64) ([]formtab.Prompt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []formtab.Prompt
	for _, p := range m.state.prompts {
		if p.AttributeID == attributeID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryMetadataStore) InsertForm(_ context.Context, form *formtab.Form) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.state.forms {
		if f.Name == form.Name {
			return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateForm, "form", form.Name)
		}
	}
	form.ID = m.state.id()
	form.CreatedAt = m.now().UTC()
	m.state.forms[form.ID] = *form
	return nil
}

func (m *MemoryMetadataStore) InsertAttribute(_ context.Context, attr *formtab.Attribute) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.forms[attr.FormID]; !ok {
		return formNotFound(attr.FormID)
	}
	for _, a := range m.state.attributes {
		if a.Name == attr.Name {
			return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateAttribute, "attribute", attr.Name)
		}
	}
	attr.ID = m.state.id()
	m.state.attributes[attr.ID] = *attr
	return nil
}

func (m *MemoryMetadataStore) InsertView(_ context.Context, view *formtab.FormView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range m.state.views {
		if v.FormID == view.FormID && v.Name == view.Name && v.Revision == view.Revision {
			return formtab.NewDuplicateNameError(formtab.ErrCodeDuplicateView, "view", view.Name)
		}
	}
	view.ID = m.state.id()
	m.state.views[view.ID] = *view
	return nil
}

func (m *MemoryMetadataStore) UpdateViewActive(_ context.Context, formID int64, name string, revision int, active bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, v := range m.state.views {
		if v.FormID == formID && v.Name == name && v.Revision == revision {
			v.Active = active
			m.state.views[id] = v
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryMetadataStore) InsertAttributeView(_ context.Context, av *formtab.AttributeView) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.state.attributeViews {
		if existing.AttributeID == av.AttributeID && existing.FormViewID == av.FormViewID {
			return fmt.Errorf("attribute %d already has a view on form view %d", av.AttributeID, av.FormViewID)
		}
	}
	av.ID = m.state.id()
	m.state.attributeViews[av.ID] = *av
	return nil
}

func (m *MemoryMetadataStore) CreateChoiceSet(context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var next int64 = 1
	for id := range m.state.choiceSets {
		if id >= next {
			next = id + 1
		}
	}
	m.state.choiceSets[next] = struct{}{}
	return next, nil
}

func (m *MemoryMetadataStore) InsertChoice(_ context.Context, c formtab.Choice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.state.choiceSets[c.SetID]; !ok {
		return choiceSetNotFound(c.SetID)
	}
	for _, existing := range m.state.choices {
		if existing.SetID == c.SetID && existing.ChoiceID == c.ChoiceID && existing.Language == c.Language {
			return duplicateChoice(c)
		}
	}
	m.state.choices = append(m.state.choices, c)
	return nil
}

func (m *MemoryMetadataStore) InsertPrompt(_ context.Context, p *formtab.Prompt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p.ID = m.state.id()
	m.state.prompts[p.ID] = *p
	return nil
}

func (m *MemoryMetadataStore) ExecDDL(_ context.Context, stmt string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state.statements = append(m.state.statements, stmt)
	return nil
}

func (m *MemoryMetadataStore) ExecIndexDDL(ctx context.Context, stmt string) error {
	return m.ExecDDL(ctx, stmt)
}
