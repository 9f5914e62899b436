package param

import (
	"reflect"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrDuplicatePath is returned when two nodes claim the same configuration path.
	ErrDuplicatePath = errors.New("param: configuration path already claimed")
	// ErrDuplicateKey is returned when a node registers the same key twice.
	ErrDuplicateKey = errors.New("param: duplicate parameter key")
	// ErrUnknownParam is returned for a (path, key) pair that was never registered.
	ErrUnknownParam = errors.New("param: unknown parameter")
	// ErrInvalidValue is returned when a value is outside its parameter's domain.
	ErrInvalidValue = errors.New("param: invalid value")
)

// Descriptor is the presentation view of a parameter.
type Descriptor struct {
	Key   string
	Label string
}

// Values maps parameter keys of one node to their values.
type Values map[string]float64

// Param is a single named, described value owned by a node.
type Param struct {
	key    string
	label  string
	def    float64
	value  float64
	checks []Check
}

// Key returns the parameter key.
func (p *Param) Key() string { return p.key }

// Label returns the human readable description.
func (p *Param) Label() string { return p.label }

// Default returns the compiled-in default.
func (p *Param) Default() float64 { return p.def }

// Value returns the value currently in force.
func (p *Param) Value() float64 { return p.value }

func (p *Param) check(v float64) error {
	for _, c := range p.checks {
		if err := c(v); err != nil {
			return errors.Wrapf(ErrInvalidValue, "%s=%v: %v", p.key, v, err)
		}
	}
	return nil
}

// Group holds the parameters of one node, in registration order.
type Group struct {
	store      *Store
	path       string
	params     []*Param
	byKey      map[string]*Param
	constraint func(Values) error
}

// Path returns the configuration path of the owning node.
func (g *Group) Path() string { return g.path }

// Register creates the parameter key on this node. A persisted value that
// passes checks overrides def; anything else falls back to def.
func (g *Group) Register(key, label string, def float64, checks ...Check) (*Param, error) {
	if _, ok := g.byKey[key]; ok {
		return nil, errors.Wrapf(ErrDuplicateKey, "%s %q", g.path, key)
	}

	p := &Param{key: key, label: label, def: def, value: def, checks: checks}
	if err := p.check(def); err != nil {
		return nil, errors.Wrapf(err, "%s default", g.path)
	}

	if v, ok := g.store.persisted(g.path, key); ok {
		if err := p.check(v); err != nil {
			log.WithFields(log.Fields{"path": g.path, "key": key, "value": v}).
				Warnf("ignoring persisted value: %v", err)
		} else {
			p.value = v
		}
	}

	g.params = append(g.params, p)
	g.byKey[key] = p
	return p, nil
}

// Constrain installs a cross-parameter invariant. It is checked against the
// current values immediately and against proposed values on every write.
func (g *Group) Constrain(fn func(Values) error) error {
	if err := fn(g.values()); err != nil {
		return errors.Wrapf(ErrInvalidValue, "%s: %v", g.path, err)
	}
	g.constraint = fn
	return nil
}

// Values returns a snapshot of the node's current values.
func (g *Group) Values() Values { return g.values() }

func (g *Group) values() Values {
	vals := make(Values, len(g.params))
	for _, p := range g.params {
		vals[p.key] = p.value
	}
	return vals
}

// propose validates v for key together with the rest of the node.
func (g *Group) propose(key string, v float64) (*Param, error) {
	p, ok := g.byKey[key]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownParam, "%s %q", g.path, key)
	}
	if err := p.check(v); err != nil {
		return nil, errors.Wrap(err, g.path)
	}
	if g.constraint != nil {
		vals := g.values()
		vals[key] = v
		if err := g.constraint(vals); err != nil {
			return nil, errors.Wrapf(ErrInvalidValue, "%s %s=%v: %v", g.path, key, v, err)
		}
	}
	return p, nil
}

// Store is the parameter registry for every node of the process.
//
// Store is not safe for concurrent use. It is owned by the event loop and
// external edits reach it through loop.Post.
type Store struct {
	backend Backend
	loaded  map[string]map[string]float64
	extra   []NodeDoc // persisted nodes nobody registered in this run
	groups  map[string]*Group
	order   []string
}

// NewStore loads the persisted document from backend.
func NewStore(backend Backend) (*Store, error) {
	if backend == nil {
		backend = NewMemoryBackend()
	}
	doc, err := backend.Load()
	if err != nil {
		return nil, errors.Wrap(err, "param: load")
	}

	s := &Store{
		backend: backend,
		loaded:  make(map[string]map[string]float64),
		groups:  make(map[string]*Group),
	}
	for _, n := range doc.Nodes {
		vals := make(map[string]float64, len(n.Params))
		for _, p := range n.Params {
			vals[p.Key] = p.Value
		}
		s.loaded[n.Path] = vals
		s.extra = append(s.extra, n)
	}
	return s, nil
}

func (s *Store) persisted(path, key string) (float64, bool) {
	v, ok := s.loaded[path][key]
	return v, ok
}

// Node claims path and returns its parameter group.
func (s *Store) Node(path string) (*Group, error) {
	if _, ok := s.groups[path]; ok {
		return nil, errors.Wrapf(ErrDuplicatePath, "%q", path)
	}
	g := &Group{store: s, path: path, byKey: make(map[string]*Param)}
	s.groups[path] = g
	s.order = append(s.order, path)
	return g, nil
}

// Paths returns claimed configuration paths in claim order.
func (s *Store) Paths() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// Descriptors returns the (key, label) pairs of a node in registration order.
func (s *Store) Descriptors(path string) []Descriptor {
	g, ok := s.groups[path]
	if !ok {
		return nil
	}
	out := make([]Descriptor, 0, len(g.params))
	for _, p := range g.params {
		out = append(out, Descriptor{Key: p.key, Label: p.label})
	}
	return out
}

// Get returns the current value of (path, key).
func (s *Store) Get(path, key string) (float64, error) {
	g, ok := s.groups[path]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownParam, "%q", path)
	}
	p, ok := g.byKey[key]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownParam, "%s %q", path, key)
	}
	return p.value, nil
}

// Set validates value, applies it and persists the store.
func (s *Store) Set(path, key string, value float64) error {
	if err := s.set(path, key, value); err != nil {
		return err
	}
	return s.Save()
}

func (s *Store) set(path, key string, value float64) error {
	g, ok := s.groups[path]
	if !ok {
		return errors.Wrapf(ErrUnknownParam, "%q", path)
	}
	p, err := g.propose(key, value)
	if err != nil {
		return err
	}
	if p.value != value {
		log.WithFields(log.Fields{"path": path, "key": key, "old": p.value, "new": value}).Info("parameter changed")
	}
	p.value = value
	return nil
}

// Apply takes values from an externally edited document. Each node is
// validated as a whole against the proposed values and either committed
// entirely or left as it was. Nodes nobody registered are taken verbatim.
// The store is saved once so the backend reflects what is actually in force.
func (s *Store) Apply(doc Document) []error {
	var errs []error
	changed := false
	for _, n := range doc.Nodes {
		g, ok := s.groups[n.Path]
		if !ok {
			if s.applyExtra(n) {
				changed = true
			}
			continue
		}
		proposed, err := g.proposeAll(n.Params)
		if len(proposed) == 0 && err == nil {
			continue
		}
		changed = true
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for _, p := range g.params {
			v, ok := proposed[p.key]
			if !ok {
				continue
			}
			log.WithFields(log.Fields{"path": n.Path, "key": p.key, "old": p.value, "new": v}).Info("parameter changed")
			p.value = v
		}
	}
	if changed {
		if err := s.Save(); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// proposeAll returns the changed values of params after checking each one and
// the node constraint against the merged set.
func (g *Group) proposeAll(params []ParamDoc) (Values, error) {
	proposed := make(Values)
	for _, pd := range params {
		p, ok := g.byKey[pd.Key]
		if !ok || p.value == pd.Value {
			continue
		}
		if err := p.check(pd.Value); err != nil {
			return proposed, errors.Wrap(err, g.path)
		}
		proposed[pd.Key] = pd.Value
	}
	if len(proposed) == 0 || g.constraint == nil {
		return proposed, nil
	}
	vals := g.values()
	for k, v := range proposed {
		vals[k] = v
	}
	if err := g.constraint(vals); err != nil {
		return proposed, errors.Wrapf(ErrInvalidValue, "%s: %v", g.path, err)
	}
	return proposed, nil
}

// applyExtra replaces the stored copy of an unregistered node.
func (s *Store) applyExtra(n NodeDoc) bool {
	for i, e := range s.extra {
		if e.Path != n.Path {
			continue
		}
		if reflect.DeepEqual(e, n) {
			return false
		}
		s.extra[i] = n
		return true
	}
	s.extra = append(s.extra, n)
	return true
}

// Document renders the store in its persisted form.
func (s *Store) Document() Document {
	var doc Document
	for _, path := range s.order {
		g := s.groups[path]
		n := NodeDoc{Path: path}
		for _, p := range g.params {
			n.Params = append(n.Params, ParamDoc{Key: p.key, Label: p.label, Value: p.value})
		}
		doc.Nodes = append(doc.Nodes, n)
	}
	for _, n := range s.extra {
		if _, ok := s.groups[n.Path]; !ok {
			doc.Nodes = append(doc.Nodes, n)
		}
	}
	return doc
}

// Save writes every node to the backend.
func (s *Store) Save() error {
	if err := s.backend.Save(s.Document()); err != nil {
		return errors.Wrap(err, "param: save")
	}
	return nil
}
