package pipeline

import (
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
)

var (
	// ErrCycle is recorded when a connection would make a node its own downstream.
	ErrCycle = errors.New("pipeline: connection creates a cycle")
	// ErrDuplicatePath is recorded when two distinct nodes share a configuration path.
	ErrDuplicatePath = errors.New("pipeline: duplicate node path")
	// ErrActive is returned when wiring or activating an already active pipeline.
	ErrActive = errors.New("pipeline: already active")
	// ErrUnwired is returned when activating a pipeline with no connections.
	ErrUnwired = errors.New("pipeline: nothing connected")
)

// State is the lifecycle state of a pipeline.
type State int

const (
	Unwired State = iota
	Wired
	Active
)

func (s State) String() string {
	switch s {
	case Unwired:
		return "unwired"
	case Wired:
		return "wired"
	case Active:
		return "active"
	}
	return "unknown"
}

// Scheduler runs fn periodically. interval is re-read before each period.
type Scheduler interface {
	Schedule(interval func() time.Duration, fn func())
}

// Pipeline tracks the nodes and edges of one sensor chain. Wiring errors are
// recorded rather than returned so that chains read top to bottom; Activate
// reports the first one.
type Pipeline struct {
	name  string
	state State
	nodes map[string]Node
	order []Node
	edges map[string][]string
	err   error
}

// New returns an unwired pipeline.
func New(name string) *Pipeline {
	return &Pipeline{
		name:  name,
		nodes: make(map[string]Node),
		edges: make(map[string][]string),
	}
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// State returns the lifecycle state.
func (p *Pipeline) State() State { return p.state }

// Err returns the first recorded configuration error.
func (p *Pipeline) Err() error { return p.err }

// Fail records a configuration error discovered outside Connect, such as a
// transform that could not be built. The pipeline will refuse to activate.
func (p *Pipeline) Fail(err error) {
	if err == nil {
		return
	}
	if p.err == nil {
		p.err = err
		return
	}
	log.WithField("pipeline", p.name).Warnf("additional configuration error: %v", err)
}

// Connect attaches to downstream of from and returns to, so chains can be
// built by feeding the result into the next Connect.
func Connect[T any, C Consumer[T]](p *Pipeline, from Source[T], to C) C {
	if err := p.link(from, to); err != nil {
		p.Fail(err)
		return to
	}
	from.attach(to)
	return to
}

func (p *Pipeline) link(from, to Node) error {
	if p.state == Active {
		return ErrActive
	}
	if err := p.add(from); err != nil {
		return err
	}
	if err := p.add(to); err != nil {
		return err
	}

	src, dst := from.Path(), to.Path()
	if src == dst || p.reaches(dst, src) {
		return errors.Wrapf(ErrCycle, "%s -> %s", src, dst)
	}
	p.edges[src] = append(p.edges[src], dst)
	p.state = Wired
	return nil
}

func (p *Pipeline) add(n Node) error {
	if existing, ok := p.nodes[n.Path()]; ok {
		if existing != n {
			return errors.Wrapf(ErrDuplicatePath, "%q", n.Path())
		}
		return nil
	}
	p.nodes[n.Path()] = n
	p.order = append(p.order, n)
	return nil
}

// reaches reports whether target is downstream of from.
func (p *Pipeline) reaches(from, target string) bool {
	seen := make(map[string]bool)
	stack := []string{from}
	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if cur == target {
			return true
		}
		if seen[cur] {
			continue
		}
		seen[cur] = true
		stack = append(stack, p.edges[cur]...)
	}
	return false
}

// Activate schedules every Ticker node. A pipeline with a recorded
// configuration error, or with nothing connected, stays inactive.
func (p *Pipeline) Activate(s Scheduler) error {
	switch {
	case p.err != nil:
		return errors.Wrapf(p.err, "pipeline %q", p.name)
	case p.state == Active:
		return errors.Wrapf(ErrActive, "pipeline %q", p.name)
	case p.state == Unwired:
		return errors.Wrapf(ErrUnwired, "pipeline %q", p.name)
	}

	for _, n := range p.order {
		if t, ok := n.(Ticker); ok {
			s.Schedule(t.Interval, t.Tick)
		}
	}
	p.state = Active
	log.WithFields(log.Fields{"pipeline": p.name, "nodes": len(p.order)}).Info("pipeline active")
	return nil
}
