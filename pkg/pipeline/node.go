// Package pipeline wires producers, transforms and sinks into acyclic,
// synchronously evaluated graphs.
package pipeline

import "time"

// Number is the set of scalar types numeric stages operate on.
type Number interface {
	~float32 | ~float64
}

// Node is anything placed in a pipeline. Path is its configuration path and
// must be unique within the pipeline.
type Node interface {
	Path() string
}

// Consumer receives values from upstream.
type Consumer[T any] interface {
	Node
	Accept(v T)
}

// Source delivers values downstream. Only types embedding Emitter satisfy it.
type Source[T any] interface {
	Node
	attach(c Consumer[T])
}

// Transform is a node with an input and an output.
type Transform[In, Out any] interface {
	Consumer[In]
	Source[Out]
}

// Ticker is a node driven by the scheduler.
type Ticker interface {
	Node
	Interval() time.Duration
	Tick()
}

// Emitter fans a value out to every connected consumer.
// Embed it to make a node a Source.
type Emitter[T any] struct {
	outputs []Consumer[T]
}

func (e *Emitter[T]) attach(c Consumer[T]) {
	e.outputs = append(e.outputs, c)
}

// Emit delivers v to every downstream consumer, in connection order, before
// returning. Each consumer sees the same value.
func (e *Emitter[T]) Emit(v T) {
	for _, c := range e.outputs {
		c.Accept(v)
	}
}

// Outputs returns the number of connected consumers.
func (e *Emitter[T]) Outputs() int {
	return len(e.outputs)
}
