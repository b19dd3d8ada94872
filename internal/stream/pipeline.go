package stream

import (
	"context"
)

type entry struct {
	stage   Stage
	handler ErrorHandler
}

// Pipeline is an ordered list of stages fed by a single [Source].
type Pipeline struct {
	source  Source
	entries []entry
}

// From starts a pipeline at src.
func From(src Source) *Pipeline {
	return &Pipeline{source: src}
}

// Pipe appends a stage.
func (p *Pipeline) Pipe(s Stage) *Pipeline {
	p.entries = append(p.entries, entry{stage: s})
	return p
}

// OnError registers a handler for failures raised by the stages before it. A nil handler is ignored.
func (p *Pipeline) OnError(h ErrorHandler) *Pipeline {
	if h != nil {
		p.entries = append(p.entries, entry{handler: h})
	}
	return p
}

// Stages returns the stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, 0, len(p.entries))
	for _, e := range p.entries {
		if e.stage != nil {
			names = append(names, e.stage.Name())
		}
	}
	return names
}

// Run executes the source and every stage in order.
//
// The first error stops the pipeline, is reported to one handler and is returned.
// Context cancellation is checked between stages and returned without
// invoking a handler.
func (p *Pipeline) Run(ctx context.Context) ([]*File, error) {
	var files []*File
	if p.source != nil {
		var err error
		if files, err = p.source(ctx); err != nil {
			p.report(-1, err)
			return nil, err
		}
	}

	for i, e := range p.entries {
		if e.stage == nil {
			continue
		}
		if err := ctx.Err(); err != nil {
			closeAll(files)
			return nil, err
		}

		next, err := e.stage.Process(ctx, files)
		if err != nil {
			closeAll(files)
			p.report(i, err)
			return nil, err
		}
		files = next
	}
	return files, nil
}

// report hands err to the first handler after position i, falling back to the last handler.
func (p *Pipeline) report(i int, err error) {
	var last ErrorHandler
	for j, e := range p.entries {
		if e.handler == nil {
			continue
		}
		if j > i {
			e.handler(err)
			return
		}
		last = e.handler
	}
	if last != nil {
		last(err)
	}
}
