package graph

import (
	"context"
	"errors"
	"fmt"

	"github.com/zhisuan/graphchat/log"
)

// Processor binds a compiled graph to one execution's state and emitter.
// It owns the State and Event lifecycle for that execution: Process runs
// the traversal in a goroutine and closes the event stream when done.
type Processor struct {
	runnable *Runnable
	state    State
	emitter  *Emitter
	logger   log.Logger
}

// NewProcessor clones the initial state so the caller's map is never
// mutated by the run.
func NewProcessor(r *Runnable, initial State, em *Emitter) *Processor {
	return &Processor{
		runnable: r,
		state:    initial.Clone(),
		emitter:  em,
		logger:   log.GetDefaultLogger(),
	}
}

func (p *Processor) Emitter() *Emitter { return p.emitter }

// State exposes the execution state, mainly for the non-streaming caller
// that wants the accumulated final answer after the stream is drained.
func (p *Processor) State() State { return p.state }

// Process starts the traversal and returns the event stream. The stream is
// closed once the run finishes. A cancellation ends the stream silently;
// an engine fault (a graph configuration error, the one class of failure
// components do not absorb) is surfaced as a generic error event before
// the stream closes.
func (p *Processor) Process(ctx context.Context) <-chan Event {
	go func() {
		defer p.emitter.Close()
		if err := p.runnable.Run(ctx, p.state, p.emitter); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				p.logger.Info("graph %s: run cancelled: %v", p.runnable.Name(), err)
				return
			}
			p.logger.Error("graph %s: run aborted: %v", p.runnable.Name(), err)
			_ = p.emitter.ErrorWith(ctx, fmt.Sprintf("处理过程中出现系统错误: %v", err),
				map[string]any{"error_type": "internal"})
		}
	}()
	return p.emitter.Events()
}
