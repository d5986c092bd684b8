package engine

import (
	"context"

	"github.com/normanking/limbic/internal/chain"
	"github.com/normanking/limbic/internal/emotion"
	"github.com/normanking/limbic/internal/stimulus"
)

// localExecutor runs the organizing chain against the memory index and
// estimates the other types' steps from the engine's own state unless an
// external executor is configured.
type localExecutor struct {
	engine *Engine
	next   chain.Executor
}

func (x *localExecutor) Execute(ctx context.Context, task chain.Task) (chain.Outcome, error) {
	e := x.engine
	if task.Type == chain.Organizing {
		return x.organize(ctx, task), nil
	}
	if x.next != nil {
		return x.next.Execute(ctx, task)
	}

	fear := e.emotion.State().Get(emotion.Fear)
	conf := 0.5 + 0.5*task.Motivation - 0.1*float64(task.StepIndex) - 0.3*fear
	return chain.Outcome{Confidence: stimulus.Clamp01(conf), Cost: e.cfg.Loop.StepCost}, nil
}

func (x *localExecutor) organize(ctx context.Context, task chain.Task) chain.Outcome {
	e := x.engine
	cost := e.cfg.Loop.StepCost
	switch task.Step {
	case "consolidate":
		decayed, forgotten := e.memory.DecayPass(ctx, e.now)
		e.log.Debug().Int("decayed", decayed).Int("forgotten", forgotten).Msg("organizing: consolidated")
	case "prune":
		purged := e.memory.Purge(ctx)
		e.log.Debug().Int("purged", purged).Msg("organizing: pruned")
	default:
		e.log.Debug().Int("records", e.memory.Len()).Str("step", task.Step).Msg("organizing")
	}
	return chain.Outcome{Confidence: 1, Cost: cost}
}
