package pipeline

import (
	"errors"
	"fmt"
	"io"

	"github.com/dominikbraun/graph"
	"github.com/dominikbraun/graph/draw"
)

// Trigger names the event source that moves an instance out of a stage.
type Trigger string

const (
	TriggerDetection    Trigger = "detection"
	TriggerScannerReply Trigger = "scanner_reply"
	TriggerAnalystReply Trigger = "analyst_reply"
)

// Role is the configured peer an action is addressed to.
type Role string

const (
	RoleScanner     Role = "scanner"
	RoleAnalyst     Role = "analyst"
	RoleDestination Role = "destination"
)

type Command string

const (
	CommandBare    Command = "bare"
	CommandStepOne Command = "step_one"
	CommandStepTwo Command = "step_two"
)

// Step is one row of a chain's fixed stage table.
type Step struct {
	From         Stage
	To           Stage
	Trigger      Trigger
	MatchContent bool
	Target       Role
	Command      Command
}

func (s Step) Terminal() bool {
	return s.To == StageForwarded
}

// Flow is the validated stage table of one chain.
type Flow struct {
	Chain   Chain
	Initial Stage
	steps   []Step
	byFrom  map[Stage]Step
	g       graph.Graph[string, string]
}

func solanaSteps() []Step {
	return []Step{
		{From: StageDetected, To: StageSentToScanner, Trigger: TriggerDetection, Target: RoleScanner, Command: CommandBare},
		{From: StageSentToScanner, To: StageAwaitingStepOneReply, Trigger: TriggerScannerReply, MatchContent: true, Target: RoleAnalyst, Command: CommandStepOne},
		{From: StageAwaitingStepOneReply, To: StageAwaitingStepTwoReply, Trigger: TriggerAnalystReply, Target: RoleAnalyst, Command: CommandStepTwo},
		{From: StageAwaitingStepTwoReply, To: StageForwarded, Trigger: TriggerAnalystReply, Target: RoleDestination, Command: CommandBare},
	}
}

func bnbSteps() []Step {
	return []Step{
		{From: StageDetected, To: StageAwaitingStepOneReply, Trigger: TriggerDetection, Target: RoleAnalyst, Command: CommandBare},
		{From: StageAwaitingStepOneReply, To: StageAwaitingStepTwoReply, Trigger: TriggerAnalystReply, Target: RoleAnalyst, Command: CommandStepTwo},
		{From: StageAwaitingStepTwoReply, To: StageForwarded, Trigger: TriggerAnalystReply, Target: RoleDestination, Command: CommandBare},
	}
}

// FlowFor returns the built-in flow for chain.
func FlowFor(chain Chain) (*Flow, error) {
	switch chain {
	case ChainSOL:
		return NewFlow(chain, solanaSteps())
	case ChainBNB:
		return NewFlow(chain, bnbSteps())
	default:
		return nil, fmt.Errorf("unknown chain %q", chain)
	}
}

// NewFlow validates steps as a single forward path starting at StageDetected
// and ending in StageForwarded.
func NewFlow(chain Chain, steps []Step) (*Flow, error) {
	if len(steps) == 0 {
		return nil, fmt.Errorf("%s flow has no steps", chain)
	}
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	f := &Flow{
		Chain:   chain,
		Initial: StageDetected,
		steps:   append([]Step(nil), steps...),
		byFrom:  make(map[Stage]Step, len(steps)),
		g:       g,
	}
	for _, step := range steps {
		if _, dup := f.byFrom[step.From]; dup {
			return nil, fmt.Errorf("%s flow: stage %s has more than one outgoing step", chain, step.From)
		}
		if step.From == StageForwarded {
			return nil, fmt.Errorf("%s flow: terminal stage cannot be left", chain)
		}
		f.byFrom[step.From] = step
		for _, stage := range []Stage{step.From, step.To} {
			if err := g.AddVertex(string(stage)); err != nil && !errors.Is(err, graph.ErrVertexAlreadyExists) {
				return nil, fmt.Errorf("%s flow: add stage %s: %w", chain, stage, err)
			}
		}
		if err := g.AddEdge(string(step.From), string(step.To), graph.EdgeAttribute("label", string(step.Trigger))); err != nil {
			return nil, fmt.Errorf("%s flow: %s -> %s: %w", chain, step.From, step.To, err)
		}
	}
	if err := f.checkPath(); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *Flow) checkPath() error {
	current := f.Initial
	visited := 0
	for current != StageForwarded {
		step, ok := f.byFrom[current]
		if !ok {
			return fmt.Errorf("%s flow: stage %s does not lead to %s", f.Chain, current, StageForwarded)
		}
		current = step.To
		visited++
	}
	if visited != len(f.steps) {
		return fmt.Errorf("%s flow: %d steps unreachable from %s", f.Chain, len(f.steps)-visited, f.Initial)
	}
	return nil
}

// StepFrom returns the step leaving stage.
func (f *Flow) StepFrom(stage Stage) (Step, bool) {
	step, ok := f.byFrom[stage]
	return step, ok
}

// StepsTriggeredBy returns, in stage order, the steps driven by trigger.
func (f *Flow) StepsTriggeredBy(trigger Trigger) []Step {
	out := make([]Step, 0, len(f.steps))
	for _, step := range f.steps {
		if step.Trigger == trigger {
			out = append(out, step)
		}
	}
	return out
}

// Stages lists stored stages in order.
func (f *Flow) Stages() []Stage {
	out := make([]Stage, 0, len(f.steps))
	for _, step := range f.steps {
		out = append(out, step.From)
	}
	return out
}

// WriteDOT renders the flow in Graphviz format.
func (f *Flow) WriteDOT(w io.Writer) error {
	return draw.DOT(f.g, w, draw.GraphAttribute("label", string(f.Chain)))
}
