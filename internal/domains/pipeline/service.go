package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"carelay/go-backend/internal/domains/address"
	"carelay/go-backend/internal/domains/contracts"
)

// Route holds the static peers and extraction rules of one chain.
type Route struct {
	Chain       Chain
	Source      string
	Marker      string
	Pattern     address.Pattern
	Scanner     string
	Analyst     string
	Destination string
}

func (r Route) peerFor(role Role) string {
	switch role {
	case RoleScanner:
		return r.Scanner
	case RoleAnalyst:
		return r.Analyst
	case RoleDestination:
		return r.Destination
	default:
		return ""
	}
}

func (r Route) peerForTrigger(trigger Trigger) string {
	switch trigger {
	case TriggerScannerReply:
		return r.Scanner
	case TriggerAnalystReply:
		return r.Analyst
	default:
		return ""
	}
}

// Commands are the prefixes of the analyst step commands.
type Commands struct {
	StepOne string
	StepTwo string
}

func (c Commands) format(cmd Command, addr string) string {
	switch cmd {
	case CommandStepOne:
		return strings.TrimSpace(c.StepOne) + " " + addr
	case CommandStepTwo:
		return strings.TrimSpace(c.StepTwo) + " " + addr
	default:
		return addr
	}
}

type ServiceDeps struct {
	Routes   []Route
	Commands Commands
	Store    *Store
	Actuator *Actuator
	Metrics  Metrics
	Logger   *slog.Logger
}

// Service routes inbound messages into the per-chain state machines.
type Service struct {
	routes      []Route
	flows       map[Chain]*Flow
	commands    Commands
	store       *Store
	actuator    *Actuator
	dispatchers map[string]*Dispatcher
	metrics     Metrics
	logger      *slog.Logger
}

func NewService(deps ServiceDeps) (*Service, error) {
	if len(deps.Routes) == 0 {
		return nil, errors.New("pipeline service needs at least one route")
	}
	if deps.Actuator == nil {
		return nil, errors.New("pipeline service needs an actuator")
	}
	s := &Service{
		routes:   append([]Route(nil), deps.Routes...),
		flows:    make(map[Chain]*Flow, len(deps.Routes)),
		commands: deps.Commands,
		actuator: deps.Actuator,
		metrics:  deps.Metrics,
		logger:   deps.Logger,
	}
	if s.metrics == nil {
		s.metrics = noopMetrics{}
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	flows := make([]*Flow, 0, len(deps.Routes))
	for _, route := range s.routes {
		if _, dup := s.flows[route.Chain]; dup {
			return nil, fmt.Errorf("duplicate route for chain %s", route.Chain)
		}
		flow, err := FlowFor(route.Chain)
		if err != nil {
			return nil, err
		}
		s.flows[route.Chain] = flow
		flows = append(flows, flow)
	}
	s.store = deps.Store
	if s.store == nil {
		s.store = NewStore(flows...)
	}
	s.store.SetObserver(func(chain Chain, stage Stage, count int) {
		s.metrics.SetPending(chain.String(), stage.String(), count)
	})
	for _, flow := range flows {
		for _, stage := range flow.Stages() {
			s.metrics.SetPending(flow.Chain.String(), stage.String(), s.store.CountAtStage(flow.Chain, stage))
		}
	}
	s.dispatchers = buildDispatchers(s)
	return s, nil
}

func (s *Service) Store() *Store {
	return s.store
}

func (s *Service) Flow(chain Chain) (*Flow, bool) {
	f, ok := s.flows[chain]
	return f, ok
}

// HandleInbound evaluates msg against every role its peer plays: source
// channel first, then the agent dispatcher.
func (s *Service) HandleInbound(ctx context.Context, msg contracts.InboundMessage) {
	handled := false
	for _, route := range s.routes {
		if route.Source == msg.Peer {
			s.handleSourceMessage(ctx, route, msg)
			handled = true
		}
	}
	if d, ok := s.dispatchers[msg.Peer]; ok {
		d.Dispatch(ctx, msg)
		handled = true
	}
	if !handled {
		s.logDebug("handle_inbound", "n/a", "message from unrouted peer ignored", "peer", msg.Peer)
	}
}

func (s *Service) handleSourceMessage(ctx context.Context, route Route, msg contracts.InboundMessage) {
	chain := route.Chain.String()
	if !strings.HasPrefix(strings.TrimSpace(msg.Text), route.Marker) {
		s.metrics.PipelineSkipped(chain, SkipReasonMarker)
		s.logInfo("detect", "n/a", "source message skipped: missing marker", "chain", chain, "peer", msg.Peer, "marker", route.Marker)
		return
	}
	addr, ok := address.Extract(msg, route.Pattern)
	if !ok {
		s.metrics.PipelineSkipped(chain, SkipReasonNoAddress)
		s.logInfo("detect", "n/a", "source message skipped: no valid address", "chain", chain, "peer", msg.Peer)
		return
	}
	inst, err := s.store.TryBegin(addr, route.Chain)
	if err != nil {
		if errors.Is(err, contracts.ErrAlreadyPending) {
			s.metrics.PipelineSkipped(chain, SkipReasonAlreadyPending)
			s.logWarn("detect", instanceCorrelationID(inst), "address already in the pipeline", "chain", chain, "address", addr, "stage", inst.Stage.String(), "pending_chain", inst.Chain.String())
			return
		}
		s.recordErrorWithContext(contracts.ErrorCategoryPipeline, err, "detect", "n/a", "chain", chain, "address", addr)
		return
	}
	s.metrics.PipelineStarted(chain)
	s.logInfo("detect", instanceCorrelationID(inst), "pipeline started", "chain", chain, "address", addr)

	step, ok := s.flows[route.Chain].StepFrom(inst.Stage)
	if !ok || step.Trigger != TriggerDetection {
		return
	}
	s.applyStep(ctx, route, step, addr)
}

// applyStep advances addr along step and performs the step action. It
// reports whether the step took effect.
func (s *Service) applyStep(ctx context.Context, route Route, step Step, addr string) bool {
	chain := route.Chain.String()
	if step.Terminal() {
		inst, ok := s.store.Get(addr)
		if !ok || inst.Stage != step.From {
			return false
		}
		correlationID := instanceCorrelationID(inst)
		s.metrics.StageAdvanced(chain, step.From.String(), step.To.String())
		s.logInfo("forward", correlationID, "forwarding address", "chain", chain, "address", addr, "destination", route.Destination)
		_ = s.actuator.Forward(ctx, correlationID, route.Chain, route.Destination, addr)
		s.store.Remove(addr)
		return true
	}

	inst, err := s.store.Advance(addr, step.From, step.To)
	if err != nil {
		s.logDebug("advance", instanceCorrelationID(inst), "advance skipped", "chain", chain, "address", addr, "from", step.From.String(), "to", step.To.String(), "reason", err.Error())
		return false
	}
	correlationID := instanceCorrelationID(inst)
	s.metrics.StageAdvanced(chain, step.From.String(), step.To.String())
	s.logInfo("advance", correlationID, "stage advanced", "chain", chain, "address", addr, "from", step.From.String(), "to", step.To.String())
	peer := route.peerFor(step.Target)
	_ = s.actuator.SendCommand(ctx, correlationID, peer, s.commands.format(step.Command, addr))
	return true
}
