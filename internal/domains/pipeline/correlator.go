package pipeline

import (
	"context"
	"strings"

	"carelay/go-backend/internal/domains/contracts"
)

type candidateStep struct {
	route Route
	step  Step
}

// Dispatcher correlates replies from one agent peer with the instance
// waiting for them. Replies carry no correlation id, so the waiting stage
// selects the instance. Steps are evaluated in a fixed priority (chain
// order, then stage order) and evaluation stops at the first step that
// takes effect.
type Dispatcher struct {
	peer  string
	steps []candidateStep
	svc   *Service
}

func buildDispatchers(s *Service) map[string]*Dispatcher {
	out := make(map[string]*Dispatcher)
	for _, route := range s.routes {
		flow := s.flows[route.Chain]
		for _, trigger := range []Trigger{TriggerScannerReply, TriggerAnalystReply} {
			peer := route.peerForTrigger(trigger)
			if peer == "" {
				continue
			}
			for _, step := range flow.StepsTriggeredBy(trigger) {
				d, ok := out[peer]
				if !ok {
					d = &Dispatcher{peer: peer, svc: s}
					out[peer] = d
				}
				d.steps = append(d.steps, candidateStep{route: route, step: step})
			}
		}
	}
	return out
}

// Dispatch consumes msg with at most one step and reports whether any step
// took effect.
func (d *Dispatcher) Dispatch(ctx context.Context, msg contracts.InboundMessage) bool {
	for _, c := range d.steps {
		addr, ok := d.selectInstance(c, msg)
		if !ok {
			continue
		}
		if d.svc.applyStep(ctx, c.route, c.step, addr) {
			return true
		}
	}
	d.svc.logDebug("correlate", "n/a", "agent reply matched no waiting instance", "peer", d.peer)
	return false
}

func (d *Dispatcher) selectInstance(c candidateStep, msg contracts.InboundMessage) (string, bool) {
	store := d.svc.store
	if c.step.MatchContent {
		for _, addr := range store.ListAtStage(c.route.Chain, c.step.From) {
			if strings.Contains(msg.Text, addr) {
				return addr, true
			}
		}
		return "", false
	}
	addr, ok := store.FindOneAtStage(c.route.Chain, c.step.From)
	if !ok {
		return "", false
	}
	if n := store.CountAtStage(c.route.Chain, c.step.From); n > 1 {
		d.svc.logWarn("correlate", "n/a", "multiple instances share stage; reply attributed to earliest arrival",
			"chain", c.route.Chain.String(), "stage", c.step.From.String(), "count", n, "address", addr, "peer", d.peer)
	}
	return addr, true
}

func (d *Dispatcher) evaluationOrder() []Step {
	out := make([]Step, 0, len(d.steps))
	for _, c := range d.steps {
		out = append(out, c.step)
	}
	return out
}
