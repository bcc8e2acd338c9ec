package endpoint

import (
	"context"
	"fmt"
	"strconv"

	"github.com/ivanders/scalopus/trace"
	"github.com/ivanders/scalopus/wire"
)

// TraceConfiguratorName is the fixed registration name of the
// TraceConfigurator endpoint.
const TraceConfiguratorName = "trace_configurator"

// TraceConfigurator exposes a process's trace.Configurator for remote
// get/set over the transport, so a client tool can toggle tracing on a
// running process without attaching a debugger.
type TraceConfigurator struct {
	cfg *trace.Configurator
}

// NewTraceConfigurator returns a TraceConfigurator endpoint fronting cfg.
func NewTraceConfigurator(cfg *trace.Configurator) *TraceConfigurator {
	return &TraceConfigurator{cfg: cfg}
}

func (t *TraceConfigurator) Name() string { return TraceConfiguratorName }

func (t *TraceConfigurator) HandleRequest(_ context.Context, payload []byte) ([]byte, error) {
	var req wire.ConfiguratorRequest
	if len(payload) > 0 {
		if err := wire.UnmarshalControl(payload, &req); err != nil {
			return nil, fmt.Errorf("trace_configurator: unmarshal request: %w", err)
		}
	}

	if req.Cmd == "set" {
		t.applySet(req.State)
	}

	resp := t.snapshot()
	data, err := wire.MarshalControl(resp)
	if err != nil {
		return nil, fmt.Errorf("trace_configurator: marshal response: %w", err)
	}
	return data, nil
}

func (t *TraceConfigurator) applySet(state wire.ConfiguratorState) {
	if state.SetProcess {
		t.cfg.SetProcessState(state.ProcessEnabled)
	}
	if state.SetNewProducer {
		t.cfg.SetNewProducerDefault(state.NewProducerEnabled)
	}
	for idStr, enabled := range state.Producers {
		id, err := strconv.ParseInt(idStr, 10, 64)
		if err != nil {
			continue
		}
		t.cfg.SetProducerState(id, enabled)
	}
}

func (t *TraceConfigurator) snapshot() wire.ConfiguratorState {
	producers := make(map[string]bool)
	for id, enabled := range t.cfg.ProducerMap() {
		producers[strconv.FormatInt(id, 10)] = enabled
	}
	return wire.ConfiguratorState{
		ProcessEnabled: t.cfg.ProcessState(),
		Producers:      producers,
	}
}
