package amqp

import (
	"context"

	"gopkg.in/yaml.v3"

	"github.com/szarykott/goamqp/internal/errs"
)

// ParseTopology decodes a Topology from its YAML representation (JSON is a
// YAML subset, so JSON documents decode too). It only validates the shape
// of the document; whether the broker accepts the declarations is decided
// when the topology is applied.
func ParseTopology(data []byte) (*Topology, error) {
	tp := &Topology{}
	if err := yaml.Unmarshal(data, tp); err != nil {
		return nil, errs.Errorf("invalid topology document: %w", err)
	}
	return tp, nil
}

// DeclareTopology declares every exchange, queue and binding in t, in that
// order, recording each for replay exactly as the equivalent individual
// calls would. Declaration stops at the first entity the broker rejects.
// Server-named queues are supported: an entry with an empty name gets the
// broker-assigned name recorded, and any binding in t referring to the
// empty name is rewritten to the assigned one before being declared.
func (rm *RecoveringModel) DeclareTopology(ctx context.Context, t Topology) error {
	for _, ex := range t.Exchanges {
		if err := rm.ExchangeDeclare(ctx, ex); err != nil {
			return err
		}
	}
	assigned := make(map[string]string, len(t.Queues))
	for _, q := range t.Queues {
		name, err := rm.QueueDeclare(q)
		if err != nil {
			return err
		}
		assigned[q.Name] = name
	}
	for _, b := range t.Bindings {
		if !b.ToExchange {
			if name, ok := assigned[b.Queue]; ok {
				b.Queue = name
			}
		}
		if err := rm.Bind(b); err != nil {
			return err
		}
	}
	return nil
}
