package amqp

// Topology lets a caller declare the exchanges, queues and bindings a
// connection expects to exist. It is recorded verbatim by the orchestrator's
// Topology Recorder on successful declaration and replayed, in the fixed
// order Exchanges -> Queues -> Bindings, on every recovery.
type Topology struct {
	Exchanges []Exchange `json:"exchanges,omitempty" yaml:",omitempty"`
	Queues    []Queue    `json:"queues,omitempty" yaml:",omitempty"`
	Bindings  []Binding  `json:"bindings,omitempty" yaml:",omitempty"`
}

// Queue declares a broker queue. An empty Name requests a server-named
// queue; the broker-assigned name is substituted everywhere it is used
// (including on every subsequent recovery) for as long as the client stays
// connected to that incarnation of the queue.
type Queue struct {
	Name       string                 `json:"name" yaml:"name"`
	Durable    bool                   `json:"durable" yaml:"durable"`
	AutoDelete bool                   `json:"auto_delete" yaml:"auto_delete"`
	Exclusive  bool                   `json:"exclusive" yaml:"exclusive"`
	Arguments  map[string]interface{} `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Exchange declares a broker exchange.
type Exchange struct {
	Name       string                 `json:"name" yaml:"name"`
	Kind       string                 `json:"kind" yaml:"kind"`
	Durable    bool                   `json:"durable" yaml:"durable"`
	AutoDelete bool                   `json:"auto_delete" yaml:"auto_delete"`
	Internal   bool                   `json:"internal" yaml:"internal"`
	Arguments  map[string]interface{} `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// Binding connects a single exchange to a single queue (or, for
// exchange-to-exchange topologies, another exchange named in Queue with
// ToExchange set) under one routing key. Identity for recording purposes is
// the full (Exchange, Queue, RoutingKey, ToExchange) tuple, matching the
// Topology Recorder's RecordedBinding key.
type Binding struct {
	Exchange   string                 `json:"exchange" yaml:"exchange"`
	Queue      string                 `json:"queue" yaml:"queue"`
	RoutingKey string                 `json:"routing_key" yaml:"routing_key"`
	ToExchange bool                   `json:"to_exchange,omitempty" yaml:"to_exchange,omitempty"`
	Arguments  map[string]interface{} `json:"arguments,omitempty" yaml:"arguments,omitempty"`
}

// QueueOptions helps build the commonly used x-arguments for a Queue without
// hand-assembling a map.
type QueueOptions struct {
	MessageTTLMillis int64
	ExpiresMillis    int64
	MaxLength        uint
	MaxLengthBytes   uint
	DLExchange       string
	DLRoutingKey     string
	MaxPriority      *uint8
	LazyMode         bool
	Overflow         OverflowMode
}

// AsArguments returns the options encoded as queue declaration arguments.
func (qo *QueueOptions) AsArguments() map[string]interface{} {
	args := make(map[string]interface{})
	if qo.MessageTTLMillis > 0 {
		args["x-message-ttl"] = qo.MessageTTLMillis
	}
	if qo.ExpiresMillis > 0 {
		args["x-expires"] = qo.ExpiresMillis
	}
	if qo.MaxLength > 0 {
		args["x-max-length"] = qo.MaxLength
	}
	if qo.MaxLengthBytes > 0 {
		args["x-max-length-bytes"] = qo.MaxLengthBytes
	}
	if qo.DLExchange != "" {
		args["x-dead-letter-exchange"] = qo.DLExchange
	}
	if qo.DLRoutingKey != "" {
		args["x-dead-letter-routing-key"] = qo.DLRoutingKey
	}
	if qo.MaxPriority != nil {
		args["x-max-priority"] = *qo.MaxPriority
	}
	if qo.LazyMode {
		args["x-queue-mode"] = "lazy"
	}
	if qo.Overflow != "" {
		args["x-overflow"] = string(qo.Overflow)
	}
	return args
}

// OverflowMode adjusts queue behaviour once it reaches its maximum length.
type OverflowMode string

const (
	OverflowDropHead OverflowMode = "drop-head"
	OverflowReject   OverflowMode = "reject-publish"
	OverflowRejectDL OverflowMode = "reject-publish-dlx"
)

// ConnectionState is one of Opening, Open, Quiescing or Closed. Transitions
// are monotonic: Opening->Open->Quiescing->Closed, Opening->Closed, or
// Open->Closed. Once a ShutdownReason is attached it never changes.
type ConnectionState int

const (
	StateOpening ConnectionState = iota
	StateOpen
	StateQuiescing
	StateClosed
)

func (s ConnectionState) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateOpen:
		return "open"
	case StateQuiescing:
		return "quiescing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ChannelState mirrors ConnectionState for a single Session/Model.
type ChannelState = ConnectionState
