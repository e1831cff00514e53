package amqp

import (
	"fmt"

	"github.com/google/uuid"
)

// genConsumerTag produces a client-generated consumer tag when the caller
// leaves one unspecified, mirroring the "ctag-" prefix convention the
// reference client libraries use so tags are recognisable in broker
// management tooling.
func genConsumerTag() string {
	return fmt.Sprintf("ctag-%s", uuid.NewString())
}

// isServerNamedQueue reports whether name is the placeholder requesting a
// broker-assigned queue name: an empty name asks the broker to pick one.
func isServerNamedQueue(name string) bool {
	return name == ""
}
