package nats

import (
	"errors"

	"github.com/nats-io/nats.go"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

// connectionErrors are the client states a reconnect can heal.
var connectionErrors = []error{
	nats.ErrNoServers,
	nats.ErrTimeout,
	nats.ErrReconnectBufExceeded,
	nats.ErrConnectionClosed,
	nats.ErrDisconnected,
}

func classifyNATSError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, resilience.IsCanceled(err), domain.IsKind(err, domain.ErrInvalidInput):
		return resilience.ErrorClassification{}
	case resilience.IsCircuitOpen(err):
		return resilience.Transient()
	}
	for _, target := range connectionErrors {
		if errors.Is(err, target) {
			return resilience.Transient()
		}
	}
	return resilience.Permanent()
}

func publishError(err error) error {
	return resilience.WrapTemporary("nats publish", err, classifyNATSError)
}
