package neo4j

import (
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

// classifyNeo4jError retries what the driver itself deems transient and ignores
// Cypher usage mistakes, which no retry or breaker trip will fix.
func classifyNeo4jError(err error) resilience.ErrorClassification {
	switch {
	case err == nil, resilience.IsCanceled(err), neo4j.IsUsageError(err):
		return resilience.ErrorClassification{}
	case neo4j.IsRetryable(err), neo4j.IsConnectivityError(err), resilience.IsCircuitOpen(err):
		return resilience.Transient()
	}
	return resilience.Permanent()
}
