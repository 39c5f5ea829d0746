package usecase

import (
	"context"
	"strings"
	"time"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
)

const (
	routeReasonSimple           = "simple_query"
	routeReasonComplex          = "complex_query"
	routeReasonGraphUnavailable = "graph_unavailable"
)

// QueryRouter picks between plain vector retrieval and graph-augmented retrieval.
type QueryRouter struct {
	graph        ports.GraphBackend
	heuristics   domain.RoutingHeuristics
	probeTimeout time.Duration
	cues         []string
}

func NewQueryRouter(graph ports.GraphBackend, heuristics domain.RoutingHeuristics, probeTimeout time.Duration) *QueryRouter {
	if heuristics.TokenThreshold <= 0 {
		heuristics.TokenThreshold = domain.DefaultRoutingHeuristics().TokenThreshold
	}
	if probeTimeout <= 0 {
		probeTimeout = 500 * time.Millisecond
	}

	cues := make([]string, 0, len(heuristics.RelationalCues))
	for _, cue := range heuristics.RelationalCues {
		normalized := strings.Join(splitAlphaNumLower(cue), " ")
		if normalized != "" {
			cues = append(cues, normalized)
		}
	}

	return &QueryRouter{
		graph:        graph,
		heuristics:   heuristics,
		probeTimeout: probeTimeout,
		cues:         cues,
	}
}

func (r *QueryRouter) ChooseStrategy(ctx context.Context, query string) domain.RouteDecision {
	if !r.IsComplex(query) {
		return domain.RouteDecision{Reason: routeReasonSimple}
	}
	if r.graph == nil {
		return domain.RouteDecision{Complex: true, Reason: routeReasonGraphUnavailable}
	}

	probeCtx, cancel := context.WithTimeout(ctx, r.probeTimeout)
	defer cancel()
	if !r.graph.IsAvailable(probeCtx) {
		return domain.RouteDecision{Complex: true, Reason: routeReasonGraphUnavailable}
	}
	return domain.RouteDecision{Graph: true, Complex: true, Reason: routeReasonComplex}
}

// IsComplex reports whether the query is long or relational enough to benefit from the graph.
func (r *QueryRouter) IsComplex(query string) bool {
	if len(strings.Fields(query)) > r.heuristics.TokenThreshold {
		return true
	}
	normalized := " " + strings.Join(splitAlphaNumLower(query), " ") + " "
	for _, cue := range r.cues {
		if strings.Contains(normalized, " "+cue+" ") {
			return true
		}
	}
	return false
}
