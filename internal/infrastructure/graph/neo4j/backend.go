package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/core/ports"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

var (
	_ ports.GraphBackend = (*Backend)(nil)
	_ ports.GraphIndexer = (*Backend)(nil)
)

const (
	defaultProbeTTL  = 10 * time.Second
	defaultSeedLimit = 8
	relatedDecay     = 0.8
	fulltextIndex    = "chunk_content"
)

type Config struct {
	URI      string
	Username string
	Password string
	Database string
	ProbeTTL time.Duration
}

// queryRunner executes one Cypher statement and returns its eager records.
type queryRunner func(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error)

// Backend projects creator videos into a Video-HAS_CHUNK->Chunk-MENTIONS->Topic graph
// and answers fulltext queries expanded through shared topics.
type Backend struct {
	driver   neo4j.DriverWithContext
	run      queryRunner
	probe    func(ctx context.Context) error
	executor *resilience.Executor
	probeTTL time.Duration
	now      func() time.Time

	probeMu     sync.Mutex
	probedAt    time.Time
	probeResult bool
}

func New(cfg Config, executor *resilience.Executor) (*Backend, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}

	opts := []neo4j.ExecuteQueryConfigurationOption{}
	if strings.TrimSpace(cfg.Database) != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
	}
	run := func(ctx context.Context, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
		routing := neo4j.ExecuteQueryWithReadersRouting()
		if write {
			routing = neo4j.ExecuteQueryWithWritersRouting()
		}
		result, err := neo4j.ExecuteQuery(ctx, driver, cypher, params, neo4j.EagerResultTransformer, append(opts, routing)...)
		if err != nil {
			return nil, err
		}
		return result.Records, nil
	}

	b := newBackend(run, driver.VerifyConnectivity, executor, cfg.ProbeTTL)
	b.driver = driver
	return b, nil
}

func newBackend(run queryRunner, probe func(ctx context.Context) error, executor *resilience.Executor, probeTTL time.Duration) *Backend {
	if probeTTL <= 0 {
		probeTTL = defaultProbeTTL
	}
	return &Backend{
		run:      run,
		probe:    probe,
		executor: executor,
		probeTTL: probeTTL,
		now:      time.Now,
	}
}

func (b *Backend) Close(ctx context.Context) error {
	if b == nil || b.driver == nil {
		return nil
	}
	return b.driver.Close(ctx)
}

// EnsureSchema creates the uniqueness constraints and the fulltext index used by Query.
func (b *Backend) EnsureSchema(ctx context.Context) error {
	statements := []string{
		"CREATE CONSTRAINT video_id_unique IF NOT EXISTS FOR (v:Video) REQUIRE v.video_id IS UNIQUE",
		"CREATE CONSTRAINT chunk_id_unique IF NOT EXISTS FOR (c:Chunk) REQUIRE c.chunk_id IS UNIQUE",
		"CREATE CONSTRAINT topic_name_unique IF NOT EXISTS FOR (t:Topic) REQUIRE t.name IS UNIQUE",
		"CREATE FULLTEXT INDEX " + fulltextIndex + " IF NOT EXISTS FOR (c:Chunk) ON EACH [c.content]",
	}
	for _, stmt := range statements {
		if _, err := b.exec(ctx, "ensure_schema", stmt, nil, true); err != nil {
			return fmt.Errorf("ensure neo4j schema: %w", err)
		}
	}
	return nil
}

// IsAvailable caches the connectivity probe for probeTTL so routing does not pay a round trip per query.
func (b *Backend) IsAvailable(ctx context.Context) bool {
	if b == nil || b.probe == nil {
		return false
	}
	b.probeMu.Lock()
	defer b.probeMu.Unlock()

	now := b.now()
	if !b.probedAt.IsZero() && now.Sub(b.probedAt) < b.probeTTL {
		return b.probeResult
	}
	err := b.probe(ctx)
	if err != nil && (errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)) {
		return false
	}
	b.probedAt = now
	b.probeResult = err == nil
	if err != nil {
		slog.Warn("graph_probe_failed", "error", err)
	}
	return b.probeResult
}

func (b *Backend) Query(ctx context.Context, creatorID, text string, k int) ([]domain.RetrievalCandidate, error) {
	search := luceneQuery(text)
	if k <= 0 || search == "" || strings.TrimSpace(creatorID) == "" {
		return []domain.RetrievalCandidate{}, nil
	}

	seedRecords, err := b.exec(ctx, "query_seeds", seedCypher, map[string]any{
		"index":     fulltextIndex,
		"search":    search,
		"creatorId": creatorID,
		"limit":     max(k, defaultSeedLimit),
	}, false)
	if err != nil {
		return nil, err
	}
	seeds := recordsToHits(seedRecords)
	if len(seeds) == 0 {
		return []domain.RetrievalCandidate{}, nil
	}
	scored := normalizeHitScores(seeds)

	seedIDs := make([]string, 0, len(seeds))
	for _, hit := range seeds {
		seedIDs = append(seedIDs, hit.chunk.ChunkID)
	}
	relatedRecords, err := b.exec(ctx, "query_related", relatedCypher, map[string]any{
		"seedIds":   seedIDs,
		"creatorId": creatorID,
		"limit":     k,
	}, false)
	if err != nil {
		return nil, err
	}
	related := recordsToHits(relatedRecords)

	candidates := mergeGraphHits(creatorID, seeds, related, k)
	if !scored {
		for i := range candidates {
			candidates[i].Unscored = true
		}
	}
	return candidates, nil
}

func (b *Backend) IndexVideo(ctx context.Context, video domain.Video, chunks []domain.SemanticChunk) error {
	if err := b.DeleteVideo(ctx, video.ID); err != nil {
		return err
	}
	if len(chunks) == 0 {
		return nil
	}

	rows := make([]map[string]any, 0, len(chunks))
	for i, chunk := range chunks {
		rows = append(rows, map[string]any{
			"chunk_id":   chunk.ChunkID,
			"ordinal":    i,
			"start_time": chunk.StartTime,
			"end_time":   chunk.EndTime,
			"content":    chunk.Content,
			"word_count": chunk.WordCount,
			"confidence": chunk.ConfidenceScore,
			"topics":     extractTopics(chunk.Content, maxTopicsPerChunk),
		})
	}
	_, err := b.exec(ctx, "index_video", indexCypher, map[string]any{
		"videoId":   video.ID,
		"creatorId": video.CreatorID,
		"title":     video.Title,
		"url":       video.CanonicalURL,
		"chunks":    rows,
	}, true)
	return err
}

func (b *Backend) DeleteVideo(ctx context.Context, videoID string) error {
	_, err := b.exec(ctx, "delete_video", deleteCypher, map[string]any{"videoId": videoID}, true)
	return err
}

func (b *Backend) exec(ctx context.Context, operation, cypher string, params map[string]any, write bool) ([]*neo4j.Record, error) {
	records, err := resilience.Call(ctx, b.executor, "neo4j."+operation, func(callCtx context.Context) ([]*neo4j.Record, error) {
		return b.run(callCtx, cypher, params, write)
	}, classifyNeo4jError)
	if err != nil {
		return nil, resilience.WrapTemporary("neo4j "+operation, err, classifyNeo4jError)
	}
	return records, nil
}

const seedCypher = `
CALL db.index.fulltext.queryNodes($index, $search) YIELD node, score
WHERE node.creator_id = $creatorId
RETURN node.chunk_id AS chunk_id, node.video_id AS video_id, node.start_time AS start_time,
       node.end_time AS end_time, node.content AS content, node.word_count AS word_count,
       node.confidence AS confidence, score
ORDER BY score DESC
LIMIT $limit`

const relatedCypher = `
MATCH (seed:Chunk)-[:MENTIONS]->(t:Topic)<-[:MENTIONS]-(c:Chunk {creator_id: $creatorId})
WHERE seed.chunk_id IN $seedIds AND NOT c.chunk_id IN $seedIds
WITH c, seed, count(DISTINCT t) AS shared
RETURN c.chunk_id AS chunk_id, c.video_id AS video_id, c.start_time AS start_time,
       c.end_time AS end_time, c.content AS content, c.word_count AS word_count,
       c.confidence AS confidence, seed.chunk_id AS seed_id, toFloat(shared) AS score
ORDER BY score DESC
LIMIT $limit`

const indexCypher = `
MERGE (v:Video {video_id: $videoId})
SET v.creator_id = $creatorId, v.title = $title, v.url = $url
WITH v
UNWIND $chunks AS row
CREATE (c:Chunk {chunk_id: row.chunk_id})
SET c.video_id = $videoId, c.creator_id = $creatorId, c.ordinal = row.ordinal,
    c.start_time = row.start_time, c.end_time = row.end_time, c.content = row.content,
    c.word_count = row.word_count, c.confidence = row.confidence
MERGE (v)-[:HAS_CHUNK]->(c)
FOREACH (name IN row.topics |
  MERGE (t:Topic {name: name})
  MERGE (c)-[:MENTIONS]->(t))
WITH v, c ORDER BY c.ordinal
WITH v, collect(c) AS ordered
FOREACH (i IN range(0, size(ordered) - 2) |
  FOREACH (a IN [ordered[i]] | FOREACH (b IN [ordered[i + 1]] | MERGE (a)-[:NEXT]->(b))))`

const deleteCypher = `
MATCH (v:Video {video_id: $videoId})
OPTIONAL MATCH (v)-[:HAS_CHUNK]->(c:Chunk)
DETACH DELETE c, v`

type graphHit struct {
	chunk  domain.SemanticChunk
	score  float64
	seedID string
}

func recordsToHits(records []*neo4j.Record) []graphHit {
	out := make([]graphHit, 0, len(records))
	for _, record := range records {
		chunkID := recordString(record, "chunk_id")
		if chunkID == "" {
			continue
		}
		out = append(out, graphHit{
			chunk: domain.SemanticChunk{
				ChunkID:         chunkID,
				VideoID:         recordString(record, "video_id"),
				StartTime:       recordFloat(record, "start_time"),
				EndTime:         recordFloat(record, "end_time"),
				Content:         recordString(record, "content"),
				WordCount:       int(recordFloat(record, "word_count")),
				ConfidenceScore: recordFloat(record, "confidence"),
			},
			score:  recordFloat(record, "score"),
			seedID: recordString(record, "seed_id"),
		})
	}
	return out
}

// normalizeHitScores rescales unbounded fulltext scores into [0,1] against the best seed.
// It reports false when no seed carried a positive score, leaving the hits unscored.
func normalizeHitScores(hits []graphHit) bool {
	best := 0.0
	for _, hit := range hits {
		best = max(best, hit.score)
	}
	if best <= 0 {
		for i := range hits {
			hits[i].score = 0
		}
		return false
	}
	for i := range hits {
		hits[i].score = hits[i].score / best
	}
	return true
}

// mergeGraphHits ranks seeds first and scores topic neighbours at a decayed share of their seed.
func mergeGraphHits(creatorID string, seeds, related []graphHit, k int) []domain.RetrievalCandidate {
	seedScores := make(map[string]float64, len(seeds))
	byID := make(map[string]graphHit, len(seeds)+len(related))
	for _, hit := range seeds {
		seedScores[hit.chunk.ChunkID] = hit.score
		if existing, ok := byID[hit.chunk.ChunkID]; !ok || hit.score > existing.score {
			byID[hit.chunk.ChunkID] = hit
		}
	}

	maxShared := 0.0
	for _, hit := range related {
		maxShared = max(maxShared, hit.score)
	}
	for _, hit := range related {
		share := 1.0
		if maxShared > 0 {
			share = hit.score / maxShared
		}
		hit.score = seedScores[hit.seedID] * relatedDecay * share
		if existing, ok := byID[hit.chunk.ChunkID]; !ok || hit.score > existing.score {
			byID[hit.chunk.ChunkID] = hit
		}
	}

	out := make([]domain.RetrievalCandidate, 0, len(byID))
	for _, hit := range byID {
		out = append(out, domain.RetrievalCandidate{
			Chunk:           hit.chunk,
			CreatorID:       creatorID,
			SimilarityScore: hit.score,
			Source:          domain.SourceGraph,
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].SimilarityScore != out[j].SimilarityScore {
			return out[i].SimilarityScore > out[j].SimilarityScore
		}
		return out[i].Chunk.ChunkID < out[j].Chunk.ChunkID
	})
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func recordString(record *neo4j.Record, key string) string {
	value, ok := record.Get(key)
	if !ok || value == nil {
		return ""
	}
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func recordFloat(record *neo4j.Record, key string) float64 {
	value, ok := record.Get(key)
	if !ok {
		return 0
	}
	switch v := value.(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	case int:
		return float64(v)
	default:
		return 0
	}
}
