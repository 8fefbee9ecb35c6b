package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/FalkorDB/falkordb-go/v2"

	"github.com/tributarydb/tributary/internal/errdefs"
	"github.com/tributarydb/tributary/internal/logging"
)

// Client is the storage interface the rest of the system depends on.
// Reads and writes are separate entry points so the cache layer can serve
// reads and invalidate on writes without inspecting Cypher.
type Client interface {
	Connect(ctx context.Context) error
	Close() error
	Ping(ctx context.Context) error
	ExecuteRead(ctx context.Context, query *GraphQuery) (*QueryResult, error)
	ExecuteWrite(ctx context.Context, query *GraphQuery) (*QueryResult, error)
	InitializeSchema(ctx context.Context) error
	GetGraphStats(ctx context.Context) (*GraphStats, error)
	DeleteGraph(ctx context.Context) error
}

// ClientConfig holds FalkorDB connection settings.
type ClientConfig struct {
	Host         string        `json:"host" yaml:"host"`
	Port         int           `json:"port" yaml:"port"`
	Password     string        `json:"password" yaml:"password"`
	GraphName    string        `json:"graph_name" yaml:"graph_name"`
	MaxRetries   int           `json:"max_retries" yaml:"max_retries"`
	DialTimeout  time.Duration `json:"dial_timeout" yaml:"dial_timeout"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	PoolSize     int           `json:"pool_size" yaml:"pool_size"`

	QueryCacheEnabled     bool          `json:"query_cache_enabled" yaml:"query_cache_enabled"`
	QueryCacheMaxMemoryMB int           `json:"query_cache_max_memory_mb" yaml:"query_cache_max_memory_mb"`
	QueryCacheTTL         time.Duration `json:"query_cache_ttl" yaml:"query_cache_ttl"`
}

// DefaultClientConfig returns settings suitable for a local FalkorDB.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Host:                  "localhost",
		Port:                  6379,
		GraphName:             "tributary",
		MaxRetries:            3,
		DialTimeout:           5 * time.Second,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          30 * time.Second,
		PoolSize:              10,
		QueryCacheEnabled:     true,
		QueryCacheMaxMemoryMB: 64,
		QueryCacheTTL:         2 * time.Minute,
	}
}

// NewClient assembles the full client stack: driver, retries, and, when
// enabled, the read cache on top.
func NewClient(config ClientConfig, metrics *Metrics) Client {
	var client Client = newRetryClient(newFalkorClient(config, metrics), config.MaxRetries)
	if config.QueryCacheEnabled {
		client = newCachedClient(client, QueryCacheConfig{
			MaxMemoryMB: config.QueryCacheMaxMemoryMB,
			TTL:         config.QueryCacheTTL,
		}, metrics)
	}
	return client
}

// schemaIndexes are created once at initialization. Lookups during reads are
// dominated by uuid and name equality, value MERGE hits the content-addressed
// literal labels.
var schemaIndexes = []string{
	"CREATE INDEX FOR (n:Node) ON (n.uuid)",
	"CREATE INDEX FOR (n:Node) ON (n.kind)",
	"CREATE INDEX FOR (n:Attribute) ON (n.uuid)",
	"CREATE INDEX FOR (n:Attribute) ON (n.name)",
	"CREATE INDEX FOR (n:Relationship) ON (n.uuid)",
	"CREATE INDEX FOR (n:Relationship) ON (n.name)",
	"CREATE INDEX FOR (n:AttributeValue) ON (n.value)",
	"CREATE INDEX FOR (n:Boolean) ON (n.value)",
	"CREATE INDEX FOR (n:Branch) ON (n.name)",
}

type falkorClient struct {
	config  ClientConfig
	metrics *Metrics
	db      *falkordb.FalkorDB
	graph   *falkordb.Graph
	logger  *logging.Logger
}

func newFalkorClient(config ClientConfig, metrics *Metrics) *falkorClient {
	return &falkorClient{
		config:  config,
		metrics: metrics,
		logger:  logging.GetLogger("storage.client"),
	}
}

func (f *falkorClient) Connect(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", f.config.Host, f.config.Port)
	db, err := falkordb.FalkorDBNew(&falkordb.ConnectionOption{
		Addr:         addr,
		Password:     f.config.Password,
		DialTimeout:  f.config.DialTimeout,
		ReadTimeout:  f.config.ReadTimeout,
		WriteTimeout: f.config.WriteTimeout,
		PoolSize:     f.config.PoolSize,
	})
	if err != nil {
		return errdefs.Wrapf(errdefs.KindTransient, err, "failed to connect to FalkorDB at %s", addr)
	}

	f.db = db
	f.graph = db.SelectGraph(f.config.GraphName)

	if err := f.Ping(ctx); err != nil {
		return err
	}

	f.logger.InfoWithFields("Connected to FalkorDB",
		logging.Field("addr", addr),
		logging.Field("graph", f.config.GraphName),
	)
	return nil
}

func (f *falkorClient) Close() error {
	if f.db == nil {
		return nil
	}
	if err := f.db.Conn.Close(); err != nil {
		return errdefs.Wrap(errdefs.KindUnknown, err, "failed to close FalkorDB connection")
	}
	f.db = nil
	f.graph = nil
	return nil
}

func (f *falkorClient) Ping(ctx context.Context) error {
	_, err := f.ExecuteRead(ctx, &GraphQuery{Name: "ping", Query: "RETURN 1"})
	if err != nil {
		return errdefs.Wrap(errdefs.KindTransient, err, "FalkorDB ping failed")
	}
	return nil
}

func (f *falkorClient) ExecuteRead(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	return f.execute(ctx, "read", query)
}

func (f *falkorClient) ExecuteWrite(ctx context.Context, query *GraphQuery) (*QueryResult, error) {
	return f.execute(ctx, "write", query)
}

// execute runs a single query. The driver has no context-aware query path,
// so cancellation is checked up front and long queries are bounded by the
// query timeout (falling back to the configured read timeout).
func (f *falkorClient) execute(ctx context.Context, queryType string, query *GraphQuery) (*QueryResult, error) {
	if query == nil {
		return nil, errdefs.New(errdefs.KindValidation, "query cannot be nil")
	}
	if f.graph == nil {
		return nil, errdefs.New(errdefs.KindTransient, "not connected to FalkorDB")
	}
	if err := ctx.Err(); err != nil {
		return nil, errdefs.Wrap(errdefs.KindUnknown, err, "query aborted")
	}

	timeout := query.Timeout
	if timeout <= 0 {
		timeout = f.config.ReadTimeout
	}
	options := falkordb.NewQueryOptions().SetTimeout(int(timeout.Milliseconds()))

	name := query.Name
	if name == "" {
		name = "unnamed"
	}
	done := f.metrics.observeQuery(queryType, name)

	start := time.Now()
	result, err := f.graph.Query(query.Query, query.Parameters, options)
	done(err)
	if err != nil {
		f.logger.ErrorWithFields("Query failed",
			logging.Field("query_name", name),
			logging.Field("query_type", queryType),
			logging.Field("error", err.Error()),
		)
		return nil, errdefs.Wrapf(classifyQueryError(err), err, "query %s failed", name)
	}

	converted := convertFalkorResult(result)
	f.logger.DebugWithFields("Query executed",
		logging.Field("query_name", name),
		logging.Field("query_type", queryType),
		logging.Field("rows", len(converted.Rows)),
		logging.Field("duration", time.Since(start).String()),
	)
	return converted, nil
}

func (f *falkorClient) InitializeSchema(ctx context.Context) error {
	for _, statement := range schemaIndexes {
		_, err := f.ExecuteWrite(ctx, &GraphQuery{Name: "create_index", Query: statement})
		if err != nil {
			// FalkorDB rejects duplicate index creation; an existing index
			// is not a failure on re-initialization.
			if strings.Contains(err.Error(), "already indexed") {
				f.logger.DebugWithFields("Index already exists", logging.Field("statement", statement))
				continue
			}
			return errdefs.Wrapf(errdefs.KindFatal, err, "failed to create index %q", statement)
		}
	}
	f.logger.Info("Graph schema initialized")
	return nil
}

func (f *falkorClient) GetGraphStats(ctx context.Context) (*GraphStats, error) {
	stats := &GraphStats{
		NodesByLabel: map[string]int{},
		EdgesByType:  map[string]int{},
	}

	labelResult, err := f.ExecuteRead(ctx, &GraphQuery{
		Name:  "stats_nodes_by_label",
		Query: "MATCH (n) RETURN labels(n)[0] AS label, count(n) AS cnt ORDER BY label",
	})
	if err != nil {
		return nil, err
	}
	for _, row := range labelResult.Rows {
		if len(row) < 2 {
			continue
		}
		label, _ := row[0].(string)
		count := toInt(row[1])
		stats.NodesByLabel[label] = count
		stats.NodeCount += count
	}

	typeResult, err := f.ExecuteRead(ctx, &GraphQuery{
		Name:  "stats_edges_by_type",
		Query: "MATCH ()-[r]->() RETURN type(r) AS rel_type, count(r) AS cnt ORDER BY rel_type",
	})
	if err != nil {
		return nil, err
	}
	for _, row := range typeResult.Rows {
		if len(row) < 2 {
			continue
		}
		relType, _ := row[0].(string)
		count := toInt(row[1])
		stats.EdgesByType[relType] = count
		stats.EdgeCount += count
	}

	return stats, nil
}

func (f *falkorClient) DeleteGraph(ctx context.Context) error {
	if f.graph == nil {
		return nil
	}
	if err := f.graph.Delete(); err != nil {
		// Deleting a graph that was never written to reports a missing key.
		if strings.Contains(err.Error(), "empty key") {
			return nil
		}
		return errdefs.Wrapf(errdefs.KindUnknown, err, "failed to delete graph %s", f.config.GraphName)
	}
	return nil
}

func convertFalkorResult(result *falkordb.QueryResult) *QueryResult {
	converted := &QueryResult{
		Columns: []string{},
		Rows:    [][]interface{}{},
	}
	for result.Next() {
		record := result.Record()
		if len(converted.Columns) == 0 {
			converted.Columns = record.Keys()
		}
		converted.Rows = append(converted.Rows, record.Values())
	}
	converted.Stats = QueryStats{
		NodesCreated:         result.NodesCreated(),
		NodesDeleted:         result.NodesDeleted(),
		RelationshipsCreated: result.RelationshipsCreated(),
		RelationshipsDeleted: result.RelationshipsDeleted(),
		PropertiesSet:        result.PropertiesSet(),
		LabelsAdded:          result.LabelsAdded(),
		ExecutionTime:        time.Duration(result.InternalExecutionTime() * float64(time.Millisecond)),
	}
	return converted
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
