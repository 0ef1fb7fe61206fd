// Package graph records lead lineage in Memgraph/Neo4j over Bolt.
package graph

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
}

func (c Config) uri() string {
	return fmt.Sprintf("bolt://%s:%d", c.Host, c.Port)
}

// Client runs single auto-committed Cypher statements. Every statement fern issues
// is self-contained, so there is no explicit transaction API.
type Client struct {
	driver neo4j.DriverWithContext
	logger ectologger.Logger
}

// NewClient builds the driver lazily; call VerifyConnectivity to dial.
func NewClient(cfg Config, logger ectologger.Logger) (*Client, error) {
	auth := neo4j.NoAuth()
	if cfg.Username != "" {
		auth = neo4j.BasicAuth(cfg.Username, cfg.Password, "")
	}
	driver, err := neo4j.NewDriverWithContext(cfg.uri(), auth)
	if err != nil {
		return nil, fmt.Errorf("graph driver for %s: %w", cfg.uri(), err)
	}
	return &Client{driver: driver, logger: logger}, nil
}

func (c *Client) VerifyConnectivity(ctx context.Context) error {
	return c.driver.VerifyConnectivity(ctx)
}

func (c *Client) Close(ctx context.Context) error {
	return c.driver.Close(ctx)
}

// Write runs cypher against the writer and returns its counters.
func (c *Client) Write(ctx context.Context, cypher string, params map[string]any) (neo4j.Counters, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Write")
	defer span.End()

	res, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithWritersRouting())
	if err != nil {
		return nil, tracing.Fail(span, err)
	}
	return res.Summary.Counters(), nil
}

// Read runs cypher against a reader and returns every record.
func (c *Client) Read(ctx context.Context, cypher string, params map[string]any) ([]*neo4j.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.Client.Read")
	defer span.End()

	res, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, params, neo4j.EagerResultTransformer,
		neo4j.ExecuteQueryWithReadersRouting())
	if err != nil {
		return nil, tracing.Fail(span, err)
	}
	return res.Records, nil
}
