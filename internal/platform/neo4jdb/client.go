package neo4jdb

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/andychuong/ai-study-companion-sub000/internal/platform/logger"
)

type Config struct {
	URI         string
	User        string
	Password    string
	Database    string
	Timeout     time.Duration
	MaxPoolSize int
}

func (c Config) withDefaults() Config {
	c.URI = strings.TrimSpace(c.URI)
	c.User = strings.TrimSpace(c.User)
	c.Database = strings.TrimSpace(c.Database)
	if c.User == "" {
		c.User = "neo4j"
	}
	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}
	if c.MaxPoolSize <= 0 {
		c.MaxPoolSize = 50
	}
	return c
}

// Client is the optional graph mirror. A nil *Client accepts every call and
// does nothing.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

var schemaStatements = []string{
	"CREATE CONSTRAINT student_id IF NOT EXISTS FOR (s:Student) REQUIRE s.id IS UNIQUE",
	"CREATE CONSTRAINT concept_id IF NOT EXISTS FOR (c:Concept) REQUIRE c.id IS UNIQUE",
}

// New connects and ensures the uniqueness constraints MERGE relies on. An
// empty URI returns (nil, nil).
func New(ctx context.Context, log *logger.Logger, cfg Config) (*Client, error) {
	if log == nil {
		return nil, fmt.Errorf("neo4jdb: logger required")
	}
	cfg = cfg.withDefaults()
	if cfg.URI == "" {
		log.Info("NEO4J_URI not set; mastery graph mirror disabled")
		return nil, nil
	}

	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *neo4j.Config) {
		c.MaxConnectionPoolSize = cfg.MaxPoolSize
		c.SocketConnectTimeout = cfg.Timeout
	})
	if err != nil {
		return nil, fmt.Errorf("neo4jdb: init driver: %w", err)
	}
	c := &Client{driver: driver, database: cfg.Database, log: log.With("client", "Neo4jDB")}

	sctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()
	if err := driver.VerifyConnectivity(sctx); err != nil {
		_ = driver.Close(sctx)
		return nil, fmt.Errorf("neo4jdb: verify connectivity (uri=%s): %w", cfg.URI, err)
	}
	for _, stmt := range schemaStatements {
		if err := c.execute(sctx, stmt, nil); err != nil {
			_ = driver.Close(sctx)
			return nil, fmt.Errorf("neo4jdb: ensure schema: %w", err)
		}
	}
	c.log.Info("Connected to neo4j", "uri", cfg.URI, "database", cfg.Database)
	return c, nil
}

func (c *Client) execute(ctx context.Context, cypher string, params map[string]any) error {
	var opts []neo4j.ExecuteQueryConfigurationOption
	if c.database != "" {
		opts = append(opts, neo4j.ExecuteQueryWithDatabase(c.database))
	}
	_, err := neo4j.ExecuteQuery(ctx, c.driver, cypher, params, neo4j.EagerResultTransformer, opts...)
	return err
}

func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	err := c.driver.Close(ctx)
	c.driver = nil
	return err
}
