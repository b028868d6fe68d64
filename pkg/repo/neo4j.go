// Package repo wraps Neo4j sessions behind the small interfaces graph code needs.
package repo

import (
	"context"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Result is the minimal interface needed from a neo4j result.
type Result interface {
	Next(ctx context.Context) bool
	Record() *neo4j.Record
	Err() error
}

// Runner runs a single Cypher statement.
type Runner interface {
	Run(ctx context.Context, cypher string, params map[string]any) (Result, error)
}

// Session is a Runner that can also run a write transaction.
type Session interface {
	Runner
	ExecuteWrite(ctx context.Context, work func(tx Runner) error) error
	Close(ctx context.Context) error
}

// Opener hands out sessions.
type Opener interface {
	OpenSession(ctx context.Context) Session
}

// Driver opens sessions on a live Neo4j driver.
type Driver struct {
	driver neo4j.DriverWithContext
}

// Connect dials Neo4j and verifies connectivity.
func Connect(ctx context.Context, url, user, pass string) (*Driver, error) {
	d, err := neo4j.NewDriverWithContext(url, neo4j.BasicAuth(user, pass, ""))
	if err != nil {
		return nil, fmt.Errorf("repo: neo4j driver: %w", err)
	}
	if err := d.VerifyConnectivity(ctx); err != nil {
		_ = d.Close(ctx)
		return nil, fmt.Errorf("repo: neo4j connect %s: %w", url, err)
	}
	return &Driver{driver: d}, nil
}

func (d *Driver) OpenSession(ctx context.Context) Session {
	return &session{sess: d.driver.NewSession(ctx, neo4j.SessionConfig{})}
}

func (d *Driver) Close(ctx context.Context) error {
	return d.driver.Close(ctx)
}

type session struct {
	sess neo4j.SessionWithContext
}

func (s *session) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return s.sess.Run(ctx, cypher, params)
}

func (s *session) ExecuteWrite(ctx context.Context, work func(tx Runner) error) error {
	_, err := s.sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return nil, work(txRunner{tx})
	})
	return err
}

func (s *session) Close(ctx context.Context) error {
	return s.sess.Close(ctx)
}

type txRunner struct {
	tx neo4j.ManagedTransaction
}

func (t txRunner) Run(ctx context.Context, cypher string, params map[string]any) (Result, error) {
	return t.tx.Run(ctx, cypher, params)
}

// Collect reads one column of every record, skipping values not of type T.
func Collect[T any](ctx context.Context, res Result, key string) ([]T, error) {
	var out []T
	for res.Next(ctx) {
		v, ok := res.Record().Get(key)
		if !ok {
			return nil, fmt.Errorf("repo: column %q missing", key)
		}
		if t, ok := v.(T); ok {
			out = append(out, t)
		}
	}
	return out, res.Err()
}
