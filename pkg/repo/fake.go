package repo

import (
	"context"
	"sync"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// Call is one statement seen by a Fake.
type Call struct {
	Cypher string
	Params map[string]any
	InTx   bool
}

// Fake is an in-process Opener that records statements and replays canned
// rows. Responder may be nil, in which case every statement returns no rows.
type Fake struct {
	Responder func(cypher string, params map[string]any) ([]*neo4j.Record, error)

	mu    sync.Mutex
	calls []Call
}

func (f *Fake) OpenSession(context.Context) Session { return fakeSession{f: f} }

// Calls returns a copy of every statement run so far.
func (f *Fake) Calls() []Call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Call(nil), f.calls...)
}

func (f *Fake) run(cypher string, params map[string]any, inTx bool) (Result, error) {
	f.mu.Lock()
	f.calls = append(f.calls, Call{Cypher: cypher, Params: params, InTx: inTx})
	f.mu.Unlock()
	if f.Responder == nil {
		return &Rows{}, nil
	}
	recs, err := f.Responder(cypher, params)
	if err != nil {
		return nil, err
	}
	return &Rows{Records: recs}, nil
}

type fakeSession struct{ f *Fake }

func (s fakeSession) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return s.f.run(cypher, params, false)
}

func (s fakeSession) ExecuteWrite(_ context.Context, work func(tx Runner) error) error {
	return work(fakeTx(s))
}

func (fakeSession) Close(context.Context) error { return nil }

type fakeTx struct{ f *Fake }

func (t fakeTx) Run(_ context.Context, cypher string, params map[string]any) (Result, error) {
	return t.f.run(cypher, params, true)
}

// Rows is a Result over a fixed slice of records.
type Rows struct {
	Records []*neo4j.Record
	pos     int
}

func (r *Rows) Next(context.Context) bool {
	if r.pos >= len(r.Records) {
		return false
	}
	r.pos++
	return true
}

func (r *Rows) Record() *neo4j.Record { return r.Records[r.pos-1] }

func (r *Rows) Err() error { return nil }

// Record builds a single-column record.
func Record(key string, value any) *neo4j.Record {
	return &neo4j.Record{Keys: []string{key}, Values: []any{value}}
}
