package harness

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"go.uber.org/zap"

	"github.com/roach88/strata/internal/client"
	"github.com/roach88/strata/internal/compiler"
	"github.com/roach88/strata/internal/event"
	"github.com/roach88/strata/internal/graph"
	"github.com/roach88/strata/internal/index"
	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/session"
	"github.com/roach88/strata/internal/store"
	"github.com/roach88/strata/internal/testutil"
	"github.com/roach88/strata/internal/values"
)

// Harness executes one scenario against fresh in-memory backends.
type Harness struct {
	catalog *meta.StaticCatalog
	session *session.Session
	logger  *zap.Logger
	refs    *refs
	result  *Result

	seq       int64
	recording bool
	closers   []func() error
}

// Option configures a run.
type Option func(*runConfig)

type runConfig struct {
	catalog *meta.StaticCatalog
	logger  *zap.Logger
}

// WithCatalog runs the scenario against cat instead of compiling the
// scenario's catalog directory.
func WithCatalog(cat *meta.StaticCatalog) Option {
	return func(c *runConfig) { c.catalog = cat }
}

// WithLogger sets the logger passed to the session and backends.
func WithLogger(l *zap.Logger) Option {
	return func(c *runConfig) { c.logger = l }
}

// Run executes a scenario and returns the result.
//
// Each run uses fresh backends: an in-memory SQLite store per "sqlite" unit
// and an in-memory graph per other unit. Search documents get sequential
// match ids so traces are reproducible.
//
// Execution flow:
//  1. Compile the catalog and open backends
//  2. Execute setup steps (any error aborts the run)
//  3. Execute flow steps, checking expectations
//  4. Evaluate assertions
func Run(ctx context.Context, scenario *Scenario, opts ...Option) (*Result, error) {
	cfg := runConfig{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(&cfg)
	}

	cat := cfg.catalog
	if cat == nil {
		loaded, err := compiler.LoadDir(scenario.Catalog)
		if err != nil {
			return nil, fmt.Errorf("failed to load catalog: %w", err)
		}
		cat = loaded.Catalog
	}

	h := &Harness{
		catalog: cat,
		logger:  cfg.logger,
		result:  NewResult(),
	}
	h.refs = newRefs(func(ctx context.Context, m *meta.EntityMetadata, id any) (any, error) {
		return h.session.Find(ctx, m, id)
	})
	defer h.close()

	clients, err := h.openClients(scenario.Units)
	if err != nil {
		return nil, err
	}

	events := event.NewRegistry()
	for _, kind := range []event.Kind{
		event.PreLoad, event.PostLoad,
		event.PrePersist, event.PostPersist,
		event.PreUpdate, event.PostUpdate,
		event.PreRemove, event.PostRemove,
	} {
		events.On("", kind, h.listener(kind))
	}
	h.session = session.New(cat, clients,
		session.WithEvents(events),
		session.WithLogger(cfg.logger))

	h.recording = true
	for i := range scenario.Setup {
		if err := h.execute(ctx, &scenario.Setup[i], true); err != nil {
			return nil, fmt.Errorf("failed to execute setup[%d]: %w", i, err)
		}
	}
	for i := range scenario.Flow {
		if err := h.execute(ctx, &scenario.Flow[i], false); err != nil {
			return nil, fmt.Errorf("failed to execute flow[%d]: %w", i, err)
		}
	}
	h.recording = false

	actx := &AssertionContext{Ctx: ctx, Session: h.session, Catalog: cat}
	for _, errMsg := range EvaluateAssertions(h.result, scenario.Assertions, actx) {
		h.result.AddError(errMsg)
	}
	return h.result, nil
}

func (h *Harness) openClients(units map[string]string) (map[string]client.Client, error) {
	names := make(map[string]bool)
	for _, m := range h.catalog.Entities("") {
		names[m.PersistenceUnit] = true
	}
	for unit := range units {
		names[unit] = true
	}

	clients := make(map[string]client.Client, len(names))
	for unit := range names {
		switch backend := units[unit]; backend {
		case BackendSQLite:
			st, err := store.Open(":memory:", h.catalog,
				store.WithUnit(unit),
				store.WithLogger(h.logger),
				store.WithSearch(index.WithIDGenerator(testutil.NewSequenceIDs(unit))))
			if err != nil {
				return nil, fmt.Errorf("unit %s: %w", unit, err)
			}
			h.closers = append(h.closers, st.Close)
			clients[unit] = st
		case "", BackendMemory:
			clients[unit] = graph.NewClient(graph.NewMemStore(graph.WithAutoIndexing(true)), h.catalog, h.logger)
		default:
			return nil, fmt.Errorf("unit %s: unsupported backend %q", unit, backend)
		}
	}
	return clients, nil
}

func (h *Harness) close() {
	for _, c := range h.closers {
		if err := c(); err != nil {
			h.logger.Warn("close backend", zap.Error(err))
		}
	}
}

func (h *Harness) nextSeq() int64 {
	h.seq++
	return h.seq
}

// listener records lifecycle events while steps execute.
func (h *Harness) listener(kind event.Kind) event.Listener {
	return func(_ context.Context, m *meta.EntityMetadata, entity any) error {
		if !h.recording {
			return nil
		}
		ev := TraceEvent{
			Type:   TraceLifecycle,
			Action: kind.String(),
			Entity: m.Class,
			Seq:    h.nextSeq(),
		}
		if entity != nil {
			if id, err := meta.ID(entity, m); err == nil {
				if cv, ok := values.Canonical(id); ok {
					ev.Args = map[string]any{"id": cv}
				}
			}
		}
		h.result.addTrace(ev)
		return nil
	}
}

// execute runs one step. The step's trace entry precedes the lifecycle
// events it causes. Errors carrying an ormerr code are step outcomes checked
// against the expectation; other errors, and any error during setup, abort
// the run.
func (h *Harness) execute(ctx context.Context, step *Step, setup bool) error {
	kind, target := step.Kind()
	pos := len(h.result.Trace)
	h.result.addTrace(TraceEvent{Type: kind, Action: target, Seq: h.nextSeq()})

	var (
		results []any
		count   int
		err     error
	)
	switch kind {
	case TracePersist, TraceMerge, TraceRemove, TraceFind:
		results, count, err = h.entityStep(ctx, kind, step, pos)
	case TraceQuery:
		results, count, err = h.queryStep(ctx, step, pos)
	}

	var code ormerr.Code
	if err != nil {
		var oe *ormerr.Error
		if setup || !errors.As(err, &oe) {
			return err
		}
		code = oe.Code
		h.entry(pos).Error = string(code)
	} else if results != nil {
		h.entry(pos).Result = results
	} else if kind == TraceQuery && step.Mode == ModeUpdate {
		h.entry(pos).Result = map[string]any{"affected": int64(count)}
	}

	exp := step.Expect
	if exp == nil {
		exp = &Expect{}
	}
	h.checkExpect(pos, exp, results, count, code)
	return nil
}

// entry returns the trace entry at pos. Lifecycle events append to the
// trace while a step runs, so pointers into it are not kept.
func (h *Harness) entry(pos int) *TraceEvent {
	return &h.result.Trace[pos]
}

func (h *Harness) entityStep(ctx context.Context, kind string, step *Step, pos int) ([]any, int, error) {
	_, class := step.Kind()
	m, err := h.catalog.Entity(class)
	if err != nil {
		return nil, 0, ormerr.IllegalArgument(err.Error())
	}
	h.entry(pos).Entity = m.Class

	switch kind {
	case TracePersist, TraceMerge:
		h.entry(pos).Args = values.CanonicalMap(step.Values)
		entity, err := values.Build(ctx, h.catalog, m, step.Values, h.refs.resolve)
		if err != nil {
			return nil, 0, err
		}
		if kind == TracePersist {
			err = h.session.Persist(ctx, entity)
		} else {
			err = h.session.Merge(ctx, entity)
		}
		if err != nil {
			return nil, 0, err
		}
		h.refs.add(m, entity)
		return nil, 1, nil

	case TraceRemove:
		id, entity, err := h.lookup(ctx, m, step.ID, pos)
		if err != nil {
			return nil, 0, err
		}
		if entity == nil {
			return nil, 0, ormerr.NoResult(m.Class)
		}
		if err := h.session.Remove(ctx, entity); err != nil {
			return nil, 0, err
		}
		h.refs.forget(m, id)
		return nil, 1, nil

	default:
		_, entity, err := h.lookup(ctx, m, step.ID, pos)
		if err != nil {
			return nil, 0, err
		}
		if entity == nil {
			return []any{}, 0, nil
		}
		h.refs.add(m, entity)
		snap, err := values.Snapshot(h.catalog, m, entity)
		if err != nil {
			return nil, 0, err
		}
		return []any{snap}, 1, nil
	}
}

func (h *Harness) lookup(ctx context.Context, m *meta.EntityMetadata, rawID any, pos int) (any, any, error) {
	id, err := values.Decode(rawID, m.ID.Kind)
	if err != nil {
		return nil, nil, ormerr.IllegalArgument(fmt.Sprintf("%s id: %v", m.Class, err))
	}
	if cv, ok := values.Canonical(id); ok {
		h.entry(pos).Args = map[string]any{"id": cv}
	}
	entity, err := h.session.Find(ctx, m, id)
	return id, entity, err
}

func (h *Harness) queryStep(ctx context.Context, step *Step, pos int) ([]any, int, error) {
	q, err := query.New(step.Query, nil, h.session, query.WithLogger(h.logger))
	if err != nil {
		return nil, 0, err
	}
	h.entry(pos).Entity = q.Entity().Class
	if len(step.Params) > 0 {
		h.entry(pos).Args = values.CanonicalMap(step.Params)
	}

	for _, name := range sortedNames(step.Hints) {
		q.SetHint(name, step.Hints[name])
	}
	if step.MaxResults != nil {
		if err := q.SetMaxResults(*step.MaxResults); err != nil {
			return nil, 0, err
		}
	}
	if step.FetchSize > 0 {
		q.SetFetchSize(step.FetchSize)
	}
	if err := bindParams(q, step.Params); err != nil {
		return nil, 0, err
	}

	var found []any
	switch step.Mode {
	case ModeUpdate:
		n, err := q.ExecuteUpdate(ctx)
		if err != nil {
			return nil, 0, err
		}
		return nil, n, nil
	case ModeSingle:
		one, err := q.GetSingleResult(ctx)
		if err != nil {
			return nil, 0, err
		}
		found = []any{one}
	case ModeIterate:
		it := q.Iterate(ctx)
		for it.Next() {
			found = append(found, it.Value())
		}
		if err := it.Err(); err != nil {
			return nil, 0, err
		}
	default:
		found, err = q.GetResultList(ctx)
		if err != nil {
			return nil, 0, err
		}
	}

	out := make([]any, 0, len(found))
	for _, e := range found {
		m, err := h.session.Metadata(e)
		if err != nil {
			return nil, 0, err
		}
		h.refs.add(m, e)
		snap, err := values.Snapshot(h.catalog, m, e)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, snap)
	}
	return out, len(out), nil
}

// bindParams binds named parameters, and positional ones for integer keys.
func bindParams(q *query.Query, params map[string]any) error {
	for _, name := range sortedNames(params) {
		value := values.Normalize(params[name])
		if pos, err := strconv.Atoi(name); err == nil {
			if err := q.SetPositionalParameter(pos, value); err != nil {
				return err
			}
			continue
		}
		if err := q.SetParameter(name, value); err != nil {
			return err
		}
	}
	return nil
}

func sortedNames(m map[string]any) []string {
	names := make([]string, 0, len(m))
	for k := range m {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// checkExpect records a failure for every expectation the step missed.
func (h *Harness) checkExpect(pos int, exp *Expect, results []any, count int, code ormerr.Code) {
	label := fmt.Sprintf("step %d (%s %s)", h.result.Trace[pos].Seq, h.result.Trace[pos].Type, h.result.Trace[pos].Action)

	if exp.Error != "" {
		if string(code) != exp.Error {
			h.result.AddError(fmt.Sprintf("%s: expected error %s, got %q", label, exp.Error, code))
		}
		return
	}
	if code != "" {
		h.result.AddError(fmt.Sprintf("%s: unexpected error %s", label, code))
		return
	}

	if exp.Count != nil && *exp.Count != count {
		h.result.AddError(fmt.Sprintf("%s: expected count %d, got %d", label, *exp.Count, count))
	}
	if len(exp.Results) > len(results) {
		h.result.AddError(fmt.Sprintf("%s: expected %d results, got %d", label, len(exp.Results), len(results)))
		return
	}
	for i, want := range exp.Results {
		got, _ := results[i].(map[string]any)
		if key := values.MatchSubset(want, got); key != "" {
			h.result.AddError(fmt.Sprintf("%s: result[%d].%s: expected %v, got %v", label, i, key, want[key], got[key]))
		}
	}
}
