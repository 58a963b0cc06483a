package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/query"
	"github.com/roach88/strata/internal/values"
)

// QueryOptions holds flags for the query command.
type QueryOptions struct {
	*RootOptions
	Params    []string // name=value or N=value
	Max       int
	FetchSize int
	Search    bool
	Single    bool
	Update    bool
}

// NewQueryCommand creates the query command.
func NewQueryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &QueryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "query <query>",
		Short: "Run a query against the configured backends",
		Long: `Run a SELECT, UPDATE or DELETE query and print the matching entities.

Parameters are bound with --param; integer names bind positional
parameters (?1), other names bind named ones (:min). Values that parse
as integers, floats or booleans are passed as such.

Exit codes:
  0 - Query succeeded
  1 - Query failed (NO_RESULT, NON_UNIQUE_RESULT, QUERY_HANDLER, ...)
  2 - Command error (config, catalog, backend)

Examples:
  strata query "SELECT p FROM Person p WHERE p.age >= :min" --param min=30
  strata query "SELECT p FROM Person p WHERE p.name = ?1" --param 1=Ada --single
  strata query "UPDATE Person p SET p.age = 37 WHERE p.name = 'Ada'" --update
  strata query "SELECT c FROM Contact c WHERE c.name LIKE 'A%'" --search`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "bind a parameter (name=value, repeatable)")
	cmd.Flags().IntVar(&opts.Max, "max", 0, "maximum number of results (default from config)")
	cmd.Flags().IntVar(&opts.FetchSize, "fetch-size", 0, "load entities in batches of this size")
	cmd.Flags().BoolVar(&opts.Search, "search", false, "resolve the filter through the search index")
	cmd.Flags().BoolVar(&opts.Single, "single", false, "expect exactly one result")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "execute as UPDATE/DELETE and print the affected count")
	cmd.MarkFlagsMutuallyExclusive("single", "update")

	return cmd
}

func runQuery(opts *QueryOptions, raw string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	params, err := ParseParams(opts.Params)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, err)
	}

	env, err := OpenEnv(ctx, opts.RootOptions)
	if err != nil {
		return envFailure(f, err)
	}
	defer env.Close(ctx)

	limit := opts.Max
	if limit == 0 {
		limit = env.Config.Query.MaxResults
	}
	qopts := []query.Option{query.WithLogger(env.Logger)}
	if limit > 0 {
		qopts = append(qopts, query.WithMaxResults(limit))
	}
	q, err := query.New(raw, nil, env.Session, qopts...)
	if err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	if opts.Search {
		q.SetHint(query.HintSearch, true)
	}
	if opts.FetchSize > 0 {
		q.SetFetchSize(opts.FetchSize)
	}
	if err := BindParams(q, params); err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	f.VerboseLog("Query on %s (max %d)", q.Entity().Class, q.MaxResults())

	switch {
	case opts.Update:
		n, err := q.ExecuteUpdate(ctx)
		if err != nil {
			return f.Fail(ExitFailure, "", err)
		}
		if f.Format == "json" {
			return f.Success(map[string]any{"affected": n})
		}
		fmt.Fprintf(f.Writer, "%d entities affected\n", n)
		return nil

	case opts.Single:
		one, err := q.GetSingleResult(ctx)
		if err != nil {
			return f.Fail(ExitFailure, "", err)
		}
		return writeEntities(f, env, []any{one})

	default:
		found, err := q.GetResultList(ctx)
		if err != nil {
			return f.Fail(ExitFailure, "", err)
		}
		return writeEntities(f, env, found)
	}
}

func writeEntities(f *OutputFormatter, env *Env, found []any) error {
	snaps := make([]map[string]any, 0, len(found))
	for _, e := range found {
		m, err := env.Session.Metadata(e)
		if err != nil {
			return f.Fail(ExitFailure, "", err)
		}
		snap, err := values.Snapshot(env.Catalog, m, e)
		if err != nil {
			return f.Fail(ExitFailure, "", err)
		}
		snaps = append(snaps, snap)
	}
	return f.Entities(snaps)
}

// ParseParams splits name=value flags. Values go through values.Parse.
func ParseParams(flags []string) (map[string]any, error) {
	out := make(map[string]any, len(flags))
	for _, fl := range flags {
		name, raw, ok := strings.Cut(fl, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", fl)
		}
		out[name] = values.Parse(raw)
	}
	return out, nil
}

// BindParams binds named parameters, and positional ones for integer names.
func BindParams(q *query.Query, params map[string]any) error {
	for name, value := range params {
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
