package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/meta"
	"github.com/roach88/strata/internal/ormerr"
	"github.com/roach88/strata/internal/values"
)

// PutOptions holds flags for the put command.
type PutOptions struct {
	*RootOptions
	Set   []string // path=value
	Merge bool
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &PutOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "put <class> [json]",
		Short: "Persist or merge one entity",
		Long: `Build an entity from a JSON object and/or --set flags and persist it.

Keys are attribute paths ("home.city") or relation properties. Relation
values are target ids, or lists of ids for collection relations; targets
must already exist. --set values override the JSON document.

Examples:
  strata put Person '{"id": 1, "name": "Ada", "age": 36}'
  strata put Person --set id=1 --set age=37 --merge
  strata put Author '{"id": 1, "address": 7, "books": ["isbn-1"]}'`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := ""
			if len(args) == 2 {
				doc = args[1]
			}
			return runPut(opts, args[0], doc, cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Set, "set", "s", nil, "set one value (path=value, repeatable)")
	cmd.Flags().BoolVar(&opts.Merge, "merge", false, "merge into an existing entity instead of persisting")

	return cmd
}

func runPut(opts *PutOptions, class, doc string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)
	ctx := cmd.Context()

	vals, err := PutValues(doc, opts.Set)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, err)
	}

	env, err := OpenEnv(ctx, opts.RootOptions)
	if err != nil {
		return envFailure(f, err)
	}
	defer env.Close(ctx)

	m, err := env.Catalog.Entity(class)
	if err != nil {
		return f.Fail(ExitFailure, "", ormerr.IllegalArgument(err.Error()))
	}
	entity, err := values.Build(ctx, env.Catalog, m, vals, env.Session.Find)
	if err != nil {
		return f.Fail(ExitFailure, ErrCodeInput, err)
	}

	if opts.Merge {
		err = env.Session.Merge(ctx, entity)
	} else {
		err = env.Session.Persist(ctx, entity)
	}
	if err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	f.VerboseLog("Stored %s", m.Class)

	return showEntity(f, env, m, entity)
}

// PutValues merges a JSON object with path=value overrides.
func PutValues(doc string, set []string) (map[string]any, error) {
	vals := make(map[string]any)
	if doc != "" {
		dec := json.NewDecoder(strings.NewReader(doc))
		if err := dec.Decode(&vals); err != nil {
			return nil, fmt.Errorf("invalid JSON document: %w", err)
		}
	}
	for _, s := range set {
		path, raw, ok := strings.Cut(s, "=")
		if !ok || path == "" {
			return nil, fmt.Errorf("invalid --set %q: expected path=value", s)
		}
		vals[path] = values.Parse(raw)
	}
	if len(vals) == 0 {
		return nil, fmt.Errorf("no values given")
	}
	return vals, nil
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "get <class> <id>",
		Short: "Load one entity by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := cmd.Context()
			env, err := OpenEnv(ctx, rootOpts)
			if err != nil {
				return envFailure(f, err)
			}
			defer env.Close(ctx)

			m, entity, err := findByArg(ctx, env, args[0], args[1])
			if err != nil {
				return f.Fail(ExitFailure, "", err)
			}
			return showEntity(f, env, m, entity)
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <class> <id>",
		Short: "Remove one entity by id",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd)
			ctx := cmd.Context()
			env, err := OpenEnv(ctx, rootOpts)
			if err != nil {
				return envFailure(f, err)
			}
			defer env.Close(ctx)

			m, entity, err := findByArg(ctx, env, args[0], args[1])
			if err != nil {
				return f.Fail(ExitFailure, "", err)
			}
			if err := env.Session.Remove(ctx, entity); err != nil {
				return f.Fail(ExitFailure, "", err)
			}
			if f.Format == "json" {
				return f.Success(map[string]any{"removed": m.Class, "id": args[1]})
			}
			fmt.Fprintf(f.Writer, "removed %s %s\n", m.Class, args[1])
			return nil
		},
	}
}

// findByArg loads class/id given as command-line strings. A missing entity
// is a NoResult error.
func findByArg(ctx context.Context, env *Env, class, rawID string) (*meta.EntityMetadata, any, error) {
	m, err := env.Catalog.Entity(class)
	if err != nil {
		return nil, nil, ormerr.IllegalArgument(err.Error())
	}
	id, err := values.Decode(rawID, m.ID.Kind)
	if err != nil {
		return nil, nil, ormerr.IllegalArgument(fmt.Sprintf("%s id: %v", m.Class, err))
	}
	entity, err := env.Session.Find(ctx, m, id)
	if err != nil {
		return nil, nil, err
	}
	if entity == nil {
		return nil, nil, ormerr.NoResult(m.Class)
	}
	return m, entity, nil
}

func showEntity(f *OutputFormatter, env *Env, m *meta.EntityMetadata, entity any) error {
	snap, err := values.Snapshot(env.Catalog, m, entity)
	if err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	return f.Entities([]map[string]any{snap})
}
