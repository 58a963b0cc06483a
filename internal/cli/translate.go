package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/queryir"
	"github.com/roach88/strata/internal/querysearch"
	"github.com/roach88/strata/internal/querysql"
)

// TranslateOptions holds flags for the translate command.
type TranslateOptions struct {
	*RootOptions
	Params []string
	Limit  int
}

// Translation is the output of translate: the parsed query and what each
// backend path would run for it.
type Translation struct {
	Entity  string   `json:"entity"`
	Kind    string   `json:"kind"`
	Filter  string   `json:"filter,omitempty"`
	SQL     string   `json:"sql,omitempty"`
	Columns []string `json:"columns,omitempty"`
	Args    []any    `json:"args,omitempty"`
	Search  string   `json:"search,omitempty"`
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TranslateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "translate <query>",
		Short: "Show the SQL and search query a query compiles to",
		Long: `Parse a query against the catalog, bind its parameters and print the
SQL statement of the column store and the search index query string.
No backend is opened.

Examples:
  strata translate "SELECT p FROM Person p WHERE p.age >= :min" --param min=30
  strata translate "SELECT c FROM Contact c WHERE c.name = 'Ada'" --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Params, "param", "p", nil, "bind a parameter (name=value, repeatable)")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "row limit for the SQL statement")

	return cmd
}

func runTranslate(opts *TranslateOptions, raw string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd)

	params, err := ParseParams(opts.Params)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeInput, err)
	}
	cfg, err := LoadEnvConfig(opts.RootOptions)
	if err != nil {
		return envFailure(f, err)
	}
	loaded, err := LoadCatalog(cfg.Catalog)
	if err != nil {
		return envFailure(f, err)
	}

	q, err := queryir.Parse(raw)
	if err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	m, err := loaded.Catalog.Entity(q.Entity)
	if err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	if err := queryir.Validate(q, m); err != nil {
		return f.Fail(ExitFailure, "", err)
	}
	for name, v := range params {
		p := queryir.Named(name)
		if pos, err := strconv.Atoi(name); err == nil {
			p = queryir.Positional(pos)
		}
		if err := q.Bind(p, v); err != nil {
			return f.Fail(ExitFailure, "", err)
		}
	}
	resolved, err := q.Resolve()
	if err != nil {
		return f.Fail(ExitFailure, "", err)
	}

	t := Translation{Entity: m.Class, Kind: resolved.Kind.String()}
	if len(resolved.Filters) > 0 {
		t.Filter = describeFilters(resolved.Filters)
	}
	if !resolved.Native {
		sql, cols, args, err := querysql.NewSQLCompiler().Select(m, resolved.Columns, resolved.Filters, opts.Limit)
		if err != nil {
			return f.Fail(ExitFailure, "", err)
		}
		t.SQL, t.Columns, t.Args = sql, cols, args
		if len(resolved.Filters) > 0 {
			search, err := querysearch.ToSearchQuery(resolved.Filters, m)
			if err != nil {
				f.VerboseLog("no search form: %v", err)
			} else {
				t.Search = search
			}
		}
	}

	if f.Format == "json" {
		return f.Success(t)
	}
	w := f.Writer
	fmt.Fprintf(w, "entity: %s\n", t.Entity)
	fmt.Fprintf(w, "kind:   %s\n", t.Kind)
	if t.Filter != "" {
		fmt.Fprintf(w, "filter: %s\n", t.Filter)
	}
	if t.SQL != "" {
		fmt.Fprintf(w, "sql:    %s\n", t.SQL)
		if len(t.Args) > 0 {
			fmt.Fprintf(w, "args:   %v\n", t.Args)
		}
	}
	if t.Search != "" {
		fmt.Fprintf(w, "search: %s\n", t.Search)
	}
	return nil
}

func describeFilters(elements []queryir.Element) string {
	var out string
	for i, el := range elements {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprint(el)
	}
	return out
}
