package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/hugr-lab/docquery/filter"
	"github.com/hugr-lab/docquery/query"
)

type planOptions struct {
	collection string
	indexes    []string
	orderBy    []string
	limit      int
}

func newPlanCmd() *cobra.Command {
	var opts planOptions
	cmd := &cobra.Command{
		Use:   "plan [filter-json | @file | -]",
		Short: "Validate a filter and show its leaves, DNF terms, chosen indexes and DuckDB pushdown",
		Example: `  docquery plan --index 'age' --index 'city, age' \
    '{"op":"and","filters":[{"field":"city","op":"==","value":"Oslo"},{"field":"age","op":">","value":30}]}'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := readFilterArg(cmd.InOrStdin(), args)
			if err != nil {
				return err
			}
			return runPlan(cmd.OutOrStdout(), data, opts)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&opts.collection, "collection", "docs", "collection the query targets")
	flags.StringArrayVar(&opts.indexes, "index", nil, "declared index, e.g. 'city, age desc' (repeatable)")
	flags.StringArrayVar(&opts.orderBy, "order-by", nil, "orderBy clause 'field[:asc|desc]' (repeatable)")
	flags.IntVar(&opts.limit, "limit", 0, "result limit")
	return cmd
}

func readFilterArg(stdin io.Reader, args []string) ([]byte, error) {
	if len(args) == 0 {
		return nil, nil
	}
	arg := args[0]
	switch {
	case arg == "-":
		return io.ReadAll(stdin)
	case strings.HasPrefix(arg, "@"):
		return os.ReadFile(arg[1:])
	default:
		return []byte(arg), nil
	}
}

func runPlan(w io.Writer, data []byte, opts planOptions) error {
	f, err := filter.Parse(data)
	if err != nil {
		return err
	}
	q, err := query.New(opts.collection).WithFilter(f)
	if err != nil {
		return err
	}
	for _, o := range opts.orderBy {
		name, dirName, _ := strings.Cut(o, ":")
		field, err := filter.ParseFieldPath(name)
		if err != nil {
			return err
		}
		dir := query.Ascending
		if dirName != "" {
			if dir, err = query.ParseDirection(dirName); err != nil {
				return err
			}
		}
		q = q.WithOrderBy(field, dir)
	}
	q = q.WithLimit(opts.limit)
	if err := q.Validate(); err != nil {
		return err
	}

	planner := query.NewPlanner(nil)
	for _, s := range opts.indexes {
		idx, err := parseIndex(opts.collection, s)
		if err != nil {
			return err
		}
		if err := planner.AddIndex(idx); err != nil {
			return err
		}
	}
	plan := planner.Plan(q)

	fmt.Fprintf(w, "query:  %s\n", q)
	fmt.Fprintln(w, "leaves:")
	for _, leaf := range q.Filter().FlattenedFilters() {
		fmt.Fprintf(w, "  %s\n", leaf.String())
	}
	fmt.Fprintln(w, "plan:")
	for _, line := range strings.Split(plan.String(), "\n") {
		fmt.Fprintf(w, "  %s\n", line)
	}

	where := filter.NewDuckDBEncoder(nil).Encode(q.Filter())
	if where == "" {
		where = "(no pushdown)"
	}
	fmt.Fprintf(w, "sql:    %s\n", where)
	return nil
}
