package cmd

import (
	"context"
	"fmt"
	"os"

	"split-harness-go/cache"
	"split-harness-go/config"
	"split-harness-go/exec"
	"split-harness-go/harness"
	"split-harness-go/plan"
	"split-harness-go/storage"

	"github.com/apache/arrow/go/v17/arrow"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	queryTable    string
	queryFilter   string
	queryLimit    uint64
	queryColumns  []string
	queryExpected string
	querySortKeys []int
	queryOrdered  bool
)

var (
	pass = color.New(color.FgGreen, color.Bold)
	fail = color.New(color.FgRed, color.Bold)
	dim  = color.New(color.FgCyan)
)

// inferSchema opens the first object to learn the column layout of the scan.
func inferSchema(ctx context.Context, store storage.Store, key string) (*arrow.Schema, error) {
	op, err := exec.NewFileSplit(store, key).Open(ctx, exec.SplitContext{
		Backend:   cache.Passthrough(),
		BatchSize: uint16(config.GetConfig().Cursor.BatchSize),
	})
	if err != nil {
		return nil, err
	}
	defer op.Close()
	return op.Schema(), nil
}

func fileSplits(store storage.Store, keys []string) []exec.Split {
	out := make([]exec.Split, len(keys))
	for i, key := range keys {
		out[i] = exec.NewSplit(exec.NewFileSplit(store, key))
	}
	return out
}

func buildScan(ctx context.Context, store storage.Store, keys []string) (*plan.Builder, error) {
	schema, err := inferSchema(ctx, store, keys[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read schema of %s: %w", keys[0], err)
	}
	return plan.NewBuilder(nil).TableScan(queryTable, schema), nil
}

func runQuery(ctx context.Context, keys []string) error {
	cfg := config.GetConfig()
	store, err := storage.FromConfig(cfg)
	if err != nil {
		return err
	}
	b, err := buildScan(ctx, store, keys)
	if err != nil {
		return err
	}
	scan := b.Node()
	if queryFilter != "" {
		b = b.Filter(queryFilter)
	}
	if len(queryColumns) > 0 {
		b = b.Project(queryColumns...)
	}
	if queryLimit > 0 {
		b = b.Limit(queryLimit)
	}
	root, err := b.Plan()
	if err != nil {
		return err
	}
	dim.Fprintf(os.Stderr, "plan: %s\n", root)

	h := harness.New(cache.NewProvider())
	if err := h.SetUp(ctx); err != nil {
		return err
	}
	defer h.TearDown()

	splits := fileSplits(store, keys)
	if queryExpected == "" {
		result, err := h.GetResultsWithSplits(ctx, root, splits)
		if err != nil {
			return err
		}
		defer result.Release()
		fmt.Print(result.PrettyPrint())
		dim.Fprintf(os.Stderr, "%d rows\n", result.NumRows())
		return nil
	}

	input, err := h.GetResultsWithSplits(ctx, scan, splits)
	if err != nil {
		return err
	}
	defer input.Release()
	if err := h.CreateTable(ctx, queryTable, input); err != nil {
		return err
	}
	keysArg := querySortKeys
	if !queryOrdered && keysArg == nil {
		keysArg = []int{}
	}
	if _, err := h.AssertQuery(ctx, root, splits, queryExpected, keysArg); err != nil {
		fail.Fprintln(os.Stderr, "FAIL")
		return err
	}
	pass.Fprintln(os.Stderr, "PASS")
	return nil
}

var queryCmd = &cobra.Command{
	Use:   "query [keys...]",
	Short: "Scan, filter and limit objects from the configured store",
	Args:  cobra.MinimumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if err := runQuery(cmd.Context(), args); err != nil {
			bailf("query failed: %s", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(queryCmd)
	queryCmd.Flags().StringVarP(&queryTable, "table", "t", "t", "table name used by the reference query")
	queryCmd.Flags().StringVarP(&queryFilter, "filter", "f", "", "filter predicate, e.g. \"id > 2\"")
	queryCmd.Flags().Uint64VarP(&queryLimit, "limit", "l", 0, "maximum rows to return")
	queryCmd.Flags().StringSliceVarP(&queryColumns, "columns", "", nil, "columns to project")
	queryCmd.Flags().StringVarP(&queryExpected, "expect", "e", "", "reference SQL to check the result against")
	queryCmd.Flags().IntSliceVarP(&querySortKeys, "sort-keys", "", nil, "column positions to sort both results by before comparing")
	queryCmd.Flags().BoolVarP(&queryOrdered, "ordered", "", false, "require the reference row order")
}
