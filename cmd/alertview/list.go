package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/qiniu/alertview/internal/alertlist"
	"github.com/qiniu/alertview/internal/grafana"
	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var query, state string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Fetch alert rules once and print them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if state == "" {
				state = cfg.Grafana.State
			}
			client := grafana.NewClientFromConfig(&cfg.Grafana)
			st, err := fetchState(cmd.Context(), client, grafana.ListOptions{State: state}, query, time.Now)
			if err != nil {
				return err
			}
			printRules(os.Stdout, st, time.Now())
			return nil
		},
	}
	cmd.Flags().StringVarP(&query, "query", "q", "", "filter rules by name, state or info (regular expression)")
	cmd.Flags().StringVar(&state, "state", "", "only fetch rules in this state (alerting, ok, paused, pending, no_data)")
	return cmd
}

type ruleLister interface {
	ListAlertRules(ctx context.Context, opts grafana.ListOptions) ([]alertlist.RawAlertRule, error)
}

// fetchState runs one load cycle through the reducer without a store.
func fetchState(ctx context.Context, src ruleLister, opts grafana.ListOptions, query string, now func() time.Time) (alertlist.RulesState, error) {
	r := alertlist.NewReducer(now)
	st := r.Reduce(alertlist.InitialState(), alertlist.BeginLoading{})
	rules, err := src.ListAlertRules(ctx, opts)
	if err != nil {
		return st, err
	}
	st = r.Reduce(st, alertlist.RulesLoaded{Rules: rules})
	return r.Reduce(st, alertlist.SetSearchQuery{Query: query}), nil
}

func printRules(w io.Writer, st alertlist.RulesState, fetchedAt time.Time) {
	items := st.VisibleItems()
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tSTATE\tAGE\tINFO")
	for _, it := range items {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\n", it.ID, it.Name, it.StateText, it.StateAge, it.InfoText())
	}
	_ = tw.Flush()
	fmt.Fprintf(w, "\n%s of %s rules shown, fetched %s\n",
		humanize.Comma(int64(len(items))), humanize.Comma(int64(len(st.Items))), humanize.Time(fetchedAt))
}
