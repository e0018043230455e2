package cmd

import (
	"fmt"
	"io"
	"sort"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"

	"github.com/fakeyudi/snaptrace/internal/logview"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var showState bool

var timelineCmd = &cobra.Command{
	Use:   "timeline",
	Short: "Print the change log as a timeline of classified changes",
	RunE: func(cmd *cobra.Command, args []string) error {
		parsed, err := readLog()
		if err != nil {
			return err
		}
		printTimeline(cmd.OutOrStdout(), logview.BuildTimeline(parsed.Events), showState)
		return nil
	},
}

// printTimeline writes a plain-text rendering of timeline to w.
func printTimeline(w io.Writer, timeline []logview.Entry, withState bool) {
	if len(timeline) == 0 {
		fmt.Fprintln(w, "No changes recorded.")
		return
	}
	for _, e := range timeline {
		ev := e.Event
		fmt.Fprintf(w, "#%d  %s.%s\n", e.Index+1, ev.Class, ev.Method)
		for _, name := range ev.Changes.Fields() {
			c := ev.Changes[name]
			fmt.Fprintf(w, "    %-20s %s\n", name, logview.Classify(c.Before, c.After).Summary())
		}
		if n := len(ev.Backtrace); n > 0 {
			f := ev.Backtrace[n-1]
			fmt.Fprintf(w, "    at %s (%s:%d)\n", f.Function, f.File, f.Line)
			if f.Code != "" {
				fmt.Fprintf(w, "        %s\n", f.Code)
			}
		}
		fmt.Fprintln(w)
	}
	if withState {
		printState(w, timeline[len(timeline)-1])
	}
}

func printState(w io.Writer, e logview.Entry) {
	fmt.Fprintf(w, "State after #%d\n", e.Index+1)
	for _, class := range e.StateAfter.Classes() {
		fmt.Fprintf(w, "  %s\n", class)
		fields := e.StateAfter[class]
		names := make([]string, 0, len(fields))
		for name := range fields {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			b, err := json.Marshal(fields[name])
			if err != nil {
				b = []byte(fmt.Sprint(fields[name]))
			}
			fmt.Fprintf(w, "    %s = %s\n", name, b)
		}
	}
}

func init() {
	timelineCmd.Flags().BoolVar(&showState, "state", false, "print the final state after the timeline")
	rootCmd.AddCommand(timelineCmd)
}
