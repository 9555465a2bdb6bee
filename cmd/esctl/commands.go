package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/example/scorekeeper-events/internal/eventsourcing"
	"github.com/example/scorekeeper-events/internal/infrastructure/store"
)

var (
	rebuildToVersion  int
	rebuildNoSnapshot bool
	rebuildJSON       bool

	snapshotForce bool

	migrateFrom int
	migrateTo   int

	eventsFrom  int
	eventsType  string
	eventsLimit int
)

var errCommandFailed = errors.New("command failed")

var validateCmd = &cobra.Command{
	Use:   "validate <aggregate-type> <stream-id>",
	Short: "Check a stream for version gaps, ordering and payload problems",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		report := rt.Service.ValidateEventStreamConsistency(cmd.Context(), args[1], args[0])

		fmt.Printf("stream %s: %d events\n", args[1], report.TotalEvents)
		if report.Valid {
			fmt.Println("consistent")
			return nil
		}
		for _, issue := range report.ConsistencyIssues {
			fmt.Printf("  - %s\n", issue)
		}
		return fmt.Errorf("%w: %d issues", errCommandFailed, len(report.ConsistencyIssues))
	},
}

var rebuildCmd = &cobra.Command{
	Use:   "rebuild <aggregate-type> <stream-id>",
	Short: "Reconstruct an aggregate and print its state",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		res, err := rt.Service.ReconstructAggregate(cmd.Context(), eventsourcing.ReconstructRequest{
			StreamID:      args[1],
			AggregateType: args[0],
			ToVersion:     rebuildToVersion,
			UseSnapshot:   !rebuildNoSnapshot,
		})
		if err != nil {
			return err
		}
		if !res.Success {
			return fmt.Errorf("%w: %s", errCommandFailed, strings.Join(res.Errors, "; "))
		}

		if rebuildJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(map[string]any{
				"result": res,
				"state":  res.Aggregate.GetState(),
			})
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Stream:\t%s\n", res.StreamID)
		fmt.Fprintf(w, "Type:\t%s\n", res.AggregateType)
		fmt.Fprintf(w, "Version:\t%d\n", res.CurrentVersion)
		fmt.Fprintf(w, "Events applied:\t%d\n", res.EventsApplied)
		fmt.Fprintf(w, "Snapshot used:\t%t\n", res.SnapshotUsed)
		fmt.Fprintf(w, "Took:\t%s\n", res.ReconstructionTime)
		if err := w.Flush(); err != nil {
			return err
		}
		state, err := json.MarshalIndent(res.Aggregate.GetState(), "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(state))
		return nil
	},
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot <aggregate-type> <stream-id>",
	Short: "Snapshot an aggregate when the frequency policy allows it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if snapshotForce {
			snap, err := rt.Service.CreateSnapshot(cmd.Context(), args[1], args[0])
			if err != nil {
				return err
			}
			fmt.Printf("snapshot of %s taken at version %d\n", snap.AggregateID, snap.Version)
			return nil
		}

		created, err := rt.Service.SnapshotStream(cmd.Context(), args[1], args[0])
		if err != nil {
			return err
		}
		if created {
			fmt.Println("snapshot taken")
		} else {
			fmt.Printf("fewer than %d events since the last snapshot; use --force to snapshot anyway\n", rt.Snapshots.Frequency())
		}
		return nil
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Move events from one payload schema version to another",
	RunE: func(cmd *cobra.Command, args []string) error {
		res := rt.Service.MigrateEvents(cmd.Context(), migrateFrom, migrateTo)
		if res.MigrationSkipped {
			fmt.Printf("no events at schema version %d\n", migrateFrom)
			return nil
		}
		fmt.Printf("%d events migrated from v%d to v%d\n", res.EventsMigrated, migrateFrom, migrateTo)
		for _, e := range res.Errors {
			fmt.Printf("  - %s\n", e)
		}
		if !res.Success {
			return fmt.Errorf("%w: %d events failed", errCommandFailed, len(res.Errors))
		}
		return nil
	},
}

var eventsCmd = &cobra.Command{
	Use:   "events [stream-id]",
	Short: "List the events of a stream, or of one event type with --type",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var res eventsourcing.StreamResult
		switch {
		case len(args) == 1:
			res = rt.Service.LoadEventStream(cmd.Context(), args[0], "", eventsFrom)
		case eventsType != "":
			res = rt.Service.GetEventsByType(cmd.Context(), eventsType, eventsLimit)
		default:
			return errors.New("a stream id or --type is required")
		}
		if !res.Success {
			return fmt.Errorf("%w: %s", errCommandFailed, res.Error)
		}
		return printEvents(res.Events)
	},
}

var typesCmd = &cobra.Command{
	Use:   "types",
	Short: "List the aggregate types that can be reconstructed",
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, t := range rt.Registry.Types() {
			fmt.Println(t)
		}
		return nil
	},
}

func printEvents(events []store.Event) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tTYPE\tSCHEMA\tSTREAM\tTIME\tID")
	for _, e := range events {
		fmt.Fprintf(w, "%d\t%s\tv%d\t%s\t%s\t%s\n",
			e.StreamVersion, e.EventType, e.EventVersion, e.StreamID, e.Timestamp.Format(time.RFC3339), e.EventID)
	}
	return w.Flush()
}

func init() {
	rebuildCmd.Flags().IntVar(&rebuildToVersion, "to-version", 0, "stop at this stream version (0 = latest)")
	rebuildCmd.Flags().BoolVar(&rebuildNoSnapshot, "no-snapshot", false, "replay from the first event")
	rebuildCmd.Flags().BoolVar(&rebuildJSON, "json", false, "print the result as JSON")

	snapshotCmd.Flags().BoolVar(&snapshotForce, "force", false, "ignore the snapshot frequency")

	migrateCmd.Flags().IntVar(&migrateFrom, "from", 1, "source schema version")
	migrateCmd.Flags().IntVar(&migrateTo, "to", 2, "target schema version")

	eventsCmd.Flags().IntVar(&eventsFrom, "from-version", 0, "only events after this stream version")
	eventsCmd.Flags().StringVar(&eventsType, "type", "", "list events of this type across streams")
	eventsCmd.Flags().IntVar(&eventsLimit, "limit", 50, "maximum events listed with --type")
}
