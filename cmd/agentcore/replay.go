package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/skillrun/agentcore/internal/engine"
	"github.com/skillrun/agentcore/internal/wal"
)

// buildReplayCmd streams a past run's JSONL event journal to stdout,
// optionally filtered by event type and paced at real-time speed, built
// directly on wal.Replay/wal.NewReader.
func buildReplayCmd() *cobra.Command {
	var (
		realtime bool
		filter   string
		fromSeq  int
		toSeq    int
	)

	cmd := &cobra.Command{
		Use:   "replay <events.jsonl>",
		Short: "Replay a run's WAL file to stdout",
		Long: `Replay streams a WAL file's events to stdout in original order.

Use for:
  - Watching a past run unfold
  - Filtering to specific event types
  - Checking whether a run reached a terminal event`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(args[0], realtime, filter, fromSeq, toSeq)
		},
	}

	cmd.Flags().BoolVar(&realtime, "realtime", false, "Reproduce the original inter-event delays instead of instant replay")
	cmd.Flags().StringVar(&filter, "filter", "", "Only print events whose type contains this substring")
	cmd.Flags().IntVar(&fromSeq, "from", 0, "Start from this 1-indexed event sequence number")
	cmd.Flags().IntVar(&toSeq, "to", 0, "Stop at this 1-indexed event sequence number (0 = end)")

	return cmd
}

func runReplay(path string, realtime bool, filter string, fromSeq, toSeq int) error {
	speed := wal.ReplayInstant
	if realtime {
		speed = wal.ReplayRealtime
	}

	enc := json.NewEncoder(os.Stdout)
	stats, err := wal.Replay(path, func(e engine.Event) {
		if filter != "" && !strings.Contains(string(e.Type), filter) {
			return
		}
		_ = enc.Encode(e)
	}, wal.WithSpeed(speed), wal.WithSequenceRange(fromSeq, toSeq))
	if err != nil {
		return fmt.Errorf("replay %s: %w", path, err)
	}

	fmt.Fprintf(os.Stderr, "replayed %d events (%d invalid lines skipped), first=%s last=%s, valid=%v\n",
		stats.TotalEvents, stats.InvalidLines, stats.FirstType, stats.LastType, stats.Valid())
	return nil
}
