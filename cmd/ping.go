// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/lumidox/pkg/lumidox"
	"github.com/Thermoquad/lumidox/pkg/transport"
	"github.com/spf13/cobra"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Test the link by repeatedly requesting the firmware version",
	Long: `Send firmware version requests and wait for each reply.

The firmware request is read-only and answered in every mode, which makes
it a safe way to check a serial link or WebSocket bridge. Each reply is
shown with its round trip, followed by a loss summary.

The command fails when any request goes unanswered.`,
	Args: exactArgs(0),
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVarP(&pingCount, "count", "c", 3, "Number of requests to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between requests")
}

func runPing(cmd *cobra.Command, args []string) error {
	if pingCount <= 0 {
		return usageError{fmt.Errorf("--count must be positive")}
	}

	t, connInfo, err := OpenTransport(cmd.Context())
	if err != nil {
		return err
	}
	defer t.Close()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Connection: %s\n", connInfo)
	fmt.Fprintf(out, "Count: %d requests\n\n", pingCount)

	frame := lumidox.Encode(lumidox.NewFirmwareVersionRequest())
	stats := lumidox.NewStatistics()
	failCount := 0

	for i := 1; i <= pingCount; i++ {
		fmt.Fprintf(out, "Ping %d/%d: ", i, pingCount)

		start := time.Now()
		reply, err := t.Request(frame)
		rtt := time.Since(start)
		if err != nil {
			fmt.Fprintf(out, "FAILED: %v\n", err)
			stats.Update(rtt, err, errors.Is(err, transport.ErrTimeout), nil)
			failCount++
		} else if r, perr := lumidox.ParseResponse(reply); perr != nil {
			fmt.Fprintf(out, "MALFORMED: %v\n", perr)
			stats.Update(rtt, perr, false, nil)
			failCount++
		} else {
			fmt.Fprintf(out, "firmware %s, rtt=%v\n", lumidox.FirmwareString(int(r.Value())), rtt.Round(time.Microsecond))
			stats.Update(rtt, nil, false, nil)
		}

		if i < pingCount {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			case <-time.After(pingInterval):
			}
		}
	}

	fmt.Fprintf(out, "\n--- Ping statistics ---\n")
	fmt.Fprintf(out, "%d requests sent, %d replies received, %.0f%% loss, avg rtt=%v\n",
		pingCount, pingCount-failCount, float64(failCount)/float64(pingCount)*100,
		stats.AverageRoundTrip().Round(time.Microsecond))

	if failCount > 0 {
		return fmt.Errorf("%d of %d requests failed", failCount, pingCount)
	}
	return nil
}
