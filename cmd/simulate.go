/*
Copyright © 2025 Mathias Djärv <mathias.djarv@allbinary.se>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/allbin/go-cellport/internal/tui/colors"
	"github.com/allbin/go-cellport/internal/tui/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// ErrDataLost is returned by simulate --fail-on-loss when a ring overflowed.
var ErrDataLost = errors.New("receive data lost")

// simulateCmd represents the simulate command
var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run simulated modems against the transport and report statistics",
	Long: `Run the same simulated board as monitor without a UI, for a fixed time,
then print per-port statistics.

Use it to check that a buffer size, threshold and reader cadence keep up with
a modem's output without losing data:

  cellport simulate --rate 46080 --rx-buffer 2048 --rts-threshold 512 \
      --read-interval 20ms --duration 5s --fail-on-loss

Set --obey-rts=false to model a modem that ignores RTS and see the overflow.`,
	Args: cobra.NoArgs,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		for _, key := range []string{"ports", "rate", "read-interval", "read-size", "duration", "obey-rts", "fail-on-loss"} {
			if err := viper.BindPFlag("simulate."+key, cmd.Flags().Lookup(key)); err != nil {
				return err
			}
		}
		return bindLineFlags(cmd)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		settings := currentLineSettings()
		settings.Flow = "rtscts"

		b, err := newBench(settings, monitorOptions{
			ports:        viper.GetInt("simulate.ports"),
			readInterval: viper.GetDuration("simulate.read-interval"),
			readSize:     viper.GetInt("simulate.read-size"),
		})
		if err != nil {
			return err
		}
		defer b.Close()
		for _, m := range b.modems {
			m.obeyRTS.Store(viper.GetBool("simulate.obey-rts"))
		}

		duration := viper.GetDuration("simulate.duration")
		rate := viper.GetInt("simulate.rate")
		fmt.Printf("%s %d port(s), modem %d B/s, reader every %v, for %v\n",
			styles.InfoStyle.Render("⚡"), len(b.ports), rate, b.interval.Load(), duration)

		ctx, cancel := context.WithTimeout(cmd.Context(), duration)
		defer cancel()
		if err := b.Run(ctx, rate); err != nil {
			return err
		}

		report := simulationReport(b)
		fmt.Println(report)

		if viper.GetBool("simulate.fail-on-loss") {
			for i, s := range b.Stats() {
				if s.Dropped > 0 {
					return fmt.Errorf("uart %d: %d bytes: %w", b.ids[i], s.Dropped, ErrDataLost)
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	addLineFlags(simulateCmd)
	simulateCmd.Flags().IntP("ports", "n", 1, "Number of simulated ports")
	simulateCmd.Flags().IntP("rate", "r", 11520, "Modem output per port in bytes per second")
	simulateCmd.Flags().Duration("read-interval", 50*time.Millisecond, "How often each reader drains its port")
	simulateCmd.Flags().Int("read-size", 256, "Bytes each reader takes per read")
	simulateCmd.Flags().DurationP("duration", "d", 3*time.Second, "How long to run")
	simulateCmd.Flags().Bool("obey-rts", true, "Modem stops sending while RTS is low")
	simulateCmd.Flags().Bool("fail-on-loss", false, "Exit with an error if any byte was dropped")
}

func simulationReport(b *bench) string {
	stats := b.Stats()
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colors.Surface2)).
		Headers("UART", "Sent", "Received", "Read", "Lost", "Peak", "RTS flips", "Held ticks", "Events", "Dropped events").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return lipgloss.NewStyle().Foreground(colors.Mauve).Bold(true).Padding(0, 1)
			}
			style := lipgloss.NewStyle().Padding(0, 1).Align(lipgloss.Right)
			if col == 4 && row < len(stats) && stats[row].Dropped > 0 {
				style = style.Foreground(colors.Red).Bold(true)
			}
			return style
		})

	for i, s := range stats {
		t.Row(
			strconv.Itoa(b.ids[i]),
			strconv.FormatInt(b.modems[i].sent.Load(), 10),
			strconv.FormatInt(s.Received, 10),
			strconv.FormatInt(s.Read, 10),
			strconv.FormatInt(s.Dropped, 10),
			fmt.Sprintf("%d/%d", s.HighWater, b.ports[i].Config().RxBufferSize),
			strconv.FormatInt(s.RTSTransitions, 10),
			strconv.FormatInt(b.modems[i].held.Load(), 10),
			strconv.FormatInt(s.EventsPosted, 10),
			strconv.FormatInt(s.EventsDropped, 10),
		)
	}
	return t.Render()
}
