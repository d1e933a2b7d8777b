package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/daisycv/visionlink/internal/app"
	"github.com/daisycv/visionlink/internal/persistence"
)

func runHistory(c *cli.Context) error {
	paths, _, err := loadSettings(c)
	if err != nil {
		return err
	}

	h, err := app.OpenHistory(c.Context, paths.DBFile)
	if err != nil {
		return fmt.Errorf("open history: %w", err)
	}
	defer func() { _ = h.Close() }()

	out := c.App.Writer
	if c.Bool(FlagClear.Name) {
		if err := h.Clear(c.Context); err != nil {
			return err
		}
		_, err := fmt.Fprintln(out, "history cleared")
		return err
	}

	limit := c.Int(FlagLimit.Name)
	if c.Bool(FlagSessions.Name) {
		sessions, err := h.RecentSessions(c.Context, limit)
		if err != nil {
			return err
		}
		return printSessions(out, sessions)
	}

	events, err := h.RecentEvents(c.Context, limit)
	if err != nil {
		return err
	}
	return printStateEvents(out, events)
}

func printStateEvents(out io.Writer, events []persistence.StateEvent) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tSTATE\tGAP\tSESSION\tERROR")
	for _, e := range events {
		gap := "-"
		if e.GapMS >= 0 {
			gap = fmt.Sprintf("%dms", e.GapMS)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(e.At), e.State, gap, shortID(e.SessionID), e.Error)
	}

	return w.Flush()
}

func printSessions(out io.Writer, sessions []persistence.Session) error {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "OPENED\tSESSION\tTARGET\tLIFETIME\tCLOSE REASON")
	for _, s := range sessions {
		lifetime := "open"
		if !s.Open() {
			lifetime = s.Duration().Round(time.Millisecond).String()
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", formatTime(s.OpenedAt), shortID(s.SessionID), s.Target, lifetime, s.CloseReason)
	}

	return w.Flush()
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05.000")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	if id == "" {
		return "-"
	}
	return id
}
