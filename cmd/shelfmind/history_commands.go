package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shelfmind/internal/domain"
	"shelfmind/internal/engine"
	"shelfmind/internal/recompute"
)

func newLogCommand(ctx *commandContext) *cobra.Command {
	var (
		rating    int
		status    string
		at        string
		pagesRead int
	)
	cmd := &cobra.Command{
		Use:   "log <book-id>",
		Short: "Record that you finished, abandoned or reread a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			in := engine.CompletionInput{
				BookID: id,
				Status: domain.CompletionStatus(strings.ToLower(strings.TrimSpace(status))),
			}
			if cmd.Flags().Changed("rating") {
				in.Rating = domain.IntPtr(rating)
			}
			if cmd.Flags().Changed("pages-read") {
				in.PagesRead = domain.IntPtr(pagesRead)
			}
			if at != "" {
				if in.At, err = parseWhen(at); err != nil {
					return err
				}
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				res, err := eng.LogCompletion(c, in)
				if err != nil {
					return err
				}
				view := completionView{
					Event:     res.Event,
					Promoted:  res.Promoted,
					Mastery:   res.Mastery,
					Readiness: newRunView(res.Readiness),
				}
				return ctx.emit(cmd, view, func() string { return renderCompletion(view) })
			})
		},
	}
	flags := cmd.Flags()
	flags.IntVarP(&rating, "rating", "r", 0, "Rating 1-5")
	flags.StringVarP(&status, "status", "s", string(domain.CompletionCompleted), "completed, dnf or rereading")
	flags.StringVar(&at, "at", "", "When it happened (RFC 3339 or YYYY-MM-DD; default now)")
	flags.IntVar(&pagesRead, "pages-read", 0, "Pages read before stopping")
	return cmd
}

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show the reading history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				events, err := eng.History(c, limit)
				if err != nil {
					return err
				}
				books, err := titles(c, eng, eventBookIDs(events))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, events, func() string { return renderHistory(events, books) })
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Show only the most recent events (0 for all)")
	return cmd
}

// parseWhen accepts RFC 3339 timestamps and bare dates in local time.
func parseWhen(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", raw, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("invalid time %q (use RFC 3339 or YYYY-MM-DD)", raw)
}

type completionView struct {
	Event     domain.CompletionEvent  `json:"event" yaml:"event"`
	Promoted  []domain.DeferredTarget `json:"promoted,omitempty" yaml:"promoted,omitempty"`
	Mastery   *domain.MasteryEntity   `json:"mastery,omitempty" yaml:"mastery,omitempty"`
	Readiness runView                 `json:"readiness" yaml:"readiness"`
}

// runView is the printable part of a readiness run.
type runView struct {
	RunID         string                `json:"run_id" yaml:"run_id"`
	Trigger       string                `json:"trigger" yaml:"trigger"`
	Evaluated     int                   `json:"evaluated" yaml:"evaluated"`
	Checkpoints   int                   `json:"checkpoints" yaml:"checkpoints"`
	Skipped       int                   `json:"skipped" yaml:"skipped"`
	Failed        int                   `json:"failed" yaml:"failed"`
	Changes       []changeView          `json:"changes,omitempty" yaml:"changes,omitempty"`
	Notifications []domain.Notification `json:"notifications,omitempty" yaml:"notifications,omitempty"`
}

type changeView struct {
	TargetID    int64               `json:"target_id" yaml:"target_id"`
	BookID      int64               `json:"book_id" yaml:"book_id"`
	Score       int                 `json:"score" yaml:"score"`
	Checkpoint  bool                `json:"checkpoint" yaml:"checkpoint"`
	From        domain.TargetStatus `json:"from" yaml:"from"`
	To          domain.TargetStatus `json:"to" yaml:"to"`
	BecameReady bool                `json:"became_ready" yaml:"became_ready"`
}

func newRunView(r recompute.Report) runView {
	view := runView{
		RunID:         r.RunID,
		Trigger:       r.Trigger,
		Evaluated:     r.Evaluated,
		Checkpoints:   r.Checkpoints,
		Skipped:       r.Skipped,
		Failed:        r.Failed,
		Notifications: r.Notifications,
	}
	for _, c := range r.Changes {
		view.Changes = append(view.Changes, changeView{
			TargetID:    c.TargetID,
			BookID:      c.BookID,
			Score:       c.Score,
			Checkpoint:  c.Checkpoint,
			From:        c.Transition.From,
			To:          c.Transition.To,
			BecameReady: c.Transition.BecameReady,
		})
	}
	return view
}

func renderCompletion(v completionView) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Logged %s for book %d (event %d)", v.Event.Status, v.Event.BookID, v.Event.ID)
	for _, t := range v.Promoted {
		fmt.Fprintf(&b, "\nPromoted target %d", t.ID)
	}
	if v.Mastery != nil {
		fmt.Fprintf(&b, "\nMastery of %s is now %d", v.Mastery.Key, v.Mastery.Mastery)
	}
	if run := renderRun(v.Readiness); run != "" {
		b.WriteString("\n\n")
		b.WriteString(run)
	}
	return b.String()
}

func renderRun(v runView) string {
	if v.RunID == "" {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Readiness run %s: %d evaluated, %d checkpoints, %d skipped, %d failed",
		v.RunID, v.Evaluated, v.Checkpoints, v.Skipped, v.Failed)
	if len(v.Changes) > 0 {
		rows := make([][]string, 0, len(v.Changes))
		for _, c := range v.Changes {
			rows = append(rows, []string{
				strconv.FormatInt(c.TargetID, 10),
				strconv.FormatInt(c.BookID, 10),
				strconv.Itoa(c.Score),
				string(c.From) + " -> " + string(c.To),
				yesNo(c.Checkpoint),
			})
		}
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Target", "Book", "Score", "Status", "Checkpoint"}, rows,
			[]columnAlignment{alignRight, alignRight, alignRight, alignLeft, alignLeft}))
	}
	for _, n := range v.Notifications {
		fmt.Fprintf(&b, "\nTarget %d is ready (score %d)", n.TargetID, n.Score)
	}
	return b.String()
}

func renderHistory(events []domain.CompletionEvent, books map[int64]string) string {
	if len(events) == 0 {
		return "No reading history yet"
	}
	rows := make([][]string, 0, len(events))
	for _, e := range events {
		rows = append(rows, []string{
			strconv.FormatInt(e.ID, 10),
			formatDate(e.At.Local()),
			books[e.BookID],
			string(e.Status),
			formatIntPtr(e.Rating),
		})
	}
	return renderTable([]string{"ID", "Date", "Book", "Status", "Rating"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight})
}

func eventBookIDs(events []domain.CompletionEvent) []int64 {
	ids := make([]int64, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.BookID)
	}
	return ids
}

// titles resolves book titles for table output.
func titles(ctx context.Context, eng *engine.Engine, ids []int64) (map[int64]string, error) {
	out := make(map[int64]string, len(ids))
	for _, id := range ids {
		if _, ok := out[id]; ok {
			continue
		}
		book, err := eng.GetBook(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = book.Title
	}
	return out, nil
}
