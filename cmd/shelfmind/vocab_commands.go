package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shelfmind/internal/domain"
	"shelfmind/internal/engine"
)

func newVocabCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vocab",
		Short: "Review vocabulary with spaced repetition",
	}
	cmd.AddCommand(newVocabAddCommand(ctx))
	cmd.AddCommand(newVocabDueCommand(ctx))
	cmd.AddCommand(newVocabReviewCommand(ctx))
	cmd.AddCommand(newVocabStatsCommand(ctx))
	return cmd
}

func newVocabAddCommand(ctx *commandContext) *cobra.Command {
	var bookID int64
	cmd := &cobra.Command{
		Use:   "add <word> <definition>",
		Short: "Add a word to the review deck",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var source *int64
			if cmd.Flags().Changed("book") {
				source = &bookID
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				item, err := eng.AddVocabulary(c, args[0], args[1], source)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, item, func() string {
					return fmt.Sprintf("Added %q as item %d, first review %s", item.Word, item.ID, formatDate(item.NextDue))
				})
			})
		},
	}
	cmd.Flags().Int64Var(&bookID, "book", 0, "Book the word came from")
	return cmd
}

func newVocabDueCommand(ctx *commandContext) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "due",
		Short: "List words due for review",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				items, err := eng.DueReviews(c, limit)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, items, func() string { return renderVocab(items) })
			})
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of words (0 for all)")
	return cmd
}

func newVocabReviewCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "review <item-id> <quality>",
		Short: "Grade a review with quality 0-5",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "vocabulary")
			if err != nil {
				return err
			}
			quality, err := strconv.Atoi(args[1])
			if err != nil {
				return domain.NewValidationError("quality", fmt.Sprintf("expected an integer 0-5, got %q", args[1]))
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				item, err := eng.SubmitReview(c, id, quality)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, item, func() string {
					return fmt.Sprintf("Next review of %q in %d days (%s)", item.Word, item.State.IntervalDays, formatDate(item.NextDue))
				})
			})
		},
	}
}

func newVocabStatsCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Summarize the review deck",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				stats, err := eng.VocabularyStats(c)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, stats, func() string {
					return renderPairs([][2]string{
						{"Words", strconv.Itoa(stats.Total)},
						{"Due", strconv.Itoa(stats.Due)},
						{"Learned", strconv.Itoa(stats.Learned)},
						{"Successful reviews", strconv.Itoa(stats.Successes)},
						{"Failed reviews", strconv.Itoa(stats.Failures)},
					})
				})
			})
		},
	}
}

func renderVocab(items []domain.VocabularyItem) string {
	if len(items) == 0 {
		return "Nothing due"
	}
	rows := make([][]string, 0, len(items))
	for _, it := range items {
		rows = append(rows, []string{
			strconv.FormatInt(it.ID, 10),
			it.Word,
			it.Definition,
			formatDate(it.NextDue),
			strconv.Itoa(it.State.Repetitions),
		})
	}
	return renderTable([]string{"ID", "Word", "Definition", "Due", "Reps"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight})
}
