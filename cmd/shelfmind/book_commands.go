package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"shelfmind/internal/catalog"
	"shelfmind/internal/domain"
	"shelfmind/internal/engine"
	"shelfmind/internal/store"
)

type featureFlags struct {
	complexity     int
	themes         []string
	style          string
	structure      string
	cvp            float64
	energy         string
	pacing         string
	tone           string
	moodComplexity string
}

func (f *featureFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.IntVar(&f.complexity, "complexity", 0, "Complexity level 1-10")
	flags.StringSliceVar(&f.themes, "themes", nil, "Theme tags (comma separated; empty value means none)")
	flags.StringVar(&f.style, "style", "", "Writing style tag")
	flags.StringVar(&f.structure, "structure", "", "Narrative structure tag")
	flags.Float64Var(&f.cvp, "character-vs-plot", 0, "Character (-1) to plot (+1) orientation")
	flags.StringVar(&f.energy, "energy", "", "Mood energy: low, medium or high")
	flags.StringVar(&f.pacing, "pacing", "", "Mood pacing: slow, medium or fast")
	flags.StringVar(&f.tone, "tone", "", "Mood tone: dark, neutral or light")
	flags.StringVar(&f.moodComplexity, "mood-complexity", "", "Mood complexity: light, moderate or demanding")
}

// features builds features from the flags that were set. Unset flags stay
// unknown.
func (f *featureFlags) features(cmd *cobra.Command) domain.Features {
	flags := cmd.Flags()
	var out domain.Features
	if flags.Changed("complexity") {
		out.Complexity = domain.IntPtr(f.complexity)
	}
	if flags.Changed("themes") {
		out.ThemesKnown = true
		out.Themes = f.themes
	}
	out.Style = domain.WritingStyle(strings.ToLower(f.style))
	out.Structure = domain.NarrativeStructure(strings.ToLower(f.structure))
	if flags.Changed("character-vs-plot") {
		out.CharacterVsPlot = domain.FloatPtr(f.cvp)
	}
	if f.energy != "" || f.pacing != "" || f.tone != "" || f.moodComplexity != "" {
		out.Mood = &domain.Mood{
			Energy:     domain.Energy(strings.ToLower(f.energy)),
			Pacing:     domain.Pacing(strings.ToLower(f.pacing)),
			Tone:       domain.Tone(strings.ToLower(f.tone)),
			Complexity: domain.MoodComplexity(strings.ToLower(f.moodComplexity)),
		}
	}
	return out
}

func newBookCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "book",
		Short: "Manage the book catalog",
	}
	cmd.AddCommand(newBookAddCommand(ctx))
	cmd.AddCommand(newBookListCommand(ctx))
	cmd.AddCommand(newBookShowCommand(ctx))
	cmd.AddCommand(newBookFeaturesCommand(ctx))
	return cmd
}

func newBookAddCommand(ctx *commandContext) *cobra.Command {
	var (
		book  domain.Book
		pages int
		feats featureFlags
	)
	cmd := &cobra.Command{
		Use:   "add <title>",
		Short: "Add a book to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			book.Title = args[0]
			if cmd.Flags().Changed("pages") {
				book.PageCount = domain.IntPtr(pages)
			}
			book.Features = feats.features(cmd)
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				added, err := eng.AddBook(c, book)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, added, func() string { return renderBook(added) })
			})
		},
	}
	flags := cmd.Flags()
	flags.StringVarP(&book.Author, "author", "a", "", "Author name")
	flags.StringVar(&book.Genre, "genre", "", "Genre")
	flags.IntVar(&pages, "pages", 0, "Page count")
	flags.StringVar(&book.ISBN, "isbn", "", "ISBN")
	flags.StringVar(&book.ExternalID, "external-id", "", "Catalog identifier")
	flags.BoolVar(&book.Stub, "stub", false, "Record a placeholder with unknown metadata")
	feats.register(cmd)
	return cmd
}

func newBookListCommand(ctx *commandContext) *cobra.Command {
	var filter store.BookFilter
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog books",
		RunE: func(cmd *cobra.Command, args []string) error {
			filter.IncludeStubs = true
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				books, err := eng.ListBooks(c, filter)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, books, func() string { return renderBooks(books) })
			})
		},
	}
	cmd.Flags().BoolVar(&filter.MissingFeatures, "missing-features", false, "Only books that were never enriched")
	cmd.Flags().Uint64Var(&filter.Limit, "limit", 0, "Maximum number of books")
	return cmd
}

func newBookShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <book-id>",
		Short: "Show one book with its features",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				book, err := eng.GetBook(c, id)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, book, func() string { return renderBook(book) })
			})
		},
	}
}

func newBookFeaturesCommand(ctx *commandContext) *cobra.Command {
	var feats featureFlags
	cmd := &cobra.Command{
		Use:   "features <book-id>",
		Short: "Replace a book's features by hand",
		Long:  "Replace a book's features as a whole. Features not given on the command line become unknown.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				book, err := eng.SetFeatures(c, id, feats.features(cmd))
				if err != nil {
					return err
				}
				return ctx.emit(cmd, book, func() string { return renderBook(book) })
			})
		},
	}
	feats.register(cmd)
	return cmd
}

func newEvaluateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate <book-id>",
		Short: "Score how ready you are for a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				res, err := eng.Evaluate(c, id)
				if err != nil {
					return err
				}
				return ctx.emit(cmd, res, func() string { return renderScore(res) })
			})
		},
	}
}

func newExplainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "explain <book-id>",
		Short: "Score a book and describe the result in prose",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0], "book")
			if err != nil {
				return err
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				ex, err := eng.Explain(c, id)
				if err != nil {
					return err
				}
				view := struct {
					BookID int64              `json:"book_id" yaml:"book_id"`
					Title  string             `json:"title" yaml:"title"`
					Result domain.ScoreResult `json:"result" yaml:"result"`
					Text   string             `json:"text" yaml:"text"`
				}{ex.Book.ID, ex.Book.Title, ex.Result, ex.Text}
				return ctx.emit(cmd, view, func() string {
					out := renderScore(ex.Result)
					if ex.Text != "" {
						out += "\n\n" + ex.Text
					}
					return out
				})
			})
		},
	}
}

func newEnrichCommand(ctx *commandContext) *cobra.Command {
	var all, refresh bool
	cmd := &cobra.Command{
		Use:   "enrich [book-id]",
		Short: "Fetch book features from the configured catalog",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass a book id or --all")
			}
			return ctx.withEngine(cmd, func(c context.Context, eng *engine.Engine) error {
				var outcomes []catalog.Outcome
				if all {
					var err error
					if outcomes, err = eng.EnrichAll(c, refresh); err != nil {
						return err
					}
				} else {
					id, err := parseID(args[0], "book")
					if err != nil {
						return err
					}
					out, err := eng.Enrich(c, id)
					if err != nil {
						return err
					}
					outcomes = []catalog.Outcome{out}
				}
				return ctx.emit(cmd, outcomeViews(outcomes), func() string { return renderOutcomes(outcomes) })
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Enrich every book without features")
	cmd.Flags().BoolVar(&refresh, "refresh", false, "With --all, re-enrich books that already have features")
	return cmd
}

type outcomeView struct {
	BookID     int64   `json:"book_id" yaml:"book_id"`
	Title      string  `json:"title" yaml:"title"`
	Known      bool    `json:"known" yaml:"known"`
	Cached     bool    `json:"cached" yaml:"cached"`
	Confidence float64 `json:"confidence" yaml:"confidence"`
	Error      string  `json:"error,omitempty" yaml:"error,omitempty"`
}

func outcomeViews(outcomes []catalog.Outcome) []outcomeView {
	views := make([]outcomeView, len(outcomes))
	for i, o := range outcomes {
		views[i] = outcomeView{BookID: o.BookID, Title: o.Title, Known: o.Known, Cached: o.Cached, Confidence: o.Confidence}
		if o.Err != nil {
			views[i].Error = o.Err.Error()
		}
	}
	return views
}

func renderOutcomes(outcomes []catalog.Outcome) string {
	rows := make([][]string, 0, len(outcomes))
	for _, o := range outcomes {
		result := "unknown"
		switch {
		case o.Err != nil:
			result = "unavailable"
		case o.Known:
			result = "enriched"
		}
		rows = append(rows, []string{
			strconv.FormatInt(o.BookID, 10),
			o.Title,
			result,
			yesNo(o.Cached),
			strconv.FormatFloat(o.Confidence, 'f', 2, 64),
		})
	}
	return renderTable([]string{"ID", "Title", "Result", "Cached", "Confidence"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignRight})
}

func renderBooks(books []domain.Book) string {
	if len(books) == 0 {
		return "No books in the catalog"
	}
	rows := make([][]string, 0, len(books))
	for _, b := range books {
		rows = append(rows, []string{
			strconv.FormatInt(b.ID, 10),
			b.Title,
			b.Author,
			formatIntPtr(b.PageCount),
			formatIntPtr(b.Features.Complexity),
			yesNo(!b.Features.IsUnknown()),
		})
	}
	return renderTable([]string{"ID", "Title", "Author", "Pages", "Complexity", "Features"}, rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignLeft})
}

func renderBook(b domain.Book) string {
	f := b.Features
	themes := "-"
	if f.ThemesKnown {
		themes = formatList(f.Themes)
		if len(f.Themes) == 0 {
			themes = "none"
		}
	}
	mood := "-"
	if f.Mood != nil {
		mood = fmt.Sprintf("energy=%s pacing=%s tone=%s complexity=%s", f.Mood.Energy, f.Mood.Pacing, f.Mood.Tone, f.Mood.Complexity)
	}
	pairs := [][2]string{
		{"ID", strconv.FormatInt(b.ID, 10)},
		{"Title", b.Title},
		{"Author", b.Author},
		{"Genre", b.Genre},
		{"Pages", formatIntPtr(b.PageCount)},
		{"ISBN", b.ISBN},
		{"Stub", yesNo(b.Stub)},
		{"Complexity", formatIntPtr(f.Complexity)},
		{"Themes", themes},
		{"Style", string(f.Style)},
		{"Structure", string(f.Structure)},
		{"Character vs plot", formatFloatPtr(f.CharacterVsPlot, 2)},
		{"Mood", mood},
		{"Confidence", strconv.FormatFloat(f.Confidence, 'f', 2, 64)},
	}
	return renderPairs(pairs)
}

func renderScore(res domain.ScoreResult) string {
	gaps := make([]string, len(res.Gaps))
	for i, g := range res.Gaps {
		gaps[i] = string(g)
	}
	strengths := make([]string, len(res.Strengths))
	for i, s := range res.Strengths {
		strengths[i] = string(s)
	}
	return renderPairs([][2]string{
		{"Readiness", strconv.Itoa(res.Score)},
		{"Recommendation", string(res.Recommendation)},
		{"Complexity match", strconv.Itoa(res.Factors.ComplexityMatch)},
		{"Interest alignment", strconv.Itoa(res.Factors.InterestAlignment)},
		{"Completion likelihood", strconv.Itoa(res.Factors.CompletionLikelihood)},
		{"Enjoyment potential", strconv.Itoa(res.Factors.EnjoymentPotential)},
		{"Growth opportunity", strconv.Itoa(res.Factors.GrowthOpportunity)},
		{"Gaps", formatList(gaps)},
		{"Strengths", formatList(strengths)},
	})
}
