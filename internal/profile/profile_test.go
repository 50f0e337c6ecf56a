package profile_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shelfmind/internal/domain"
	"shelfmind/internal/profile"
	"shelfmind/internal/store"
	"shelfmind/internal/testsupport"
)

var t0 = testsupport.Epoch

func completed(id int64, at time.Time, rating int, opts ...func(*profile.Entry)) profile.Entry {
	e := profile.Entry{EventID: id, BookID: id, At: at, Status: domain.CompletionCompleted, Rating: domain.IntPtr(rating)}
	for _, opt := range opts {
		opt(&e)
	}
	return e
}

func withComplexity(c int) func(*profile.Entry) {
	return func(e *profile.Entry) { e.Complexity = domain.IntPtr(c) }
}

func withPages(p int) func(*profile.Entry) {
	return func(e *profile.Entry) { e.Pages = domain.IntPtr(p) }
}

func withThemes(themes ...string) func(*profile.Entry) {
	return func(e *profile.Entry) {
		e.ThemesKnown = true
		e.Themes = themes
	}
}

func withStyle(s domain.WritingStyle) func(*profile.Entry) {
	return func(e *profile.Entry) { e.Style = s }
}

func withCVP(v float64) func(*profile.Entry) {
	return func(e *profile.Entry) { e.CVP = domain.FloatPtr(v) }
}

func sampleHistory() []profile.Entry {
	styles := []domain.WritingStyle{domain.StyleLyrical, domain.StyleSparse, domain.StyleDense}
	themes := [][]string{{"family", "identity"}, {"war"}, {"family", "grief"}, {}}
	var out []profile.Entry
	for i := 0; i < 30; i++ {
		at := t0.Add(time.Duration(i) * 36 * time.Hour)
		id := int64(i + 1)
		switch {
		case i%7 == 3:
			out = append(out, profile.Entry{EventID: id, BookID: id, At: at, Status: domain.CompletionDNF, Complexity: domain.IntPtr(8)})
		case i%11 == 5:
			out = append(out, profile.Entry{EventID: id, BookID: id, At: at, Status: domain.CompletionRereading, Rating: domain.IntPtr(5)})
		default:
			out = append(out, completed(id, at, 1+i%5,
				withComplexity(1+i%10),
				withPages(150+37*i),
				withThemes(themes[i%len(themes)]...),
				withStyle(styles[i%len(styles)]),
				withCVP(float64(i%5-2)/2),
			))
		}
	}
	return out
}

func TestBuildIsDeterministicAndIncremental(t *testing.T) {
	opts := profile.DefaultOptions()
	history := sampleHistory()

	for n := 0; n < len(history); n++ {
		prefix := history[:n]
		full := profile.Build(append(append([]profile.Entry{}, prefix...), history[n]), opts)
		folded := profile.Fold(profile.Build(prefix, opts), history[n], opts)
		require.Equal(t, profile.Derive(full, opts), profile.Derive(folded, opts), "prefix %d", n)

		a, err := profile.Encode(full)
		require.NoError(t, err)
		b, err := profile.Encode(profile.Build(history[:n+1], opts))
		require.NoError(t, err)
		require.Equal(t, string(a), string(b))
	}
}

func TestSnapshotRoundTripPreservesProfile(t *testing.T) {
	opts := profile.DefaultOptions()
	state := profile.Build(sampleHistory(), opts)

	payload, err := profile.Encode(state)
	require.NoError(t, err)
	decoded, err := profile.Decode(payload)
	require.NoError(t, err)

	assert.Equal(t, profile.Derive(state, opts), profile.Derive(decoded, opts))
	extra := completed(99, t0.AddDate(1, 0, 0), 4, withComplexity(6), withPages(410))
	assert.Equal(t,
		profile.Derive(profile.Fold(state, extra, opts), opts),
		profile.Derive(profile.Fold(decoded, extra, opts), opts))
}

func TestCompletionRate(t *testing.T) {
	opts := profile.DefaultOptions()

	empty := profile.Derive(profile.Empty(), opts)
	assert.Nil(t, empty.CompletionRate)
	assert.InDelta(t, 0.8, empty.CompletionRateOr(0.8), 1e-9)

	state := profile.Build([]profile.Entry{
		completed(1, t0, 4),
		completed(2, t0.Add(time.Hour), 5),
		{EventID: 3, At: t0.Add(2 * time.Hour), Status: domain.CompletionDNF},
		{EventID: 4, At: t0.Add(3 * time.Hour), Status: domain.CompletionRereading},
		completed(5, t0.Add(4*time.Hour), 3),
	}, opts)
	p := profile.Derive(state, opts)
	require.NotNil(t, p.CompletionRate)
	assert.InDelta(t, 0.75, *p.CompletionRate, 1e-9)
	assert.Equal(t, 5, p.EventCount)
	assert.Equal(t, int64(5), p.LastEventID)
}

func TestComplexityComfortNeedsWeight(t *testing.T) {
	opts := profile.DefaultOptions()

	one := profile.Derive(profile.Build([]profile.Entry{completed(1, t0, 5, withComplexity(8))}, opts), opts)
	assert.Nil(t, one.ComplexityComfort, "a single rating-5 event carries weight 5, which does not exceed the minimum")
	assert.InDelta(t, domain.DefaultComplexityComfort, one.Comfort(), 1e-9)

	two := profile.Derive(profile.Build([]profile.Entry{
		completed(1, t0, 5, withComplexity(8)),
		completed(2, t0, 5, withComplexity(4)),
	}, opts), opts)
	require.NotNil(t, two.ComplexityComfort)
	assert.InDelta(t, 6.0, *two.ComplexityComfort, 1e-9)
}

func TestAgeDecayWeighting(t *testing.T) {
	opts := profile.DefaultOptions()
	history := []profile.Entry{
		completed(1, t0, 5, withComplexity(2)),
		completed(2, t0.Add(730*24*time.Hour), 5, withComplexity(8)),
	}

	p := profile.Derive(profile.Build(history, opts), opts)
	require.NotNil(t, p.ComplexityComfort)
	// The older event is two half-lives old: weight 5*0.25.
	assert.InDelta(t, 6.8, *p.ComplexityComfort, 1e-9)

	opts.Weighting = profile.WeightRating
	flat := profile.Derive(profile.Build(history, opts), opts)
	require.NotNil(t, flat.ComplexityComfort)
	assert.InDelta(t, 5.0, *flat.ComplexityComfort, 1e-9)
}

func TestDNFComplexitySwitch(t *testing.T) {
	history := []profile.Entry{
		completed(1, t0, 5, withComplexity(6)),
		completed(2, t0, 5, withComplexity(6)),
		{EventID: 3, At: t0, Status: domain.CompletionDNF, Complexity: domain.IntPtr(9)},
	}

	opts := profile.DefaultOptions()
	off := profile.Derive(profile.Build(history, opts), opts)
	require.NotNil(t, off.ComplexityComfort)
	assert.InDelta(t, 6.0, *off.ComplexityComfort, 1e-9)

	opts.DNFAffectsComplexity = true
	on := profile.Derive(profile.Build(history, opts), opts)
	require.NotNil(t, on.ComplexityComfort)
	// (5*6 + 5*6 + 1*7) / 11
	assert.InDelta(t, 67.0/11.0, *on.ComplexityComfort, 1e-9)
}

func TestFavoriteThemesAndStyleAffinity(t *testing.T) {
	opts := profile.DefaultOptions()
	history := []profile.Entry{
		completed(1, t0, 5, withThemes("family", "war"), withStyle(domain.StyleLyrical)),
		completed(2, t0, 4, withThemes("family", "war"), withStyle(domain.StyleLyrical)),
		completed(3, t0, 3, withThemes("family", "war"), withStyle(domain.StyleLyrical)),
		completed(4, t0, 5, withThemes("family"), withStyle(domain.StyleSparse)),
		completed(5, t0, 5, withThemes("grief"), withStyle(domain.StyleSparse)),
	}
	p := profile.Derive(profile.Build(history, opts), opts)

	require.Len(t, p.FavoriteThemes, 2)
	assert.Equal(t, "family", p.FavoriteThemes[0].Theme)
	assert.Equal(t, 4, p.FavoriteThemes[0].Count)
	assert.InDelta(t, 4.25, p.FavoriteThemes[0].MeanRating, 1e-9)
	assert.Equal(t, "war", p.FavoriteThemes[1].Theme)
	assert.True(t, p.IsFavoriteTheme("war"))
	assert.False(t, p.IsFavoriteTheme("grief"))

	affinity, ok := p.Affinity(domain.StyleLyrical)
	require.True(t, ok)
	assert.InDelta(t, 0.8, affinity, 1e-9)
	_, ok = p.Affinity(domain.StyleSparse)
	assert.False(t, ok, "two sparse books are below the minimum count")
}

func TestLengthToleranceSmoothing(t *testing.T) {
	opts := profile.DefaultOptions()
	s := profile.Fold(profile.Empty(), completed(1, t0, 4, withPages(300)), opts)
	assert.Equal(t, 300, s.LengthRaw)
	assert.InDelta(t, 300.0, s.LengthSmoothed, 1e-9)

	s = profile.Fold(s, completed(2, t0, 4, withPages(500)), opts)
	assert.Equal(t, 500, s.LengthRaw)
	assert.InDelta(t, 340.0, s.LengthSmoothed, 1e-9)

	s = profile.Fold(s, profile.Entry{EventID: 3, At: t0, Status: domain.CompletionDNF, Pages: domain.IntPtr(900)}, opts)
	assert.Equal(t, 500, s.LengthRaw, "unfinished books do not extend the tolerance")

	p := profile.Derive(s, opts)
	tol, ok := p.LengthTolerance()
	require.True(t, ok)
	assert.InDelta(t, 340.0, tol, 1e-9)
}

func TestBuilderFoldsForwardFromSnapshot(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	builder := profile.NewBuilder(profile.OptionsFromConfig(cfg), nil)
	ctx := context.Background()

	var books []domain.Book
	for i, c := range []int{4, 6, 7} {
		books = append(books, testsupport.MustAddBook(t, st, testsupport.NewBook(
			string(rune('A'+i)), testsupport.Complexity(c), testsupport.Pages(200+100*i), testsupport.Themes("family"))))
	}
	testsupport.MustLogCompletion(t, st, testsupport.Completed(books[0].ID, 5, t0))
	testsupport.MustLogCompletion(t, st, testsupport.Completed(books[1].ID, 4, t0.Add(time.Hour)))

	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		res, err := builder.Refresh(ctx, tx, t0)
		require.False(t, res.FromSnapshot)
		require.Equal(t, 2, res.Folded)
		return err
	})

	testsupport.MustLogCompletion(t, st, testsupport.Completed(books[2].ID, 5, t0.Add(2*time.Hour)))

	var incremental, rebuilt profile.Result
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		incremental, err = builder.Refresh(ctx, tx, t0)
		return err
	})
	assert.True(t, incremental.FromSnapshot)
	assert.Equal(t, 1, incremental.Folded)

	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		rebuilt, err = builder.Rebuild(ctx, tx, t0)
		return err
	})
	assert.Equal(t, rebuilt.Profile, incremental.Profile)

	require.NoError(t, st.Read(ctx, func(tx *store.Tx) error {
		res, err := builder.Load(ctx, tx)
		require.True(t, res.FromSnapshot)
		require.Equal(t, 0, res.Folded)
		assert.Equal(t, rebuilt.Profile, res.Profile)
		return err
	}))
}

func TestRefreshKeepsSnapshotRowsBounded(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	builder := profile.NewBuilder(profile.OptionsFromConfig(cfg), nil)
	ctx := context.Background()

	const events = 12
	for i := 0; i < events; i++ {
		book := testsupport.MustAddBook(t, st, testsupport.NewBook(
			"Book "+string(rune('A'+i)), testsupport.Complexity(1+i%10), testsupport.Pages(200+10*i)))
		testsupport.MustLogCompletion(t, st, testsupport.Completed(book.ID, 1+i%5, t0.Add(time.Duration(i)*time.Hour)))
		testsupport.MustWrite(t, st, func(tx *store.Tx) error {
			_, err := builder.Refresh(ctx, tx, t0.Add(time.Duration(i)*time.Hour))
			return err
		})
	}

	require.NoError(t, st.Read(ctx, func(tx *store.Tx) error {
		rows, err := tx.CountProfileSnapshots(ctx)
		require.NoError(t, err)
		assert.LessOrEqual(t, rows, 4, "superseded snapshots must be pruned")

		res, err := builder.Load(ctx, tx)
		require.NoError(t, err)
		assert.True(t, res.FromSnapshot)
		assert.Equal(t, 0, res.Folded)
		assert.Equal(t, events, res.Profile.EventCount)
		return nil
	}))

	var rebuilt profile.Result
	testsupport.MustWrite(t, st, func(tx *store.Tx) error {
		var err error
		rebuilt, err = builder.Rebuild(ctx, tx, t0.Add(events*time.Hour))
		return err
	})
	require.NoError(t, st.Read(ctx, func(tx *store.Tx) error {
		rows, err := tx.CountProfileSnapshots(ctx)
		require.NoError(t, err)
		assert.Equal(t, 1, rows, "a rebuild leaves only its own snapshot")
		return nil
	}))
	assert.Equal(t, events, rebuilt.Profile.EventCount)
}
