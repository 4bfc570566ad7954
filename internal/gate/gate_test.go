package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IliaW/hotel-crawler/config"
	"github.com/IliaW/hotel-crawler/internal/model"
	"github.com/IliaW/hotel-crawler/internal/scrape"
)

func TestCheckLucky(t *testing.T) {
	t.Parallel()
	g := &Gate{Cfg: &config.CrawlConfig{}}

	listings := func(names ...string) []*model.ExtractedListing {
		out := make([]*model.ExtractedListing, 0, len(names))
		for _, n := range names {
			out = append(out, &model.ExtractedListing{Name: model.Ptr(n)})
		}
		return out
	}

	tests := []struct {
		name     string
		listings []*model.ExtractedListing
		target   string
		wantErr  error
	}{
		{"exact match", listings("Grand Budapest"), "Grand Budapest", nil},
		{"case-insensitive match", listings("GRAND BUDAPEST HOTEL"), "grand budapest", nil},
		{"containment match", listings("The Grand Budapest Hotel & Spa"), "Grand Budapest", nil},
		{"mismatch", listings("Other Hotel"), "Grand Budapest", ErrContentMismatch},
		{"empty result set", nil, "Grand Budapest", ErrContentMismatch},
		{"no target trusts the page", listings("Anything"), "", nil},
		{"no target and no listings", nil, "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := g.CheckLucky(tt.listings, tt.target)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestPassesScore(t *testing.T) {
	t.Parallel()
	g := &Gate{Cfg: &config.CrawlConfig{MinScore: 3.5}}

	rated := func(v float64) *scrape.StructuredData {
		ld := &scrape.StructuredData{Name: "Grand Hotel"}
		ld.AggregateRating = &struct {
			RatingValue float64 `json:"ratingValue"`
			ReviewCount int     `json:"reviewCount"`
		}{RatingValue: v}
		return ld
	}

	assert.False(t, g.PassesScore(nil))
	assert.False(t, g.PassesScore(rated(3.0)))
	assert.False(t, g.PassesScore(rated(3.5)), "threshold itself is filtered")
	assert.True(t, g.PassesScore(rated(4.0)))
	assert.True(t, g.PassesScore(&scrape.StructuredData{Name: "Unrated Hotel"}))
}

type fakeEvaluator struct {
	result map[string]any
	err    error
}

func (f *fakeEvaluator) Evaluate(_ context.Context, _ string, out any) error {
	if f.err != nil {
		return f.err
	}
	if m, ok := out.(*map[string]any); ok {
		*m = f.result
	}
	return nil
}

func TestLookup(t *testing.T) {
	t.Parallel()

	fn, err := Lookup("")
	require.NoError(t, err)
	assert.Nil(t, fn)

	fn, err = Lookup("room_summary")
	require.NoError(t, err)
	assert.NotNil(t, fn)

	_, err = Lookup("no_such_callback")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "room_summary")
}

func TestApplyMergesRecord(t *testing.T) {
	t.Parallel()

	fn := func(context.Context, Evaluator) (map[string]any, error) {
		return map[string]any{"roomList": []string{"Double Room"}}, nil
	}
	listing := &model.ExtractedListing{Name: model.Ptr("Grand Hotel")}
	require.NoError(t, Apply(context.Background(), fn, &fakeEvaluator{}, listing))
	assert.Equal(t, []string{"Double Room"}, listing.Extra["roomList"])
}

func TestApplyRejectsNilRecord(t *testing.T) {
	t.Parallel()

	fn := func(context.Context, Evaluator) (map[string]any, error) { return nil, nil }
	err := Apply(context.Background(), fn, &fakeEvaluator{}, &model.ExtractedListing{})
	assert.ErrorIs(t, err, ErrNoRecord)
}

func TestApplyWrapsCallbackError(t *testing.T) {
	t.Parallel()

	boom := errors.New("boom")
	fn := func(context.Context, Evaluator) (map[string]any, error) { return nil, boom }
	err := Apply(context.Background(), fn, &fakeEvaluator{}, &model.ExtractedListing{})
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrNoRecord, "an execution failure is not a contract violation")
}
