package events

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWeights_Multiplier(t *testing.T) {
	mods := map[int64]bool{1: true, 2: true}
	isRater := func(id int64) bool { return mods[id] }
	w := DefaultWeights()

	cases := []struct {
		name      string
		reactions []Reaction
		want      int
		counted   []string
	}{
		{"no reactions", nil, 0, nil},
		{"only members", []Reaction{{Name: "🍒", UserIDs: []int64{7, 8}}}, 0, nil},
		{"one mod", []Reaction{{Name: "🍒", UserIDs: []int64{7, 1}}}, 2, []string{"🍒"}},
		{"two mods same type count once", []Reaction{{Name: "🚥", UserIDs: []int64{1, 2}}}, 3, []string{"🚥"}},
		{"types add up", []Reaction{
			{Name: "🧩", UserIDs: []int64{1}},
			{Name: "🍒", UserIDs: []int64{2}},
			{Name: "🚥", UserIDs: []int64{2}},
		}, 6, []string{"🧩", "🍒", "🚥"}},
		{"unknown reaction ignored", []Reaction{{Name: "👍", UserIDs: []int64{1}}}, 0, nil},
		{"duplicate type entry", []Reaction{
			{Name: "🧩", UserIDs: []int64{1}},
			{Name: "🧩", UserIDs: []int64{2}},
		}, 1, []string{"🧩"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, counted := w.Multiplier(tc.reactions, isRater)
			require.Equal(t, tc.want, got)
			require.Equal(t, tc.counted, counted)
		})
	}
}

func TestWithWeights(t *testing.T) {
	custom := Weights{"⭐": 5, "🍒": 1}
	m := NewManager(nil, nil, WithWeights(custom))
	require.Equal(t, custom, m.Weights())

	// копия: правка снаружи не меняет веса менеджера
	custom["⭐"] = 100
	got := m.Weights()
	got["🍒"] = 100
	require.Equal(t, Weights{"⭐": 5, "🍒": 1}, m.Weights())

	require.Equal(t, DefaultWeights(), NewManager(nil, nil, WithWeights(nil)).Weights())
	require.Equal(t, DefaultWeights(), NewManager(nil, nil, WithWeights(Weights{})).Weights())
}

func TestReactionScorer(t *testing.T) {
	m := NewManager(nil, nil, WithWeights(Weights{"⭐": 5, "🍒": 1}))
	isRater := func(id int64) bool { return id == 1 }
	byMessage := map[int64][]Reaction{
		10: {{Name: "⭐", UserIDs: []int64{1}}, {Name: "🍒", UserIDs: []int64{1, 7}}},
		11: {{Name: "🧩", UserIDs: []int64{1}}},
		12: {{Name: "⭐", UserIDs: []int64{7}}},
	}
	errBroken := errors.New("reactions unavailable")
	score := m.ReactionScorer(func(_ context.Context, msg Message) ([]Reaction, error) {
		if msg.ID == 13 {
			return nil, errBroken
		}
		return byMessage[msg.ID], nil
	}, isRater)

	ctx := context.Background()
	for id, want := range map[int64]int{10: 6, 11: 0, 12: 0} {
		got, err := score(ctx, Message{ID: id})
		require.NoError(t, err)
		require.Equal(t, want, got, "message %d", id)
	}
	_, err := score(ctx, Message{ID: 13})
	require.ErrorIs(t, err, errBroken)
}
