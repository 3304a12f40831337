//go:build testutil
// +build testutil

package events_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/require"

	"github.com/kenku-bot/crowevents/internal/events"
)

// scoreModel считает эталонные итоги прямо из фактов.
type scoreModel struct {
	pointValue  map[int64]int // 0: канал не событие
	points      map[int64]modelPoint
	adjustments map[int64][]events.AdjustmentRecord
}

type modelPoint struct {
	user, channel int64
	mult          int
}

func (s *scoreModel) event(channelID int64) map[int64]int64 {
	out := map[int64]int64{}
	pv := s.pointValue[channelID]
	if pv == 0 {
		return out
	}
	for _, p := range s.points {
		if p.channel == channelID {
			out[p.user] += int64(pv) * int64(p.mult)
		}
	}
	for _, a := range s.adjustments[channelID] {
		out[a.UserID] += int64(a.Adjustment)
	}
	return out
}

func (s *scoreModel) season() map[int64]int64 {
	out := map[int64]int64{}
	for ch := range s.pointValue {
		for u, v := range s.event(ch) {
			out[u] += v
		}
	}
	return out
}

func TestScoresMatchFactsUnderRandomOperations(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t)
	faker := gofakeit.New(20241031)

	channels := []int64{art, music, 57}
	users := []int64{101, 102, 103, 104, 105}
	// сообщение всегда в одном канале и от одного автора
	msgChannel := func(id int64) int64 { return channels[id%int64(len(channels))] }
	msgAuthor := func(id int64) int64 { return users[id%int64(len(users))] }

	model := &scoreModel{
		pointValue:  map[int64]int{},
		points:      map[int64]modelPoint{},
		adjustments: map[int64][]events.AdjustmentRecord{},
	}
	for _, ch := range channels {
		pv := faker.Number(1, 5)
		require.NoError(t, m.ConfigureChannel(ctx, channel(ch), pv))
		model.pointValue[ch] = pv
	}

	check := func(step int) {
		t.Helper()
		for _, ch := range channels {
			scores, ok, err := m.GetEventLeaderboard(ctx, ch)
			require.NoError(t, err)
			require.Equal(t, model.pointValue[ch] != 0, ok, "step %d channel %d", step, ch)
			if ok {
				requireBoard(t, model.event(ch), toMap(scores))
			}
		}
		requireBoard(t, model.season(), seasonBoard(t, m))
	}

	for step := 0; step < 120; step++ {
		switch roll := faker.Number(1, 100); {
		case roll <= 55:
			id := int64(faker.Number(1, 40))
			ch, author := msgChannel(id), msgAuthor(id)
			score := faker.Number(0, 4)
			added, err := m.SetPoints(ctx, message(id, author, ch), score)
			require.NoError(t, err)
			switch {
			case score == 0:
				delete(model.points, id)
			case model.pointValue[ch] != 0:
				require.True(t, added)
				model.points[id] = modelPoint{user: author, channel: ch, mult: score}
			default:
				require.False(t, added)
			}

		case roll <= 72:
			ch := channels[faker.Number(0, len(channels)-1)]
			pv := faker.Number(0, 5)
			require.NoError(t, m.ConfigureChannel(ctx, channel(ch), pv))
			model.pointValue[ch] = pv

		case roll <= 90:
			ch := channels[faker.Number(0, len(channels)-1)]
			recs := make([]events.AdjustmentRecord, faker.Number(0, 4))
			for i := range recs {
				recs[i] = events.AdjustmentRecord{
					UserID:     users[faker.Number(0, len(users)-1)],
					UserName:   faker.Username(),
					Adjustment: faker.Number(-10, 20),
				}
				if faker.Bool() {
					note := faker.Sentence(faker.Number(2, 6))
					recs[i].Note = &note
				}
			}
			var buf bytes.Buffer
			require.NoError(t, events.WriteAdjustments(&buf, recs))
			n, err := m.ReplaceAdjustments(ctx, guild, ch, &buf, nil)
			require.NoError(t, err)
			require.Equal(t, len(recs), n)
			model.adjustments[ch] = recs

		default:
			require.NoError(t, m.RecalculateAll(ctx))
		}

		if step%10 == 9 {
			check(step)
		}
	}
	check(-1)
}
