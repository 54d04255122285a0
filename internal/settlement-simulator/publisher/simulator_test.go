package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/radieske/bet-feed/internal/feed"
	"github.com/radieske/bet-feed/pkg/contracts/events"
	"github.com/radieske/bet-feed/pkg/contracts/topics"
)

var epoch = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

func TestGenerator_ProducesValidEvents(t *testing.T) {
	g := NewGenerator(42, nil, clockwork.NewFakeClockAt(epoch))

	var demo, anon, provider int
	for range 2000 {
		ev := g.Next()
		require.NoError(t, ev.Validate())
		assert.Equal(t, epoch, ev.SettledAt)
		if ev.IsDemo() {
			demo++
			assert.True(t, ev.Payout.IsZero())
			continue
		}
		if !ev.IsAuthenticated() {
			anon++
			assert.Nil(t, ev.User)
		}
		if ev.GameType == feed.GameTypeProvider {
			provider++
			assert.Contains(t, ev.GameName, ":")
		}
		assert.True(t, ev.BetAmount.IsPositive())
		if ev.Multiplier.IsZero() {
			assert.True(t, ev.Payout.IsZero())
		} else {
			assert.True(t, ev.Multiplier.GreaterThanOrEqual(decimal.RequireFromString("1.01")))
		}
	}
	assert.Positive(t, demo)
	assert.Positive(t, anon)
	assert.Positive(t, provider)
}

func TestGenerator_ProducesQualifyingBets(t *testing.T) {
	g := NewGenerator(7, nil, clockwork.NewFakeClockAt(epoch))

	seen := map[feed.Tab]int{}
	for range 5000 {
		for _, tab := range feed.Classify(g.Next(), feed.DefaultThresholds) {
			seen[tab]++
		}
	}
	for _, tab := range feed.Tabs {
		assert.Positive(t, seen[tab], tab)
	}
}

func TestGenerator_RatiosAndPrivacy(t *testing.T) {
	g := NewGenerator(1, []Player{{ID: "u-1", Handle: "one"}}, clockwork.NewFakeClockAt(epoch))
	g.AnonymousRatio, g.DemoRatio, g.EmbedRatio = 0, 0, 1
	g.SetPrivate("u-1", true)

	ev := g.Next()
	assert.Equal(t, "u-1", ev.UserID)
	require.NotNil(t, ev.User)
	assert.True(t, ev.User.IsPrivate)
	assert.False(t, ev.IsDemo())

	g.DemoRatio = 1
	assert.True(t, g.Next().IsDemo())
}

type recorder struct {
	mu       sync.Mutex
	events   []events.BetSettled
	ledger   []string
	users    []string
	vips     map[string]int
	private  map[string]bool
	notified []string
	raw      map[string][][]byte
	err      error
}

func newRecorder() *recorder {
	return &recorder{vips: map[string]int{}, private: map[string]bool{}, raw: map[string][][]byte{}}
}

func (r *recorder) Publish(_ context.Context, e events.BetSettled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, e)
	return nil
}

func (r *recorder) InsertSettled(_ context.Context, b events.BetSettled) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ledger = append(r.ledger, b.BetID)
	return nil
}

func (r *recorder) UpsertUser(_ context.Context, u feed.UserSnapshot) error {
	r.users = append(r.users, u.ID)
	return nil
}

func (r *recorder) SetVip(_ context.Context, userID string, level int) error {
	r.vips[userID] = level
	return nil
}

func (r *recorder) SetPrivate(_ context.Context, userID string, private bool) error {
	r.private[userID] = private
	return nil
}

func (r *recorder) notify(_ context.Context, userID string) error {
	r.notified = append(r.notified, userID)
	return nil
}

type rawRecorder struct{ r *recorder }

func (w rawRecorder) Publish(_ context.Context, channel string, payload []byte) error {
	w.r.raw[channel] = append(w.r.raw[channel], payload)
	return nil
}

func newSimulator(rec *recorder, clock clockwork.Clock) *Simulator {
	players := []Player{{ID: "u-1", Handle: "one", Vip: 2}, {ID: "u-2", Handle: "two"}}
	gen := NewGenerator(3, players, clock)
	gen.AnonymousRatio, gen.DemoRatio = 0, 0
	return &Simulator{
		Log:      zap.NewNop(),
		Gen:      gen,
		Events:   rec,
		Ledger:   rec,
		Profiles: rec,
		Notify:   rec.notify,
		Legacy:   rawRecorder{rec},
		Clock:    clock,
		Interval: time.Second,
	}
}

func TestSimulator_Seed(t *testing.T) {
	rec := newRecorder()
	s := newSimulator(rec, clockwork.NewFakeClockAt(epoch))

	require.NoError(t, s.Seed(context.Background()))

	assert.Equal(t, []string{"u-1", "u-2"}, rec.users)
	assert.Equal(t, map[string]int{"u-1": 2}, rec.vips)
	assert.Equal(t, map[string]bool{"u-1": false, "u-2": false}, rec.private)
}

func TestSimulator_StepWritesLedgerThenPublishes(t *testing.T) {
	rec := newRecorder()
	s := newSimulator(rec, clockwork.NewFakeClockAt(epoch))
	var published int
	s.OnPublished = func() { published++ }

	s.Step(context.Background())
	s.Step(context.Background())

	require.Len(t, rec.events, 2)
	assert.Equal(t, []string{rec.events[0].BetID, rec.events[1].BetID}, rec.ledger)
	assert.Equal(t, 2, published)
	assert.Empty(t, rec.notified)
}

func TestSimulator_PrivacyFlip(t *testing.T) {
	rec := newRecorder()
	s := newSimulator(rec, clockwork.NewFakeClockAt(epoch))
	s.PrivacyFlipEvery = 2

	s.Step(context.Background())
	assert.Empty(t, rec.notified)
	s.Step(context.Background())

	require.Len(t, rec.notified, 1)
	uid := rec.notified[0]
	assert.True(t, rec.private[uid])
	assert.True(t, s.Gen.IsPrivate(uid))
}

func TestSimulator_LegacyDelta(t *testing.T) {
	rec := newRecorder()
	s := newSimulator(rec, clockwork.NewFakeClockAt(epoch))
	s.LegacyEvery = 1

	s.Step(context.Background())

	require.Len(t, rec.raw[topics.FeedLegacyDeltas], 1)
	var d feed.Delta
	require.NoError(t, json.Unmarshal(rec.raw[topics.FeedLegacyDeltas][0], &d))
	assert.Equal(t, feed.TabAll, d.Tab)
	require.Len(t, d.NewBets, 1)
	require.NotNil(t, d.NewBets[0].User)
	assert.Equal(t, 1, d.Count)
}

func TestSimulator_PublishFailureReported(t *testing.T) {
	rec := newRecorder()
	rec.err = errors.New("kafka down")
	s := newSimulator(rec, clockwork.NewFakeClockAt(epoch))
	var stages []string
	s.OnError = func(stage string) { stages = append(stages, stage) }

	s.Step(context.Background())

	assert.Equal(t, []string{"publish"}, stages)
	assert.Len(t, rec.ledger, 1)
}

func TestSimulator_RunTicks(t *testing.T) {
	rec := newRecorder()
	clock := clockwork.NewFakeClockAt(epoch)
	s := newSimulator(rec, clock)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(time.Second)
	require.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.events) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}
