package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"Gamarr/models"
	"Gamarr/services/catalog"
	"Gamarr/shared/logger"
)

var checkNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeGameStore struct {
	games    []models.Game
	batches  [][]models.ReleaseUpdate
	failCall int
	calls    int
}

func (f *fakeGameStore) ListGamesWithCatalogID(context.Context) ([]models.Game, error) {
	return f.games, nil
}

func (f *fakeGameStore) UpdateReleaseInfo(_ context.Context, updates []models.ReleaseUpdate) error {
	f.calls++
	if f.calls == f.failCall {
		return errors.New("write failed")
	}
	f.batches = append(f.batches, updates)
	return nil
}

type fakeCatalog struct {
	dates map[int64]time.Time
	calls [][]int64
}

func (f *fakeCatalog) ResolveByIDs(_ context.Context, ids []int64) []catalog.Game {
	f.calls = append(f.calls, ids)
	var out []catalog.Game
	for _, id := range ids {
		if d, ok := f.dates[id]; ok {
			out = append(out, catalog.Game{ID: id, Name: "game", FirstReleaseDate: d.Unix()})
		}
	}
	return out
}

type fakeNotifier struct {
	batches [][]models.Notification
}

func (f *fakeNotifier) Send(_ context.Context, n []models.Notification) error {
	f.batches = append(f.batches, n)
	return nil
}

func trackedGame(id int64, status string, date time.Time) models.Game {
	cid := id + 1000
	return models.Game{
		ID:            id,
		UserID:        1,
		Title:         "Game",
		CatalogID:     &cid,
		Status:        models.StatusWanted,
		ReleaseDate:   &date,
		ReleaseStatus: status,
	}
}

func newChecker(store GameStore, res CatalogResolver, n Notifier) *ReleaseChecker {
	c := NewReleaseChecker(store, res, n, logger.Discard())
	c.now = func() time.Time { return checkNow }
	return c
}

func TestReleaseCheckBatchesInChunksOf100(t *testing.T) {
	future := checkNow.AddDate(0, 1, 0)
	past := checkNow.AddDate(0, -1, 0)

	store := &fakeGameStore{}
	cat := &fakeCatalog{dates: map[int64]time.Time{}}
	for i := int64(1); i <= 150; i++ {
		g := trackedGame(i, models.ReleaseUpcoming, future)
		store.games = append(store.games, g)
		cat.dates[*g.CatalogID] = past
	}
	notifier := &fakeNotifier{}

	summary, err := newChecker(store, cat, notifier).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}

	if len(cat.calls) != 2 || len(cat.calls[0]) != 100 || len(cat.calls[1]) != 50 {
		t.Fatalf("resolver calls = %d (%v), want 100 then 50", len(cat.calls), callSizes(cat.calls))
	}
	if len(store.batches) != 2 || len(store.batches[0]) != 100 || len(store.batches[1]) != 50 {
		t.Fatalf("write batches = %d, want 100 then 50", len(store.batches))
	}
	if len(notifier.batches) != 1 || len(notifier.batches[0]) != 150 {
		t.Fatalf("notification batches = %d, want one batch of 150", len(notifier.batches))
	}
	if summary.Updated != 150 || summary.Released != 150 {
		t.Errorf("summary = %+v", summary)
	}
}

func callSizes(calls [][]int64) []int {
	sizes := make([]int, len(calls))
	for i, c := range calls {
		sizes[i] = len(c)
	}
	return sizes
}

func TestReleaseCheckFlipsBothDirectionsInOneWrite(t *testing.T) {
	past := checkNow.AddDate(0, 0, -3)
	future := checkNow.AddDate(0, 2, 0)

	upcoming := trackedGame(1, models.ReleaseUpcoming, future)
	released := trackedGame(2, models.ReleaseReleased, past)
	unchanged := trackedGame(3, models.ReleaseReleased, past)

	store := &fakeGameStore{games: []models.Game{upcoming, released, unchanged}}
	cat := &fakeCatalog{dates: map[int64]time.Time{
		*upcoming.CatalogID:  past,
		*released.CatalogID:  future,
		*unchanged.CatalogID: past,
	}}
	notifier := &fakeNotifier{}

	if _, err := newChecker(store, cat, notifier).Check(context.Background()); err != nil {
		t.Fatalf("Check: %v", err)
	}

	if len(store.batches) != 1 {
		t.Fatalf("write calls = %d, want 1", len(store.batches))
	}
	got := map[int64]string{}
	for _, u := range store.batches[0] {
		got[u.GameID] = u.ReleaseStatus
	}
	want := map[int64]string{1: models.ReleaseReleased, 2: models.ReleaseUpcoming}
	if len(got) != len(want) || got[1] != want[1] || got[2] != want[2] {
		t.Fatalf("updates = %v, want %v", got, want)
	}

	if len(notifier.batches) != 1 || len(notifier.batches[0]) != 1 {
		t.Fatalf("notifications = %v, want one for game 1", notifier.batches)
	}
	if n := notifier.batches[0][0]; n.GameID == nil || *n.GameID != 1 || n.Type != models.NotificationReleased {
		t.Errorf("notification = %+v", n)
	}
}

func TestReleaseCheckFailedChunkContinues(t *testing.T) {
	future := checkNow.AddDate(0, 1, 0)
	past := checkNow.AddDate(0, -1, 0)

	store := &fakeGameStore{failCall: 1}
	cat := &fakeCatalog{dates: map[int64]time.Time{}}
	for i := int64(1); i <= 120; i++ {
		g := trackedGame(i, models.ReleaseUpcoming, future)
		store.games = append(store.games, g)
		cat.dates[*g.CatalogID] = past
	}
	notifier := &fakeNotifier{}

	summary, err := newChecker(store, cat, notifier).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if summary.FailedChunks != 1 || summary.Updated != 20 {
		t.Errorf("summary = %+v", summary)
	}
	if len(notifier.batches) != 1 || len(notifier.batches[0]) != 20 {
		t.Errorf("notifications should cover only the written chunk")
	}
}

func TestReleaseCheckSkipsUnknownDates(t *testing.T) {
	g := trackedGame(1, models.ReleaseReleased, checkNow.AddDate(0, -1, 0))
	store := &fakeGameStore{games: []models.Game{g, {ID: 2, Title: "no catalog id"}}}
	cat := &fakeCatalog{dates: map[int64]time.Time{}}

	summary, err := newChecker(store, cat, &fakeNotifier{}).Check(context.Background())
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if summary.Checked != 1 || store.calls != 0 {
		t.Errorf("summary = %+v, write calls = %d", summary, store.calls)
	}
}
