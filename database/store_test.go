package database

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"Gamarr/models"
	"Gamarr/services/feeds"
	"Gamarr/services/notify"
	"Gamarr/services/scene"
	"Gamarr/services/scheduler"
	"Gamarr/services/wishlist"
)

var (
	_ feeds.Store         = (*Store)(nil)
	_ scene.Store         = (*Store)(nil)
	_ wishlist.Store      = (*Store)(nil)
	_ notify.Store        = (*Store)(nil)
	_ scheduler.GameStore = (*Store)(nil)
)

func TestValuesList(t *testing.T) {
	tests := []struct {
		rows, cols int
		casts      []string
		want       string
	}{
		{1, 1, nil, "($1)"},
		{2, 3, nil, "($1, $2, $3), ($4, $5, $6)"},
		{2, 2, []string{"bigint", ""}, "($1::bigint, $2), ($3::bigint, $4)"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := valuesList(tt.rows, tt.cols, tt.casts...); got != tt.want {
				t.Errorf("valuesList(%d, %d) = %q, want %q", tt.rows, tt.cols, got, tt.want)
			}
		})
	}
}

// openTestStore connects to TEST_DATABASE_URL, which must point at a
// disposable database.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	db, err := Open(ctx, url)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStore(db)
}

func testUser(t *testing.T, s *Store) int64 {
	t.Helper()
	id, err := s.EnsureUser(context.Background(), fmt.Sprintf("test-%s", uuid.NewString()))
	if err != nil {
		t.Fatalf("EnsureUser: %v", err)
	}
	return id
}

func TestFeedItemsAreDeduplicated(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	src, err := s.CreateFeedSource(ctx, models.FeedSource{UserID: userID, Name: "releases", URL: "http://example.com/rss", Enabled: true})
	if err != nil {
		t.Fatalf("CreateFeedSource: %v", err)
	}

	items := []models.NewFeedItem{
		{GUID: "a", Title: "Hades.II-RUNE", Link: "http://example.com/a"},
		{GUID: "b", Title: "Silksong-TENOKE", Link: "http://example.com/b"},
	}
	first, err := s.InsertFeedItems(ctx, src.ID, items)
	if err != nil {
		t.Fatalf("InsertFeedItems: %v", err)
	}
	if len(first) != 2 {
		t.Fatalf("first insert = %d rows, want 2", len(first))
	}
	second, err := s.InsertFeedItems(ctx, src.ID, items)
	if err != nil {
		t.Fatalf("second InsertFeedItems: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("second insert = %d rows, want 0", len(second))
	}

	existing, err := s.ExistingFeedGUIDs(ctx, src.ID, []string{"a", "c"})
	if err != nil {
		t.Fatalf("ExistingFeedGUIDs: %v", err)
	}
	if !existing["a"] || existing["c"] {
		t.Errorf("existing = %v", existing)
	}

	if err := s.UpdateFeedItemMatch(ctx, first[0].ID, 42, "Hades II", ""); err != nil {
		t.Fatalf("UpdateFeedItemMatch: %v", err)
	}
	listed, err := s.ListFeedItems(ctx, userID, src.ID, 10)
	if err != nil {
		t.Fatalf("ListFeedItems: %v", err)
	}
	matched := 0
	for _, it := range listed {
		if it.CatalogID != nil && *it.CatalogID == 42 {
			matched++
		}
	}
	if matched != 1 {
		t.Errorf("matched items = %d, want 1", matched)
	}
}

func TestLedgerClaimsPairOnce(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	if _, err := s.AddGames(ctx, []models.NewGame{{UserID: userID, Title: "Cyberpunk 2077", CatalogID: 1877}}); err != nil {
		t.Fatalf("AddGames: %v", err)
	}
	games, err := s.ListGames(ctx, userID)
	if err != nil || len(games) != 1 {
		t.Fatalf("ListGames = %v, %v", games, err)
	}

	rec := []models.NotifiedRelease{{GameID: games[0].ID, ReleaseID: "r1", Source: "scene"}}
	got, err := s.RecordNotifiedReleases(ctx, rec)
	if err != nil || len(got) != 1 {
		t.Fatalf("first record = %v, %v", got, err)
	}
	got, err = s.RecordNotifiedReleases(ctx, rec)
	if err != nil || len(got) != 0 {
		t.Fatalf("second record = %v, %v", got, err)
	}
}

func TestUpdateReleaseInfoBatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	added, err := s.AddGames(ctx, []models.NewGame{
		{UserID: userID, Title: "One", CatalogID: 1, ReleaseStatus: models.ReleaseUpcoming},
		{UserID: userID, Title: "Two", CatalogID: 2, ReleaseStatus: models.ReleaseReleased},
		{UserID: userID, Title: "Two again", CatalogID: 2},
	})
	if err != nil {
		t.Fatalf("AddGames: %v", err)
	}
	if added != 2 {
		t.Fatalf("added = %d, want 2", added)
	}

	games, _ := s.ListGames(ctx, userID)
	date := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	var updates []models.ReleaseUpdate
	for _, g := range games {
		updates = append(updates, models.ReleaseUpdate{GameID: g.ID, ReleaseDate: &date, ReleaseStatus: models.ReleaseReleased})
	}
	if err := s.UpdateReleaseInfo(ctx, updates); err != nil {
		t.Fatalf("UpdateReleaseInfo: %v", err)
	}

	games, _ = s.ListGames(ctx, userID)
	for _, g := range games {
		if g.ReleaseStatus != models.ReleaseReleased || g.ReleaseDate == nil || !g.ReleaseDate.Equal(date) {
			t.Errorf("game %d = %s %v", g.ID, g.ReleaseStatus, g.ReleaseDate)
		}
	}
}

func TestSettingsDefaults(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	st, err := s.GetUserSettings(ctx, userID)
	if err != nil {
		t.Fatalf("GetUserSettings: %v", err)
	}
	if !st.NotifyScene || !st.NotifyP2P || st.SteamID != "" {
		t.Errorf("defaults = %+v", st)
	}

	st.NotifyP2P = false
	st.SteamID = "76561197960287930"
	if err := s.SaveUserSettings(ctx, st); err != nil {
		t.Fatalf("SaveUserSettings: %v", err)
	}
	all, err := s.SettingsForUsers(ctx, []int64{userID, userID + 1_000_000})
	if err != nil {
		t.Fatalf("SettingsForUsers: %v", err)
	}
	if all[userID].NotifyP2P || all[userID].SteamID != st.SteamID {
		t.Errorf("saved = %+v", all[userID])
	}
	if !all[userID+1_000_000].NotifyScene {
		t.Error("missing user should get defaults")
	}
}

func TestNotificationsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	n := models.Notification{ID: uuid.NewString(), UserID: userID, Type: models.NotificationWishlist, Title: "Wishlist synced", CreatedAt: time.Now()}
	if err := s.InsertNotifications(ctx, []models.Notification{n}); err != nil {
		t.Fatalf("InsertNotifications: %v", err)
	}
	ok, err := s.MarkNotificationRead(ctx, userID, n.ID)
	if err != nil || !ok {
		t.Fatalf("MarkNotificationRead = %v, %v", ok, err)
	}
	list, err := s.ListNotifications(ctx, userID, 10)
	if err != nil || len(list) != 1 || !list[0].Read {
		t.Fatalf("ListNotifications = %+v, %v", list, err)
	}
}

func TestNotificationTitleHasNoLengthCap(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	title := "Scene release: " + strings.Repeat("The Legend of Something Remastered ", 20)
	n := models.Notification{ID: uuid.NewString(), UserID: userID, Type: models.NotificationSceneRelease, Title: title, CreatedAt: time.Now()}
	if err := s.InsertNotifications(ctx, []models.Notification{n}); err != nil {
		t.Fatalf("InsertNotifications: %v", err)
	}
	list, err := s.ListNotifications(ctx, userID, 10)
	if err != nil || len(list) != 1 {
		t.Fatalf("ListNotifications = %+v, %v", list, err)
	}
	if list[0].Title != title {
		t.Errorf("title truncated to %d bytes, want %d", len(list[0].Title), len(title))
	}
}

func TestUncheckedFeedItems(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	userID := testUser(t, s)

	src, err := s.CreateFeedSource(ctx, models.FeedSource{UserID: userID, Name: "sweep", URL: "http://example.com/sweep", Enabled: true})
	if err != nil {
		t.Fatalf("CreateFeedSource: %v", err)
	}
	inserted, err := s.InsertFeedItems(ctx, src.ID, []models.NewFeedItem{
		{GUID: "x", Title: "Balatro-RUNE", Link: "http://example.com/x"},
		{GUID: "y", Title: "Hollow.Knight-GRP", Link: "http://example.com/y"},
	})
	if err != nil || len(inserted) != 2 {
		t.Fatalf("InsertFeedItems = %d, %v", len(inserted), err)
	}

	unchecked := func() map[int64]bool {
		items, err := s.ListUncheckedFeedItems(ctx, time.Now().Add(time.Minute), 1000)
		if err != nil {
			t.Fatalf("ListUncheckedFeedItems: %v", err)
		}
		out := map[int64]bool{}
		for _, it := range items {
			if it.SourceID == src.ID {
				out[it.ID] = true
			}
		}
		return out
	}
	if got := unchecked(); !got[inserted[0].ID] || !got[inserted[1].ID] {
		t.Fatalf("unchecked = %v, want both items", got)
	}

	if err := s.MarkFeedItemsChecked(ctx, []int64{inserted[0].ID}, time.Now()); err != nil {
		t.Fatalf("MarkFeedItemsChecked: %v", err)
	}
	if got := unchecked(); got[inserted[0].ID] || !got[inserted[1].ID] {
		t.Fatalf("unchecked after mark = %v", got)
	}

	old, err := s.ListUncheckedFeedItems(ctx, time.Now().Add(-time.Hour), 1000)
	if err != nil {
		t.Fatalf("ListUncheckedFeedItems: %v", err)
	}
	for _, it := range old {
		if it.SourceID == src.ID {
			t.Fatalf("item %d created now listed as older than an hour", it.ID)
		}
	}
}
