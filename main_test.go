package main

import (
	"strings"
	"testing"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"Gamarr/models"
	"Gamarr/services/indexers"
	"Gamarr/services/matcher"
)

func TestRootCommandRegistersSubcommands(t *testing.T) {
	root := newRootCommand()
	want := []string{"serve", "check-feeds", "check-scene", "check-releases", "sync-wishlist", "feeds", "search", "user"}
	for _, name := range want {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == root {
			t.Errorf("subcommand %q not registered", name)
		}
	}
	if f := root.Commands(); len(f) < len(want) {
		t.Errorf("got %d commands", len(f))
	}
}

func TestRenderTableKeepsHeaderCase(t *testing.T) {
	out := renderTable(
		[]column{{title: "Name"}, {title: "Count", right: true}},
		[]table.Row{{"feeds", 3}, {"scene", 12}},
	)
	for _, want := range []string{"Name", "Count", "feeds", "scene", "╭"} {
		if !strings.Contains(out, want) {
			t.Errorf("table missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "NAME") || strings.Contains(out, "COUNT") {
		t.Errorf("headers were upper-cased:\n%s", out)
	}
	if !strings.Contains(out, "  3 │") {
		t.Errorf("count column not right aligned:\n%s", out)
	}
	if renderTable(nil, nil) != "" {
		t.Error("no columns should render nothing")
	}
}

func TestRenderFeeds(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	checked := now.Add(-90 * time.Second)
	out := renderFeeds([]models.FeedSource{
		{ID: 1, Name: "predb", Enabled: true, Status: models.FeedStatusOK, LastCheckedAt: &checked},
		{ID: 2, Name: "broken", Enabled: true, Status: models.FeedStatusError, LastError: "unsafe URL"},
		{ID: 3, Name: "paused", Enabled: false},
		{ID: 4, Name: "fresh", Enabled: true},
	}, now)

	for _, want := range []string{"predb", "1m30s ago", "unsafe URL", "disabled", "never checked"} {
		if !strings.Contains(out, want) {
			t.Errorf("feeds table missing %q:\n%s", want, out)
		}
	}
}

func TestRenderSearchResultsShowsReleaseMetadata(t *testing.T) {
	title := "Hades.II.v0.9-TENOKE"
	out := renderSearchResults([]indexers.SearchResult{{
		Title:    title,
		Category: indexers.CategoryNameGames,
		Size:     12 << 30,
		Seeders:  40,
		Indexer:  "jackett",
		Release:  matcher.ParseReleaseMetadata(title),
	}})
	for _, want := range []string{"Version", "Group", title, "v0.9", "TENOKE", "jackett"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSearchCommandHasGameFlag(t *testing.T) {
	cmd, _, err := newRootCommand().Find([]string{"search"})
	if err != nil {
		t.Fatal(err)
	}
	if cmd.Flags().Lookup("game") == nil {
		t.Fatal("search command has no --game flag")
	}
}
