package matcher

import (
	"bufio"
	"os"
	"slices"
	"strings"
	"testing"
)

func TestNormalizeTitle(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"The Witcher 3: Wild Hunt", "the witcher 3 wild hunt"},
		{"  Half-Life   2 ", "half life 2"},
		{"Pokémon Légendes", "pokemon legendes"},
		{"!!!", ""},
	}
	for _, tt := range tests {
		if got := NormalizeTitle(tt.in); got != tt.want {
			t.Errorf("NormalizeTitle(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTitleMatches(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"It", "It Follows", false},
		{"The Witcher 3", "The Witcher 3: Wild Hunt", true},
		{"Halo", "halo", true},
		{"Doom", "Doom Eternal", false},
		{"Cyberpunk 2077", "CYBERPUNK-2077", true},
		{"Pokémon Legends", "Pokemon Legends Arceus", true},
		{"Fallout", "Fallout76", false},
		{"", "Anything", false},
		{"Dead Space", "Deadspace Remake", false},
	}
	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			if got := TitleMatches(tt.a, tt.b); got != tt.want {
				t.Errorf("TitleMatches(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
			if got := TitleMatches(tt.b, tt.a); got != tt.want {
				t.Errorf("TitleMatches(%q, %q) not symmetric", tt.b, tt.a)
			}
		})
	}
}

func TestTitleMatchesReflexive(t *testing.T) {
	for _, title := range []string{"Cyberpunk 2077", "Elden Ring", "Hollow Knight: Silksong"} {
		if !TitleMatches(title, title) {
			t.Errorf("TitleMatches(%q, %q) = false", title, title)
		}
	}
}

func TestCleanReleaseName(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Game.v1.2.3-GROUP", "Game"},
		{"Game_v1.2.3-GROUP", "Game"},
		{"Game_Name_Build_12345-TENOKE", "Game Name"},
		{"Game_Name_v2.0_MULTi5-GRP", "Game Name"},
		{"Game 2024", "Game"},
		{"Game 1900", "Game 1900"},
		{"Cyberpunk.2077-CODEX", "Cyberpunk 2077"},
		{"Hollow Knight (Director's Cut)", "Hollow Knight Director's Cut"},
		{"Elden Ring (12)", "Elden Ring"},
	}
	for _, tt := range tests {
		if got := CleanReleaseName(tt.in); got != tt.want {
			t.Errorf("CleanReleaseName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestReleaseMatchesGame(t *testing.T) {
	tests := []struct {
		release string
		game    string
		want    bool
	}{
		{"Cyberpunk.2077.v2.1-RUNE", "Cyberpunk 2077", true},
		{"The.Witcher.3.Wild.Hunt.GOTY.v4.04-GOG", "The Witcher 3: Wild Hunt", true},
		{"Marvels.Spider-Man.Remastered-FLT", "Marvel's Spider-Man Remastered", true},
		{"Half.Life.Alyx-CODEX", "Portal 2", false},
		{"It.Takes.Two-CODEX", "It", false},
	}
	for _, tt := range tests {
		if got := ReleaseMatchesGame(tt.release, tt.game); got != tt.want {
			t.Errorf("ReleaseMatchesGame(%q, %q) = %v, want %v", tt.release, tt.game, got, tt.want)
		}
	}
}

// Precedence between tag categories and keyword priorities is pinned by the
// golden file. Update it deliberately.
func TestReleaseMetadataGolden(t *testing.T) {
	f, err := os.Open("testdata/release_names.golden")
	if err != nil {
		t.Fatalf("open golden file: %v", err)
	}
	defer f.Close()

	dash := func(s string) string {
		if s == "-" {
			return ""
		}
		return s
	}

	scanner := bufio.NewScanner(f)
	cases := 0
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cols := strings.Split(line, "\t")
		if len(cols) != 8 {
			t.Fatalf("malformed golden line %q", line)
		}
		cases++

		input := cols[0]
		t.Run(input, func(t *testing.T) {
			meta := ParseReleaseMetadata(input)
			if meta.BaseTitle != cols[1] {
				t.Errorf("BaseTitle = %q, want %q", meta.BaseTitle, cols[1])
			}
			if meta.Group != dash(cols[2]) {
				t.Errorf("Group = %q, want %q", meta.Group, dash(cols[2]))
			}
			if meta.Version != dash(cols[3]) {
				t.Errorf("Version = %q, want %q", meta.Version, dash(cols[3]))
			}
			if meta.Platform != dash(cols[4]) {
				t.Errorf("Platform = %q, want %q", meta.Platform, dash(cols[4]))
			}
			if meta.DRM != dash(cols[5]) {
				t.Errorf("DRM = %q, want %q", meta.DRM, dash(cols[5]))
			}
			var langs []string
			if l := dash(cols[6]); l != "" {
				langs = strings.Split(l, ",")
			}
			if !slices.Equal(meta.Languages, langs) {
				t.Errorf("Languages = %v, want %v", meta.Languages, langs)
			}
			if got := meta.IsScene; (cols[7] == "true") != got {
				t.Errorf("IsScene = %v, want %s", got, cols[7])
			}
		})
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read golden file: %v", err)
	}
	if cases == 0 {
		t.Fatal("golden file has no cases")
	}
}
