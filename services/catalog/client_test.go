package catalog

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"Gamarr/services/netguard"
)

func TestNewRequiresClientID(t *testing.T) {
	if _, err := New("", "https://api.igdb.com/v4", WithStaticToken("t")); err == nil {
		t.Fatal("expected error when client id missing")
	}
	if _, err := New("id", "https://api.igdb.com/v4"); err == nil {
		t.Fatal("expected error when credentials missing")
	}
}

func TestSearchGamesSendsApicalypseQuery(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/games" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if r.Header.Get("Client-ID") != "client" || r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("missing auth headers: %v", r.Header)
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `search "Elden Ring";`) {
			t.Errorf("unexpected query body %q", body)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":119133,"name":"Elden Ring","first_release_date":1645747200,"cover":{"image_id":"co4jni"}}]`))
	}))
	t.Cleanup(server.Close)

	client, err := New("client", server.URL, WithStaticToken("token"), WithRequestInterval(0))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	games, err := client.SearchGames(context.Background(), `Elden "Ring"`, 5)
	if err != nil {
		t.Fatalf("SearchGames returned error: %v", err)
	}
	if len(games) != 1 || games[0].ID != 119133 || CoverURL(games[0]) != "https://images.igdb.com/igdb/image/upload/t_cover_big/co4jni.jpg" {
		t.Fatalf("unexpected games: %#v", games)
	}
}

func TestClientCredentialsToken(t *testing.T) {
	tokenCalls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		tokenCalls++
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse form: %v", err)
		}
		if r.PostForm.Get("client_id") != "client" || r.PostForm.Get("client_secret") != "secret" {
			t.Errorf("credentials not sent in params: %v", r.PostForm)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"issued","token_type":"bearer","expires_in":3600}`))
	})
	mux.HandleFunc("/v4/external_games", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer issued" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		body, _ := io.ReadAll(r.Body)
		if !strings.Contains(string(body), `where category = 1 & uid = ("1091500","292030")`) {
			t.Errorf("unexpected query body %q", body)
		}
		_, _ = w.Write([]byte(`[{"game":1877,"uid":"1091500","category":1}]`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	guard := netguard.New(netguard.WithAllowPrivateNetworks(true))
	client, err := New("client", server.URL+"/v4",
		WithGuard(guard),
		WithClientCredentials("secret", server.URL+"/oauth2/token"),
		WithRequestInterval(0),
	)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	for range 2 {
		external, err := client.ExternalGamesBySteamIDs(context.Background(), []string{"1091500", "292030"})
		if err != nil {
			t.Fatalf("ExternalGamesBySteamIDs returned error: %v", err)
		}
		if len(external) != 1 || external[0].Game != 1877 {
			t.Fatalf("unexpected external games: %#v", external)
		}
	}
	if tokenCalls != 1 {
		t.Fatalf("token endpoint called %d times, want 1", tokenCalls)
	}
}

func TestClientHTTPError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	t.Cleanup(server.Close)

	client, err := New("client", server.URL, WithStaticToken("token"), WithRequestInterval(0))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, err := client.GamesByIDs(context.Background(), []int64{1}); err == nil {
		t.Fatal("expected error on non-200")
	}
}
