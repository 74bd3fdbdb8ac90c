package dispatch

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"

	"Gamarr/shared/logger"
)

type fakeFetcher struct {
	data  []byte
	err   error
	calls []string
}

func (f *fakeFetcher) Fetch(_ context.Context, rawURL string, _ int64) ([]byte, error) {
	f.calls = append(f.calls, rawURL)
	return f.data, f.err
}

type qbitServer struct {
	mu       sync.Mutex
	logins   int
	expireAt int // fail the Nth add with 403
	adds     int
	form     map[string]string
	file     []byte
	fileName string
}

func (s *qbitServer) handler(t *testing.T) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v2/auth/login", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.logins++
		s.mu.Unlock()
		if err := r.ParseForm(); err != nil {
			t.Errorf("parse login form: %v", err)
		}
		if r.FormValue("username") != "admin" || r.FormValue("password") != "secret" {
			io.WriteString(w, "Fails.")
			return
		}
		http.SetCookie(w, &http.Cookie{Name: "SID", Value: "session", Path: "/"})
		io.WriteString(w, "Ok.")
	})
	mux.HandleFunc("/api/v2/torrents/add", func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.adds++
		if s.adds == s.expireAt {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if c, err := r.Cookie("SID"); err != nil || c.Value != "session" {
			w.WriteHeader(http.StatusForbidden)
			return
		}
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Errorf("parse multipart: %v", err)
			return
		}
		s.form = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			s.form[k] = v[0]
		}
		if files := r.MultipartForm.File["torrents"]; len(files) > 0 {
			f, _ := files[0].Open()
			s.file, _ = io.ReadAll(f)
			s.fileName = files[0].Filename
			f.Close()
		}
		io.WriteString(w, "Ok.")
	})
	return mux
}

func TestQBittorrentAddMagnet(t *testing.T) {
	qs := &qbitServer{}
	srv := httptest.NewServer(qs.handler(t))
	defer srv.Close()

	fetcher := &fakeFetcher{}
	client, err := NewQBittorrentClient(srv.URL, "admin", "secret", fetcher)
	if err != nil {
		t.Fatalf("NewQBittorrentClient: %v", err)
	}

	err = client.Add(context.Background(), Request{
		URL:          "magnet:?xt=urn:btih:abc",
		Title:        "Hades II",
		Category:     "games",
		DownloadPath: "/downloads",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if qs.form["urls"] != "magnet:?xt=urn:btih:abc" {
		t.Errorf("urls = %q", qs.form["urls"])
	}
	if qs.form["category"] != "games" || qs.form["savepath"] != "/downloads" {
		t.Errorf("form = %v", qs.form)
	}
	if len(fetcher.calls) != 0 {
		t.Errorf("magnet should not be fetched, got %v", fetcher.calls)
	}
}

func TestQBittorrentUploadsTorrentFile(t *testing.T) {
	qs := &qbitServer{}
	srv := httptest.NewServer(qs.handler(t))
	defer srv.Close()

	fetcher := &fakeFetcher{data: []byte("d8:announce...e")}
	client, err := NewQBittorrentClient(srv.URL, "admin", "secret", fetcher)
	if err != nil {
		t.Fatalf("NewQBittorrentClient: %v", err)
	}

	if err := client.Add(context.Background(), Request{URL: "http://indexer.test/dl/1", Title: "Hades/II"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if string(qs.file) != "d8:announce...e" {
		t.Errorf("uploaded file = %q", qs.file)
	}
	if qs.fileName != "Hades_II.torrent" {
		t.Errorf("file name = %q", qs.fileName)
	}
	if _, ok := qs.form["urls"]; ok {
		t.Error("urls field should not be sent for file uploads")
	}
}

func TestQBittorrentReloginOn403(t *testing.T) {
	qs := &qbitServer{expireAt: 1}
	srv := httptest.NewServer(qs.handler(t))
	defer srv.Close()

	client, err := NewQBittorrentClient(srv.URL, "admin", "secret", &fakeFetcher{})
	if err != nil {
		t.Fatalf("NewQBittorrentClient: %v", err)
	}
	if err := client.Add(context.Background(), Request{URL: "magnet:?xt=urn:btih:abc"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if qs.logins != 2 {
		t.Errorf("logins = %d, want 2", qs.logins)
	}
	if qs.adds != 2 {
		t.Errorf("adds = %d, want 2", qs.adds)
	}
}

func TestQBittorrentBadCredentials(t *testing.T) {
	qs := &qbitServer{}
	srv := httptest.NewServer(qs.handler(t))
	defer srv.Close()

	client, _ := NewQBittorrentClient(srv.URL, "admin", "wrong", &fakeFetcher{})
	if err := client.Add(context.Background(), Request{URL: "magnet:?xt=urn:btih:abc"}); err == nil {
		t.Fatal("expected login error")
	}
	if qs.adds != 0 {
		t.Errorf("adds = %d, want 0", qs.adds)
	}
}

func TestQBittorrentFetchFailure(t *testing.T) {
	fetchErr := errors.New("unsafe URL")
	client, _ := NewQBittorrentClient("http://unused.test", "admin", "secret", &fakeFetcher{err: fetchErr})
	err := client.Add(context.Background(), Request{URL: "http://169.254.169.254/x.torrent"})
	if !errors.Is(err, fetchErr) {
		t.Fatalf("Add error = %v, want wrapped fetch error", err)
	}
}

func TestTransmissionSessionHandshake(t *testing.T) {
	var calls atomic.Int32
	var got rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/transmission/rpc" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if r.Header.Get(transmissionSessionHeader) != "tok-1" {
			w.Header().Set(transmissionSessionHeader, "tok-1")
			w.WriteHeader(http.StatusConflict)
			return
		}
		if user, pass, ok := r.BasicAuth(); !ok || user != "admin" || pass != "secret" {
			t.Errorf("basic auth = %q %q %v", user, pass, ok)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		io.WriteString(w, `{"result":"success","arguments":{"torrent-added":{"id":1,"name":"Hades II","hashString":"abc"}}}`)
	}))
	defer srv.Close()

	client := NewTransmissionClient(srv.URL, "admin", "secret", &fakeFetcher{})
	err := client.Add(context.Background(), Request{
		URL:          "magnet:?xt=urn:btih:abc",
		Category:     "games",
		DownloadPath: "/downloads",
	})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
	if got.Method != "torrent-add" {
		t.Errorf("method = %q", got.Method)
	}
	if got.Arguments["filename"] != "magnet:?xt=urn:btih:abc" {
		t.Errorf("filename = %v", got.Arguments["filename"])
	}
	if got.Arguments["download-dir"] != "/downloads/games" {
		t.Errorf("download-dir = %v", got.Arguments["download-dir"])
	}
	labels, _ := got.Arguments["labels"].([]any)
	if len(labels) != 1 || labels[0] != "games" {
		t.Errorf("labels = %v", got.Arguments["labels"])
	}
}

func TestTransmissionMetainfo(t *testing.T) {
	var got rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		io.WriteString(w, `{"result":"success","arguments":{"torrent-duplicate":{"id":1}}}`)
	}))
	defer srv.Close()

	client := NewTransmissionClient(srv.URL+"/transmission/rpc", "", "", &fakeFetcher{data: []byte("torrent")})
	if err := client.Add(context.Background(), Request{URL: "http://indexer.test/1"}); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if got.Arguments["metainfo"] != base64.StdEncoding.EncodeToString([]byte("torrent")) {
		t.Errorf("metainfo = %v", got.Arguments["metainfo"])
	}
	if _, ok := got.Arguments["download-dir"]; ok {
		t.Error("download-dir should be omitted without a download path")
	}
}

func TestTransmissionRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"result":"invalid or corrupt torrent file"}`)
	}))
	defer srv.Close()

	client := NewTransmissionClient(srv.URL, "", "", &fakeFetcher{})
	if err := client.Add(context.Background(), Request{URL: "magnet:?xt=urn:btih:abc"}); err == nil {
		t.Fatal("expected rejection error")
	}
}

type recordingDownloader struct {
	name string
	got  []Request
	err  error
}

func (r *recordingDownloader) Name() string { return r.name }

func (r *recordingDownloader) Add(_ context.Context, req Request) error {
	r.got = append(r.got, req)
	return r.err
}

func TestManagerRouting(t *testing.T) {
	qbit := &recordingDownloader{name: "qbittorrent"}
	trans := &recordingDownloader{name: "transmission"}
	m := NewManager("qbittorrent", "/downloads", logger.Discard(), qbit, trans)

	if err := m.Add(context.Background(), "", Request{URL: " magnet:?xt=urn:btih:a "}); err != nil {
		t.Fatalf("Add default: %v", err)
	}
	if len(qbit.got) != 1 || qbit.got[0].DownloadPath != "/downloads" || qbit.got[0].URL != "magnet:?xt=urn:btih:a" {
		t.Fatalf("qbittorrent got %+v", qbit.got)
	}

	if err := m.Add(context.Background(), "transmission", Request{URL: "magnet:?xt=urn:btih:b", DownloadPath: "/other"}); err != nil {
		t.Fatalf("Add transmission: %v", err)
	}
	if len(trans.got) != 1 || trans.got[0].DownloadPath != "/other" {
		t.Fatalf("transmission got %+v", trans.got)
	}

	if err := m.Add(context.Background(), "deluge", Request{URL: "magnet:?"}); !errors.Is(err, ErrUnknownClient) {
		t.Errorf("unknown client error = %v", err)
	}
	if err := m.Add(context.Background(), "", Request{URL: "  "}); !errors.Is(err, ErrEmptyURL) {
		t.Errorf("empty url error = %v", err)
	}
}
