package provider

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"slices"
	"testing"
	"time"

	"mediaq/internal/model"
	"mediaq/internal/util"
)

func TestURLsListings(t *testing.T) {
	p := NewURLs()
	got, err := p.Listings(context.Background(), "https://example.com/v/clip.mp4  /srv/music/song.flac https://example.com/", 0)
	if err != nil {
		t.Fatalf("Listings() error = %v", err)
	}
	want := []struct {
		title, mediaType string
	}{
		{"clip", model.MediaVideo},
		{"song", model.MediaAudio},
		{"example.com", model.MediaVideo},
	}
	if len(got) != len(want) {
		t.Fatalf("Listings() returned %d listings, want %d", len(got), len(want))
	}
	for i, w := range want {
		l := got[i]
		if l.Title != w.title || l.Sources[0].MediaType != w.mediaType || l.Index != i+1 || l.Provider != "urls" {
			t.Errorf("listing %d = %+v, want title %q type %q", i, l, w.title, w.mediaType)
		}
	}

	limited, _ := p.Listings(context.Background(), "a.mp4 b.mp4 c.mp4", 2)
	if len(limited) != 2 {
		t.Errorf("Listings() with limit 2 returned %d", len(limited))
	}
}

func TestYouTubeListings(t *testing.T) {
	var gotArgs []string
	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		gotArgs = spec.Args
		out := `{"id":"abc","title":"First","url":"https://www.youtube.com/watch?v=abc","duration":61.5,"uploader":"chan","ie_key":"Youtube"}
{"id":"def","title":"Second","ie_key":"Youtube"}
`
		return util.CmdResult{Stdout: []byte(out)}, nil
	})
	look := func(name string) (string, error) {
		if name == "yt-dlp" {
			return "/usr/bin/yt-dlp", nil
		}
		return "", errors.New("not found")
	}
	p := NewYouTube(Deps{Runner: runner, Look: look})

	got, err := p.Listings(context.Background(), "lofi beats", 5)
	if err != nil {
		t.Fatalf("Listings() error = %v", err)
	}
	if !slices.Contains(gotArgs, "ytsearch5:lofi beats") {
		t.Errorf("runner args = %q, want a ytsearch5 query", gotArgs)
	}
	if len(got) != 2 {
		t.Fatalf("Listings() returned %d listings, want 2", len(got))
	}
	if got[0].Duration != 61500*time.Millisecond || got[0].Meta["uploader"] != "chan" {
		t.Errorf("first listing = %+v", got[0])
	}
	if loc := got[1].Sources[0].Locator; loc != "https://www.youtube.com/watch?v=def" {
		t.Errorf("second locator = %q", loc)
	}
	name, err := got[0].Sources[0].DownloadFilename(got[0].Vars())
	if err != nil || name != "First [abc].mp4" {
		t.Errorf("DownloadFilename() = %q, %v", name, err)
	}

	if h, ok := DefaultHelperRules(p).For("mpv"); !ok || h != "" {
		t.Errorf("helper for mpv = %q, %v, want none", h, ok)
	}
	if h, _ := DefaultHelperRules(p).For("vlc"); h != "yt-dlp" {
		t.Errorf("helper for vlc = %q, want yt-dlp", h)
	}
}

func TestYouTubeMissingHelper(t *testing.T) {
	look := func(string) (string, error) { return "", errors.New("not found") }
	p := NewYouTube(Deps{Look: look})
	if _, err := p.Listings(context.Background(), "x", 1); err == nil {
		t.Error("Listings() error = nil without yt-dlp")
	}
}

const testPage = `<!doctype html>
<html><head><title> Gallery </title></head>
<body>
  <video src="/media/intro.webm" title="Intro"></video>
  <video controls>
    <source src="clips/a.mp4" type="video/mp4">
  </video>
  <audio><source src="https://cdn.example.net/b.ogg" type="audio/ogg"></audio>
  <a href="/media/intro.webm">duplicate</a>
  <a href="files/talk.mkv">The talk</a>
  <a href="/about.html">About</a>
</body></html>`

func TestPageListings(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		fmt.Fprint(w, testPage)
	}))
	defer srv.Close()

	p := NewPage(PageOptions{UserAgent: "mediaq-test"})
	got, err := p.Listings(context.Background(), srv.URL+"/gallery/", 0)
	if err != nil {
		t.Fatalf("Listings() error = %v", err)
	}
	want := []struct {
		locator, title, mediaType string
	}{
		{srv.URL + "/media/intro.webm", "Intro", model.MediaVideo},
		{srv.URL + "/gallery/clips/a.mp4", "a", model.MediaVideo},
		{"https://cdn.example.net/b.ogg", "b", model.MediaAudio},
		{srv.URL + "/gallery/files/talk.mkv", "The talk", model.MediaVideo},
	}
	if len(got) != len(want) {
		for _, l := range got {
			t.Logf("got %s %q", l.Sources[0].Locator, l.Title)
		}
		t.Fatalf("Listings() returned %d listings, want %d", len(got), len(want))
	}
	for i, w := range want {
		l := got[i]
		if l.Sources[0].Locator != w.locator || l.Title != w.title || l.Sources[0].MediaType != w.mediaType {
			t.Errorf("listing %d = %s %q %s, want %s %q %s", i,
				l.Sources[0].Locator, l.Title, l.Sources[0].MediaType, w.locator, w.title, w.mediaType)
		}
		if l.Meta["page_title"] != "Gallery" {
			t.Errorf("listing %d page_title = %q", i, l.Meta["page_title"])
		}
	}

	limited, _ := p.Listings(context.Background(), srv.URL+"/gallery/", 1)
	if len(limited) != 1 {
		t.Errorf("Listings() with limit 1 returned %d", len(limited))
	}
}

func TestPageErrors(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	p := NewPage(PageOptions{})
	if _, err := p.Listings(context.Background(), srv.URL, 0); err == nil {
		t.Error("Listings() error = nil for a 404 page")
	}
	if _, err := p.Listings(context.Background(), "not a url", 0); err == nil {
		t.Error("Listings() error = nil for a non-URL query")
	}
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(map[string]Config{"youtube": {Helper: "yt-dlp"}}, Deps{})
	if !slices.Equal(r.Names(), []string{"page", "urls", "youtube"}) {
		t.Errorf("Names() = %v", r.Names())
	}
	p, cfg, err := r.Get("youtube")
	if err != nil || p.Name() != "youtube" || cfg.Helper != "yt-dlp" {
		t.Errorf("Get(youtube) = %v, %+v, %v", p, cfg, err)
	}
	if _, _, err := r.Get("rss"); !errors.Is(err, ErrUnknownProvider) {
		t.Errorf("Get(rss) error = %v, want ErrUnknownProvider", err)
	}
	if DefaultHelperRules(NewURLs()) != nil {
		t.Error("urls provider has default helper rules")
	}
}
