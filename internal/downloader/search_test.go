package downloader

import (
	"context"
	"errors"
	"slices"
	"testing"

	"mediaq/internal/util"
)

func TestSearch(t *testing.T) {
	stdout := `{"id": "a1", "title": "First", "ie_key": "Youtube", "duration": 61}
[info] something on stdout
{"id": "b2", "title": "Second", "url": "https://www.youtube.com/watch?v=b2", "channel": "Chan"}
{"id": "c3", "title": "Third"}
`
	tests := []struct {
		name     string
		target   string
		limit    int
		wantArgs []string
		wantIDs  []string
	}{
		{
			name:     "query becomes ytsearch",
			target:   "lofi beats",
			limit:    3,
			wantArgs: []string{"--flat-playlist", "--dump-json", "--no-warnings", "--ignore-errors", "ytsearch3:lofi beats"},
			wantIDs:  []string{"a1", "b2", "c3"},
		},
		{
			name:     "url is expanded with playlist end",
			target:   "https://www.youtube.com/@chan/videos",
			limit:    2,
			wantArgs: []string{"--flat-playlist", "--dump-json", "--no-warnings", "--ignore-errors", "--playlist-end", "2", "https://www.youtube.com/@chan/videos"},
			wantIDs:  []string{"a1", "b2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var gotArgs []string
			runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
				gotArgs = spec.Args
				return util.CmdResult{Stdout: []byte(stdout)}, nil
			})
			got, err := Search(context.Background(), tt.target, SearchOptions{HelperPath: "yt-dlp", Limit: tt.limit, Runner: runner})
			if err != nil {
				t.Fatalf("Search() error = %v", err)
			}
			if !slices.Equal(gotArgs, tt.wantArgs) {
				t.Errorf("Search() args = %v, want %v", gotArgs, tt.wantArgs)
			}
			var ids []string
			for _, e := range got {
				ids = append(ids, e.ID)
			}
			if !slices.Equal(ids, tt.wantIDs) {
				t.Errorf("Search() ids = %v, want %v", ids, tt.wantIDs)
			}
		})
	}
}

func TestSearchFailure(t *testing.T) {
	runner := util.CmdRunnerFunc(func(ctx context.Context, spec util.CmdSpec) (util.CmdResult, error) {
		return util.CmdResult{Code: 1}, errors.New("exit 1")
	})
	if _, err := Search(context.Background(), "x", SearchOptions{HelperPath: "yt-dlp", Runner: runner}); err == nil {
		t.Error("Search() error = nil, want error")
	}
	if _, err := Search(context.Background(), "x", SearchOptions{}); err == nil {
		t.Error("Search() without helper path error = nil, want error")
	}
}

func TestInfoLocator(t *testing.T) {
	tests := []struct {
		info Info
		want string
	}{
		{Info{ID: "a1", Extractor: "Youtube"}, "https://www.youtube.com/watch?v=a1"},
		{Info{ID: "a1", URL: "https://x.example/a1"}, "https://x.example/a1"},
		{Info{ID: "a1", URL: "https://x/a", WebpageURL: "https://x/page"}, "https://x/page"},
		{Info{ID: "z", Extractor: "Vimeo"}, ""},
	}
	for _, tt := range tests {
		if got := tt.info.Locator(); got != tt.want {
			t.Errorf("Locator() = %q, want %q", got, tt.want)
		}
	}
}
