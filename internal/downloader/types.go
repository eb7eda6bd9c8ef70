package downloader

// Info mirrors fields from yt-dlp --dump-json output that we care about.
// With --flat-playlist only the cheap fields (id, title, url, duration) are filled.
type Info struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	URL         string  `json:"url"`
	WebpageURL  string  `json:"webpage_url"`
	Uploader    string  `json:"uploader"`
	Channel     string  `json:"channel"`
	Duration    float64 `json:"duration"`
	Description string  `json:"description"`
	Width       int     `json:"width"`
	Height      int     `json:"height"`
	Extractor   string  `json:"ie_key"`
}

// Locator returns the URL a player or helper should open for the entry.
func (i Info) Locator() string {
	if i.WebpageURL != "" {
		return i.WebpageURL
	}
	if i.URL != "" {
		return i.URL
	}
	if i.ID != "" && (i.Extractor == "" || i.Extractor == "Youtube") {
		return "https://www.youtube.com/watch?v=" + i.ID
	}
	return ""
}

// Author prefers the uploader and falls back to the channel name.
func (i Info) Author() string {
	if i.Uploader != "" {
		return i.Uploader
	}
	return i.Channel
}
