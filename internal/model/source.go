package model

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"text/template"

	"mediaq/internal/util"
)

// Media types understood by programs and sources.
const (
	MediaVideo = "video"
	MediaAudio = "audio"
	MediaImage = "image"
	MediaText  = "text"
)

// DefaultFilenameTemplate names downloads when neither source nor provider sets one.
const DefaultFilenameTemplate = "{{.title}}.{{.ext}}"

// ErrInvalidFilenameTemplate is returned when a filename template does not parse
// or references a field that is not available.
var ErrInvalidFilenameTemplate = errors.New("invalid filename template")

// AnyPlayer is the HelperRule player key that applies when no rule names the player.
const AnyPlayer = "*"

// HelperRule says which helper to put in front of a player. An empty Helper
// means the player opens the locator itself.
type HelperRule struct {
	Player string `mapstructure:"player" yaml:"player"`
	Helper string `mapstructure:"helper" yaml:"helper"`
}

// HelperRules is an ordered rule list; the first rule for a player wins.
type HelperRules []HelperRule

// For returns the helper for player, falling back to the AnyPlayer rule.
// ok is false when no rule applies.
func (r HelperRules) For(player string) (helper string, ok bool) {
	for _, rule := range r {
		if rule.Player == player {
			return rule.Helper, true
		}
	}
	for _, rule := range r {
		if rule.Player == AnyPlayer || rule.Player == "" {
			return rule.Helper, true
		}
	}
	return "", false
}

// Source is one playable or downloadable locator inside a Listing.
type Source struct {
	Locator   string
	MediaType string
	// Helper overrides the provider's default helper rules for this source.
	Helper HelperRules
	// FilenameTemplate is a text/template over the download variables.
	FilenameTemplate string
	Vars             map[string]any
}

// DownloadFilename renders the source's filename template. String variables are
// sanitized before rendering so a "/" in the template is the only way to create
// subdirectories. vars override the source's own variables.
func (s Source) DownloadFilename(vars map[string]any) (string, error) {
	tmpl := s.FilenameTemplate
	if tmpl == "" {
		tmpl = DefaultFilenameTemplate
	}
	t, err := template.New("filename").Option("missingkey=error").Parse(tmpl)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFilenameTemplate, err)
	}

	data := map[string]any{"ext": s.defaultExt()}
	for k, v := range s.Vars {
		data[k] = v
	}
	for k, v := range vars {
		data[k] = v
	}
	for k, v := range data {
		if str, ok := v.(string); ok {
			data[k] = util.SanitizeFilename(str)
		}
	}

	var b bytes.Buffer
	if err := t.Execute(&b, data); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFilenameTemplate, err)
	}
	name := path.Clean(strings.TrimSpace(b.String()))
	if name == "." || name == "" || strings.HasPrefix(name, "../") || name == ".." {
		return "", fmt.Errorf("%w: %q renders to %q", ErrInvalidFilenameTemplate, tmpl, name)
	}
	return name, nil
}

func (s Source) defaultExt() string {
	if ext := util.Ext(s.Locator); ext != "" && len(ext) <= 5 {
		return ext
	}
	switch s.MediaType {
	case MediaAudio:
		return "m4a"
	case MediaImage:
		return "jpg"
	case MediaText:
		return "html"
	default:
		return "mp4"
	}
}

var extMediaTypes = map[string]string{
	"mp4": MediaVideo, "mkv": MediaVideo, "webm": MediaVideo, "mov": MediaVideo,
	"avi": MediaVideo, "m3u8": MediaVideo, "ts": MediaVideo, "flv": MediaVideo,
	"mp3": MediaAudio, "m4a": MediaAudio, "ogg": MediaAudio, "opus": MediaAudio,
	"flac": MediaAudio, "wav": MediaAudio, "aac": MediaAudio,
	"jpg": MediaImage, "jpeg": MediaImage, "png": MediaImage, "gif": MediaImage,
	"webp": MediaImage,
	"html": MediaText, "htm": MediaText, "txt": MediaText,
}

// GuessMediaType infers a media type from the locator's extension, defaulting
// to video since most remote pages resolve to a video stream.
func GuessMediaType(locator string) string {
	if mt, ok := extMediaTypes[util.Ext(locator)]; ok {
		return mt
	}
	return MediaVideo
}

// IsMediaExt reports whether ext (without dot) is a known media extension.
func IsMediaExt(ext string) bool {
	mt, ok := extMediaTypes[strings.ToLower(ext)]
	return ok && mt != MediaText
}
