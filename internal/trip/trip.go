// Package trip holds the travel story data model: a trip made of ordered days,
// each day holding ordered media items and a loose set of stickers.
//
// The export pipeline only ever reads these values. Callers hand it a Clone so
// that edits made while an export is running never leak into the output.
package trip

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/goccy/go-json"
	"github.com/samber/lo"
)

// ErrValidation is returned when a trip fails structural validation.
var ErrValidation = errors.New("validation error")

// MediaType is the kind of a media item.
type MediaType string

const (
	MediaImage MediaType = "image"
	MediaVideo MediaType = "video"
)

// StickerType is the kind of a sticker.
type StickerType string

const (
	StickerEmoji    StickerType = "emoji"
	StickerText     StickerType = "text"
	StickerLocation StickerType = "location"
	StickerCategory StickerType = "category"
)

// Location is an optional place attached to a media item.
type Location struct {
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
	Name      string   `json:"name,omitempty"`
}

// MediaItem is one photo (or, nominally, video) on a day.
type MediaItem struct {
	ID        string    `json:"id"`
	Src       string    `json:"src"`
	Type      MediaType `json:"type"`
	Timestamp string    `json:"timestamp"`
	Location  *Location `json:"location,omitempty"`
	Caption   string    `json:"caption,omitempty"`
}

// LocationName returns the item's place name, or "" when it has none.
func (m MediaItem) LocationName() string {
	if m.Location == nil {
		return ""
	}
	return strings.TrimSpace(m.Location.Name)
}

// Position is a percentage coordinate (0-100 on each axis) relative to the frame.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// StickerStyle carries optional rotation (degrees) and scale.
type StickerStyle struct {
	Rotate float64 `json:"rotate,omitempty"`
	Scale  float64 `json:"scale,omitempty"`
}

// Sticker is a decorative annotation placed over a day's content.
type Sticker struct {
	ID        string        `json:"id"`
	Type      StickerType   `json:"type"`
	Content   string        `json:"content"`
	Position  Position      `json:"position"`
	Timestamp string        `json:"timestamp,omitempty"`
	Style     *StickerStyle `json:"style,omitempty"`
	Caption   string        `json:"caption,omitempty"`
}

// Scale returns the sticker scale, defaulting to 1.
func (s Sticker) Scale() float64 {
	if s.Style == nil || s.Style.Scale <= 0 {
		return 1
	}
	return s.Style.Scale
}

// Rotation returns the sticker rotation in degrees.
func (s Sticker) Rotation() float64 {
	if s.Style == nil {
		return 0
	}
	return s.Style.Rotate
}

// Day is one calendar day of a trip.
type Day struct {
	Date     string      `json:"date"`
	Items    []MediaItem `json:"items"`
	Stickers []Sticker   `json:"stickers"`
}

// Trip is the top-level record of a travel story.
type Trip struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	StartDate   string `json:"startDate"`
	EndDate     string `json:"endDate"`
	Days        []Day  `json:"days"`
	Theme       string `json:"theme,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
	BannerImage string `json:"bannerImage,omitempty"`
}

// TotalItems is the number of media items across all days.
func (t Trip) TotalItems() int {
	return lo.SumBy(t.Days, func(d Day) int { return len(d.Items) })
}

// FirstImage returns the banner image, or the first image item's source.
func (t Trip) FirstImage() string {
	if t.BannerImage != "" {
		return t.BannerImage
	}
	for _, d := range t.Days {
		for _, item := range d.Items {
			if item.Type == MediaImage && item.Src != "" {
				return item.Src
			}
		}
	}
	return ""
}

// Clone returns a deep copy of the trip.
func (t Trip) Clone() Trip {
	out := t
	out.Days = make([]Day, len(t.Days))
	for i, d := range t.Days {
		nd := Day{Date: d.Date}
		if d.Items != nil {
			nd.Items = make([]MediaItem, len(d.Items))
			for j, item := range d.Items {
				if item.Location != nil {
					loc := *item.Location
					item.Location = &loc
				}
				nd.Items[j] = item
			}
		}
		if d.Stickers != nil {
			nd.Stickers = make([]Sticker, len(d.Stickers))
			for j, s := range d.Stickers {
				if s.Style != nil {
					style := *s.Style
					s.Style = &style
				}
				nd.Stickers[j] = s
			}
		}
		out.Days[i] = nd
	}
	return out
}

// Validate checks the structural rules the export pipeline relies on.
func (t Trip) Validate() error {
	for i, d := range t.Days {
		for j, item := range d.Items {
			if item.Type != MediaImage && item.Type != MediaVideo {
				return fmt.Errorf("%w: day %d item %d has unknown type %q", ErrValidation, i+1, j+1, item.Type)
			}
		}
		for j, s := range d.Stickers {
			switch s.Type {
			case StickerEmoji, StickerText, StickerLocation, StickerCategory:
			default:
				return fmt.Errorf("%w: day %d sticker %d has unknown type %q", ErrValidation, i+1, j+1, s.Type)
			}
			if s.Position.X < 0 || s.Position.X > 100 || s.Position.Y < 0 || s.Position.Y > 100 {
				return fmt.Errorf("%w: day %d sticker %d position out of range", ErrValidation, i+1, j+1)
			}
		}
	}
	return nil
}

// Decode reads a trip from JSON.
func Decode(r io.Reader) (Trip, error) {
	var t Trip
	if err := json.NewDecoder(r).Decode(&t); err != nil {
		return Trip{}, fmt.Errorf("failed to decode trip: %w", err)
	}
	return t, nil
}

// Encode writes a trip as indented JSON.
func Encode(w io.Writer, t Trip) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(t); err != nil {
		return fmt.Errorf("failed to encode trip: %w", err)
	}
	return nil
}

var (
	spaceRun     = regexp.MustCompile(`\s+`)
	nonWordChars = regexp.MustCompile(`[^\w\-]+`)
	dashRun      = regexp.MustCompile(`\-\-+`)
)

// Slugify turns a title into a URL-friendly slug.
func Slugify(text string) string {
	s := strings.TrimSpace(strings.ToLower(text))
	s = spaceRun.ReplaceAllString(s, "-")
	s = strings.ReplaceAll(s, "&", "-and-")
	s = nonWordChars.ReplaceAllString(s, "")
	return dashRun.ReplaceAllString(s, "-")
}
