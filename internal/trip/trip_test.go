package trip

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTrip() Trip {
	return Trip{
		ID:        "trip-1",
		Title:     "Lisbon Weekend",
		StartDate: "2025-06-01",
		EndDate:   "2025-06-02",
		Days: []Day{
			{
				Date: "2025-06-01",
				Items: []MediaItem{
					{ID: "a", Src: "a.jpg", Type: MediaImage, Timestamp: "2025-06-01T10:00:00Z", Location: &Location{Name: "Alfama"}},
					{ID: "b", Src: "b.jpg", Type: MediaImage, Timestamp: "2025-06-01T09:00:00Z"},
				},
				Stickers: []Sticker{{ID: "s1", Type: StickerEmoji, Content: "🌞", Position: Position{X: 10, Y: 20}, Style: &StickerStyle{Scale: 2}}},
			},
			{
				Date:  "2025-06-02",
				Items: []MediaItem{{ID: "c", Src: "c.jpg", Type: MediaVideo, Timestamp: "2025-06-02T12:00:00Z"}},
			},
		},
	}
}

func TestTotalItems(t *testing.T) {
	assert.Equal(t, 3, sampleTrip().TotalItems())
	assert.Equal(t, 0, Trip{}.TotalItems())
}

func TestClone_IsDeep(t *testing.T) {
	orig := sampleTrip()
	clone := orig.Clone()

	clone.Days[0].Items[0].Location.Name = "Belém"
	clone.Days[0].Items[1].Caption = "changed"
	clone.Days[0].Stickers[0].Style.Scale = 5
	clone.Days = append(clone.Days, Day{Date: "2025-06-03"})

	assert.Equal(t, "Alfama", orig.Days[0].Items[0].Location.Name)
	assert.Empty(t, orig.Days[0].Items[1].Caption)
	assert.Equal(t, 2.0, orig.Days[0].Stickers[0].Style.Scale)
	assert.Len(t, orig.Days, 2)
}

func TestValidate(t *testing.T) {
	require.NoError(t, sampleTrip().Validate())

	untitled := sampleTrip()
	untitled.Title = "  "
	assert.NoError(t, untitled.Validate(), "untitled trips export as Untitled")

	badType := sampleTrip()
	badType.Days[0].Items[0].Type = "audio"
	assert.ErrorIs(t, badType.Validate(), ErrValidation)

	badPos := sampleTrip()
	badPos.Days[0].Stickers[0].Position.X = 120
	assert.ErrorIs(t, badPos.Validate(), ErrValidation)
}

func TestDecodeEncode_CamelCaseWireShape(t *testing.T) {
	raw := `{"id":"t","title":"Alps","startDate":"2024-01-01","endDate":"2024-01-02",
	"days":[{"date":"2024-01-01","items":[{"id":"i","src":"x.png","type":"image","timestamp":"2024-01-01T08:00:00Z","location":{"name":"Zermatt"},"caption":"Hi"}],
	"stickers":[{"id":"s","type":"text","content":"wow","position":{"x":50,"y":40},"style":{"rotate":12}}]}]}`

	tr, err := Decode(strings.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "Zermatt", tr.Days[0].Items[0].LocationName())
	assert.Equal(t, 12.0, tr.Days[0].Stickers[0].Rotation())
	assert.Equal(t, 1.0, tr.Days[0].Stickers[0].Scale())

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, tr))
	assert.Contains(t, buf.String(), `"startDate": "2024-01-01"`)
}

func TestSlugify(t *testing.T) {
	cases := map[string]string{
		"Summer in Lisbon":  "summer-in-lisbon",
		"  Rock & Roll  ":   "rock-and-roll",
		"Tokyo!!! 2024":     "tokyo-2024",
		"already-a--slug":   "already-a-slug",
	}
	for in, want := range cases {
		assert.Equal(t, want, Slugify(in), in)
	}
}

func TestFirstImage(t *testing.T) {
	tr := sampleTrip()
	assert.Equal(t, "a.jpg", tr.FirstImage())
	tr.BannerImage = "banner.jpg"
	assert.Equal(t, "banner.jpg", tr.FirstImage())
}

func TestDateFormatting(t *testing.T) {
	assert.Equal(t, "Thursday, June 15", FormatDayTitle("2023-06-15"))
	assert.Equal(t, "Jun 15, 2023", FormatItemDate("2023-06-15T18:30:00Z"))
	assert.Equal(t, "Thu, Jun 15", FormatShortDate("2023-06-15"))
	assert.Equal(t, "6:30 PM", FormatClock("2023-06-15T18:30:00Z"))
	assert.Empty(t, FormatItemDate("not a date"))

	ts, ok := ParseTimestamp("2023-06-15T18:30:00.123+02:00")
	require.True(t, ok)
	assert.Equal(t, 16, ts.UTC().Hour())
	_, ok = ParseTimestamp("")
	assert.False(t, ok)
}

func TestRelevantStickers(t *testing.T) {
	item := MediaItem{ID: "i", Timestamp: "2025-06-01T10:00:00Z"}
	at := func(d time.Duration) string {
		return time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC).Add(d).Format(time.RFC3339Nano)
	}
	stickers := []Sticker{
		{ID: "untimed"},
		{ID: "exact-boundary-before", Timestamp: at(-30 * time.Minute)},
		{ID: "exact-boundary-after", Timestamp: at(30 * time.Minute)},
		{ID: "one-ms-over", Timestamp: at(30*time.Minute + time.Millisecond)},
		{ID: "far", Timestamp: at(2 * time.Hour)},
		{ID: "garbage", Timestamp: "soon"},
	}

	got := RelevantStickers(stickers, item)

	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ID
	}
	assert.Equal(t, []string{"untimed", "exact-boundary-before", "exact-boundary-after"}, ids)
}

func TestRelevantStickers_ItemWithoutTimestamp(t *testing.T) {
	stickers := []Sticker{{ID: "untimed"}, {ID: "timed", Timestamp: "2025-06-01T10:00:00Z"}}

	got := RelevantStickers(stickers, MediaItem{ID: "i"})

	require.Len(t, got, 1)
	assert.Equal(t, "untimed", got[0].ID)
}
