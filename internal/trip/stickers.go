package trip

import (
	"time"

	"github.com/samber/lo"
)

// StickerWindow is how far a timestamped sticker may sit from an item and
// still be drawn on it. The bound is inclusive.
const StickerWindow = 30 * time.Minute

// RelevantStickers returns the stickers of a day that belong on item, in
// their original order. Stickers without a timestamp belong on every item.
// A timestamped sticker needs a parseable item timestamp within StickerWindow.
func RelevantStickers(stickers []Sticker, item MediaItem) []Sticker {
	itemAt, itemOK := ParseTimestamp(item.Timestamp)
	return lo.Filter(stickers, func(s Sticker, _ int) bool {
		if s.Timestamp == "" {
			return true
		}
		at, ok := ParseTimestamp(s.Timestamp)
		if !ok || !itemOK {
			return false
		}
		d := at.Sub(itemAt)
		if d < 0 {
			d = -d
		}
		return d <= StickerWindow
	})
}
