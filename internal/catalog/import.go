package catalog

import "github.com/google/uuid"

// ImportRecord is one row of a catalog seed file.
type ImportRecord struct {
	Name      string `json:"name"`
	Series    string `json:"series"`
	Number    string `json:"number,omitempty"`
	Variant   string `json:"variant,omitempty"`
	Exclusive string `json:"exclusive,omitempty"`
	IsVaulted bool   `json:"is_vaulted,omitempty"`
}

// NewItemFromImport builds a CatalogItem from a seed record, classifying
// its sticker from the name and exclusivity label via DetectSticker.
func NewItemFromImport(rec ImportRecord) CatalogItem {
	sticker := DetectSticker(rec.Name, rec.Exclusive)
	return CatalogItem{
		ID:                uuid.New(),
		Name:              rec.Name,
		Series:            rec.Series,
		Number:            rec.Number,
		Variant:           rec.Variant,
		IsChase:           sticker.IsChase,
		IsExclusive:       rec.Exclusive != "",
		IsVaulted:         rec.IsVaulted,
		IsStickered:       sticker.IsStickered,
		StickerType:       sticker.StickerType,
		StickerMultiplier: sticker.Multiplier,
	}
}
