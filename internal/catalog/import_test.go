package catalog

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestNewItemFromImport(t *testing.T) {
	t.Parallel()

	t.Run("store exclusive", func(t *testing.T) {
		t.Parallel()
		item := NewItemFromImport(ImportRecord{
			Name:      "Sailor Moon",
			Series:    "Animation",
			Number:    "331",
			Exclusive: "Hot Topic",
		})
		require.NotEqual(t, uuid.Nil, item.ID)
		require.Equal(t, "Sailor Moon", item.Name)
		require.Equal(t, "331", item.Number)
		require.True(t, item.IsExclusive)
		require.True(t, item.IsStickered)
		require.Equal(t, "HOT TOPIC", item.StickerType)
		require.Equal(t, 1.8, item.StickerMultiplier)
		require.False(t, item.IsChase)
	})

	t.Run("chase from name", func(t *testing.T) {
		t.Parallel()
		item := NewItemFromImport(ImportRecord{Name: "Darth Maul (Chase)", Series: "Star Wars"})
		require.True(t, item.IsChase)
		require.True(t, item.IsStickered)
		require.Equal(t, "CHASE", item.StickerType)
		require.Equal(t, 4.0, item.StickerMultiplier)
		require.False(t, item.IsExclusive)
	})

	t.Run("common item has neutral multiplier", func(t *testing.T) {
		t.Parallel()
		item := NewItemFromImport(ImportRecord{Name: "Mickey Mouse", Series: "Disney", IsVaulted: true})
		require.False(t, item.IsStickered)
		require.Equal(t, 1.0, item.StickerMultiplier)
		require.True(t, item.IsVaulted)
		require.Nil(t, item.EstimatedValue)
		require.Nil(t, item.LastPriceUpdate)
	})
}
