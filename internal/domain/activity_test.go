package domain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewCatalogValidation(t *testing.T) {
	_, err := NewCatalog()
	require.ErrorIs(t, err, ErrEmptyCatalog)

	_, err = NewCatalog(Activity{ID: " "})
	require.Error(t, err)

	_, err = NewCatalog(Activity{ID: "a"}, Activity{ID: "a"})
	require.ErrorContains(t, err, "duplicate")
}

func TestDefaultCatalogOrder(t *testing.T) {
	c := DefaultCatalog()
	require.Equal(t, 13, c.Len())
	require.Equal(t, "heart_rate", c.At(0).ID)
	require.Equal(t, "body_temperature", c.At(c.Len()-1).ID)

	a, ok := c.Lookup(" step_count ")
	require.True(t, ok)
	require.Equal(t, "count", a.Unit)

	_, ok = c.Lookup("sleep_analysis")
	require.False(t, ok)
}

func TestSubsetKeepsCatalogOrder(t *testing.T) {
	c, err := DefaultCatalog().Subset([]string{"body_mass", "heart_rate", "", "body_mass"})
	require.NoError(t, err)
	require.Equal(t, 2, c.Len())
	require.Equal(t, "heart_rate", c.At(0).ID)
	require.Equal(t, "body_mass", c.At(1).ID)

	_, err = DefaultCatalog().Subset([]string{"sleep_analysis"})
	require.ErrorIs(t, err, ErrUnknownActivity)

	_, err = DefaultCatalog().Subset(nil)
	require.ErrorIs(t, err, ErrEmptyCatalog)
}

func TestAllReturnsCopy(t *testing.T) {
	c := DefaultCatalog()
	all := c.All()
	all[0].ID = "changed"
	require.Equal(t, "heart_rate", c.At(0).ID)
}
