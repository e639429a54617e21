package geo

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("lat and lon", func(t *testing.T) {
		p, err := Parse("geo:52.099,-106.630")
		require.NoError(t, err)
		assert.Equal(t, 52.099, p.Lat)
		assert.Equal(t, -106.63, p.Lon)
		assert.Nil(t, p.Alt)
	})

	t.Run("with altitude", func(t *testing.T) {
		p, err := Parse("geo:48.2010,16.3695;u=183")
		require.NoError(t, err)
		assert.Equal(t, 48.2010, p.Lat)
		assert.Equal(t, 16.3695, p.Lon)
		require.NotNil(t, p.Alt)
		assert.Equal(t, 183.0, *p.Alt)
	})

	t.Run("negative altitude", func(t *testing.T) {
		p, err := Parse("geo:13.4125,103.8667;u=-45.5")
		require.NoError(t, err)
		require.NotNil(t, p.Alt)
		assert.Equal(t, -45.5, *p.Alt)
	})

	t.Run("non-numeric altitude is treated as absent", func(t *testing.T) {
		p, err := Parse("geo:52.099,-106.630;u=high")
		require.NoError(t, err)
		assert.Nil(t, p.Alt)
	})

	t.Run("unknown parameters are ignored", func(t *testing.T) {
		p, err := Parse("geo:52.099,-106.630;crs=wgs84;u=12")
		require.NoError(t, err)
		require.NotNil(t, p.Alt)
		assert.Equal(t, 12.0, *p.Alt)
	})

	t.Run("integer coordinates", func(t *testing.T) {
		p, err := Parse("geo:52,-106")
		require.NoError(t, err)
		assert.Equal(t, 52.0, p.Lat)
		assert.Equal(t, -106.0, p.Lon)
	})

	t.Run("malformed", func(t *testing.T) {
		for _, uri := range []string{
			"",
			"52.099,-106.630",
			"gps:52.099,-106.630",
			"geo:52.099",
			"geo:north,south",
			"geo:52.099,west",
			"geo:,-106.630",
		} {
			_, err := Parse(uri)
			assert.ErrorIs(t, err, ErrMalformedLocation, "uri %q", uri)
		}
	})
}

func TestFormat(t *testing.T) {
	alt := 183.0

	assert.Equal(t, "geo:52.099,-106.63", Format(Point{Lat: 52.099, Lon: -106.63}))
	assert.Equal(t, "geo:48.201,16.3695;u=183", Format(Point{Lat: 48.201, Lon: 16.3695, Alt: &alt}))
}

func TestRoundTrip(t *testing.T) {
	alt := -12.25
	points := []Point{
		{Lat: 0, Lon: 0},
		{Lat: 52.099, Lon: -106.63},
		{Lat: -33.8688, Lon: 151.2093},
		{Lat: 89.9999, Lon: -179.9999, Alt: &alt},
	}

	for _, want := range points {
		got, err := Parse(Format(want))
		require.NoError(t, err)
		assert.Equal(t, want.Lat, got.Lat)
		assert.Equal(t, want.Lon, got.Lon)
		if want.Alt == nil {
			assert.Nil(t, got.Alt)
		} else {
			require.NotNil(t, got.Alt)
			assert.Equal(t, *want.Alt, *got.Alt)
		}
	}
}
