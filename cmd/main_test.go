package main

import (
	"testing"
	"time"

	"github.com/aukilabs/eihwaz/featureflag"
	"github.com/stretchr/testify/require"
)

func testConfig() config {
	return config{
		PublicEndpoint: "http://localhost:4000",
		ServerID:       "eihwaz",
		FrameDuration:  time.Millisecond * 15,
		Octree: octreeConfig{
			InitialSize: 64,
			Looseness:   1.25,
			MinNodeSize: 1,
			MaxObjects:  8,
		},
	}
}

func TestValidateConfig(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		require.NoError(t, validateConfig(testConfig()))
	})

	t.Run("invalid public endpoint", func(t *testing.T) {
		c := testConfig()
		c.PublicEndpoint = "localhost"
		require.Error(t, validateConfig(c))
	})

	t.Run("empty server id", func(t *testing.T) {
		c := testConfig()
		c.ServerID = ""
		require.Error(t, validateConfig(c))
	})

	t.Run("zero frame duration", func(t *testing.T) {
		c := testConfig()
		c.FrameDuration = 0
		require.Error(t, validateConfig(c))
	})
}

func TestNewSceneConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := newSceneConfig(testConfig(), featureflag.New(nil))
		require.Equal(t, time.Millisecond*15, c.FrameDuration)
		require.Equal(t, 64.0, c.Octree.InitialSize)
		require.Equal(t, 1.25, c.Octree.Looseness)
		require.Equal(t, 1.0, c.Octree.MinNodeSize)
		require.Equal(t, 8, c.Octree.MaxObjects)
		require.False(t, c.Octree.BoxCulling)
		require.False(t, c.Octree.Shrink)
	})

	t.Run("feature flags", func(t *testing.T) {
		c := newSceneConfig(testConfig(), featureflag.New([]string{
			string(featureflag.FlagEnableBoxCulling),
			string(featureflag.FlagEnableOctreeShrink),
		}))
		require.True(t, c.Octree.BoxCulling)
		require.True(t, c.Octree.Shrink)
	})
}
