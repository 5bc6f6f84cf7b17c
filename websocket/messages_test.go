package websocket

import (
	"testing"

	"github.com/aukilabs/eihwaz/geometry"
	"github.com/aukilabs/go-tooling/pkg/errors"
	"github.com/golang/geo/r3"
	"github.com/stretchr/testify/require"
)

func TestParseMsg(t *testing.T) {
	t.Run("message type is read", func(t *testing.T) {
		msg, err := ParseMsg([]byte(`{"type":"entity_add_request","request_id":3}`))
		require.NoError(t, err)
		require.Equal(t, MsgTypeEntityAddRequest, msg.Type)

		var req EntityAddRequest
		err = msg.DataTo(&req)
		require.NoError(t, err)
		require.Equal(t, uint32(3), req.RequestID)
	})

	t.Run("invalid json is rejected", func(t *testing.T) {
		_, err := ParseMsg([]byte(`{"type":`))
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeMsgInvalid))
	})

	t.Run("message without type is rejected", func(t *testing.T) {
		_, err := ParseMsg([]byte(`{"request_id":3}`))
		require.Error(t, err)
		require.True(t, errors.IsType(err, ErrTypeMsgInvalid))
	})
}

func TestMsgFrom(t *testing.T) {
	msg, err := MsgFrom(newErrorResponse(12, ErrorCodeNotFound))
	require.NoError(t, err)
	require.Equal(t, MsgTypeErrorResponse, msg.Type)
	require.Contains(t, string(msg.Data), `"code":"not_found"`)
	require.Contains(t, string(msg.Data), `"request_id":12`)
}

func TestBoundsData(t *testing.T) {
	t.Run("empty data has no bounds", func(t *testing.T) {
		require.False(t, BoundsData{}.Bounds().Valid())
	})

	t.Run("box gets a sphere", func(t *testing.T) {
		b := BoundsData{
			Box: &BoxData{
				Min: [3]float64{-1, -1, -1},
				Max: [3]float64{1, 1, 1},
			},
		}.Bounds()

		box, ok := b.Box()
		require.True(t, ok)
		require.Equal(t, r3.Vector{X: 1, Y: 1, Z: 1}, box.Max())

		s, ok := b.Sphere()
		require.True(t, ok)
		require.Equal(t, r3.Vector{}, s.Center)
		require.Greater(t, s.Radius, 0.0)
	})

	t.Run("sphere only", func(t *testing.T) {
		b := geometry.NewSphereBounds(geometry.BoundingSphere{
			Center: r3.Vector{X: 1, Y: 2, Z: 3},
			Radius: 4,
		})

		d := BoundsDataFrom(b)
		require.Nil(t, d.Box)
		require.NotNil(t, d.Sphere)
		require.Equal(t, [3]float64{1, 2, 3}, d.Sphere.Center)
		require.Equal(t, 4.0, d.Sphere.Radius)

		_, ok := d.Bounds().Box()
		require.False(t, ok)
	})

	t.Run("box wins over its derived sphere", func(t *testing.T) {
		b := geometry.NewBoxBounds(geometry.NewBoundingBox(
			r3.Vector{X: 0, Y: 0, Z: 0},
			r3.Vector{X: 2, Y: 4, Z: 6},
		))

		d := BoundsDataFrom(b)
		require.Nil(t, d.Sphere)
		require.Equal(t, [3]float64{2, 4, 6}, d.Box.Max)
	})
}
