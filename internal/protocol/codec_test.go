package protocol

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDynamicUpdatesRoundTrip(t *testing.T) {
	body := DynamicUpdatesBody{
		Region: RegionPos{X: -3, Z: 7},
		Entries: []DynamicUpdateEntry{
			{Kind: DynamicEnter, ID: 1, T: Transform{Pos: Vec3{X: 1, Y: 2, Z: 3}, Rot: Quat{W: 1}}},
			{Kind: DynamicExit, ID: 2},
			{Kind: DynamicUpdate, ID: 3, T: Transform{Pos: Vec3{X: -1.5, Y: 0, Z: 9.25}, Rot: Quat{X: 0.1, W: 0.9}}},
		},
		Tick: 12345,
	}

	decoded, err := DecodeDynamicUpdates(EncodeDynamicUpdates(body))
	require.NoError(t, err)
	require.Equal(t, body, decoded)
}

func TestWorldEnterRoundTrip(t *testing.T) {
	body := WorldEnterBody{
		SelfID: 42, Pos: Vec3{X: 1, Y: 2, Z: 3}, Rotation: Quat{W: 1},
		Size: 1.0, RegionSize: 64, MaxActiveRegions: 100,
		TickDeltaMillis: 50, Tick: 999,
	}
	decoded, err := DecodeWorldEnter(EncodeWorldEnter(body))
	require.NoError(t, err)
	require.Equal(t, body, decoded)
}

func TestStaticSetupRoundTrip(t *testing.T) {
	body := StaticSetupBody{Region: RegionPos{X: 2, Z: -2}, Heights: []byte{1, 2, 3, 4, 5}, RegionSize: 64}
	decoded, err := DecodeStaticSetup(EncodeStaticSetup(body))
	require.NoError(t, err)
	require.Equal(t, body, decoded)
}

func TestDecodeShortBufferErrors(t *testing.T) {
	_, err := DecodeWorldEnter([]byte{1, 2, 3})
	require.ErrorIs(t, err, ErrShortBuffer)
}
