package binstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolverSmallPayloadStaysBase64(t *testing.T) {
	c := NewTransferCoordinator(NewStreamRegistry(), testCaps(ModeStream))
	r := NewContentResolver(c, testCaps(ModeStream), WithBase64Threshold(1024))

	content, err := r.Resolve([]byte("small"), "text/plain")
	require.NoError(t, err)
	assert.False(t, content.IsBinary())
	assert.Equal(t, []byte("small"), content.Data)
	assert.Equal(t, 0, c.registry.Len())
}

func TestResolverLargePayloadGoesBinary(t *testing.T) {
	c := NewTransferCoordinator(NewStreamRegistry(), testCaps(ModeStream))
	r := NewContentResolver(c, testCaps(ModeStream), WithBase64Threshold(1024))

	payload := testPayload(2048)
	content, err := r.Resolve(payload, "application/octet-stream")
	require.NoError(t, err)
	require.True(t, content.IsBinary())
	require.NotNil(t, content.Ref)

	assert.Equal(t, uint64(2048), content.Ref.Size)
	assert.Equal(t, ChecksumHex(payload), content.Ref.Checksum)
	assert.Equal(t, "application/octet-stream", content.Ref.MimeType)

	desc, err := c.registry.Lookup(content.Ref.StreamID)
	require.NoError(t, err)
	assert.Equal(t, StateRegistered, desc.State)
	assert.Equal(t, DirectionSource, desc.Direction)
}

func TestResolverPreferBinaryOverridesThreshold(t *testing.T) {
	c := NewTransferCoordinator(NewStreamRegistry(), testCaps(ModeStream))
	r := NewContentResolver(c, testCaps(ModeStream), WithBase64Threshold(1024))

	content, err := r.Resolve([]byte("tiny"), "text/plain", PreferBinary())
	require.NoError(t, err)
	assert.True(t, content.IsBinary())
}

func TestResolverUnsupportedSessionFallsBack(t *testing.T) {
	c := NewTransferCoordinator(NewStreamRegistry(), EffectiveCapability{})
	r := NewContentResolver(c, EffectiveCapability{}, WithBase64Threshold(10))

	content, err := r.Resolve(testPayload(1000), "application/octet-stream")
	require.NoError(t, err)
	assert.False(t, content.IsBinary())
}

func TestResolverOversizedPayloadFallsBack(t *testing.T) {
	caps := testCaps(ModeStream)
	caps.MaxBinarySize = uint64Ptr(500)
	c := NewTransferCoordinator(NewStreamRegistry(), caps)
	r := NewContentResolver(c, caps, WithBase64Threshold(10))

	content, err := r.Resolve(testPayload(1000), "application/octet-stream")
	require.NoError(t, err)
	assert.False(t, content.IsBinary())
	assert.Equal(t, 0, c.registry.Len())
}

func TestResolverNoPreferredModeFallsBack(t *testing.T) {
	caps := testCaps(ModeStream)
	c := NewTransferCoordinator(NewStreamRegistry(), caps)
	r := NewContentResolver(c, caps,
		WithBase64Threshold(10),
		WithModePreference(ModeMultipart))

	content, err := r.Resolve(testPayload(1000), "application/octet-stream")
	require.NoError(t, err)
	assert.False(t, content.IsBinary())
}

func TestResolverModePreferenceSelectsMode(t *testing.T) {
	caps := testCaps(ModeStream, ModeBinaryFrame)
	c := NewTransferCoordinator(NewStreamRegistry(), caps)
	r := NewContentResolver(c, caps,
		WithBase64Threshold(10),
		WithModePreference(ModeBinaryFrame, ModeStream))

	content, err := r.Resolve(testPayload(1000), "application/octet-stream")
	require.NoError(t, err)
	require.True(t, content.IsBinary())

	desc, err := c.registry.Lookup(content.Ref.StreamID)
	require.NoError(t, err)
	assert.Equal(t, ModeBinaryFrame, desc.Mode)
}
