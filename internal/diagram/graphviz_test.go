package diagram

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderImage_PNG(t *testing.T) {
	model, err := Build(approvalDefinition(), nil)
	require.NoError(t, err)

	png, err := RenderImage(context.Background(), model, FormatPNG)
	require.NoError(t, err)
	require.True(t, len(png) > 8, "PNG should be larger than header")

	// PNG magic bytes.
	assert.Equal(t, byte(0x89), png[0])
	assert.Equal(t, byte('P'), png[1])
	assert.Equal(t, byte('N'), png[2])
	assert.Equal(t, byte('G'), png[3])
}

func TestRenderImage_SVGWithOverlay(t *testing.T) {
	model, err := Build(approvalDefinition(), inProgressOverlay())
	require.NoError(t, err)

	svg, err := RenderImage(context.Background(), model, FormatSVG)
	require.NoError(t, err)
	assert.Contains(t, string(svg), "<svg")
	assert.Contains(t, string(svg), "Manager review")
}

func TestRenderImage_UnsupportedFormat(t *testing.T) {
	model, err := Build(approvalDefinition(), nil)
	require.NoError(t, err)

	_, err = RenderImage(context.Background(), model, "gif")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported image format")
}
