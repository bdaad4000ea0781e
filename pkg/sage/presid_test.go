package sage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractPresRefNumericWithPrefix(t *testing.T) {
	ref, err := ExtractPresRef("https://www.viewpresentation.com/66907679185")
	require.NoError(t, err)
	assert.True(t, ref.Numeric())
	// First four digits are a routing prefix.
	assert.Equal(t, int64(7679185), ref.ID)
}

func TestExtractPresRefShortNumeric(t *testing.T) {
	ref, err := ExtractPresRef("https://www.viewpresentation.com/7679185")
	require.NoError(t, err)
	assert.Equal(t, int64(7679185), ref.ID)
}

func TestExtractPresRefSageconnectCode(t *testing.T) {
	ref, err := ExtractPresRef("https://sageconnect.sage.com/Presentation/6GMWK4")
	require.NoError(t, err)
	assert.False(t, ref.Numeric())
	assert.Equal(t, "6GMWK4", ref.Code)
}

func TestExtractPresRefViewpresentationCode(t *testing.T) {
	ref, err := ExtractPresRef("https://www.viewpresentation.com/p/10041-dh2z")
	require.NoError(t, err)
	assert.Equal(t, "10041-dh2z", ref.Code)
}

func TestExtractPresRefInvalid(t *testing.T) {
	_, err := ExtractPresRef("https://example.com/whatever")
	assert.Error(t, err)
}

func TestExtractDimensions(t *testing.T) {
	assert.Equal(t, `3.5" Diameter`, ExtractDimensions(`Round coaster, 3.5" Diameter, cork back`))
	assert.NotEmpty(t, ExtractDimensions(`Tumbler measures 4" W x 8" H with straw`))
	assert.Empty(t, ExtractDimensions("No sizes mentioned here"))
	assert.Empty(t, ExtractDimensions(""))
}
