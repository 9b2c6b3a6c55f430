package style

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender_NoColor(t *testing.T) {
	t.Parallel()
	assert.Equal(t, CheckMark, Render(false, Success, CheckMark))
}

func TestRender_Color(t *testing.T) {
	t.Parallel()
	assert.Contains(t, Render(true, Failure, "boom"), "boom")
}

func TestIsTerminal_RegularFile(t *testing.T) {
	t.Parallel()

	f, err := os.CreateTemp(t.TempDir(), "out")
	require.NoError(t, err)
	defer f.Close()

	assert.False(t, IsTerminal(f))
}
