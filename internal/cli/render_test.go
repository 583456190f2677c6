package cli

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cdmlab/go_cdm/pkg/cdm"
	"github.com/cdmlab/go_cdm/pkg/pssh"
)

func TestRenderContentKeysFiltersOtherRoles(t *testing.T) {
	t.Parallel()

	keys := []cdm.ContentKey{
		{ID: [16]byte{1}, Key: []byte{0xAA, 0xBB}, Role: cdm.RoleContent},
		{ID: [16]byte{2}, Key: []byte{0xCC}, Role: cdm.RoleSigning},
		{ID: [16]byte{3}, Key: []byte{0xDD}, Role: cdm.RoleUnknown},
	}

	var sb strings.Builder
	RenderContentKeys(&sb, keys)

	out := sb.String()
	assert.Contains(t, out, ":aabb")
	assert.NotContains(t, out, ":cc")
	assert.NotContains(t, out, ":dd")
	assert.Equal(t, 1, strings.Count(out, "\n"))
}

func TestRenderBoxWidevine(t *testing.T) {
	t.Parallel()

	box := &pssh.Box{
		SystemID: pssh.WidevineSystemID,
		KeyIDs:   [][16]byte{{0xDE, 0xAD}},
	}
	parsed, err := pssh.Parse(box.Encode())
	require.NoError(t, err)

	var sb strings.Builder
	RenderBox(&sb, parsed)

	assert.Contains(t, sb.String(), "dead")
	assert.Contains(t, sb.String(), "widevine")
}
