package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGetNaivevmVersion(t *testing.T) {
	v := GetNaivevmVersion()
	if v != Default {
		// Stamped from version control.
		require.True(t, strings.HasPrefix(v, "v"), v)
	}
}
