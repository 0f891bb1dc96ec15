// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNodeVersion(t *testing.T) {
	tests := []struct {
		version    int32
		want       semver
		compatible bool
	}{
		{160300, semver{0, 16, 3}, false},
		{170000, semver{0, 17, 0}, true},
		{170100, semver{0, 17, 1}, true},
		{210200, semver{0, 21, 2}, true},
		{220000, semver{22, 0, 0}, true},
		{280100, semver{28, 1, 0}, true},
	}
	for _, test := range tests {
		got := nodeVersion(test.version)
		require.Equal(t, test.want, got, test.version)
		require.Equal(t, test.compatible,
			semverCompatible(minBackendVersion, got), test.version)
	}
}

func TestSemverCompatible(t *testing.T) {
	required := semver{1, 2, 3}
	require.True(t, semverCompatible(required, semver{1, 2, 3}))
	require.True(t, semverCompatible(required, semver{1, 3, 0}))
	require.True(t, semverCompatible(required, semver{2, 0, 0}))
	require.False(t, semverCompatible(required, semver{1, 2, 2}))
	require.False(t, semverCompatible(required, semver{1, 1, 9}))
	require.False(t, semverCompatible(required, semver{0, 9, 9}))
}
