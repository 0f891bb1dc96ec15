// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package build

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDeployment(t *testing.T) {
	t.Parallel()

	require.Equal(t, "development", Development.String())
	require.Equal(t, "production", Production.String())
	require.Equal(t, "unknown", DeploymentType(9).String())

	// Exactly one deployment is compiled in.
	require.NotEqual(t, IsProdBuild(), IsDevBuild())
	require.Equal(t, Deployment == Production, IsProdBuild())
}
