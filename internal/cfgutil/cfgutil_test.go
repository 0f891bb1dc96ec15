// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

func TestAmountFlag(t *testing.T) {
	tests := []struct {
		value string
		want  btcutil.Amount
		err   bool
	}{
		{"0.001", 100000, false},
		{"1 BTC", 1e8, false},
		{"546sat", 546, false},
		{"546 sat", 546, false},
		{"1.5sat", 0, true},
		{"abc", 0, true},
	}
	for _, test := range tests {
		var a AmountFlag
		err := a.UnmarshalFlag(test.value)
		if test.err {
			require.Error(t, err, test.value)
			continue
		}
		require.NoError(t, err, test.value)
		require.Equal(t, test.want, a.Amount, test.value)
	}
}

func TestExplicitString(t *testing.T) {
	s := NewExplicitString("default")
	require.False(t, s.ExplicitlySet())
	require.NoError(t, s.UnmarshalFlag("default"))
	require.True(t, s.ExplicitlySet())
	require.Equal(t, "default", s.Value)
}

func TestExplicitAmount(t *testing.T) {
	a := NewExplicitAmount(0)
	require.False(t, a.ExplicitlySet())

	require.Error(t, a.UnmarshalFlag("lots"))
	require.False(t, a.ExplicitlySet())

	require.NoError(t, a.UnmarshalFlag("0"))
	require.True(t, a.ExplicitlySet())
	require.Zero(t, a.Amount)

	require.NoError(t, a.UnmarshalFlag("1000sat"))
	s, err := a.MarshalFlag()
	require.NoError(t, err)
	require.Equal(t, "0.00001 BTC", s)
}

func TestCleanAndExpandPath(t *testing.T) {
	t.Setenv("BTCJOIN_TEST_DIR", "/tmp/btcjoin")

	require.Equal(t, "", CleanAndExpandPath(""))
	require.Equal(t, "/tmp/btcjoin/data",
		CleanAndExpandPath("$BTCJOIN_TEST_DIR/./data/"))
	require.False(t, strings.HasPrefix(CleanAndExpandPath("~/x"), "~"))
}

func TestFileExists(t *testing.T) {
	dir := t.TempDir()
	ok, err := FileExists(dir)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = FileExists(filepath.Join(dir, "missing"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNormalizeRPCAddress(t *testing.T) {
	tests := []struct {
		addr     string
		hostport string
		tls      bool
	}{
		{"localhost", "localhost:8332", false},
		{"localhost:18443", "localhost:18443", false},
		{"http://127.0.0.1:8332/", "127.0.0.1:8332", false},
		{"https://node.example", "node.example:8332", true},
	}
	for _, test := range tests {
		hostport, tls, err := NormalizeRPCAddress(test.addr, "8332")
		require.NoError(t, err, test.addr)
		require.Equal(t, test.hostport, hostport, test.addr)
		require.Equal(t, test.tls, tls, test.addr)
	}
}
