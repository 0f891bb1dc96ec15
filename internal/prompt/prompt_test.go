// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func redirected(t *testing.T) {
	t.Helper()

	orig := isTerminal
	isTerminal = func() bool { return false }
	t.Cleanup(func() { isTerminal = orig })
}

func TestConfirm(t *testing.T) {
	redirected(t)

	tests := []struct {
		input      string
		defaultYes bool
		want       bool
	}{
		{"y\n", false, true},
		{"YES\n", false, true},
		{"n\n", true, false},
		{"\n", true, true},
		{"\n", false, false},
		{"maybe\nyes\n", false, true},
	}
	for _, test := range tests {
		r := bufio.NewReader(strings.NewReader(test.input))
		got, err := Confirm(r, "Send?", test.defaultYes)
		require.NoError(t, err, test.input)
		require.Equal(t, test.want, got, test.input)
	}

	_, err := Confirm(bufio.NewReader(strings.NewReader("")), "Send?", true)
	require.Error(t, err)
}

func TestPrivateKey(t *testing.T) {
	redirected(t)

	keyHex := strings.Repeat("01", 32)
	input := "zz\n" + "abcd\n" + keyHex + "\n"
	priv, err := PrivateKey(bufio.NewReader(strings.NewReader(input)))
	require.NoError(t, err)
	require.Equal(t, keyHex, hex.EncodeToString(priv.Serialize()))

	_, err = PrivateKey(bufio.NewReader(strings.NewReader("zz\n")))
	require.Error(t, err)
}

func TestPrivateKeyTerminal(t *testing.T) {
	origTerm, origRead := isTerminal, readPassword
	t.Cleanup(func() {
		isTerminal, readPassword = origTerm, origRead
	})

	keyHex := strings.Repeat("02", 32)
	isTerminal = func() bool { return true }
	readPassword = func() ([]byte, error) {
		return []byte(" " + keyHex + " "), nil
	}

	priv, err := PrivateKey(bufio.NewReader(strings.NewReader("")))
	require.NoError(t, err)
	require.Equal(t, keyHex, hex.EncodeToString(priv.Serialize()))
}
