// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"encoding/hex"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/podle"
	"github.com/stretchr/testify/require"
)

func newTestCommitment(t *testing.T) podle.Commitment {
	t.Helper()

	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)

	proof, err := podle.Generate(priv, 0)
	require.NoError(t, err)
	return proof.Commitment()
}

// TestOpenRegistryReopen checks that every registry backend selectable from
// the command line keeps used commitments across a restart.
func TestOpenRegistryReopen(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		registry string
		dsn      func(dir string) string
	}{
		{
			name:     "bdb",
			registry: defaultRegistry,
		},
		{
			name:     "sqlite",
			registry: "sqlite",
			dsn: func(dir string) string {
				return "file:" + filepath.Join(
					dir, sqliteRegistryFilename,
				) + "?_pragma=busy_timeout(5000)"
			},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			ctx := context.Background()
			cfg := &config{
				DataDir:  filepath.Join(t.TempDir(), "regtest"),
				Registry: test.registry,
			}
			if test.dsn != nil {
				cfg.RegistryDSN = test.dsn(cfg.DataDir)
			}

			registry, err := openRegistry(ctx, cfg)
			require.NoError(t, err)

			c := newTestCommitment(t)
			rec := commitstore.Record{OfferID: 3}
			require.NoError(t, registry.Insert(ctx, c, rec))
			require.NoError(t, registry.Close())

			registry, err = openRegistry(ctx, cfg)
			require.NoError(t, err)
			defer registry.Close()

			found, err := registry.Contains(ctx, c)
			require.NoError(t, err)
			require.True(t, found)
			require.ErrorIs(t, registry.Insert(ctx, c, rec),
				commitstore.ErrAlreadyUsed)
		})
	}
}

func TestListCommitments(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	registry := commitstore.NewMemStore()

	var out bytes.Buffer
	require.NoError(t, listCommitments(ctx, &out, registry))
	require.Equal(t, "0 used commitments\n", out.String())

	c := newTestCommitment(t)
	err := registry.Insert(ctx, c, commitstore.Record{
		OfferID:      12,
		FirstSeen:    time.Unix(1700000000, 0),
		Counterparty: []byte("02abcdef"),
	})
	require.NoError(t, err)

	out.Reset()
	require.NoError(t, listCommitments(ctx, &out, registry))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 2)

	fields := strings.Split(lines[0], "\t")
	require.Equal(t, []string{
		hex.EncodeToString(c[:]), "offer 12", "2023-11-14T22:13:20Z",
		"02abcdef",
	}, fields)
	require.Equal(t, "1 used commitment", lines[1])
}

func TestCounterpartyString(t *testing.T) {
	t.Parallel()

	require.Equal(t, "-", counterpartyString(nil))
	require.Equal(t, "03ff", counterpartyString([]byte("03ff")))
}
