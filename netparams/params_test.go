// Copyright (c) 2026 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"testing"

	"github.com/btcsuite/btcd/chaincfg"
	"github.com/stretchr/testify/require"
)

// TestTestNet4Genesis checks the locally defined testnet4 genesis block
// against the known hash.
func TestTestNet4Genesis(t *testing.T) {
	require.Equal(t,
		"00000000da84f2bafbbc53dee25a72ae507ff4914b867c565be350b0da8bf043",
		testNet4GenesisBlock.BlockHash().String(),
	)
	require.Equal(t,
		"7aa0a7ae1e223414cb807e40cd57e667b718e42aaf9306db9102fe28912b7b4e",
		testNet4GenesisBlock.Header.MerkleRoot.String(),
	)
	require.Equal(t, *testNet4GenesisHash, testNet4GenesisBlock.BlockHash())

	require.Equal(t, []chaincfg.DNSSeed{
		{Host: "seed.testnet4.bitcoin.sprovoost.nl", HasFiltering: true},
		{Host: "seed.testnet4.wiz.biz", HasFiltering: true},
	}, TestNet4ChainParams.DNSSeeds)
	require.Equal(t, "48333", TestNet4ChainParams.DefaultPort)
}

func TestByName(t *testing.T) {
	tests := []struct {
		name string
		port string
	}{
		{"mainnet", "8332"},
		{"testnet3", "18332"},
		{"testnet4", "48332"},
		{"regtest", "18443"},
		{"signet", "38332"},
		{"simnet", "18554"},
	}
	for _, test := range tests {
		p, err := ByName(test.name)
		require.NoError(t, err, test.name)
		require.Equal(t, test.port, p.RPCPort, test.name)
	}

	_, err := ByName("nonet")
	require.Error(t, err)
}
