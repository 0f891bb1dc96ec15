// Copyright (c) 2016 The Decred developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package chain

import (
	"errors"
	"fmt"
)

// ErrUnsupportedBackend is returned by CheckBackend when the node predates
// the PSBT RPCs.
var ErrUnsupportedBackend = errors.New("unsupported backend version")

// minBackendVersion is the first bitcoind release with walletprocesspsbt.
var minBackendVersion = semver{major: 0, minor: 17, patch: 0}

type semver struct {
	major, minor, patch uint32
}

func (s semver) String() string {
	return fmt.Sprintf("%d.%d.%d", s.major, s.minor, s.patch)
}

// nodeVersion decodes the integer version reported by getnetworkinfo.
// Releases before 22.0 were numbered 0.x.y and encode 10000*x + 100*y,
// later ones encode 10000*major + 100*minor.
func nodeVersion(v int32) semver {
	if v < 220000 {
		return semver{
			minor: uint32(v / 10000),
			patch: uint32(v / 100 % 100),
		}
	}
	return semver{
		major: uint32(v / 10000),
		minor: uint32(v / 100 % 100),
		patch: uint32(v % 100),
	}
}

// semverCompatible reports whether actual is at least required.
func semverCompatible(required, actual semver) bool {
	switch {
	case required.major != actual.major:
		return actual.major > required.major
	case required.minor != actual.minor:
		return actual.minor > required.minor
	default:
		return actual.patch >= required.patch
	}
}

// CheckBackend verifies the node is reachable and recent enough.
func (w *RPCWallet) CheckBackend() error {
	info, err := w.client.GetNetworkInfo()
	if err != nil {
		return fmt.Errorf("getnetworkinfo: %w", err)
	}

	actual := nodeVersion(info.Version)
	if !semverCompatible(minBackendVersion, actual) {
		return fmt.Errorf("%w: %v is older than %v",
			ErrUnsupportedBackend, actual, minBackendVersion)
	}

	log.Infof("Connected to %s (version %v)", info.SubVersion, actual)
	return nil
}
