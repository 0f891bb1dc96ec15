// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"runtime"
	"time"

	"github.com/btcsuite/btcjoin/build"
	"github.com/btcsuite/btcjoin/chain"
	"github.com/btcsuite/btcjoin/commitstore"
	"github.com/btcsuite/btcjoin/internal/prompt"
	"github.com/btcsuite/btcjoin/keyring"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/relay"
)

const (
	appMajor uint = 0
	appMinor uint = 1
	appPatch uint = 0

	// registryTimeout bounds the wait for the bdb registry file lock.
	registryTimeout = 10 * time.Second
)

// version returns the application version as a properly formed string.
func version() string {
	return fmt.Sprintf("%d.%d.%d", appMajor, appMinor, appPatch)
}

func main() {
	// Use all processor cores.
	runtime.GOMAXPROCS(runtime.NumCPU())

	// Work around defer not working after os.Exit.
	if err := btcjoinMain(); err != nil {
		os.Exit(1)
	}
}

// btcjoinMain is a work-around main function that is required since deferred
// functions (such as log flushing) are not called with calls to os.Exit.
// Instead, main runs this function and checks for a non-nil error, at which
// point any defers have already run, and if the error is non-nil, the program
// can be exited with an error exit status.
func btcjoinMain() error {
	// Load configuration and parse command line.  This function also
	// initializes logging and configures it accordingly.
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() {
		_ = logWriter.Close()
	}()

	log.Infof("Version %s (%s, %v build)", version(), cfg.params.Name,
		build.Deployment)

	ctx, cancel := interruptContext(context.Background())
	defer cancel()

	// The registry listing needs neither the wallet nor the relays.
	if cfg.command == "listcommitments" {
		registry, err := openRegistry(ctx, cfg)
		if err != nil {
			log.Errorf("Unable to open commitment registry: %v", err)
			return err
		}
		defer registry.Close()

		return listCommitments(ctx, os.Stdout, registry)
	}

	wallet, err := chain.NewRPCWallet(&chain.RPCConfig{
		Host:       cfg.RPCConnect,
		User:       cfg.RPCUser,
		Pass:       cfg.RPCPass,
		Wallet:     cfg.Wallet,
		DisableTLS: !cfg.tls,
		ConfTarget: cfg.ConfTarget,
		MinConf:    cfg.MinConf,
	}, cfg.params.Params)
	if err != nil {
		log.Errorf("Unable to create RPC client: %v", err)
		return err
	}
	defer wallet.Stop()

	if err := wallet.CheckBackend(); err != nil {
		log.Errorf("Unable to use wallet backend: %v", err)
		return err
	}

	switch cfg.command {
	case "listunspent":
		return listUnspent(ctx, wallet)
	case "balance":
		return showBalance(ctx, wallet)
	}

	identity, err := loadIdentity(cfg)
	if err != nil {
		log.Errorf("Unable to load identity: %v", err)
		return err
	}

	pool, stopRelays, err := connectRelays(cfg, protocol.NewCodec(identity))
	if err != nil {
		log.Errorf("Unable to connect to relays: %v", err)
		return err
	}
	defer stopRelays()

	if cfg.command == "listoffers" {
		return listOffers(ctx, cfg, pool)
	}

	// Makers consult the registry before honouring a fill, takers record
	// the commitments they reveal so none is used twice.
	registry, err := openRegistry(ctx, cfg)
	if err != nil {
		log.Errorf("Unable to open commitment registry: %v", err)
		return err
	}
	defer func() {
		if err := registry.Close(); err != nil {
			log.Errorf("Unable to close commitment registry: %v",
				err)
		}
	}()

	switch cfg.command {
	case "sendtx":
		return sendTx(ctx, cfg, pool, wallet, registry)

	case "runmaker":
		return runMaker(ctx, cfg, identity, pool, wallet, registry)
	}

	return fmt.Errorf("unknown command %q", cfg.command)
}

// loadIdentity returns the maker's long lived identity, prompting for it
// when requested.  Without a configured key a fresh one is generated.
func loadIdentity(cfg *config) (*keyring.Keyring, error) {
	switch {
	case cfg.PromptKey:
		priv, err := prompt.PrivateKey(bufio.NewReader(os.Stdin))
		if err != nil {
			return nil, err
		}
		return keyring.New(priv), nil

	case cfg.PrivKey != "":
		return keyring.FromHex(cfg.PrivKey)

	default:
		return keyring.Generate()
	}
}

// connectRelays starts a client for every configured relay and returns a
// pool over them along with a function stopping the clients.
func connectRelays(cfg *config, codec *protocol.Codec) (*relay.Pool, func(),
	error) {

	clients := make([]*relay.Client, 0, len(cfg.Relays))
	stop := func() {
		for _, c := range clients {
			c.Stop()
		}
	}

	members := make([]relay.Relay, 0, len(cfg.Relays))
	for _, url := range cfg.Relays {
		clientCfg := relay.DefaultClientConfig(url)
		clientCfg.Codec = codec
		clientCfg.Proxy = cfg.Proxy

		c, err := relay.NewClient(clientCfg)
		if err != nil {
			stop()
			return nil, nil, err
		}
		if err := c.Start(); err != nil {
			stop()
			return nil, nil, err
		}
		clients = append(clients, c)
		members = append(members, c)
	}

	log.Infof("Using %d %s", len(members),
		pickNoun(len(members), "relay", "relays"))

	return relay.NewPool(members...), stop, nil
}

// openRegistry opens the configured used commitment registry.
func openRegistry(ctx context.Context, cfg *config) (commitstore.Store,
	error) {

	switch cfg.Registry {
	case "sqlite":
		if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
			return nil, err
		}
		return commitstore.OpenSQLStore(
			ctx, commitstore.DialectSQLite, cfg.RegistryDSN,
		)

	case "postgres":
		return commitstore.OpenSQLStore(
			ctx, commitstore.DialectPostgres, cfg.RegistryDSN,
		)

	default:
		return commitstore.OpenDBStore(cfg.DataDir, registryTimeout)
	}
}
