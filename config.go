// Copyright (c) 2013-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcjoin/internal/cfgutil"
	"github.com/btcsuite/btcjoin/maker"
	"github.com/btcsuite/btcjoin/netparams"
	"github.com/btcsuite/btcjoin/protocol"
	"github.com/btcsuite/btcjoin/taker"
	flags "github.com/jessevdk/go-flags"
	"github.com/joho/godotenv"
)

const (
	defaultConfigFilename = "btcjoin.conf"
	defaultEnvFilename    = ".env"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "btcjoin.log"
	defaultMaxLogFiles    = 3
	defaultMaxLogFileSize = 10 * 1024 // KiB
	defaultRegistry       = "bdb"
	defaultRelay          = "ws://localhost:7000"
	defaultConfTarget     = 6
	defaultMinConf        = 1
	defaultMinSize        = 5000
	defaultPolicy         = "abort"

	sqliteRegistryFilename = "commitments.sqlite"

	// minRandomMakers and maxRandomMakers bound the maker count picked
	// when sendtx is not given one.
	minRandomMakers = 3
	maxRandomMakers = 8
)

var (
	btcjoinHomeDir    = btcutil.AppDataDir("btcjoin", false)
	defaultConfigFile = filepath.Join(btcjoinHomeDir, defaultConfigFilename)
	defaultDataDir    = btcjoinHomeDir
	defaultLogDir     = filepath.Join(btcjoinHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	DataDir     string                  `short:"b" long:"datadir" description:"Directory to store the commitment registry"`
	LogDir      string                  `long:"logdir" description:"Directory to log output."`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	EnvFile     string                  `long:"envfile" description:"File providing RPC_URL, RPC_USERNAME, RPC_PASSWORD and NOSTR_RELAYS (default .env in the working directory)"`

	// Network selection
	TestNet3 bool `long:"testnet" description:"Use the test network (version 3)"`
	TestNet4 bool `long:"testnet4" description:"Use the test network (version 4)"`
	RegTest  bool `long:"regtest" description:"Use the regression test network"`
	SigNet   bool `long:"signet" description:"Use the default signet"`
	SimNet   bool `long:"simnet" description:"Use the simulation test network"`

	// Wallet backend
	RPCConnect string `short:"c" long:"rpcconnect" description:"Hostname[:port] or URL of the bitcoind RPC server (default localhost with the network's RPC port)"`
	RPCUser    string `short:"u" long:"rpcuser" description:"RPC username"`
	RPCPass    string `short:"P" long:"rpcpass" default-mask:"-" description:"RPC password"`
	Wallet     string `short:"w" long:"wallet" description:"Wallet to use on a multiwallet node"`
	ConfTarget int64  `long:"conftarget" description:"Confirmation target used for fee estimation"`
	MinConf    int    `long:"minconf" description:"Minimum confirmations of outputs used in a coinjoin"`

	// Relays
	Relays []string `short:"r" long:"relay" description:"Websocket URL of a relay -- may be repeated"`
	Proxy  string   `long:"proxy" description:"Connect to relays via SOCKS5 proxy (eg. 127.0.0.1:9050)"`

	// Identity
	PrivKey   string `long:"privkey" default-mask:"-" description:"Hex encoded identity key of the maker -- a fresh key is generated when unset"`
	PromptKey bool   `long:"promptkey" description:"Prompt for the identity key on startup"`

	// Commitment registry
	Registry    string `long:"registry" choice:"bdb" choice:"sqlite" choice:"postgres" description:"Backend of the used commitment registry"`
	RegistryDSN string `long:"registrydsn" description:"Data source name of a sqlite or postgres registry"`

	RunMaker    runMakerConfig    `command:"runmaker" description:"Publish an offer and take part in coinjoins as a maker"`
	SendTx      sendTxConfig      `command:"sendtx" description:"Send a coinjoin as the taker"`
	ListOffers  listOffersConfig  `command:"listoffers" description:"List the offers currently published on the relays"`
	ListUnspent listUnspentConfig `command:"listunspent" description:"List the wallet outputs eligible for a coinjoin"`
	Balance     balanceConfig     `command:"balance" description:"Show the eligible wallet balance"`

	ListCommitments listCommitmentsConfig `command:"listcommitments" description:"List the commitments recorded in the used commitment registry"`

	command string
	params  *netparams.Params
	tls     bool
}

type runMakerConfig struct {
	AbsFee     *cfgutil.ExplicitAmount `long:"absfee" description:"Absolute coinjoin fee charged per fill (BTC, or satoshis with the sat suffix)"`
	RelFee     *cfgutil.ExplicitString `long:"relfee" description:"Coinjoin fee charged as a fraction of the amount (eg. 0.0002)"`
	MinSize    *cfgutil.AmountFlag     `long:"minsize" description:"Smallest coinjoin amount accepted"`
	MaxSize    *cfgutil.ExplicitAmount `long:"maxsize" description:"Largest coinjoin amount accepted (default what the wallet can fund)"`
	TxFee      *cfgutil.AmountFlag     `long:"txfee" description:"Contribution to the mining fee"`
	OfferID    uint32                  `long:"offerid" description:"Offer identifier -- 0 picks a random one"`
	TxTimeout  time.Duration           `long:"txtimeout" description:"Time to wait for the unsigned transaction after sending inputs"`
	Republish  time.Duration           `long:"republish" description:"Interval at which the offer is refreshed while waiting"`
	RequireKey bool                    `long:"requirecommitmentinput" description:"Only sign transactions spending the output the taker's commitment refers to"`

	relFee float64
}

type sendTxConfig struct {
	Amount           *cfgutil.AmountFlag `short:"a" long:"amount" description:"Amount to send through the coinjoin (BTC, or satoshis with the sat suffix)"`
	Makers           int                 `short:"n" long:"makers" description:"Number of makers (default a random number between 3 and 8)"`
	MaxCJFee         *cfgutil.AmountFlag `long:"maxcjfee" description:"Largest absolute fee accepted per maker"`
	MaxCJFeeRel      float64             `long:"maxcjfeerel" description:"Largest fee accepted per maker as a fraction of the amount"`
	MaxMiningFee     *cfgutil.AmountFlag `long:"maxminingfee" description:"Largest share of the mining fee paid by the taker"`
	OfferTimeout     time.Duration       `long:"offertimeout" description:"Time spent collecting offers"`
	InputTimeout     time.Duration       `long:"inputtimeout" description:"Time to wait for the makers' inputs"`
	SignatureTimeout time.Duration       `long:"sigtimeout" description:"Time to wait for the makers' signatures"`
	Policy           string              `long:"policy" choice:"abort" choice:"replace" choice:"minimum" description:"Handling of makers that do not send their inputs in time"`
	MinMakers        int                 `long:"minmakers" description:"Makers that must answer to continue under the minimum policy"`
	NoConfirm        bool                `short:"y" long:"noconfirm" description:"Do not ask for confirmation before starting"`
}

type listOffersConfig struct {
	Timeout time.Duration `long:"timeout" description:"Time spent collecting offers"`
}

type listUnspentConfig struct{}

type balanceConfig struct{}

type listCommitmentsConfig struct{}

// validLogLevel returns whether or not logLevel is a valid debug log level.
func validLogLevel(logLevel string) bool {
	switch logLevel {
	case "trace", "debug", "info", "warn", "error", "critical":
		return true
	}
	return false
}

// supportedSubsystems returns a sorted slice of the supported subsystems for
// logging purposes.
func supportedSubsystems() []string {
	return logWriter.SupportedSubsystems()
}

// parseAndSetDebugLevels attempts to parse the specified debug level and set
// the levels accordingly.  An appropriate error is returned if anything is
// invalid.
func parseAndSetDebugLevels(debugLevel string) error {
	// When the specified string doesn't have any delimters, treat it as
	// the log level for all subsystems.
	if !strings.Contains(debugLevel, ",") && !strings.Contains(debugLevel, "=") {
		// Validate debug log level.
		if !validLogLevel(debugLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, debugLevel)
		}

		// Change the logging level for all subsystems.
		setLogLevels(debugLevel)

		return nil
	}

	// Split the specified string into subsystem/level pairs while detecting
	// issues and update the log levels accordingly.
	subsystems := make(map[string]struct{})
	for _, id := range supportedSubsystems() {
		subsystems[id] = struct{}{}
	}
	for _, logLevelPair := range strings.Split(debugLevel, ",") {
		if !strings.Contains(logLevelPair, "=") {
			str := "The specified debug level contains an invalid " +
				"subsystem/level pair [%v]"
			return fmt.Errorf(str, logLevelPair)
		}

		// Extract the specified subsystem and log level.
		fields := strings.Split(logLevelPair, "=")
		subsysID, logLevel := fields[0], fields[1]

		// Validate subsystem.
		if _, exists := subsystems[subsysID]; !exists {
			str := "The specified subsystem [%v] is invalid -- " +
				"supported subsytems %v"
			return fmt.Errorf(str, subsysID, supportedSubsystems())
		}

		// Validate log level.
		if !validLogLevel(logLevel) {
			str := "The specified debug level [%v] is invalid"
			return fmt.Errorf(str, logLevel)
		}

		setLogLevel(subsysID, logLevel)
	}

	return nil
}

// loadEnv loads the environment file and fills the RPC and relay settings
// the command line and config file left unset.
func loadEnv(cfg *config) error {
	envFile := cfg.EnvFile
	if envFile == "" {
		envFile = defaultEnvFilename
		if ok, _ := cfgutil.FileExists(envFile); !ok {
			return nil
		}
	}
	if err := godotenv.Load(cfgutil.CleanAndExpandPath(envFile)); err != nil {
		return fmt.Errorf("unable to load %v: %w", envFile, err)
	}

	if cfg.RPCConnect == "" {
		cfg.RPCConnect = os.Getenv("RPC_URL")
	}
	if cfg.RPCUser == "" {
		cfg.RPCUser = os.Getenv("RPC_USERNAME")
	}
	if cfg.RPCPass == "" {
		cfg.RPCPass = os.Getenv("RPC_PASSWORD")
	}
	if relays := os.Getenv("NOSTR_RELAYS"); len(cfg.Relays) == 0 &&
		relays != "" {

		if err := json.Unmarshal([]byte(relays), &cfg.Relays); err != nil {
			return fmt.Errorf("invalid NOSTR_RELAYS: %w", err)
		}
	}

	return nil
}

// selectNetwork sets cfg.params from the network flags.
func selectNetwork(cfg *config) error {
	cfg.params = &netparams.MainNetParams
	numNets := 0
	for _, n := range []struct {
		set    bool
		params *netparams.Params
	}{
		{cfg.TestNet3, &netparams.TestNet3Params},
		{cfg.TestNet4, &netparams.TestNet4Params},
		{cfg.RegTest, &netparams.RegressionNetParams},
		{cfg.SigNet, &netparams.SigNetParams},
		{cfg.SimNet, &netparams.SimNetParams},
	} {
		if n.set {
			cfg.params = n.params
			numNets++
		}
	}
	if numNets > 1 {
		return errors.New("the testnet, testnet4, regtest, signet " +
			"and simnet params can't be used together -- choose " +
			"one")
	}
	return nil
}

// validateRunMaker checks the runmaker options and resolves its fee and
// size settings.
func validateRunMaker(c *runMakerConfig) error {
	if c.AbsFee.ExplicitlySet() == c.RelFee.ExplicitlySet() {
		return errors.New("runmaker: exactly one of --absfee and " +
			"--relfee must be set")
	}

	if c.AbsFee.ExplicitlySet() && c.AbsFee.Amount < 0 {
		return errors.New("runmaker: --absfee may not be negative")
	}
	if c.RelFee.ExplicitlySet() {
		var err error
		c.relFee, err = strconv.ParseFloat(c.RelFee.Value, 64)
		if err != nil {
			return fmt.Errorf("runmaker: invalid --relfee: %w", err)
		}
		if c.relFee < 0 || c.relFee > protocol.MaxRelFee {
			return fmt.Errorf("runmaker: --relfee must be between "+
				"0 and %v", protocol.MaxRelFee)
		}
	}
	if c.MaxSize.ExplicitlySet() && c.MaxSize.Amount < c.MinSize.Amount {
		return errors.New("runmaker: --maxsize is below --minsize")
	}
	if c.MinSize.Amount < protocol.DustThreshold {
		return fmt.Errorf("runmaker: --minsize must be at least %v",
			protocol.DustThreshold)
	}
	if c.TxFee.Amount < 0 {
		return errors.New("runmaker: --txfee may not be negative")
	}
	if c.TxTimeout <= 0 || c.Republish <= 0 {
		return errors.New("runmaker: --txtimeout and --republish " +
			"must be positive")
	}
	return nil
}

// validateSendTx checks the sendtx options.
func validateSendTx(c *sendTxConfig) error {
	if c.Amount.Amount < protocol.DustThreshold {
		return fmt.Errorf("sendtx: --amount must be at least %v",
			protocol.DustThreshold)
	}
	if c.Makers < 0 {
		return errors.New("sendtx: --makers may not be negative")
	}
	if c.Makers == 0 {
		c.Makers = minRandomMakers +
			rand.Intn(maxRandomMakers-minRandomMakers+1)
	}
	if c.Policy == "minimum" && (c.MinMakers < 1 || c.MinMakers > c.Makers) {
		return fmt.Errorf("sendtx: --minmakers must be between 1 and %d",
			c.Makers)
	}
	if c.MaxCJFeeRel < 0 || c.MaxCJFeeRel > protocol.MaxRelFee {
		return fmt.Errorf("sendtx: --maxcjfeerel must be between 0 and "+
			"%v", protocol.MaxRelFee)
	}
	return nil
}

// loadConfig initializes and parses the config using a config file and command
// line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//  5. Fill unset RPC and relay settings from the environment file
//
// The above results in btcjoin functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig() (*config, []string, error) {
	// Default config.
	cfg := config{
		DebugLevel: defaultLogLevel,
		ConfigFile: cfgutil.NewExplicitString(defaultConfigFile),
		DataDir:    defaultDataDir,
		LogDir:     defaultLogDir,
		ConfTarget: defaultConfTarget,
		MinConf:    defaultMinConf,
		Registry:   defaultRegistry,
		RunMaker: runMakerConfig{
			AbsFee:    cfgutil.NewExplicitAmount(0),
			RelFee:    cfgutil.NewExplicitString(""),
			MinSize:   cfgutil.NewAmountFlag(defaultMinSize),
			MaxSize:   cfgutil.NewExplicitAmount(0),
			TxFee:     cfgutil.NewAmountFlag(0),
			TxTimeout: maker.DefaultTransactionTimeout,
			Republish: maker.DefaultRepublishInterval,
		},
		SendTx: sendTxConfig{
			Amount:           cfgutil.NewAmountFlag(0),
			MaxCJFee:         cfgutil.NewAmountFlag(0),
			MaxMiningFee:     cfgutil.NewAmountFlag(0),
			OfferTimeout:     taker.DefaultOfferTimeout,
			InputTimeout:     taker.DefaultInputTimeout,
			SignatureTimeout: taker.DefaultSignatureTimeout,
			Policy:           defaultPolicy,
		},
		ListOffers: listOffersConfig{
			Timeout: taker.DefaultOfferTimeout,
		},
	}

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(&cfg, flags.Default)
	configFilePath := cfgutil.CleanAndExpandPath(preCfg.ConfigFile.Value)
	configFileExists, err := cfgutil.FileExists(configFilePath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}
	if configFileExists {
		err := flags.NewIniParser(parser).ParseFile(configFilePath)
		if err != nil {
			if _, ok := err.(*os.PathError); !ok {
				fmt.Fprintln(os.Stderr, err)
				parser.WriteHelp(os.Stderr)
				return nil, nil, err
			}
			configFileError = err
		}
	} else if preCfg.ConfigFile.ExplicitlySet() {
		err := fmt.Errorf("%s: config file %v does not exist",
			funcName, configFilePath)
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	// Parse command line options again to ensure they take precedence.
	remainingArgs, err := parser.Parse()
	if err != nil {
		if e, ok := err.(*flags.Error); !ok || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, nil, err
	}
	cfg.command = parser.Active.Name

	if err := loadEnv(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", funcName, err)
		return nil, nil, err
	}

	if err := selectNetwork(&cfg); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", funcName, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Append the network type to the data and log directories so they
	// are "namespaced" per network.
	cfg.DataDir = filepath.Join(cfgutil.CleanAndExpandPath(cfg.DataDir),
		cfg.params.Name)
	cfg.LogDir = filepath.Join(cfgutil.CleanAndExpandPath(cfg.LogDir),
		cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Initialize log rotation.  After log rotation has been initialized,
	// the logger variables may be used.
	err = logWriter.InitLogRotator(
		filepath.Join(cfg.LogDir, defaultLogFilename),
		defaultMaxLogFileSize, defaultMaxLogFiles,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", funcName, err)
		return nil, nil, err
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %v", funcName, err.Error())
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Resolve the RPC server, defaulting to the network's port.
	if cfg.RPCConnect == "" {
		cfg.RPCConnect = "localhost"
	}
	cfg.RPCConnect, cfg.tls, err = cfgutil.NormalizeRPCAddress(
		cfg.RPCConnect, cfg.params.RPCPort,
	)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid rpcconnect network address: "+
			"%v\n", err)
		return nil, nil, err
	}

	if cfg.Proxy != "" {
		cfg.Proxy, err = cfgutil.NormalizeAddress(cfg.Proxy, "9050")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid proxy address: %v\n",
				err)
			return nil, nil, err
		}
	}

	if len(cfg.Relays) == 0 {
		cfg.Relays = []string{defaultRelay}
	}

	if cfg.PrivKey != "" && cfg.PromptKey {
		err := errors.New("--privkey and --promptkey can't be used " +
			"together")
		fmt.Fprintln(os.Stderr, err)
		return nil, nil, err
	}

	switch cfg.Registry {
	case "postgres":
		if cfg.RegistryDSN == "" {
			err := errors.New("the postgres registry requires " +
				"--registrydsn")
			fmt.Fprintln(os.Stderr, err)
			return nil, nil, err
		}
	case "sqlite":
		if cfg.RegistryDSN == "" {
			cfg.RegistryDSN = filepath.Join(
				cfg.DataDir, sqliteRegistryFilename,
			)
		}
	}

	switch cfg.command {
	case "runmaker":
		err = validateRunMaker(&cfg.RunMaker)
	case "sendtx":
		err = validateSendTx(&cfg.SendTx)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	return &cfg, remainingArgs, nil
}
