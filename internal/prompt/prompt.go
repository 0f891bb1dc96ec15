// Copyright (c) 2015-2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package prompt

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"os"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcjoin/internal/zero"
	"golang.org/x/term"
)

// isTerminal and readPassword are replaced in tests.
var (
	isTerminal = func() bool {
		return term.IsTerminal(int(os.Stdin.Fd()))
	}
	readPassword = func() ([]byte, error) {
		return term.ReadPassword(int(os.Stdin.Fd()))
	}
)

// promptList prompts the user with the given prefix, list of valid responses,
// and default list entry to use.  The function will repeat the prompt to the
// user until they enter a valid response.
func promptList(reader *bufio.Reader, prefix string, validResponses []string,
	defaultEntry string) (string, error) {

	// Setup the prompt according to the parameters.
	validStrings := strings.Join(validResponses, "/")
	var prompt string
	if defaultEntry != "" {
		prompt = fmt.Sprintf("%s (%s) [%s]: ", prefix, validStrings,
			defaultEntry)
	} else {
		prompt = fmt.Sprintf("%s (%s): ", prefix, validStrings)
	}

	// Prompt the user until one of the valid responses is given.
	for {
		fmt.Print(prompt)
		reply, err := reader.ReadString('\n')
		if err != nil {
			return "", err
		}
		reply = strings.TrimSpace(strings.ToLower(reply))
		if reply == "" {
			reply = defaultEntry
		}

		for _, validResponse := range validResponses {
			if reply == validResponse {
				return reply, nil
			}
		}
	}
}

// Confirm asks a yes/no question and repeats it until it is answered.
func Confirm(reader *bufio.Reader, prefix string, defaultYes bool) (bool,
	error) {

	defaultEntry := "no"
	if defaultYes {
		defaultEntry = "yes"
	}
	valid := []string{"n", "no", "y", "yes"}
	response, err := promptList(reader, prefix, valid, defaultEntry)
	if err != nil {
		return false, err
	}
	return response == "yes" || response == "y", nil
}

// readSecret reads one line without echo from a terminal, or from reader
// when stdin is redirected.
func readSecret(reader *bufio.Reader) ([]byte, error) {
	if !isTerminal() {
		line, err := reader.ReadBytes('\n')
		if err != nil && len(line) == 0 {
			return nil, err
		}
		return bytes.TrimSpace(line), nil
	}

	secret, err := readPassword()
	if err != nil {
		return nil, err
	}
	fmt.Print("\n")
	return bytes.TrimSpace(secret), nil
}

// PrivateKey prompts for the hex encoded identity key until a valid one is
// entered.
func PrivateKey(reader *bufio.Reader) (*btcec.PrivateKey, error) {
	for {
		fmt.Print("Enter the identity private key (hex): ")
		line, err := readSecret(reader)
		if err != nil {
			return nil, err
		}

		key := make([]byte, hex.DecodedLen(len(line)))
		n, err := hex.Decode(key, line)
		zero.Bytes(line)
		if err != nil || n != btcec.PrivKeyBytesLen {
			zero.Bytes(key)
			fmt.Printf("Invalid key.  Must be %d bytes of "+
				"hexadecimal\n", btcec.PrivKeyBytesLen)
			continue
		}

		priv, _ := btcec.PrivKeyFromBytes(key)
		zero.Bytes(key)
		return priv, nil
	}
}
