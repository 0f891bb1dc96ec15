// Copyright (c) 2016 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import "github.com/btcsuite/btcd/btcutil"

// ExplicitString is a string flag that records whether it was set by the
// user.  A flag left at its default can then be told apart from one
// explicitly set to the default.
type ExplicitString struct {
	Value         string
	explicitlySet bool
}

// NewExplicitString creates a string flag with the provided default value.
func NewExplicitString(defaultValue string) *ExplicitString {
	return &ExplicitString{Value: defaultValue}
}

// ExplicitlySet returns whether the flag was set through UnmarshalFlag.
func (e *ExplicitString) ExplicitlySet() bool { return e.explicitlySet }

// MarshalFlag implements the flags.Marshaler interface.
func (e *ExplicitString) MarshalFlag() (string, error) { return e.Value, nil }

// UnmarshalFlag implements the flags.Unmarshaler interface.
func (e *ExplicitString) UnmarshalFlag(value string) error {
	e.Value = value
	e.explicitlySet = true
	return nil
}

// ExplicitAmount is an AmountFlag that records whether it was set by the
// user.  Options without a meaningful default, such as a maker's absolute fee,
// use it to detect their presence.
type ExplicitAmount struct {
	AmountFlag
	explicitlySet bool
}

// NewExplicitAmount creates an amount flag with the provided default value.
func NewExplicitAmount(defaultValue btcutil.Amount) *ExplicitAmount {
	return &ExplicitAmount{AmountFlag: AmountFlag{defaultValue}}
}

// ExplicitlySet returns whether the flag was set through UnmarshalFlag.
func (e *ExplicitAmount) ExplicitlySet() bool { return e.explicitlySet }

// UnmarshalFlag implements the flags.Unmarshaler interface.  A value that
// fails to parse leaves the flag unset.
func (e *ExplicitAmount) UnmarshalFlag(value string) error {
	if err := e.AmountFlag.UnmarshalFlag(value); err != nil {
		return err
	}
	e.explicitlySet = true
	return nil
}
