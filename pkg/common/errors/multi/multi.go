/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

// Package multi aggregates the errors produced when an operation fans out to
// several ledger nodes, such as a proposal endorsed by multiple peers. The
// retry handler inspects every member of the aggregate, so a single
// retryable peer failure among several rejections still warrants a retry.
package multi

import (
	"fmt"
	"strings"
)

// Errors collects the per-node errors of a fan-out operation
type Errors []error

// New aggregates the given errors, dropping nil entries. It returns nil when
// nothing failed and the error itself when exactly one did.
func New(errs ...error) error {
	var collected Errors
	for _, err := range errs {
		if err != nil {
			collected = append(collected, err)
		}
	}
	return collected.ToError()
}

// Append adds err to the aggregate, starting one when errs is not already an
// Errors value
func Append(errs error, err error) error {
	if err == nil {
		return errs
	}
	m, ok := errs.(Errors)
	if !ok {
		return New(errs, err)
	}
	return append(m, err)
}

// ToError reduces the aggregate to the error interface: nil when empty, the
// sole member when singular, the aggregate otherwise
func (errs Errors) ToError() error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return errs
	}
}

// Error implements the error interface, listing every collected error
func (errs Errors) Error() string {
	switch len(errs) {
	case 0:
		return ""
	case 1:
		return errs[0].Error()
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d errors occurred:", len(errs))
	for _, err := range errs {
		b.WriteString(" [")
		b.WriteString(err.Error())
		b.WriteString("]")
	}
	return b.String()
}
