/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/finclarity/settlement-gateway/pkg/common/errors/status"
)

// Validation rule identifiers carried in ValidationFailed status details so
// that callers and audit tooling can report the specific violated rule.
const (
	RuleFunctionName   = "functionName"
	RuleArgLength      = "argLength"
	RuleIdempotencyKey = "idempotencyKey"
	RuleMode           = "mode"
	RuleIdentifier     = "identifier"
	RuleAmount         = "amount"
	RuleCurrency       = "currency"
)

const maxArgLength = 10000

var (
	fnPattern       = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	keyPattern      = regexp.MustCompile(`^[0-9a-f-]{36}$`)
	currencyPattern = regexp.MustCompile(`^[A-Z]{3}$`)
	identifierStrip = regexp.MustCompile(`[^A-Za-z0-9\-_]`)
)

// normalize validates and sanitizes an invocation request before it reaches
// the ledger. It is a pure function: rules are applied in order and the first
// violation wins, with the violated rule reported in the error details.
func normalize(req InvocationRequest) (InvocationRequest, error) {
	if req.Mode != Read && req.Mode != Write {
		return req, validationError(RuleMode, "mode must be READ or WRITE")
	}

	if req.Fn == "" || !fnPattern.MatchString(req.Fn) {
		return req, validationError(RuleFunctionName, "function name must match ^[A-Za-z0-9_-]+$")
	}

	for i, arg := range req.Args {
		if len(arg) > maxArgLength {
			return req, validationError(RuleArgLength, "argument %d exceeds %d characters", i, maxArgLength)
		}
	}

	if req.Mode == Write && req.IdempotencyKey != "" {
		key := strings.ToLower(req.IdempotencyKey)
		if !keyPattern.MatchString(key) || uuid.Validate(key) != nil {
			return req, validationError(RuleIdempotencyKey, "idempotency key must be a UUID")
		}
		req.IdempotencyKey = key
	}

	args := make([]string, len(req.Args))
	copy(args, req.Args)
	for i, arg := range args {
		sanitized, err := normalizePayload(arg)
		if err != nil {
			return req, err
		}
		args[i] = sanitized
	}
	req.Args = args

	return req, nil
}

// normalizePayload applies the identifier and monetary rules to arguments
// carrying a JSON business payload. Arguments that are not JSON objects pass
// through untouched: the wire contract is opaque strings.
func normalizePayload(arg string) (string, error) {
	trimmed := strings.TrimSpace(arg)
	if !strings.HasPrefix(trimmed, "{") {
		return arg, nil
	}

	payload := map[string]interface{}{}
	if err := json.Unmarshal([]byte(arg), &payload); err != nil {
		return arg, nil
	}

	changed := false

	// rules apply in a fixed order so that the reported violation is
	// deterministic: identifier fields (sorted) first, then amount, then
	// currency
	fields := make([]string, 0, len(payload))
	for field := range payload {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		str, ok := payload[field].(string)
		if !ok || !isIdentifierField(field) {
			continue
		}
		sanitized, err := sanitizeIdentifier(field, str)
		if err != nil {
			return arg, err
		}
		if sanitized != str {
			payload[field] = sanitized
			changed = true
		}
	}

	if value, ok := payload["amount"]; ok {
		rounded, err := normalizeAmount(value)
		if err != nil {
			return arg, err
		}
		if rounded != value {
			payload["amount"] = rounded
			changed = true
		}
	}

	if value, ok := payload["currency"]; ok {
		str, isString := value.(string)
		if !isString || !currencyPattern.MatchString(str) {
			return arg, validationError(RuleCurrency, "currency must match ^[A-Z]{3}$")
		}
	}

	if !changed {
		return arg, nil
	}

	out, err := json.Marshal(payload)
	if err != nil {
		return arg, nil
	}
	return string(out), nil
}

func isIdentifierField(field string) bool {
	return field == "id" || strings.HasSuffix(field, "Id") || strings.HasSuffix(field, "ID")
}

// sanitizeIdentifier strips characters outside [A-Za-z0-9_-]. Stripping is a
// normalization, not a silent truncation: if it changes whether the value is
// a valid UUID, the request is rejected rather than silently altered.
func sanitizeIdentifier(field string, value string) (string, error) {
	sanitized := identifierStrip.ReplaceAllString(value, "")
	if sanitized == value {
		return value, nil
	}

	wasUUID := uuid.Validate(value) == nil
	isUUID := uuid.Validate(sanitized) == nil
	if wasUUID != isUUID {
		return value, validationError(RuleIdentifier,
			"identifier field %q changed UUID validity after sanitization", field)
	}

	return sanitized, nil
}

// normalizeAmount enforces a finite amount > 0, rounded to 2 decimal places
func normalizeAmount(value interface{}) (float64, error) {
	amount, ok := value.(float64)
	if !ok {
		return 0, validationError(RuleAmount, "amount must be a number")
	}
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return 0, validationError(RuleAmount, "amount must be a finite number greater than zero")
	}
	return math.Round(amount*100) / 100, nil
}

func validationError(rule string, format string, args ...interface{}) *status.Status {
	return status.New(status.ClientStatus, status.ValidationFailed.ToInt32(),
		fmt.Sprintf(format, args...), []interface{}{rule})
}
