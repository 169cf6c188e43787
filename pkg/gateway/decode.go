/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package gateway

import (
	"bytes"
	"encoding/json"
)

// decodePayload attempts structured deserialization of a ledger payload.
// Payloads are conventionally UTF-8 JSON but the ledger guarantees nothing
// beyond bytes, so a malformed payload is never a hard failure: the raw bytes
// pass through intact and the outcome carries a decode warning.
func decodePayload(raw []byte) (decoded interface{}, warning string) {
	if len(raw) == 0 {
		return nil, ""
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var value interface{}
	if err := dec.Decode(&value); err != nil {
		return nil, "payload is not well-formed JSON: " + err.Error()
	}

	// Trailing garbage after a valid JSON document is still a malformed payload
	if dec.More() {
		return nil, "payload contains data after the JSON document"
	}

	return value, ""
}
