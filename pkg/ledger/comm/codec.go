/*
Copyright SecureKey Technologies Inc. All Rights Reserved.

SPDX-License-Identifier: Apache-2.0
*/

package comm

import (
	"github.com/pkg/errors"
	"google.golang.org/grpc/encoding"
)

// rawCodecName is the gRPC content-subtype under which raw byte frames are
// exchanged. The ledger wire contract is schemaless bytes (conventionally
// UTF-8 JSON, but not guaranteed), so frames pass through unmodified.
const rawCodecName = "raw"

func init() {
	encoding.RegisterCodec(rawCodec{})
}

type rawCodec struct{}

func (rawCodec) Marshal(v interface{}) ([]byte, error) {
	frame, ok := v.(*[]byte)
	if !ok {
		return nil, errors.Errorf("raw codec can only marshal *[]byte, got %T", v)
	}
	return *frame, nil
}

func (rawCodec) Unmarshal(data []byte, v interface{}) error {
	frame, ok := v.(*[]byte)
	if !ok {
		return errors.Errorf("raw codec can only unmarshal into *[]byte, got %T", v)
	}
	*frame = data
	return nil
}

func (rawCodec) Name() string {
	return rawCodecName
}
