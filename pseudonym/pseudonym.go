//
// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

// Package pseudonym replaces identifying values with stable opaque tokens.
package pseudonym

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"

	log "github.com/golang/glog"
	"github.com/wellnessdata/privrelease/record"
	"golang.org/x/crypto/blake2b"
)

// Hasher maps a value and a salt to a token. Implementations must be
// deterministic: the same value and salt always give the same token.
type Hasher interface {
	Sum(value, salt string) string
}

type hmacHasher struct{}

// HMAC returns a Hasher computing hex-encoded HMAC-SHA256 of value keyed by salt.
// It is the default Hasher.
func HMAC() Hasher { return hmacHasher{} }

func (hmacHasher) Sum(value, salt string) string {
	m := hmac.New(sha256.New, []byte(salt))
	m.Write([]byte(value))
	return hex.EncodeToString(m.Sum(nil))
}

func (hmacHasher) String() string { return "HMAC-SHA256" }

type blake2bHasher struct{}

// BLAKE2b returns a Hasher computing hex-encoded keyed BLAKE2b-256 of value.
// Salts longer than 64 bytes are first compressed with BLAKE2b-512.
func BLAKE2b() Hasher { return blake2bHasher{} }

func (blake2bHasher) Sum(value, salt string) string {
	key := []byte(salt)
	if len(key) > blake2b.Size {
		sum := blake2b.Sum512(key)
		key = sum[:]
	}
	h, err := blake2b.New256(key)
	if err != nil {
		// Only reachable with a key longer than blake2b.Size.
		panic(err)
	}
	h.Write([]byte(value))
	return hex.EncodeToString(h.Sum(nil))
}

func (blake2bHasher) String() string { return "BLAKE2b-256" }

type rollingHasher struct{}

// Rolling returns the legacy 32-bit rolling hash of value followed by salt.
// It is not collision resistant and anyone who knows the salt can brute-force
// short inputs. Use it only to reproduce tokens issued by older releases and in tests.
func Rolling() Hasher { return rollingHasher{} }

func (rollingHasher) Sum(value, salt string) string {
	var h int32
	for _, c := range value + salt {
		h = (h << 5) - h + int32(c)
	}
	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return strconv.FormatInt(abs, 36)
}

func (rollingHasher) String() string { return "rolling" }

// Pseudonymize returns a copy of r with each named field replaced by the
// token h.Sum(value, salt). Missing and falsy fields are left untouched. A nil
// h uses HMAC().
func Pseudonymize(r record.Record, fields []string, salt string, h Hasher) record.Record {
	if h == nil {
		h = HMAC()
	}
	out := r.Clone()
	for _, f := range fields {
		v, ok := out.Get(f)
		if !ok || v == nil || v.IsZero() {
			continue
		}
		out = out.With(f, record.String(h.Sum(v.String(), salt)))
	}
	return out
}

// PseudonymizeAll applies Pseudonymize to every record and returns the copies.
func PseudonymizeAll(records []record.Record, fields []string, salt string, h Hasher) []record.Record {
	if salt == "" && len(fields) > 0 {
		log.Warningf("PseudonymizeAll: empty salt, tokens for %v can be recomputed by anyone", fields)
	}
	out := make([]record.Record, len(records))
	for i, r := range records {
		out[i] = Pseudonymize(r, fields, salt, h)
	}
	return out
}
