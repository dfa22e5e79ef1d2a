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

// Package rand provides the random sources used to draw privacy noise.
//
// A Source is safe for concurrent use. Tests inject a seeded Source through
// New to get reproducible draws; production code uses Default, which is seeded
// from the operating system's entropy pool.
package rand

import (
	"bufio"
	cryptorand "crypto/rand"
	"encoding/binary"
	"io"
	mathrand "math/rand"
	"sync"

	log "github.com/golang/glog"
)

// Source produces uniformly distributed float64 values in [0, 1).
type Source interface {
	Float64() float64
}

var (
	randBufLock sync.Mutex
	randBuf     io.Reader = bufio.NewReaderSize(cryptorand.Reader, 4096)

	defaultOnce sync.Once
	defaultSrc  Source
)

func readRandBuf(b []byte) (int, error) {
	randBufLock.Lock()
	defer randBufLock.Unlock()
	return io.ReadFull(randBuf, b)
}

// entropySeed returns a seed read from the operating system's entropy pool.
func entropySeed() int64 {
	var r [8]uint8
	if _, err := readRandBuf(r[:]); err != nil {
		log.Fatalf("out of randomness, should never happen: %v", err)
	}
	return int64(binary.LittleEndian.Uint64(r[:]))
}

// lockedSource serializes access to a math/rand generator, which is not safe
// for concurrent use on its own.
type lockedSource struct {
	mu sync.Mutex
	r  *mathrand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.r.Float64()
}

// New returns a Source seeded with seed. Two sources with the same seed
// produce the same sequence.
func New(seed int64) Source {
	return &lockedSource{r: mathrand.New(mathrand.NewSource(seed))}
}

// NewFromEntropy returns a Source seeded from the operating system's entropy pool.
func NewFromEntropy() Source {
	return New(entropySeed())
}

// Default returns the process-wide Source. It is created on first use.
func Default() Source {
	defaultOnce.Do(func() {
		defaultSrc = NewFromEntropy()
	})
	return defaultSrc
}

// Centered returns a draw from Uniform(-0.5, 0.5). The open lower end is
// enforced by redrawing -0.5, so callers may take ln(1-2|u|) safely.
func Centered(src Source) float64 {
	for {
		u := src.Float64() - 0.5
		if u > -0.5 {
			return u
		}
	}
}

// Sign returns +1, -1 or 0 according to the sign of x.
func Sign(x float64) float64 {
	switch {
	case x > 0:
		return 1
	case x < 0:
		return -1
	}
	return 0
}
