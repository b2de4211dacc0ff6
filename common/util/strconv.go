// Copyright 2024 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"strconv"

	"golang.org/x/exp/constraints"
)

// ParseFloat parses s with the precision of T.
func ParseFloat[T constraints.Float](s string) (T, error) {
	var zero T
	bitSize := 64
	if _, ok := any(zero).(float32); ok {
		bitSize = 32
	}
	v, err := strconv.ParseFloat(s, bitSize)
	return T(v), err
}

// ParseFloats parses every string in ss. It stops at the first failure and returns the index of the bad value.
func ParseFloats[T constraints.Float](ss []string) ([]T, int, error) {
	values := make([]T, len(ss))
	for i, s := range ss {
		v, err := ParseFloat[T](s)
		if err != nil {
			return nil, i, err
		}
		values[i] = v
	}
	return values, -1, nil
}

func ParseInt[T constraints.Signed](s string) (T, error) {
	var zero T
	bitSize := 64
	switch any(zero).(type) {
	case int8:
		bitSize = 8
	case int16:
		bitSize = 16
	case int32:
		bitSize = 32
	}
	v, err := strconv.ParseInt(s, 10, bitSize)
	return T(v), err
}
