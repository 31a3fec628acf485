// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrInvalidVersion is returned for strings that are not dot-separated
// non-negative integers.
var ErrInvalidVersion = errors.New("invalid version")

// Version is a parsed dotted version number.
type Version []int

// ParseVersion parses "1.2.10" style versions. A leading "v" is accepted.
func ParseVersion(s string) (Version, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(strings.TrimPrefix(raw, "v"), "V")
	if raw == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
	}

	parts := strings.Split(raw, ".")
	v := make(Version, len(parts))
	for i, p := range parts {
		if p == "" || strings.TrimLeft(p, "0123456789") != "" {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersion, s)
		}
		v[i] = n
	}
	return v, nil
}

// Compare returns 1, 0 or -1. Missing trailing components count as zero.
func (v Version) Compare(other Version) int {
	n := max(len(v), len(other))
	for i := 0; i < n; i++ {
		a, b := v.at(i), other.at(i)
		switch {
		case a > b:
			return 1
		case a < b:
			return -1
		}
	}
	return 0
}

func (v Version) at(i int) int {
	if i < len(v) {
		return v[i]
	}
	return 0
}

func (v Version) String() string {
	parts := make([]string, len(v))
	for i, n := range v {
		parts[i] = strconv.Itoa(n)
	}
	return strings.Join(parts, ".")
}

// Compare parses and compares two version strings.
func Compare(a, b string) (int, error) {
	va, err := ParseVersion(a)
	if err != nil {
		return 0, err
	}
	vb, err := ParseVersion(b)
	if err != nil {
		return 0, err
	}
	return va.Compare(vb), nil
}
