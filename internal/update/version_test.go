// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package update

import (
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestCompare(t *testing.T) {
	uu := map[string]struct {
		a, b string
		want int
	}{
		"greater_minor":   {a: "1.2.0", b: "1.1.9", want: 1},
		"missing_is_zero": {a: "1.0", b: "1.0.0", want: 0},
		"numeric_not_lex": {a: "1.10.0", b: "1.9.0", want: 1},
		"lesser":          {a: "0.9", b: "1.0", want: -1},
		"v_prefix":        {a: "v2.0.0", b: "1.99", want: 1},
		"longer_nonzero":  {a: "1.0.0.1", b: "1.0", want: 1},
	}

	for k := range uu {
		u := uu[k]
		t.Run(k, func(t *testing.T) {
			got, err := Compare(u.a, u.b)
			require.NoError(t, err)
			assert.Equal(t, u.want, got)
		})
	}
}

func TestParseVersion_Invalid(t *testing.T) {
	for _, s := range []string{"", "v", "1..2", "1.2-beta", "abc", "1.-2", "+1.0", " . "} {
		t.Run(s, func(t *testing.T) {
			_, err := ParseVersion(s)
			assert.ErrorIs(t, err, ErrInvalidVersion)
		})
	}
}

func genVersion() *rapid.Generator[string] {
	return rapid.Custom(func(t *rapid.T) string {
		parts := rapid.SliceOfN(rapid.IntRange(0, 50), 1, 5).Draw(t, "parts")
		out := make([]string, len(parts))
		for i, p := range parts {
			out[i] = strconv.Itoa(p)
		}
		return strings.Join(out, ".")
	})
}

func TestCompare_Properties(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		a := genVersion().Draw(t, "a")
		b := genVersion().Draw(t, "b")

		ab, err := Compare(a, b)
		require.NoError(t, err)
		ba, err := Compare(b, a)
		require.NoError(t, err)
		assert.Equal(t, ab, -ba)

		aa, err := Compare(a, a)
		require.NoError(t, err)
		assert.Zero(t, aa)

		padded, err := Compare(a+".0", a)
		require.NoError(t, err)
		assert.Zero(t, padded)
	})
}

func TestVersion_String(t *testing.T) {
	v, err := ParseVersion("v1.02.3")
	require.NoError(t, err)
	assert.Equal(t, "1.2.3", v.String())
}
