// SPDX-License-Identifier: Apache-2.0
// Copyright Authors of WorkTools

package repository

import (
	"fmt"
	"strings"
)

// AllCategories matches every category in Filter.
const AllCategories = "all"

// Filter returns the packages whose name or description contains search
// (case-insensitive) and whose category matches. An empty category or
// AllCategories matches everything.
func Filter(pkgs []Package, search, category string) []Package {
	search = strings.ToLower(strings.TrimSpace(search))
	category = strings.TrimSpace(category)

	out := make([]Package, 0, len(pkgs))
	for _, p := range pkgs {
		if search != "" &&
			!strings.Contains(strings.ToLower(p.Name), search) &&
			!strings.Contains(strings.ToLower(p.Description), search) {
			continue
		}
		if category != "" && !strings.EqualFold(category, AllCategories) && category != p.Category {
			continue
		}
		out = append(out, p)
	}
	return out
}

// FormatSize renders a byte count in whole KB, or whole MB from 1024 KB up.
func FormatSize(bytes int64) string {
	kb := bytes / 1024
	if kb < 1024 {
		return fmt.Sprintf("%d KB", kb)
	}
	return fmt.Sprintf("%d MB", kb/1024)
}
