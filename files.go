/*
Copyright © 2026 Seednode <seednode@seedno.de>
*/

package main

import (
	"fmt"
)

// humanReadableSize renders a byte count with a decimal SI suffix, for
// response-size log fields.
func humanReadableSize(bytes int64) string {
	if bytes < 1000 {
		return fmt.Sprintf("%d B", bytes)
	}

	size := float64(bytes)
	suffixes := []string{"kB", "MB", "GB", "TB", "PB"}

	i := 0
	for size >= 1000*1000 && i < len(suffixes)-1 {
		size /= 1000
		i++
	}

	return fmt.Sprintf("%.1f %s", size/1000, suffixes[i])
}
