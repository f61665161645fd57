// Copyright 2025, the segstitch authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE.md file.

package remux

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// concatManifest renders an ffmpeg concat-demuxer manifest for inputs.
// Single quotes in paths are escaped the way the concat demuxer expects.
func concatManifest(inputs []string) string {
	var b strings.Builder
	for _, in := range inputs {
		escaped := strings.ReplaceAll(in, `'`, `'\''`)
		fmt.Fprintf(&b, "file '%s'\n", escaped)
	}
	return b.String()
}

// writeConcatManifest writes the manifest for inputs into dir and
// returns its path.
func writeConcatManifest(dir string, inputs []string) (string, error) {
	p := filepath.Join(dir, "concat.txt")
	if err := os.WriteFile(p, []byte(concatManifest(inputs)), 0o644); err != nil {
		return "", fmt.Errorf("write concat manifest: %w", err)
	}
	return p, nil
}
