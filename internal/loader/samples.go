package loader

import (
	"fmt"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultSamplesDir is where the canned inputs live relative to the working directory.
const DefaultSamplesDir = "samples"

var sampleNames = map[string]string{
	"s": "sample_input_small.txt",
	"m": "sample_input_medium.txt",
	"l": "sample_input_large.txt",
}

// SampleFile maps a sample key (s, m or l, any case) to its file under dir.
func SampleFile(dir, key string) (string, error) {
	name, ok := sampleNames[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return "", fmt.Errorf("%w: %q (want one of %s)", ErrUnknownSample, key, strings.Join(SampleKeys(), ", "))
	}
	if dir == "" {
		dir = DefaultSamplesDir
	}
	return filepath.Join(dir, name), nil
}

func SampleKeys() []string {
	keys := make([]string, 0, len(sampleNames))
	for k := range sampleNames {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
