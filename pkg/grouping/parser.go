// Package grouping turns the flat entry list of an ImageStream archive into
// datasets of particles and channels and checks that every particle has all
// of the channels that will be written.
package grouping

import (
	"fmt"
	"strconv"
	"strings"
)

// ParseError reports an archive entry whose name does not follow
// "<particle>_Ch<N><suffix>". Such entries are skipped, never fatal.
type ParseError struct {
	Entry  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cannot parse entry %q: %s", e.Entry, e.Reason)
}

// NormalizeSuffix returns the suffix with exactly one leading separator, so
// "ome.tif" and ".ome.tif" are treated the same.
func NormalizeSuffix(suffix string) string {
	trimmed := strings.TrimLeft(strings.TrimSpace(suffix), ".")
	if trimmed == "" {
		return ""
	}
	return "." + trimmed
}

// HasSuffix reports whether a file name carries the configured suffix
func HasSuffix(name, suffix string) bool {
	suffix = NormalizeSuffix(suffix)
	return suffix != "" && strings.HasSuffix(name, suffix) && len(name) > len(suffix)
}

// ParseEntryName splits a file name like "cell_001_Ch11.ome.tif" into its
// particle id ("cell_001") and channel index (11). The particle id may itself
// contain underscores; the channel is always the last underscore token.
func ParseEntryName(name, suffix string) (particle string, channel int, err error) {
	if !HasSuffix(name, suffix) {
		return "", 0, &ParseError{Entry: name, Reason: fmt.Sprintf("missing suffix %q", NormalizeSuffix(suffix))}
	}
	stem := strings.TrimSuffix(name, NormalizeSuffix(suffix))

	cut := strings.LastIndex(stem, "_")
	if cut < 0 {
		return "", 0, &ParseError{Entry: name, Reason: "no _Ch<N> token"}
	}
	particle, token := stem[:cut], stem[cut+1:]
	if particle == "" {
		return "", 0, &ParseError{Entry: name, Reason: "empty particle id"}
	}

	digits, ok := strings.CutPrefix(token, "Ch")
	if !ok || digits == "" || strings.TrimLeft(digits, "0123456789") != "" {
		return "", 0, &ParseError{Entry: name, Reason: fmt.Sprintf("last token %q is not Ch<digits>", token)}
	}
	channel, err = strconv.Atoi(digits)
	if err != nil {
		return "", 0, &ParseError{Entry: name, Reason: err.Error()}
	}
	if channel < 1 {
		return "", 0, &ParseError{Entry: name, Reason: "channel index must be positive"}
	}
	return particle, channel, nil
}
