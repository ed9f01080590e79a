package trace

import (
	"sort"
	"strconv"
	"strings"
)

// Preferred channel ids for the marker (size standard) dye and the sample dyes
var (
	PreferredMarkerChannels = []string{"DATA4", "DATA105"}
	PreferredSampleChannels = []string{"DATA9", "DATA10", "DATA11"}
)

var displayNames = map[string]string{
	"DATA9":  "Blue",
	"DATA10": "Green",
	"DATA11": "Black",
	"DATA4":  "Red (Marker)",
	"DATA1":  "Blue",
	"DATA2":  "Green",
	"DATA3":  "Black",
}

// DisplayName returns the dye name of a channel, or the channel id if it has none
func DisplayName(channel string) string {
	if name, ok := displayNames[channel]; ok {
		return name
	}
	return channel
}

// SelectMarker picks the marker channel out of the available channels: the first preferred
// marker channel present, otherwise the lowest-numbered DATAn channel. It returns "" when
// nothing is available.
func SelectMarker(available []string) string {
	candidates := MarkerCandidates(available)
	if len(candidates) == 0 {
		return ""
	}
	return candidates[0]
}

// MarkerCandidates lists the channels that may be used as marker channel, best first
func MarkerCandidates(available []string) []string {
	present := make(map[string]bool, len(available))
	for _, ch := range available {
		present[ch] = true
	}

	var out []string
	for _, ch := range PreferredMarkerChannels {
		if present[ch] {
			out = append(out, ch)
		}
	}
	if len(out) > 0 {
		return out
	}

	out = append(out, available...)
	sort.SliceStable(out, func(i, j int) bool {
		return channelNumber(out[i]) < channelNumber(out[j])
	})
	return out
}

// SelectSamples returns the preferred sample channels that are present
func SelectSamples(available []string) []string {
	present := make(map[string]bool, len(available))
	for _, ch := range available {
		present[ch] = true
	}

	var out []string
	for _, ch := range PreferredSampleChannels {
		if present[ch] {
			out = append(out, ch)
		}
	}
	return out
}

// channelNumber extracts n from "DATAn"; unnumbered channels sort last
func channelNumber(ch string) int {
	n, err := strconv.Atoi(strings.TrimPrefix(ch, "DATA"))
	if err != nil || !strings.HasPrefix(ch, "DATA") {
		return int(^uint(0) >> 1)
	}
	return n
}
