package playlist

import (
	"strconv"
	"strings"
	"time"

	"github.com/efferion/hlsgrab/internal/apperrors"
)

// splitAttributeList splits a comma-separated KEY=VALUE attribute list,
// respecting commas inside double-quoted values, per spec §4.4.2.
func splitAttributeList(s string) []string {
	var parts []string
	var cur strings.Builder
	inQuotes := false
	for _, r := range s {
		switch r {
		case '"':
			inQuotes = !inQuotes
			cur.WriteRune(r)
		case ',':
			if inQuotes {
				cur.WriteRune(r)
			} else {
				parts = append(parts, cur.String())
				cur.Reset()
			}
		default:
			cur.WriteRune(r)
		}
	}
	parts = append(parts, cur.String())
	return parts
}

// parseAttributes turns a raw attribute-list string into a KEY->VALUE
// map; quoted values have their surrounding quotes stripped.
func parseAttributes(s string) map[string]string {
	attrs := make(map[string]string)
	for _, part := range splitAttributeList(s) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		val = strings.Trim(val, `"`)
		attrs[key] = val
	}
	return attrs
}

func tagName(line string) string {
	if idx := strings.Index(line, ":"); idx != -1 {
		return line[:idx]
	}
	return line
}

func tagValue(line string) string {
	if idx := strings.Index(line, ":"); idx != -1 {
		return line[idx+1:]
	}
	return ""
}

func parseStreamInf(line string) (VariantStream, error) {
	attrs := parseAttributes(tagValue(line))
	bwStr, ok := attrs["BANDWIDTH"]
	if !ok {
		return VariantStream{}, apperrors.InvalidTag("EXT-X-STREAM-INF", "BANDWIDTH=<int>", tagValue(line))
	}
	bandwidth, err := strconv.Atoi(bwStr)
	if err != nil {
		return VariantStream{}, apperrors.InvalidTag("EXT-X-STREAM-INF", "BANDWIDTH=<int>", bwStr)
	}

	v := VariantStream{
		Bandwidth:           bandwidth,
		Resolution:          attrs["RESOLUTION"],
		Codecs:              attrs["CODECS"],
		AudioGroup:          attrs["AUDIO"],
		SubtitlesGroup:      attrs["SUBTITLES"],
		VideoGroup:          attrs["VIDEO"],
		ClosedCaptionsGroup: attrs["CLOSED-CAPTIONS"],
	}
	if avgStr, ok := attrs["AVERAGE-BANDWIDTH"]; ok {
		if avg, err := strconv.Atoi(avgStr); err == nil {
			v.AverageBandwidth = avg
		}
	}
	if frStr, ok := attrs["FRAME-RATE"]; ok {
		if fr, err := strconv.ParseFloat(frStr, 64); err == nil {
			v.FrameRate = fr
		}
	}
	return v, nil
}

func parseKey(line string, appliesFrom int) (KeyRange, error) {
	attrs := parseAttributes(tagValue(line))
	method, ok := attrs["METHOD"]
	if !ok {
		return KeyRange{}, apperrors.InvalidTag("EXT-X-KEY", "METHOD=<NONE|AES-128|SAMPLE-AES>", tagValue(line))
	}
	switch KeyMethod(method) {
	case KeyMethodNone, KeyMethodAES128, KeyMethodSampleAES:
	default:
		return KeyRange{}, apperrors.InvalidTag("EXT-X-KEY", "METHOD=<NONE|AES-128|SAMPLE-AES>", method)
	}
	return KeyRange{
		Method:             KeyMethod(method),
		URI:                attrs["URI"],
		IV:                 attrs["IV"],
		KeyFormat:          attrs["KEYFORMAT"],
		KeyFormatVersions:  attrs["KEYFORMATVERSIONS"],
		AppliesFromSegment: appliesFrom,
	}, nil
}

func parseByteRange(line string) (ByteRange, error) {
	val := tagValue(line)
	parts := strings.SplitN(val, "@", 2)
	length, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return ByteRange{}, apperrors.InvalidTag("EXT-X-BYTERANGE", "<length>[@<offset>]", val)
	}
	br := ByteRange{Length: length}
	if len(parts) == 2 {
		offset, err := strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return ByteRange{}, apperrors.InvalidTag("EXT-X-BYTERANGE", "<length>[@<offset>]", val)
		}
		br.Offset = offset
		br.HasOffset = true
	}
	return br, nil
}

func parseExtinf(line string) (duration float64, title string, err error) {
	val := tagValue(line)
	parts := strings.SplitN(val, ",", 2)
	duration, parseErr := strconv.ParseFloat(strings.TrimRight(strings.TrimSpace(parts[0]), ","), 64)
	if parseErr != nil {
		return 0, "", apperrors.InvalidTag("EXTINF", "<duration>[,<title>]", val)
	}
	if len(parts) > 1 {
		title = strings.TrimSpace(parts[1])
	}
	return duration, title, nil
}

func parseProgramDateTime(line string) (time.Time, error) {
	val := strings.TrimSpace(tagValue(line))
	t, err := time.Parse(time.RFC3339, val)
	if err != nil {
		return time.Time{}, apperrors.InvalidTag("EXT-X-PROGRAM-DATE-TIME", "<ISO-8601>", val)
	}
	return t, nil
}
