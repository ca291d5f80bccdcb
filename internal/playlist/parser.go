package playlist

import (
	"strconv"
	"strings"
	"time"

	"github.com/efferion/hlsgrab/internal/apperrors"
)

type playlistKind int

const (
	kindUnknown playlistKind = iota
	kindMaster
	kindMedia
)

// state carries the single-pass parser's pending tag values, exactly
// as described in spec §4.4.2.
type state struct {
	kind playlistKind

	pendingStreamInf *VariantStream

	pendingExtinf       bool
	pendingDuration     float64
	pendingTitle        string
	pendingByteRange    *ByteRange
	pendingDiscontinuity bool
	pendingPDT          *time.Time

	currentKeyIndex int // index into keys, or -1

	master Master
	media  Media
}

// Parse turns playlist text into a Result, per spec §4.4. baseURL is
// stored verbatim on the produced playlist; the parser does not
// resolve segment/variant URIs against it (that is the orchestrator's
// job, per spec §4.4.2's closing note).
func Parse(text, baseURL string) (Result, error) {
	lines := splitLines(text)

	firstNonEmpty := -1
	for i, l := range lines {
		if strings.TrimSpace(l) != "" {
			firstNonEmpty = i
			break
		}
	}
	if firstNonEmpty == -1 || strings.TrimSpace(lines[firstNonEmpty]) != "#EXTM3U" {
		return Result{}, apperrors.MissingRequiredTag("EXTM3U")
	}

	st := &state{
		kind:            kindUnknown,
		currentKeyIndex: -1,
		master:          Master{BaseURL: baseURL},
		media:           Media{BaseURL: baseURL, Version: 1, MediaSequence: 0},
	}

	for i := firstNonEmpty + 1; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#EXT") {
			if err := st.dispatchTag(line); err != nil {
				return Result{}, err
			}
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue // non-EXT comment, discarded per spec §4.4.2
		}

		if err := st.dispatchURI(line); err != nil {
			return Result{}, err
		}
	}

	switch st.kind {
	case kindMaster:
		if len(st.master.Streams) == 0 {
			return Result{}, apperrors.Malformed("master playlist has no variant streams", "")
		}
		return Result{Master: &st.master}, nil
	case kindMedia:
		return Result{Media: &st.media}, nil
	default:
		return Result{}, apperrors.Malformed("playlist contains no segments or variant streams", "")
	}
}

func splitLines(text string) []string {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	normalized = strings.ReplaceAll(normalized, "\r", "\n")
	return strings.Split(normalized, "\n")
}

// setKind enforces the no-mixing rule: once a playlist has committed
// to Master or Media, a tag belonging to the other kind is an error.
func (st *state) setKind(k playlistKind) error {
	if st.kind == kindUnknown {
		st.kind = k
		return nil
	}
	if st.kind != k {
		return apperrors.Malformed("playlist mixes Master-only and Media-only tags", "")
	}
	return nil
}

func (st *state) dispatchTag(line string) error {
	name := tagName(line)
	switch name {
	case "#EXTM3U":
		return nil
	case "#EXT-X-VERSION":
		v, err := strconv.Atoi(strings.TrimSpace(tagValue(line)))
		if err != nil {
			return apperrors.InvalidTag("EXT-X-VERSION", "<int>", tagValue(line))
		}
		st.media.Version = v
		return nil
	case "#EXT-X-TARGETDURATION":
		v, err := strconv.Atoi(strings.TrimSpace(tagValue(line)))
		if err != nil {
			return apperrors.InvalidTag("EXT-X-TARGETDURATION", "<int>", tagValue(line))
		}
		st.media.TargetDuration = v
		return nil
	case "#EXT-X-MEDIA-SEQUENCE":
		v, err := strconv.Atoi(strings.TrimSpace(tagValue(line)))
		if err != nil {
			return apperrors.InvalidTag("EXT-X-MEDIA-SEQUENCE", "<int>", tagValue(line))
		}
		st.media.MediaSequence = v
		return nil
	case "#EXT-X-PLAYLIST-TYPE":
		pt := PlaylistType(strings.TrimSpace(tagValue(line)))
		if pt != PlaylistTypeVOD && pt != PlaylistTypeEvent {
			return apperrors.InvalidTag("EXT-X-PLAYLIST-TYPE", "<VOD|EVENT>", tagValue(line))
		}
		st.media.PlaylistType = pt
		return nil
	case "#EXT-X-ALLOW-CACHE":
		val := strings.EqualFold(strings.TrimSpace(tagValue(line)), "YES")
		st.media.AllowCache = &val
		return nil
	case "#EXT-X-ENDLIST":
		st.media.HasEndlist = true
		return nil
	case "#EXT-X-DISCONTINUITY":
		st.pendingDiscontinuity = true
		return nil
	case "#EXT-X-PROGRAM-DATE-TIME":
		t, err := parseProgramDateTime(line)
		if err != nil {
			return err
		}
		st.pendingPDT = &t
		return nil
	case "#EXT-X-BYTERANGE":
		br, err := parseByteRange(line)
		if err != nil {
			return err
		}
		st.pendingByteRange = &br
		return nil
	case "#EXTINF":
		if err := st.setKind(kindMedia); err != nil {
			return err
		}
		d, title, err := parseExtinf(line)
		if err != nil {
			return err
		}
		st.pendingExtinf = true
		st.pendingDuration = d
		st.pendingTitle = title
		return nil
	case "#EXT-X-KEY":
		k, err := parseKey(line, len(st.media.Segments))
		if err != nil {
			return err
		}
		st.media.Keys = append(st.media.Keys, k)
		st.currentKeyIndex = len(st.media.Keys) - 1
		return nil
	case "#EXT-X-STREAM-INF":
		if err := st.setKind(kindMaster); err != nil {
			return err
		}
		v, err := parseStreamInf(line)
		if err != nil {
			return err
		}
		st.pendingStreamInf = &v
		return nil
	default:
		return nil // unrecognized EXT tag, ignored per grammar scope
	}
}

func (st *state) dispatchURI(line string) error {
	switch {
	case st.pendingStreamInf != nil:
		v := *st.pendingStreamInf
		v.URI = line
		st.master.Streams = append(st.master.Streams, v)
		st.pendingStreamInf = nil
		return nil
	case st.pendingExtinf:
		seg := Segment{
			URI:             line,
			Duration:        st.pendingDuration,
			Title:           st.pendingTitle,
			ByteRange:       st.pendingByteRange,
			Discontinuity:   st.pendingDiscontinuity,
			ProgramDateTime: st.pendingPDT,
			InlineKeyRef:    st.currentKeyIndex,
		}
		st.media.Segments = append(st.media.Segments, seg)
		st.pendingExtinf = false
		st.pendingByteRange = nil
		st.pendingDiscontinuity = false
		st.pendingPDT = nil
		return nil
	default:
		return apperrors.Malformed("URI without preceding #EXTINF or #EXT-X-STREAM-INF", line)
	}
}
