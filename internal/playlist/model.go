// Package playlist implements the HLS text-grammar parser (C4): it
// turns M3U8 text plus a base URL into an immutable typed Master or
// Media playlist. Grounded on the teacher's
// internal/downloader/hls/hls.go line-scanning/tag-prefix approach,
// generalized from a single-purpose downloader pass into a standalone
// parser producing the full tagged-union model spec §3/§4.4 requires,
// and diverging from the teacher on malformed input: a playlist that
// mixes Master-only and Media-only tags fails closed here, where the
// teacher's scanner silently skips tags it does not recognize.
package playlist

import "time"

// VariantStream is one #EXT-X-STREAM-INF entry in a Master playlist.
type VariantStream struct {
	URI                 string
	Bandwidth           int
	AverageBandwidth    int
	Resolution          string
	Codecs              string
	FrameRate           float64
	AudioGroup          string
	SubtitlesGroup      string
	VideoGroup          string
	ClosedCaptionsGroup string
}

// Master is the playlist kind selecting among variant renditions.
type Master struct {
	BaseURL string
	Streams []VariantStream
}

// KeyMethod is the encryption method named by an EXT-X-KEY tag.
// Decryption itself is out of scope; the parser only records the tag.
type KeyMethod string

const (
	KeyMethodNone      KeyMethod = "NONE"
	KeyMethodAES128    KeyMethod = "AES-128"
	KeyMethodSampleAES KeyMethod = "SAMPLE-AES"
)

// KeyRange is one #EXT-X-KEY tag and the segment index it starts
// applying from.
type KeyRange struct {
	Method             KeyMethod
	URI                string
	IV                 string
	KeyFormat          string
	KeyFormatVersions  string
	AppliesFromSegment int
}

// ByteRange is a parsed #EXT-X-BYTERANGE value.
type ByteRange struct {
	Length int
	Offset int
	HasOffset bool
}

// Segment is one media segment entry in a Media playlist.
type Segment struct {
	URI             string
	Duration        float64
	Title           string
	ByteRange       *ByteRange
	Discontinuity   bool
	ProgramDateTime *time.Time
	InlineKeyRef    int // index into Media.Keys, or -1 when none applies
}

// PlaylistType is the optional #EXT-X-PLAYLIST-TYPE value.
type PlaylistType string

const (
	PlaylistTypeUnspecified PlaylistType = ""
	PlaylistTypeVOD         PlaylistType = "VOD"
	PlaylistTypeEvent       PlaylistType = "EVENT"
)

// Media is the playlist kind naming a sequence of downloadable
// segments.
type Media struct {
	BaseURL         string
	TargetDuration  int
	Version         int
	MediaSequence   int
	AllowCache      *bool
	PlaylistType    PlaylistType
	Segments        []Segment
	Keys            []KeyRange
	HasEndlist      bool
}

// Result is the parser's tagged-union output. Exactly one of Master or
// Media is non-nil on success; Cancelled is reserved for future
// cooperative cancellation support and is never produced today.
type Result struct {
	Master    *Master
	Media     *Media
	Cancelled bool
}
