package workflow

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/laird/nextgen-CDD-sub002/internal/types"
)

// Segment is one attributed utterance from an expert-call transcript.
// StartTime is milliseconds from the start of the call.
type Segment struct {
	Speaker   string `json:"speaker"`
	StartTime int64  `json:"start_time"`
	Text      string `json:"text"`
}

var (
	// [mm:ss] Speaker: text
	timedLinePattern = regexp.MustCompile(`^\[(\d{1,2}):(\d{2})\]\s*([^:]+):\s*(.*)$`)
	// Speaker: text
	plainLinePattern = regexp.MustCompile(`^([^:]+):\s*(.*)$`)
)

// syntheticGap is the clock advance assumed between consecutive lines that
// carry no timestamp of their own.
const syntheticGap int64 = 30_000

// ParseTranscript splits raw transcript text into attributed segments.
//
// Two line shapes are recognized: "[mm:ss] Speaker: text" and
// "Speaker: text". A timed line sets the running clock from its timestamp;
// an untimed line is stamped with the running clock, which then advances by
// a fixed synthetic gap. Lines matching neither shape become their own
// segments attributed to an "Unknown" speaker, advancing the clock like any
// other untimed line. A transcript yielding no segments is a validation
// failure.
func ParseTranscript(raw string) ([]Segment, error) {
	var segments []Segment
	// Starts negative so the first untimed line lands at zero.
	clock := -syntheticGap

	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := timedLinePattern.FindStringSubmatch(line); m != nil {
			minutes, _ := strconv.Atoi(m[1])
			seconds, _ := strconv.Atoi(m[2])
			clock = (int64(minutes)*60 + int64(seconds)) * 1000
			segments = append(segments, Segment{
				Speaker:   strings.TrimSpace(m[3]),
				StartTime: clock,
				Text:      m[4],
			})
			continue
		}

		if m := plainLinePattern.FindStringSubmatch(line); m != nil {
			clock += syntheticGap
			segments = append(segments, Segment{
				Speaker:   strings.TrimSpace(m[1]),
				StartTime: clock,
				Text:      m[2],
			})
			continue
		}

		// Unattributed line.
		clock += syntheticGap
		segments = append(segments, Segment{
			Speaker:   "Unknown",
			StartTime: clock,
			Text:      line,
		})
	}

	if len(segments) == 0 {
		return nil, types.NewError(ErrEmptyTranscript,
			"transcript contains no parseable utterances")
	}
	return segments, nil
}
