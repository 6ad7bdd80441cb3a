package domain

// TranscriptSegment is one timestamped span of transcribed speech.
// Pure value, ordered by Start within a Transcript.
type TranscriptSegment struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Text  string  `json:"text"`
}

// Transcript is the output of the transcriber. Sampled marks transcripts
// that cover only strategic windows of a long source rather than the whole.
type Transcript struct {
	Text     string              `json:"text"`
	Segments []TranscriptSegment `json:"segments"`
	Sampled  bool                `json:"sampled,omitempty"`
}

// Hook is a suggested short-form clip span within a longer video.
type Hook struct {
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Title  string `json:"title"`
	Reason string `json:"reason"`
}
