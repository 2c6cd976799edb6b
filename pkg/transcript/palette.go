package transcript

// SpeakerColors are ANSI foreground codes handed out in first-seen order.
var SpeakerColors = []string{
	"\033[34m", // blue
	"\033[32m", // green
	"\033[35m", // magenta
	"\033[33m", // yellow
	"\033[36m", // cyan
	"\033[31m", // red
}

// Palette assigns each speaker a stable color index. Not safe for concurrent use.
type Palette struct {
	index map[string]int
}

// NewPalette returns an empty palette.
func NewPalette() *Palette {
	return &Palette{index: make(map[string]int)}
}

// Observe assigns indices to speakers not seen before.
func (p *Palette) Observe(segments []Segment) {
	for _, s := range segments {
		p.Index(s.Speaker)
	}
}

// Index returns the color index for speaker, assigning one if needed.
// Unattributed speakers get -1.
func (p *Palette) Index(speaker string) int {
	if speaker == "" || speaker == UnknownSpeaker {
		return -1
	}
	if i, ok := p.index[speaker]; ok {
		return i
	}
	i := len(p.index) % len(SpeakerColors)
	p.index[speaker] = i
	return i
}

// Color returns the ANSI code for speaker, or "" for unattributed speech.
func (p *Palette) Color(speaker string) string {
	i := p.Index(speaker)
	if i < 0 {
		return ""
	}
	return SpeakerColors[i]
}
