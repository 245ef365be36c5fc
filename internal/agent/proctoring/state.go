package proctoring

import "sync"

// State is the session-scoped proctoring accumulator. It is owned by the
// session controller and shared by reference with the presence loop and the
// input listeners, so all mutation goes through the mutex.
type State struct {
	mu sync.Mutex

	tabBlurCount  int
	pasteCount    int
	faceCount     int
	multipleFaces bool
}

func (s *State) IncrTabBlur() {
	s.mu.Lock()
	s.tabBlurCount++
	s.mu.Unlock()
}

func (s *State) IncrPaste() {
	s.mu.Lock()
	s.pasteCount++
	s.mu.Unlock()
}

// ObserveFaces records the face count of one detection tick. faceCount tracks
// the momentary value; multipleFaces is sticky for the rest of the session
// once any tick reports more than one face.
func (s *State) ObserveFaces(n int) {
	s.mu.Lock()
	s.faceCount = n
	if n > 1 {
		s.multipleFaces = true
	}
	s.mu.Unlock()
}

// Summary is the shape flushed to the backend at session end.
type Summary struct {
	PasteCount int            `json:"pasteCount"`
	Proctoring SummaryDetails `json:"proctoring"`
}

type SummaryDetails struct {
	TabBlurCount  int  `json:"tabBlurCount"`
	MultipleFaces bool `json:"multipleFaces"`
	FaceCount     int  `json:"faceCount"`
}

func (s *State) Snapshot() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		PasteCount: s.pasteCount,
		Proctoring: SummaryDetails{
			TabBlurCount:  s.tabBlurCount,
			MultipleFaces: s.multipleFaces,
			FaceCount:     s.faceCount,
		},
	}
}
