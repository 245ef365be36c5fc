package stt

import "context"

// Provider transcribes recorded interview audio. Confidence is the
// recognizer's own estimate for the best alternative, 0 when unknown.
type Provider interface {
	Transcribe(ctx context.Context, audio []byte, language string) (text string, confidence float64, err error)
	Close() error
}
