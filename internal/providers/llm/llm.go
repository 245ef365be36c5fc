package llm

import "context"

type Provider interface {
	// Answer returns one complete response.
	Answer(ctx context.Context, prompt string) (string, error)
	// StreamAnswer returns a stream of text chunks (incremental).
	StreamAnswer(ctx context.Context, prompt string) (chunks <-chan string, errs <-chan error)
	Close() error
}
