package ai

import "context"

// Client asks a language model to assess a cryptographic inventory. The
// answer is a JSON document.
type Client interface {
	Assess(ctx context.Context, project, inventory string) (string, error)
}
