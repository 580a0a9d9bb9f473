package ai

import (
	"context"
	"errors"

	"github.com/local/sheetify/internal/conversation"
)

// Request describes one structured-generation call. Columns lists the string
// properties every object in the JSON-array response must carry; History is
// the conversation to send, newest turn last.
type Request struct {
	System  string
	Columns []string
	History []conversation.Turn
}

type Response struct {
	Text string
}

// Client is the remote inference capability: upload an image to the model's
// file store and run generation against a conversation.
type Client interface {
	Upload(ctx context.Context, data []byte, mimeType string) (string, error)
	Generate(ctx context.Context, req Request) (Response, error)
	Transcribe(ctx context.Context, prompt string, image []byte, mimeType string) (string, error)
}

var (
	ErrEmptyResponse = errors.New("empty model response")
	ErrNoUserTurn    = errors.New("conversation has no user turn to send")
)

func IsEmptyResponse(err error) bool { return errors.Is(err, ErrEmptyResponse) }
