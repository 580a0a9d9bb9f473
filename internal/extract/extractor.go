package extract

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/local/sheetify/internal/ai"
	"github.com/local/sheetify/internal/conversation"
	"github.com/local/sheetify/internal/metrics"
	"github.com/local/sheetify/internal/retry"
	"github.com/local/sheetify/internal/sheet"
)

// Extractor runs the per-page extraction operation for one document: it owns
// the bounded conversation and the accumulating sheet, so it must not be
// shared across documents or called concurrently.
type Extractor struct {
	mode   Mode
	client ai.Client
	caller retry.Caller
	memory *conversation.Memory
	rows   sheet.Sheet
}

func New(mode Mode, client ai.Client, caller retry.Caller) *Extractor {
	return &Extractor{
		mode:   mode,
		client: client,
		caller: caller,
		memory: conversation.NewMemory(mode.MemoryLimit),
	}
}

// Extract appends the page image to the conversation, asks the model for
// structured rows, stamps each row with the page number and a 1-based in-page
// sequence, feeds the model's reply back into the conversation and
// accumulates the rows. A failed or empty response yields zero rows without
// an error; a page that yields nothing must not abort the job.
func (e *Extractor) Extract(ctx context.Context, page int, imageURI string) ([]sheet.Row, error) {
	e.memory.Push(conversation.Turn{
		Role:  conversation.RoleUser,
		Parts: []conversation.Part{conversation.ImagePart(imageURI, "image/png")},
	})

	resp, err := retry.Call(ctx, e.caller, "generate", func(ctx context.Context) (ai.Response, error) {
		return e.client.Generate(ctx, ai.Request{
			System:  e.mode.Instructions,
			Columns: e.mode.Columns,
			History: e.memory.Messages(),
		})
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		log.Warn().Err(err).Int("page", page).Str("mode", e.mode.Name).Msg("extraction failed; page yields no rows")
		metrics.IncExtracted(e.mode.Name, "error")
		return nil, nil
	}

	var records []map[string]string
	if err := json.Unmarshal([]byte(resp.Text), &records); err != nil {
		log.Warn().Err(err).Int("page", page).Str("mode", e.mode.Name).Msg("unparsable model response; page yields no rows")
		metrics.IncExtracted(e.mode.Name, "unparsable")
		return nil, nil
	}
	if len(records) == 0 {
		// nothing extracted; the reply is not worth a conversation turn
		metrics.IncExtracted(e.mode.Name, "empty")
		return nil, nil
	}

	e.memory.Push(conversation.Turn{
		Role:  conversation.RoleModel,
		Parts: []conversation.Part{conversation.TextPart(resp.Text)},
	})

	rows := make([]sheet.Row, 0, len(records))
	for i, rec := range records {
		fields := make(map[string]string, len(e.mode.Columns))
		for _, c := range e.mode.Columns {
			fields[c] = rec[c]
		}
		rows = append(rows, sheet.Row{Fields: fields, Page: page, Seq: i + 1})
	}
	e.rows = append(e.rows, rows...)

	metrics.IncExtracted(e.mode.Name, "ok")
	metrics.AddRows(e.mode.Name, len(rows))
	log.Info().Int("page", page).Int("rows", len(rows)).Str("mode", e.mode.Name).Msg("page extracted")
	return rows, nil
}

// Sheet returns the rows accumulated so far, in completion order.
func (e *Extractor) Sheet() sheet.Sheet { return e.rows }

// Mode returns the extractor's active mode.
func (e *Extractor) Mode() Mode { return e.mode }
