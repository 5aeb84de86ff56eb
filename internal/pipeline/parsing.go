package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/fxsettle/confirm-cli/internal/engine"
	"github.com/fxsettle/confirm-cli/internal/model"
)

// ParseResult reports a successful model parse.
type ParseResult struct {
	DocumentID string                 `json:"document_id"`
	Status     model.ProcessingStatus `json:"status"`
	Provider   string                 `json:"provider"`
	Model      string                 `json:"model"`
}

// BeginParsing sends a document's extracted text to the requested model and
// advances it from TEXT_EXTRACTED to TEXT_PARSED, storing the structured
// payload. The model call runs while the row lock is held.
func (p *Pipeline) BeginParsing(ctx context.Context, documentID, modelID string) (*ParseResult, error) {
	parser, err := p.parsers.For(modelID)
	if err != nil {
		return nil, err
	}

	var info ModelInfo
	doc, err := p.engine.Advance(ctx, engine.Request{
		DocumentID:    documentID,
		FromStates:    []model.ProcessingStatus{model.StatusTextExtracted},
		ToState:       model.StatusTextParsed,
		TriggerSource: triggerParsing,
		Metadata: map[string]any{
			"request_params": map[string]any{
				"document_id": documentID,
				"model_id":    modelID,
			},
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		},
		Mutate: func(ctx context.Context, doc *model.Document) (*engine.Mutation, map[string]any, error) {
			if doc.ExtractedText == nil || *doc.ExtractedText == "" {
				return nil, nil, eris.Errorf("pipeline: document %s has no extracted text", doc.ID)
			}

			payload, mi, err := parser.ParseConfirmation(ctx, *doc.ExtractedText, modelID)
			if err != nil {
				return nil, nil, &CollaboratorError{Collaborator: "model_parser", Err: err}
			}
			info = mi

			modelInfo := map[string]any{"provider": mi.Provider, "model": mi.Model}
			stored := map[string]any{
				"parsed_result": map[string]any{"parsed_content": payload},
				"model_info":    modelInfo,
			}
			return &engine.Mutation{ParsedContent: stored}, map[string]any{
				"model_info": modelInfo,
			}, nil
		},
	})
	if err != nil {
		return nil, p.recordFailure(ctx, documentID, triggerParsing, err)
	}

	return &ParseResult{
		DocumentID: doc.ID,
		Status:     doc.ProcessingStatus,
		Provider:   info.Provider,
		Model:      info.Model,
	}, nil
}

// confirmationPrompt instructs the model to emit the structured trade data
// the deriver consumes. The field names are load-bearing: the deriver and
// the normalization tests depend on them.
const confirmationPrompt = `You are a trade confirmation parser. Extract the structured trade data from the confirmation text and reply with a single JSON object, no prose, shaped as:
{
  "MsgSender": {"Name": "...", "Address": "..."},
  "MsgReceiver": {"Name": "...", "Address": "..."},
  "TradingParty": "...",
  "CounterParty": "...",
  "TradeType": "...",
  "TradeRef": "...",
  "TradeUTI": "...",
  "SettlementRate": "...",
  "transactions": [
    {"TradeDate": "YYYY-MM-DD", "SettlementDate": "YYYY-MM-DD", "BuyrOrSell": "Buy|Sell", "Amount": 0, "Currency": "XXX"}
  ]
}
Omit TradeUTI and SettlementRate when the document does not state them. Use YYYY-MM-DD for all dates.`

// decodeModelJSON extracts the JSON object from raw model output,
// tolerating markdown fences and reasoning preambles (deepseek-r1 emits a
// <think> block before the answer).
func decodeModelJSON(raw string) (map[string]any, error) {
	s := raw
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return nil, eris.New("pipeline: no JSON object in model output")
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(s[start:end+1]), &payload); err != nil {
		return nil, eris.Wrap(err, "pipeline: decode model output")
	}
	return payload, nil
}
