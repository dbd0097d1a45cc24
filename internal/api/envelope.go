package api

import (
	"github.com/danielgtaylor/huma/v2"

	"github.com/pairsync/pairsync-server/internal/http/response"
)

// EnvelopeTransformer wraps every huma response body in the versioned
// envelope. Errors carry the message in "error" plus their code and details.
func EnvelopeTransformer(_ huma.Context, _ string, v any) (any, error) {
	switch body := v.(type) {
	case *APIError:
		return response.Envelope{
			V:       response.Version,
			Error:   body.Message,
			Code:    body.Code,
			Details: body.Details,
		}, nil
	case response.Envelope:
		return body, nil
	default:
		return response.Envelope{V: response.Version, Success: true, Data: v}, nil
	}
}
