package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/danieledinun/aitreon-sub004/internal/core/domain"
	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

const serviceName = "ollama"

// call posts payload to an Ollama endpoint through the executor and decodes the answer into out.
func (c *Client) call(ctx context.Context, operation, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s request: %w", operation, err)
	}

	err = c.executor.Execute(ctx, serviceName+"."+operation, func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("ollama %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		if resp.StatusCode >= http.StatusMultipleChoices {
			return resilience.NewStatusError(serviceName, operation, resp)
		}
		return json.NewDecoder(resp.Body).Decode(out)
	}, resilience.ClassifyHTTPError)
	return classifyCallError(serviceName+" "+operation, err)
}

// classifyCallError maps transport failures onto domain kinds. A 404 from /api/embed means
// the configured model was never pulled, which no retry will fix.
func classifyCallError(op string, err error) error {
	if err == nil {
		return nil
	}
	if resilience.StatusCode(err) == http.StatusNotFound {
		return domain.WrapError(domain.ErrInvalidInput, op, errors.Join(errModelMissing, err))
	}
	return resilience.WrapTemporary(op, err, resilience.ClassifyHTTPError)
}

var errModelMissing = errors.New("embedding model not available")
