package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/danieledinun/aitreon-sub004/internal/infrastructure/resilience"
)

const serviceName = "qdrant"

// do sends a JSON request to the Qdrant REST API. A nil out discards the response body.
func (c *Client) do(ctx context.Context, operation, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	err = c.executor.Execute(ctx, serviceName+"."+operation, func(callCtx context.Context) error {
		req, err := http.NewRequestWithContext(callCtx, method, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create %s request: %w", operation, err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("qdrant %s request: %w", operation, err)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode >= http.StatusMultipleChoices:
			return resilience.NewStatusError(serviceName, operation, resp)
		case out == nil:
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", operation, err)
		}
		return nil
	}, resilience.ClassifyHTTPError)
	return resilience.WrapTemporary(serviceName+" "+operation, err, resilience.ClassifyHTTPError)
}

func isNotFound(err error) bool {
	return resilience.StatusCode(err) == http.StatusNotFound
}

// isAlreadyExists accepts 409 and the 400 "already exists" answer older Qdrant builds send.
func isAlreadyExists(err error) bool {
	var statusErr *resilience.StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	switch statusErr.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusBadRequest:
		return strings.Contains(strings.ToLower(statusErr.Body), "already exists")
	}
	return false
}
