package modelclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"amr-predictor/internal/metrics"
	"amr-predictor/internal/selection"
)

const (
	maxRequestSize  = 256 * 1024 // JSON payload sent upstream
	maxResponseSize = 1 << 20    // body read from upstream
)

func (c *client) Predict(parentCtx context.Context, sel selection.Selection) (*Response, error) {
	resp, err := c.predict(parentCtx, sel)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.ModelRequestsTotal.WithLabelValues(outcome).Inc()
	return resp, err
}

func (c *client) predict(parentCtx context.Context, sel selection.Selection) (*Response, error) {
	start := time.Now()

	bodyBytes, err := json.Marshal(newProviderRequest(sel))
	if err != nil {
		return nil, fmt.Errorf("modelclient: marshal request: %w", err)
	}
	if len(bodyBytes) > maxRequestSize {
		return nil, fmt.Errorf(
			"modelclient: request too large (%d bytes, max %d)",
			len(bodyBytes), maxRequestSize,
		)
	}

	c.logger.Debug("model request starting",
		zap.String("bacteria", sel.Bacteria),
		zap.String("antibiotic", sel.Antibiotic),
	)

	ctx, cancel := context.WithTimeout(parentCtx, c.cfg.UpstreamTimeout)
	defer cancel()

	url := c.cfg.BaseURL + "/predict"

	// send builds a fresh *http.Request for each attempt
	send := func(ctx context.Context, body []byte) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("modelclient: build HTTP request: %w", err)
		}
		if c.cfg.APIKey != "" {
			httpReq.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", "application/json")
		return c.httpClient.Do(httpReq)
	}

	resp, err := c.sendWithRetry(ctx, selection.Fingerprint(sel), bodyBytes, send)
	if err != nil {
		c.logger.Error("model request failed",
			zap.Error(err),
			zap.Duration("duration", time.Since(start)),
		)
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("modelclient: read upstream response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := truncate(string(body), 200)
		var perr providerErrorResponse
		if err := json.Unmarshal(body, &perr); err == nil && perr.message() != "" {
			msg = perr.message()
		}
		c.logger.Error("model upstream error",
			zap.Int("status", resp.StatusCode),
			zap.String("error_message", msg),
		)
		return nil, &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	var pResp providerPredictResponse
	if err := json.Unmarshal(body, &pResp); err != nil {
		return nil, fmt.Errorf("modelclient: decode upstream response: %w", err)
	}

	verdict, err := pResp.verdict()
	if err != nil {
		c.logger.Error("model returned no usable prediction",
			zap.String("body", truncate(string(body), 200)),
			zap.Error(err),
		)
		return nil, fmt.Errorf("modelclient: %w", err)
	}

	c.logger.Info("model request completed",
		zap.String("prediction", string(verdict)),
		zap.Duration("duration", time.Since(start)),
	)

	return &Response{
		Prediction:  verdict,
		Probability: pResp.Probability,
		Raw:         json.RawMessage(body),
	}, nil
}

// truncate limits string length for logging
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
