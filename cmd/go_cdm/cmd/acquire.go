package cmd

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cdmlab/go_cdm/internal/config"
	"github.com/cdmlab/go_cdm/pkg/pssh"
)

const acquireTimeout = 30 * time.Second

// postChallenge sends a challenge to the license server and returns the raw
// response body. Transport stays in the command layer; the protocol packages
// never talk to the network themselves.
func postChallenge(
	ctx context.Context,
	url, contentType string,
	headers map[string]string,
	challenge []byte,
) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, acquireTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(challenge))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", contentType)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("license server returned %s", resp.Status)
	}

	return body, nil
}

// resolveURL prefers the command-line flag over the configured default.
func resolveURL(flagValue string) (string, error) {
	if flagValue != "" {
		return flagValue, nil
	}
	if url := config.Get().License.URL; url != "" {
		return url, nil
	}

	return "", fmt.Errorf("no license server URL given (flag --url or config license.url)")
}

// loadBox decodes a base64 protection box from the command line.
func loadBox(b64 string) (*pssh.Box, error) {
	if b64 == "" {
		return nil, fmt.Errorf("no pssh box given (flag --pssh)")
	}

	return pssh.ParseBase64(b64)
}
