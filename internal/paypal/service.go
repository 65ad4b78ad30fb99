/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package paypal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"settlement-bridge-go/internal/models"

	"golang.org/x/net/http2"
)

// Service is a REST client for the fiat payment processor. Every
// side-effecting call accepts a context deadline; the payout call carries a
// caller-supplied idempotency key so retries never double-pay.
type Service struct {
	baseURL      string
	clientID     string
	clientSecret string
	currency     string
	httpClient   *http.Client

	tokenMu     sync.Mutex
	accessToken string
	tokenExpiry time.Time
}

func NewService(cfg models.ProcessorConfig) (*Service, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, fmt.Errorf("missing processor credentials: PROCESSOR_CLIENT_ID, PROCESSOR_CLIENT_SECRET")
	}

	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	currency := cfg.Currency
	if currency == "" {
		currency = "USD"
	}

	return &Service{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		clientID:     cfg.ClientID,
		clientSecret: cfg.ClientSecret,
		currency:     currency,
		httpClient:   httpClient,
	}, nil
}

func createCustomHttpClient() (*http.Client, error) {
	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		MaxIdleConnsPerHost:   5,
		ExpectContinueTimeout: 5 * time.Second,
	}

	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, err
	}

	return &http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// accessTokenFor returns a cached OAuth token, refreshing it when it is
// about to expire. The mutex guards only the cached fields; the token
// request itself runs outside any lock, so two goroutines racing on an
// expired token may both refresh. That is harmless.
func (s *Service) accessTokenFor(ctx context.Context) (string, error) {
	s.tokenMu.Lock()
	token, expiry := s.accessToken, s.tokenExpiry
	s.tokenMu.Unlock()

	if token != "" && time.Now().Before(expiry.Add(-30*time.Second)) {
		return token, nil
	}

	form := strings.NewReader("grant_type=client_credentials")
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/oauth2/token", form)
	if err != nil {
		return "", fmt.Errorf("failed to build token request: %w", err)
	}
	req.SetBasicAuth(s.clientID, s.clientSecret)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	var payload struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	if err := s.do(req, &payload); err != nil {
		return "", fmt.Errorf("failed to obtain processor access token: %w", err)
	}
	if payload.AccessToken == "" {
		return "", fmt.Errorf("processor returned empty access token")
	}

	s.tokenMu.Lock()
	s.accessToken = payload.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(payload.ExpiresIn) * time.Second)
	s.tokenMu.Unlock()

	return payload.AccessToken, nil
}

// postJSON issues an authenticated POST and decodes the response body into
// out when it is non-nil. headers lets callers attach per-request dedup
// headers.
func (s *Service) postJSON(ctx context.Context, path string, body any, headers map[string]string, out any) error {
	token, err := s.accessTokenFor(ctx)
	if err != nil {
		return err
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return s.do(req, out)
}

func (s *Service) do(req *http.Request, out any) error {
	resp, err := s.httpClient.Do(req)
	if err != nil {
		// Transport-level failures are transient by definition here; the
		// caller's bounded retry absorbs them.
		return &apiError{Status: 0, Body: err.Error(), transient: true}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return &apiError{Status: resp.StatusCode, Body: err.Error(), transient: true}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return newAPIError(resp.StatusCode, string(raw))
	}

	if out != nil && len(raw) > 0 {
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("failed to decode processor response: %w", err)
		}
	}
	return nil
}
