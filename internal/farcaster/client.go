package farcaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"agent-trinity-go/internal/models"

	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Account is the social identity created for an agent.
type Account struct {
	Fid        int64
	SignerUuid string
	Username   string
}

// Registrar creates Farcaster accounts and publishes casts on their behalf.
type Registrar interface {
	CreateAccount(ctx context.Context, agentId, username, walletAddress, pfpUrl, bannerUrl string) (*Account, error)
	PublishCast(ctx context.Context, signerUuid, text string) (string, error)
}

// Client talks to the Neynar-style registrar API.
type Client struct {
	httpClient *http.Client
	baseUrl    string
	apiKey     string
}

// Configured reports whether the registrar credentials are present.
func Configured(cfg models.SocialConfig) bool {
	return cfg.ApiKey != ""
}

func NewClient(cfg models.SocialConfig) (*Client, error) {
	if cfg.ApiKey == "" {
		return nil, fmt.Errorf("missing required social API key: NEYNAR_API_KEY")
	}

	tr := &http.Transport{
		ResponseHeaderTimeout: 30 * time.Second,
		Proxy:                 http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			KeepAlive: 30 * time.Second,
			Timeout:   15 * time.Second,
		}).DialContext,
		MaxIdleConns:        10,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if err := http2.ConfigureTransport(tr); err != nil {
		return nil, fmt.Errorf("unable to configure http2 transport: %w", err)
	}

	return &Client{
		httpClient: &http.Client{Transport: tr, Timeout: 60 * time.Second},
		baseUrl:    cfg.BaseUrl,
		apiKey:     cfg.ApiKey,
	}, nil
}

type createAccountRequest struct {
	Username      string `json:"username"`
	WalletAddress string `json:"wallet_address"`
	PfpUrl        string `json:"pfp_url,omitempty"`
	BannerUrl     string `json:"banner_url,omitempty"`
	Metadata      struct {
		AgentId string `json:"agent_id"`
	} `json:"metadata"`
}

type createAccountResponse struct {
	Fid        int64  `json:"fid"`
	SignerUuid string `json:"signer_uuid"`
	Username   string `json:"username"`
}

// CreateAccount registers a social account scoped to the agent's custodial
// wallet.
func (c *Client) CreateAccount(ctx context.Context, agentId, username, walletAddress, pfpUrl, bannerUrl string) (*Account, error) {
	reqBody := createAccountRequest{
		Username:      username,
		WalletAddress: walletAddress,
		PfpUrl:        pfpUrl,
		BannerUrl:     bannerUrl,
	}
	reqBody.Metadata.AgentId = agentId

	var resp createAccountResponse
	if err := c.post(ctx, "/v2/farcaster/user", reqBody, &resp); err != nil {
		return nil, fmt.Errorf("unable to create account: %w", err)
	}

	zap.L().Info("Social account created",
		zap.String("agent_id", agentId),
		zap.Int64("fid", resp.Fid),
		zap.String("username", resp.Username))

	return &Account{
		Fid:        resp.Fid,
		SignerUuid: resp.SignerUuid,
		Username:   resp.Username,
	}, nil
}

type publishCastRequest struct {
	SignerUuid string `json:"signer_uuid"`
	Text       string `json:"text"`
}

type publishCastResponse struct {
	Cast struct {
		Hash string `json:"hash"`
	} `json:"cast"`
}

// PublishCast posts on behalf of the account's signer and returns the cast
// hash.
func (c *Client) PublishCast(ctx context.Context, signerUuid, text string) (string, error) {
	var resp publishCastResponse
	err := c.post(ctx, "/v2/farcaster/cast", publishCastRequest{SignerUuid: signerUuid, Text: text}, &resp)
	if err != nil {
		return "", fmt.Errorf("unable to publish cast: %w", err)
	}
	return resp.Cast.Hash, nil
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseUrl+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		if err := resp.Body.Close(); err != nil {
			zap.L().Warn("Failed to close response body", zap.Error(err))
		}
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("registrar returned %d: %s", resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
