package custody

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/coinbase-samples/prime-sdk-go/client"
	"github.com/coinbase-samples/prime-sdk-go/credentials"
	"github.com/coinbase-samples/prime-sdk-go/portfolios"
	"github.com/coinbase-samples/prime-sdk-go/wallets"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/net/http2"
)

// Wallet is the provisioning result persisted onto the agent.
type Wallet struct {
	Id      string
	Address string
	Network string
}

// Service provisions custodial wallets for agents over the Prime API.
type Service struct {
	client        client.RestClient
	portfoliosSvc portfolios.PortfoliosService
	walletsSvc    wallets.WalletsService
	portfolioId   string
	symbol        string
	network       string
}

func NewService(creds *credentials.Credentials) (*Service, error) {
	httpClient, err := createCustomHttpClient()
	if err != nil {
		return nil, fmt.Errorf("unable to create custom http client: %w", err)
	}

	restClient := client.NewRestClient(creds, httpClient)

	return &Service{
		client:        restClient,
		portfoliosSvc: portfolios.NewPortfoliosService(restClient),
		walletsSvc:    wallets.NewWalletsService(restClient),
		symbol:        "ETH",
		network:       "base-mainnet",
	}, nil
}

func createCustomHttpClient() (http.Client, error) {
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
		return http.Client{}, err
	}

	return http.Client{
		Transport: tr,
		Timeout:   60 * time.Second,
	}, nil
}

// Init resolves the default portfolio the agent wallets live under.
func (s *Service) Init(ctx context.Context) error {
	response, err := s.portfoliosSvc.ListPortfolios(ctx, &portfolios.ListPortfoliosRequest{})
	if err != nil {
		return fmt.Errorf("unable to list portfolios: %w", err)
	}

	for _, p := range response.Portfolios {
		if p.Name == "Default Portfolio" {
			s.portfolioId = p.Id
			zap.L().Info("Using default portfolio",
				zap.String("name", p.Name),
				zap.String("id", p.Id))
			return nil
		}
	}

	return fmt.Errorf("default portfolio not found")
}

// ProvisionWallet creates a custodial wallet named after the agent and
// generates its deposit address.
func (s *Service) ProvisionWallet(ctx context.Context, agentId, agentName string) (*Wallet, error) {
	zap.L().Info("Provisioning custodial wallet",
		zap.String("agent_id", agentId),
		zap.String("agent_name", agentName))

	createResp, err := s.walletsSvc.CreateWallet(ctx, &wallets.CreateWalletRequest{
		PortfolioId:    s.portfolioId,
		Name:           fmt.Sprintf("agent-%s", agentId),
		Symbol:         s.symbol,
		Type:           "TRADING",
		IdempotencyKey: uuid.New().String(),
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet: %w", err)
	}

	walletId := createResp.ActivityId

	addrResp, err := s.walletsSvc.CreateWalletAddress(ctx, &wallets.CreateWalletAddressRequest{
		PortfolioId: s.portfolioId,
		WalletId:    walletId,
		NetworkId:   s.network,
	})
	if err != nil {
		return nil, fmt.Errorf("unable to create wallet address: %w", err)
	}

	zap.L().Info("Custodial wallet provisioned",
		zap.String("agent_id", agentId),
		zap.String("wallet_id", walletId),
		zap.String("address", addrResp.Address))

	return &Wallet{
		Id:      walletId,
		Address: addrResp.Address,
		Network: s.network,
	}, nil
}
