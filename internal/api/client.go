package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"

	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/registry"
	"jetton-ledger/internal/vm"
)

// DefaultTimeout bounds one HTTP round trip of Client.
const DefaultTimeout = 30 * time.Second

// StatusError is a non-2xx answer of the server.
type StatusError struct {
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// IsNotFound reports whether err is a 404 answer.
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Status == http.StatusNotFound
}

// Client talks to a ledger daemon.
type Client struct {
	endpoint string
	client   *http.Client
	wait     bool
	token    string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithWait makes every mutating call wait until the ledger settles.
func WithWait(wait bool) ClientOption {
	return func(c *Client) {
		c.wait = wait
	}
}

// WithToken sends token as a bearer credential on every request.
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a client for the daemon at endpoint, e.g. "http://localhost:8080".
func NewClient(endpoint string, opts ...ClientOption) *Client {
	c := &Client{
		endpoint: strings.TrimRight(endpoint, "/"),
		client:   &http.Client{Timeout: DefaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) do(ctx context.Context, method, path string, body, result any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint+path, reader)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	// 409 carries a supply report, decoded like a success.
	if resp.StatusCode >= 300 && resp.StatusCode != http.StatusConflict {
		var e ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return fmt.Errorf("unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*Accepted, error) {
	if c.wait {
		path += "?wait=true"
	}
	var out Accepted
	if err := c.do(ctx, http.MethodPost, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, result any) error {
	return c.do(ctx, http.MethodGet, path, nil, result)
}

// CreateHolder funds the holder derived from seed.
func (c *Client) CreateHolder(ctx context.Context, seed string, amount domain.Coins) (*Accepted, error) {
	return c.post(ctx, "/v1/holders", HolderRequest{Seed: seed, Amount: amount})
}

// Fund credits amount to addr.
func (c *Client) Fund(ctx context.Context, addr domain.Address, amount domain.Coins) (*Accepted, error) {
	return c.post(ctx, "/v1/fund", FundRequest{Address: addr, Amount: amount})
}

// Send submits a raw external request.
func (c *Client) Send(ctx context.Context, req vm.ExternalRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/messages", req)
}

// Deploy deploys a token master. Accepted.Address is the master.
func (c *Client) Deploy(ctx context.Context, req DeployRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/jettons", req)
}

// Mint mints to the wallet of req.To.
func (c *Client) Mint(ctx context.Context, master domain.Address, req MintRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/jettons/"+master.String()+"/mint", req)
}

// AdminBurn burns from the wallet of req.To on behalf of the admin.
func (c *Client) AdminBurn(ctx context.Context, master domain.Address, req MintRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/jettons/"+master.String()+"/burn", req)
}

// ChangeAdmin hands master to req.NewAdmin.
func (c *Client) ChangeAdmin(ctx context.Context, master domain.Address, req ChangeAdminRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/jettons/"+master.String()+"/admin", req)
}

// ChangeMetadata replaces the metadata of master.
func (c *Client) ChangeMetadata(ctx context.Context, master domain.Address, req ChangeMetadataRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/jettons/"+master.String()+"/metadata", req)
}

// Transfer moves jettons out of wallet.
func (c *Client) Transfer(ctx context.Context, wallet domain.Address, req TransferRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/wallets/"+wallet.String()+"/transfer", req)
}

// Burn destroys jettons held by wallet.
func (c *Client) Burn(ctx context.Context, wallet domain.Address, req BurnRequest) (*Accepted, error) {
	return c.post(ctx, "/v1/wallets/"+wallet.String()+"/burn", req)
}

// Withdraw returns the spare funds of wallet to its owner.
func (c *Client) Withdraw(ctx context.Context, wallet domain.Address, queryID uint64) (*Accepted, error) {
	return c.post(ctx, "/v1/wallets/"+wallet.String()+"/withdraw", WithdrawRequest{QueryID: queryID})
}

// TokenData returns the token record of master.
func (c *Client) TokenData(ctx context.Context, master domain.Address) (*jetton.TokenData, error) {
	var out jetton.TokenData
	if err := c.get(ctx, "/v1/jettons/"+master.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WalletData returns the state of wallet.
func (c *Client) WalletData(ctx context.Context, wallet domain.Address) (*jetton.WalletData, error) {
	var out jetton.WalletData
	if err := c.get(ctx, "/v1/wallets/"+wallet.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// WalletAddress returns the wallet of owner for master.
func (c *Client) WalletAddress(ctx context.Context, master, owner domain.Address) (domain.Address, error) {
	var out WalletAddressView
	if err := c.get(ctx, "/v1/jettons/"+master.String()+"/wallets/"+owner.String(), &out); err != nil {
		return domain.NoneAddress, err
	}
	return out.Wallet, nil
}

// Balance returns owner's balance of master, zero if the wallet does not exist.
func (c *Client) Balance(ctx context.Context, master, owner domain.Address) (domain.Coins, error) {
	wallet, err := c.WalletAddress(ctx, master, owner)
	if err != nil {
		return domain.ZeroCoins, err
	}
	data, err := c.WalletData(ctx, wallet)
	if IsNotFound(err) {
		return domain.ZeroCoins, nil
	}
	if err != nil {
		return domain.ZeroCoins, err
	}
	return data.Balance, nil
}

// Account returns the stored account at addr.
func (c *Client) Account(ctx context.Context, addr domain.Address) (*AccountView, error) {
	var out AccountView
	if err := c.get(ctx, "/v1/accounts/"+addr.String(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Transactions returns up to limit transactions of addr, newest first.
func (c *Client) Transactions(ctx context.Context, addr domain.Address, limit int) ([]TransactionView, error) {
	var out []TransactionView
	path := "/v1/accounts/" + addr.String() + "/transactions?limit=" + strconv.Itoa(limit)
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Trace returns the transactions of a trace in processing order.
func (c *Client) Trace(ctx context.Context, traceID string) ([]TransactionView, error) {
	var out []TransactionView
	if err := c.get(ctx, "/v1/traces/"+url.PathEscape(traceID), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Invariant runs the supply check of master.
func (c *Client) Invariant(ctx context.Context, master domain.Address) (*jetton.SupplyReport, error) {
	var out jetton.SupplyReport
	if err := c.get(ctx, "/v1/jettons/"+master.String()+"/invariant", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Report returns the holder report of master.
func (c *Client) Report(ctx context.Context, master domain.Address) (*ReportView, error) {
	var out ReportView
	if err := c.get(ctx, "/v1/jettons/"+master.String()+"/report", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RenderedReport returns the holder report of master as Markdown ("md") or
// CSV ("csv").
func (c *Client) RenderedReport(ctx context.Context, master domain.Address, format string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.endpoint+"/v1/jettons/"+master.String()+"/report?format="+url.QueryEscape(format), nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		var e ErrorResponse
		if json.Unmarshal(data, &e) != nil || e.Error == "" {
			e.Error = strings.TrimSpace(string(data))
		}
		return "", &StatusError{Status: resp.StatusCode, Message: e.Error}
	}
	return string(data), nil
}

// Organizations lists the organizations of reg.
func (c *Client) Organizations(ctx context.Context, reg domain.Address) ([]registry.Organization, error) {
	var out []registry.Organization
	if err := c.get(ctx, "/v1/organizations/"+reg.String(), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Watch streams transactions matching filter until ctx ends or the server
// closes the feed. The channel is closed on return.
func (c *Client) Watch(ctx context.Context, filter Filter) (<-chan TransactionView, error) {
	u, err := url.Parse(c.endpoint + "/ws/traces")
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	q := u.Query()
	if filter.TraceID != "" {
		q.Set("trace", filter.TraceID)
	}
	if !filter.Account.IsNone() {
		q.Set("account", filter.Account.String())
	}
	u.RawQuery = q.Encode()

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial: %w", err)
	}

	out := make(chan TransactionView)
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.Close()
		case <-done:
		}
	}()
	go func() {
		defer close(out)
		defer close(done)
		defer conn.Close()
		for {
			var view TransactionView
			if err := conn.ReadJSON(&view); err != nil {
				return
			}
			select {
			case out <- view:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}
