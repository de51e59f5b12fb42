package api

import (
	"fmt"
	"io"
	"net/http"

	"jetton-ledger/internal/codec"
	"jetton-ledger/internal/domain"
	"jetton-ledger/internal/jetton"
	"jetton-ledger/internal/metadata"
	"jetton-ledger/internal/reporting"
)

func encodeContent(content []byte, attrs map[string]string) ([]byte, error) {
	if len(content) > 0 {
		return content, nil
	}
	md := make(metadata.Metadata, len(attrs))
	for k, v := range attrs {
		md[metadata.Key(k)] = v
	}
	return metadata.Encode(md)
}

func (s *Server) deploy(w http.ResponseWriter, r *http.Request) error {
	var req DeployRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	content, err := encodeContent(req.Content, req.Metadata)
	if err != nil {
		return err
	}
	ext, master := jetton.DeployRequest(req.Admin, content)
	return s.submit(w, r, ext, master)
}

func (s *Server) tokenData(w http.ResponseWriter, r *http.Request) error {
	master, err := pathAddress(r, "master")
	if err != nil {
		return err
	}
	data, err := s.tokens.GetTokenData(r.Context(), master)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, data)
	return nil
}

func (s *Server) mintBody(r *http.Request) (MintRequest, domain.Address, codec.Mint, error) {
	master, err := pathAddress(r, "master")
	if err != nil {
		return MintRequest{}, master, codec.Mint{}, err
	}
	var req MintRequest
	if err := decodeJSON(r, &req); err != nil {
		return req, master, codec.Mint{}, err
	}
	return req, master, codec.Mint{
		QueryID:       req.QueryID,
		To:            req.To,
		Amount:        req.Amount,
		ForwardAmount: req.ForwardAmount,
		TotalAmount:   req.TotalAmount,
	}, nil
}

func (s *Server) mint(w http.ResponseWriter, r *http.Request) error {
	req, master, m, err := s.mintBody(r)
	if err != nil {
		return err
	}
	return s.submit(w, r, jetton.MintRequest(req.Admin, master, m), s.tokens.GetWalletAddress(req.To, master))
}

func (s *Server) adminBurn(w http.ResponseWriter, r *http.Request) error {
	req, master, m, err := s.mintBody(r)
	if err != nil {
		return err
	}
	return s.submit(w, r, jetton.BurnJettonsRequest(req.Admin, master, m), s.tokens.GetWalletAddress(req.To, master))
}

func (s *Server) changeAdmin(w http.ResponseWriter, r *http.Request) error {
	master, err := pathAddress(r, "master")
	if err != nil {
		return err
	}
	var req ChangeAdminRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	return s.submit(w, r, jetton.ChangeAdminRequest(req.Admin, master, req.NewAdmin, req.QueryID), master)
}

func (s *Server) changeMetadata(w http.ResponseWriter, r *http.Request) error {
	master, err := pathAddress(r, "master")
	if err != nil {
		return err
	}
	var req ChangeMetadataRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	content, err := encodeContent(req.Content, req.Metadata)
	if err != nil {
		return err
	}
	return s.submit(w, r, jetton.ChangeMetadataRequest(req.Admin, master, content, req.QueryID), master)
}

func (s *Server) walletAddress(w http.ResponseWriter, r *http.Request) error {
	master, err := pathAddress(r, "master")
	if err != nil {
		return err
	}
	owner, err := pathAddress(r, "owner")
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, WalletAddressView{
		Owner:  owner,
		Master: master,
		Wallet: s.tokens.GetWalletAddress(owner, master),
	})
	return nil
}

// invariant answers 200 with a consistent report and 409 with the
// violations otherwise.
func (s *Server) invariant(w http.ResponseWriter, r *http.Request) error {
	master, err := pathAddress(r, "master")
	if err != nil {
		return err
	}
	report, err := jetton.CheckSupply(r.Context(), s.accounts, s.ledger.Deriver(), master)
	if report == nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordSupply(master, report.TotalSupply, report.WalletSum, report.Consistent)
	}
	status := http.StatusOK
	if !report.Consistent {
		status = http.StatusConflict
	}
	writeJSON(w, status, report)
	return nil
}

// report renders the holder report as JSON, Markdown (format=md) or CSV
// (format=csv).
func (s *Server) report(w http.ResponseWriter, r *http.Request) error {
	master, err := pathAddress(r, "master")
	if err != nil {
		return err
	}
	rep, err := s.reports.Generate(r.Context(), master)
	if err != nil {
		return err
	}
	switch format := r.URL.Query().Get("format"); format {
	case "", "json":
		writeJSON(w, http.StatusOK, reportView(rep))
	case "md", "markdown":
		w.Header().Set("Content-Type", "text/markdown; charset=utf-8")
		_, _ = io.WriteString(w, reporting.RenderMarkdown(rep))
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		_, _ = io.WriteString(w, reporting.RenderCSV(rep))
	default:
		return fmt.Errorf("%w: unknown report format %q", errBadRequest, format)
	}
	return nil
}

func (s *Server) walletData(w http.ResponseWriter, r *http.Request) error {
	wallet, err := pathAddress(r, "wallet")
	if err != nil {
		return err
	}
	data, err := s.tokens.GetWalletData(r.Context(), wallet)
	if err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, data)
	return nil
}

// wallet resolves the owner and master behind the wallet in the path.
func (s *Server) wallet(r *http.Request) (*jetton.WalletData, error) {
	addr, err := pathAddress(r, "wallet")
	if err != nil {
		return nil, err
	}
	data, err := s.tokens.GetWalletData(r.Context(), addr)
	if err != nil {
		return nil, fmt.Errorf("wallet: %w", err)
	}
	return data, nil
}

func (s *Server) transfer(w http.ResponseWriter, r *http.Request) error {
	data, err := s.wallet(r)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	t := codec.Transfer{
		QueryID:             req.QueryID,
		Amount:              req.Amount,
		Destination:         req.Destination,
		ResponseDestination: req.ResponseDestination,
		ForwardAmount:       req.ForwardAmount,
		ForwardPayload:      req.ForwardPayload,
	}
	ext := jetton.TransferRequest(data.Owner, data.Master, t, req.Value)
	return s.submit(w, r, ext, s.tokens.GetWalletAddress(req.Destination, data.Master))
}

func (s *Server) burn(w http.ResponseWriter, r *http.Request) error {
	data, err := s.wallet(r)
	if err != nil {
		return err
	}
	var req BurnRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	b := codec.Burn{
		QueryID:             req.QueryID,
		Amount:              req.Amount,
		ResponseDestination: req.ResponseDestination,
	}
	return s.submit(w, r, jetton.BurnRequest(data.Owner, data.Master, b, req.Value), data.Master)
}

func (s *Server) withdraw(w http.ResponseWriter, r *http.Request) error {
	data, err := s.wallet(r)
	if err != nil {
		return err
	}
	var req WithdrawRequest
	if err := decodeJSON(r, &req); err != nil {
		return err
	}
	return s.submit(w, r, jetton.WithdrawRequest(data.Owner, data.Master, req.QueryID), data.Owner)
}
