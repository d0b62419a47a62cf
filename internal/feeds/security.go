package feeds

import (
	"context"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"tokenradar/internal/domain"
)

// DefaultSecurityBaseURL is the public security feed endpoint.
const DefaultSecurityBaseURL = "https://api.gopluslabs.io"

// maxTopHolders bounds the holder list kept on a record.
const maxTopHolders = 5

// SecurityClient wraps the token security feed: honeypot and contract
// flags, taxes, and holder concentration.
type SecurityClient struct {
	c       *Client
	baseURL string
}

// NewSecurityClient creates a security feed client.
func NewSecurityClient(baseURL string, opts ...ClientOption) *SecurityClient {
	if baseURL == "" {
		baseURL = DefaultSecurityBaseURL
	}
	return &SecurityClient{
		c:       NewClient("security", opts...),
		baseURL: baseURL,
	}
}

// securityPayload mirrors the feed's per-token result. Booleans and
// numbers arrive as strings.
type securityPayload struct {
	IsHoneypot         string `json:"is_honeypot"`
	IsOpenSource       string `json:"is_open_source"`
	IsMintable         string `json:"is_mintable"`
	HiddenOwner        string `json:"hidden_owner"`
	Selfdestruct       string `json:"selfdestruct"`
	OwnerChangeBalance string `json:"owner_change_balance"`
	BuyTax             string `json:"buy_tax"`
	SellTax            string `json:"sell_tax"`
	HolderCount        string `json:"holder_count"`
	CreatorPercent     string `json:"creator_percent"`
	OwnerPercent       string `json:"owner_percent"`
	Holders            []struct {
		Address string `json:"address"`
		Percent string `json:"percent"`
	} `json:"holders"`
}

// TokenSecurity fetches the security snapshot for a token. EVM chains are
// addressed by numeric chain ID; solana is passed as the literal string.
func (s *SecurityClient) TokenSecurity(ctx context.Context, chain domain.Chain, address string) (*domain.SecurityData, error) {
	chainParam := string(chain)
	if id, ok := chain.NumericID(); ok {
		chainParam = strconv.FormatInt(id, 10)
	}

	u := fmt.Sprintf("%s/api/v1/token_security/%s?contract_addresses=%s",
		s.baseURL, chainParam, url.QueryEscape(address))

	var resp struct {
		Code    int                        `json:"code"`
		Message string                     `json:"message"`
		Result  map[string]securityPayload `json:"result"`
	}
	if err := s.c.GetJSON(ctx, "security.token_security", u, &resp); err != nil {
		return nil, err
	}
	if resp.Code != 1 {
		return nil, &Error{Kind: KindUpstream, Op: "security.token_security",
			Err: fmt.Errorf("feed code %d: %s", resp.Code, resp.Message)}
	}

	// The result is keyed by address in the feed's casing.
	var payload *securityPayload
	for addr, p := range resp.Result {
		if strings.EqualFold(addr, address) {
			payload = &p
			break
		}
	}
	if payload == nil {
		return nil, &Error{Kind: KindNotFound, Op: "security.token_security",
			Err: fmt.Errorf("no result for %s", address)}
	}

	return payload.toDomain(), nil
}

func (p *securityPayload) toDomain() *domain.SecurityData {
	sd := &domain.SecurityData{
		IsHoneypot:         flag(p.IsHoneypot),
		IsOpenSource:       flag(p.IsOpenSource),
		IsMintable:         flag(p.IsMintable),
		HiddenOwner:        flag(p.HiddenOwner),
		CanSelfdestruct:    flag(p.Selfdestruct),
		OwnerChangeBalance: flag(p.OwnerChangeBalance),
		BuyTaxPct:          taxPct(p.BuyTax),
		SellTaxPct:         taxPct(p.SellTax),
		HolderCount:        intField(p.HolderCount),
		CreatorPct:         concentrationPct(p.CreatorPercent),
		OwnerPct:           concentrationPct(p.OwnerPercent),
	}

	holders := make([]domain.HolderShare, 0, len(p.Holders))
	for _, h := range p.Holders {
		holders = append(holders, domain.HolderShare{
			Address: h.Address,
			Percent: concentrationPct(h.Percent),
		})
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Percent > holders[j].Percent
	})
	if len(holders) > maxTopHolders {
		holders = holders[:maxTopHolders]
	}
	sd.TopHolders = holders

	return sd
}

func flag(s string) bool {
	return s == "1"
}

func intField(s string) int {
	v, _ := strconv.Atoi(strings.ReplaceAll(s, ",", ""))
	return v
}

// taxPct parses a tax value. The feed reports fractions of one; values
// that already look like percents are taken as-is.
func taxPct(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if v <= 1 {
		v *= 100
	}
	return clampPct(v)
}

// concentrationPct parses a holder share. Guards against the upstream
// switching between fractions and percents by scaling values at or below
// one, then clamping to [0, 100].
func concentrationPct(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	if v <= 1 {
		v *= 100
	}
	return clampPct(v)
}

func clampPct(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
