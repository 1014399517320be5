// Package rest adapts a JSON-over-HTTP inventory provider.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tripnest/service-booking/internal/domain/offer"
	"github.com/tripnest/service-booking/internal/inventory"
)

// Config describes one remote provider.
type Config struct {
	ID      string
	Kind    offer.Kind
	BaseURL string
	APIKey  string
}

// Provider calls a remote inventory API and normalizes its payloads.
type Provider struct {
	cfg    Config
	client *http.Client
}

var _ inventory.Adapter = (*Provider)(nil)

// New creates a provider. A nil client uses http.DefaultClient; deadlines come
// from the caller's context.
func New(cfg Config, client *http.Client) (*Provider, error) {
	if cfg.ID == "" || !cfg.Kind.IsValid() {
		return nil, fmt.Errorf("rest provider needs an id and a valid kind")
	}
	if _, err := url.ParseRequestURI(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("rest provider %s: invalid base url: %w", cfg.ID, err)
	}
	if client == nil {
		client = http.DefaultClient
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Provider{cfg: cfg, client: client}, nil
}

func (p *Provider) ID() string       { return p.cfg.ID }
func (p *Provider) Kind() offer.Kind { return p.cfg.Kind }

type wireSegment struct {
	Carrier      string    `json:"carrier"`
	FlightNumber string    `json:"flight_number"`
	From         string    `json:"from"`
	To           string    `json:"to"`
	DepartAt     time.Time `json:"depart_at"`
	ArriveAt     time.Time `json:"arrive_at"`
}

type wireOffer struct {
	ID         string    `json:"id"`
	PriceMinor int64     `json:"price_minor"`
	Currency   string    `json:"currency"`
	ValidUntil time.Time `json:"valid_until"`
	Flight     *struct {
		Segments []wireSegment `json:"segments"`
	} `json:"flight,omitempty"`
	Hotel *struct {
		Name     string `json:"name"`
		City     string `json:"city"`
		Room     string `json:"room"`
		CheckIn  string `json:"check_in"`
		CheckOut string `json:"check_out"`
	} `json:"hotel,omitempty"`
}

// Search calls POST /search.
func (p *Provider) Search(ctx context.Context, q offer.SearchQuery) ([]offer.Offer, error) {
	q = q.Normalize()
	body := map[string]interface{}{
		"origin":      q.Origin,
		"destination": q.Destination,
		"depart_date": q.DepartDate.Format("2006-01-02"),
		"travelers":   q.Travelers,
		"cabin":       q.Cabin,
	}
	if q.ReturnDate != nil {
		body["return_date"] = q.ReturnDate.Format("2006-01-02")
	}

	var resp struct {
		Offers []wireOffer `json:"offers"`
	}
	if err := p.do(ctx, inventory.OpSearch, http.MethodPost, "/search", body, &resp); err != nil {
		return nil, err
	}

	out := make([]offer.Offer, 0, len(resp.Offers))
	for _, w := range resp.Offers {
		o, err := p.normalize(w)
		if err != nil {
			// One malformed offer does not poison the rest of the page.
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Hold calls POST /holds.
func (p *Provider) Hold(ctx context.Context, req inventory.HoldRequest) (inventory.HoldToken, error) {
	body := map[string]interface{}{
		"offer_id":        req.Offer.ProviderOfferID,
		"travelers":       req.Travelers,
		"idempotency_key": req.IdempotencyKey,
	}
	var resp struct {
		Token     string    `json:"token"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := p.do(ctx, inventory.OpHold, http.MethodPost, "/holds", body, &resp); err != nil {
		return inventory.HoldToken{}, err
	}
	if resp.Token == "" {
		return inventory.HoldToken{}, inventory.NewFailure(p.cfg.ID, inventory.OpHold, inventory.FailureProviderError,
			errors.New("hold response has no token"))
	}
	return inventory.HoldToken{
		ProviderID:      p.cfg.ID,
		ProviderOfferID: req.Offer.ProviderOfferID,
		Token:           resp.Token,
		ExpiresAt:       resp.ExpiresAt,
	}, nil
}

// Confirm calls POST /holds/{token}/confirm.
func (p *Provider) Confirm(ctx context.Context, hold inventory.HoldToken) (inventory.Confirmation, error) {
	var resp struct {
		Reference   string    `json:"reference"`
		ConfirmedAt time.Time `json:"confirmed_at"`
	}
	path := "/holds/" + url.PathEscape(hold.Token) + "/confirm"
	if err := p.do(ctx, inventory.OpConfirm, http.MethodPost, path, nil, &resp); err != nil {
		return inventory.Confirmation{}, err
	}
	if resp.ConfirmedAt.IsZero() {
		resp.ConfirmedAt = time.Now().UTC()
	}
	return inventory.Confirmation{ProviderID: p.cfg.ID, Reference: resp.Reference, ConfirmedAt: resp.ConfirmedAt}, nil
}

// Release calls DELETE /holds/{token}. A missing hold counts as released.
func (p *Provider) Release(ctx context.Context, hold inventory.HoldToken) error {
	err := p.do(ctx, inventory.OpRelease, http.MethodDelete, "/holds/"+url.PathEscape(hold.Token), nil, nil)
	if inventory.KindOf(err) == inventory.FailureHoldExpired {
		return nil
	}
	return err
}

func (p *Provider) do(ctx context.Context, op inventory.Op, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return inventory.NewFailure(p.cfg.ID, op, inventory.FailureProviderError, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.cfg.BaseURL+path, body)
	if err != nil {
		return inventory.NewFailure(p.cfg.ID, op, inventory.FailureProviderError, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if p.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.APIKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return inventory.Classify(p.cfg.ID, op, err)
	}
	defer resp.Body.Close()

	if kind, failed := classifyStatus(op, resp.StatusCode); failed {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return inventory.NewFailure(p.cfg.ID, op, kind,
			fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg))))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return inventory.NewFailure(p.cfg.ID, op, inventory.FailureProviderError, fmt.Errorf("decode response: %w", err))
	}
	return nil
}

func classifyStatus(op inventory.Op, status int) (inventory.FailureKind, bool) {
	switch {
	case status >= 200 && status < 300:
		return "", false
	case status == http.StatusTooManyRequests:
		return inventory.FailureRateLimited, true
	case status == http.StatusGatewayTimeout || status == http.StatusRequestTimeout:
		return inventory.FailureTimeout, true
	case status == http.StatusGone || (status == http.StatusNotFound && op != inventory.OpSearch && op != inventory.OpHold):
		return inventory.FailureHoldExpired, true
	case status == http.StatusConflict || status == http.StatusNotFound:
		return inventory.FailureUnavailable, true
	default:
		return inventory.FailureProviderError, true
	}
}

func (p *Provider) normalize(w wireOffer) (offer.Offer, error) {
	o := offer.Offer{
		ProviderID:      p.cfg.ID,
		ProviderOfferID: w.ID,
		Kind:            p.cfg.Kind,
		Price:           offer.Money{Amount: w.PriceMinor, Currency: strings.ToUpper(w.Currency)},
		ValidUntil:      w.ValidUntil.UTC(),
	}

	switch p.cfg.Kind {
	case offer.KindFlight:
		if w.Flight == nil || len(w.Flight.Segments) == 0 {
			return offer.Offer{}, errors.New("flight offer without segments")
		}
		segs := make([]offer.Segment, 0, len(w.Flight.Segments))
		for _, s := range w.Flight.Segments {
			segs = append(segs, offer.Segment{
				Carrier:      s.Carrier,
				FlightNumber: s.FlightNumber,
				Origin:       strings.ToUpper(s.From),
				Destination:  strings.ToUpper(s.To),
				DepartAt:     s.DepartAt.UTC(),
				ArriveAt:     s.ArriveAt.UTC(),
			})
		}
		first, last := segs[0], segs[len(segs)-1]
		o.Flight = &offer.FlightDetails{
			Origin:      first.Origin,
			Destination: last.Destination,
			Segments:    segs,
			Stops:       len(segs) - 1,
			Duration:    last.ArriveAt.Sub(first.DepartAt),
		}
	case offer.KindHotel:
		if w.Hotel == nil {
			return offer.Offer{}, errors.New("hotel offer without property")
		}
		in, err := time.Parse("2006-01-02", w.Hotel.CheckIn)
		if err != nil {
			return offer.Offer{}, fmt.Errorf("check_in: %w", err)
		}
		out, err := time.Parse("2006-01-02", w.Hotel.CheckOut)
		if err != nil {
			return offer.Offer{}, fmt.Errorf("check_out: %w", err)
		}
		o.Hotel = &offer.HotelDetails{
			PropertyName: w.Hotel.Name,
			City:         strings.ToUpper(w.Hotel.City),
			RoomType:     w.Hotel.Room,
			CheckIn:      in,
			CheckOut:     out,
			Nights:       int(out.Sub(in).Hours() / 24),
		}
	}

	if err := o.Validate(); err != nil {
		return offer.Offer{}, err
	}
	return o, nil
}
