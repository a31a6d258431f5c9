package esi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"abyssrun/internal/netx/client"
)

// DefaultBaseURL is the public ESI endpoint.
const DefaultBaseURL = "https://esi.evetech.net"

// Client issues ESI calls through a rate-limited HTTP client. All methods
// return *Error on failure.
type Client struct {
	http    *client.Client
	baseURL string
	log     zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API origin, mainly for tests.
func WithBaseURL(u string) Option { return func(c *Client) { c.baseURL = u } }

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Client) { c.log = l } }

// NewClient wraps hc as an ESI API client.
func NewClient(hc *client.Client, opts ...Option) *Client {
	c := &Client{http: hc, baseURL: DefaultBaseURL, log: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	return c
}

// VerifyCharacter resolves the character behind an access token.
func (c *Client) VerifyCharacter(ctx context.Context, token string) (VerifiedCharacter, error) {
	var out VerifiedCharacter
	_, err := c.getJSON(ctx, c.baseURL+"/verify/", token, &out)
	return out, err
}

// AssetsPage fetches one page of a character's assets and the total page
// count from the x-pages response header.
func (c *Client) AssetsPage(ctx context.Context, token string, char CharacterID, page int) ([]AssetItem, int, error) {
	url := fmt.Sprintf("%s/latest/characters/%d/assets/?page=%d", c.baseURL, char, page)
	var out []AssetItem
	resp, err := c.getJSON(ctx, url, token, &out)
	if err != nil {
		return nil, 0, err
	}
	return out, pagesOf(resp), nil
}

// AssetNames resolves player-assigned names for the given item instances.
func (c *Client) AssetNames(ctx context.Context, token string, char CharacterID, items []ItemID) ([]AssetName, error) {
	url := fmt.Sprintf("%s/latest/characters/%d/assets/names/", c.baseURL, char)
	body, err := json.Marshal(items)
	if err != nil {
		return nil, &Error{Kind: ErrParse, Message: "encode item ids", Err: err}
	}
	var out []AssetName
	_, err = c.doJSON(ctx, http.MethodPost, url, token, body, &out)
	return out, err
}

// Type fetches an item class.
func (c *Client) Type(ctx context.Context, id TypeID) (ItemType, error) {
	var out ItemType
	_, err := c.getJSON(ctx, fmt.Sprintf("%s/latest/universe/types/%d/", c.baseURL, id), "", &out)
	return out, err
}

// Station fetches a station.
func (c *Client) Station(ctx context.Context, id StationID) (Station, error) {
	var out Station
	_, err := c.getJSON(ctx, fmt.Sprintf("%s/latest/universe/stations/%d/", c.baseURL, id), "", &out)
	return out, err
}

// DogmaAttribute fetches attribute metadata.
func (c *Client) DogmaAttribute(ctx context.Context, id DogmaAttributeID) (DogmaAttribute, error) {
	var out DogmaAttribute
	_, err := c.getJSON(ctx, fmt.Sprintf("%s/latest/dogma/attributes/%d/", c.baseURL, id), "", &out)
	return out, err
}

// DynamicItem fetches the mutated attribute set of an item instance.
func (c *Client) DynamicItem(ctx context.Context, typeID TypeID, itemID ItemID) (DynamicItem, error) {
	var out DynamicItem
	url := fmt.Sprintf("%s/latest/dogma/dynamic/items/%d/%d/", c.baseURL, typeID, itemID)
	_, err := c.getJSON(ctx, url, "", &out)
	return out, err
}

// MarketGroup fetches a market-group node.
func (c *Client) MarketGroup(ctx context.Context, id MarketGroupID) (MarketGroup, error) {
	var out MarketGroup
	_, err := c.getJSON(ctx, fmt.Sprintf("%s/latest/markets/groups/%d/", c.baseURL, id), "", &out)
	return out, err
}

// Orders fetches one page of a region's order book for a type, buy or
// sell side, plus the total page count.
func (c *Client) Orders(ctx context.Context, region RegionID, typeID TypeID, buy bool, page int) ([]MarketOrder, int, error) {
	side := "sell"
	if buy {
		side = "buy"
	}
	url := fmt.Sprintf("%s/latest/markets/%d/orders/?order_type=%s&type_id=%d&page=%d",
		c.baseURL, region, side, typeID, page)
	var out []MarketOrder
	resp, err := c.getJSON(ctx, url, "", &out)
	if err != nil {
		return nil, 0, err
	}
	return out, pagesOf(resp), nil
}

func (c *Client) getJSON(ctx context.Context, url, token string, out any) (*http.Response, error) {
	return c.doJSON(ctx, http.MethodGet, url, token, nil, out)
}

// doJSON performs one call: build, send, classify the status, decode.
func (c *Client) doJSON(ctx context.Context, method, url, token string, body []byte, out any) (*http.Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, rd)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: "build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Kind: ErrTransport, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		kind := ErrAPI
		switch {
		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			kind = ErrAuth
		case resp.StatusCode >= 500:
			kind = ErrServer
		}
		c.log.Debug().Str("url", url).Int("status", resp.StatusCode).Msg("request failed")
		return resp, &Error{Kind: kind, Status: resp.StatusCode, Message: string(msg)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp, &Error{Kind: ErrParse, Status: resp.StatusCode, Message: "decode response", Err: err}
	}
	return resp, nil
}

// pagesOf reads the x-pages pagination header, defaulting to one page.
func pagesOf(resp *http.Response) int {
	if n, err := strconv.Atoi(resp.Header.Get("x-pages")); err == nil && n > 0 {
		return n
	}
	return 1
}
