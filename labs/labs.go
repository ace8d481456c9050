// Package labs is a minimal client of J-Novel Club labs API, enough to redeem coins for a volume.
package labs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	simplejson "github.com/bitly/go-simplejson"
)

// DefaultAPI is J-Novel Club labs API root.
const DefaultAPI = "https://labs.j-novel.club/app/v2"

var (
	// ErrUnauthorized is returned when login failed or token expired.
	ErrUnauthorized = errors.New("not authorized")
	// ErrInsufficientCoins is returned when account does not have enough coins.
	ErrInsufficientCoins = errors.New("not enough coins to purchase")
	// ErrVolumeNotFound is returned when volume could not be located.
	ErrVolumeNotFound = errors.New("volume not found")
	// ErrNotPurchasable is returned when volume could not be bought at this time.
	ErrNotPurchasable = errors.New("volume could not be purchased at this time")
	// ErrNoVolume is returned when URL and part specification do not point to a single volume.
	ErrNoVolume = errors.New("unable to determine volume")
	// ErrServer is returned for any other unexpected response.
	ErrServer = errors.New("unexpected server response")
)

// Client talks to labs API.
type Client struct {
	base string
	http *http.Client
}

// New creates client for API rooted at base. When hc is nil client with sensible timeout is used.
func New(base string, hc *http.Client) *Client {
	if hc == nil {
		hc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Client{base: strings.TrimSuffix(base, "/"), http: hc}
}

// Login authenticates and returns token to be used with other calls.
func (c *Client) Login(ctx context.Context, email, password string) (string, error) {

	body, err := json.Marshal(map[string]string{"email": email, "password": password})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("auth", "login"), bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")

	js, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("login: %w", err)
	}
	token, err := js.Get("id").String()
	if err != nil || len(token) == 0 {
		return "", fmt.Errorf("login: %w: no token in response", ErrServer)
	}
	return token, nil
}

// Redeem spends coins to buy the volume. Buying already owned volume is not an error.
func (c *Client) Redeem(ctx context.Context, token, volumeID string) error {

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint("me", "coins", "redeem", volumeID), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("redeem: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusNoContent, http.StatusOK, http.StatusConflict:
		// conflict means we already own this volume
		return nil
	default:
		return fmt.Errorf("redeem %s: %w", volumeID, statusError(resp.StatusCode))
	}
}

// ResolveVolume finds labs volume id for series URL. Volume number comes from "#volume-N" URL fragment or
// from the leading number of part specification ("2", "2.3", "2:4", "2.1:3.2").
func (c *Client) ResolveVolume(ctx context.Context, rawURL, parts string) (string, error) {

	series, number, err := ParseTarget(rawURL, parts)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("series", series, "volumes"), nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "application/json")

	js, err := c.do(req)
	if err != nil {
		return "", fmt.Errorf("volumes of %s: %w", series, err)
	}

	volumes, err := js.Get("volumes").Array()
	if err != nil {
		return "", fmt.Errorf("volumes of %s: %w: no volume list", series, ErrServer)
	}
	for i := range volumes {
		v := js.Get("volumes").GetIndex(i)
		if n, err := v.Get("number").Int(); err != nil || n != number {
			continue
		}
		if id := v.Get("legacyId").MustString(); len(id) > 0 {
			return id, nil
		}
		if id := v.Get("id").MustString(); len(id) > 0 {
			return id, nil
		}
	}
	return "", fmt.Errorf("%w: %s volume %d", ErrVolumeNotFound, series, number)
}

var (
	seriesPath   = regexp.MustCompile(`^/(?:[a-z]{2}/)?series/([^/]+)/?$`)
	volumeAnchor = regexp.MustCompile(`^volume-(\d+)$`)
	leadingNum   = regexp.MustCompile(`^\s*(\d+)`)
)

// ParseTarget extracts series slug and volume number from series URL and optional part specification.
func ParseTarget(rawURL, parts string) (string, int, error) {

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", 0, fmt.Errorf("%w: %v", ErrNoVolume, err)
	}
	m := seriesPath.FindStringSubmatch(u.Path)
	if m == nil {
		return "", 0, fmt.Errorf("%w: not a series URL %q", ErrNoVolume, rawURL)
	}
	series := m[1]

	if a := volumeAnchor.FindStringSubmatch(u.Fragment); a != nil {
		n, _ := strconv.Atoi(a[1])
		return series, n, nil
	}
	if p := leadingNum.FindStringSubmatch(parts); p != nil {
		n, _ := strconv.Atoi(p[1])
		return series, n, nil
	}
	return "", 0, fmt.Errorf("%w: no volume in %q", ErrNoVolume, rawURL)
}

func (c *Client) endpoint(elems ...string) string {
	for i, e := range elems {
		elems[i] = url.PathEscape(e)
	}
	return c.base + "/" + strings.Join(elems, "/") + "?format=json"
}

func (c *Client) do(req *http.Request) (*simplejson.Json, error) {

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil, statusError(resp.StatusCode)
	}
	js, err := simplejson.NewFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrServer, err)
	}
	return js, nil
}

func statusError(code int) error {
	switch code {
	case http.StatusUnauthorized, http.StatusGone:
		return fmt.Errorf("%w (%d)", ErrUnauthorized, code)
	case http.StatusPaymentRequired:
		return ErrInsufficientCoins
	case http.StatusNotFound:
		return ErrVolumeNotFound
	case http.StatusNotImplemented:
		return ErrNotPurchasable
	default:
		return fmt.Errorf("%w (%d)", ErrServer, code)
	}
}
