package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/valyala/fasthttp"
)

// Client talks JSON over HTTP to the contract bridge gateway that fronts the
// lobby and per-game engine contracts. Wallet identity rides along as a header
// so the gateway signs state-changing calls with the right account.
type Client struct {
	baseURL string
	wallet  Address
	http    *fasthttp.Client

	defaultTimeout time.Duration
	retryMax       int
}

var _ Caller = (*Client)(nil)

type Option func(*Client)

func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.defaultTimeout = d }
}

func WithRetry(max int) Option {
	return func(c *Client) { c.retryMax = max }
}

func WithMaxConnsPerHost(n int) Option {
	return func(c *Client) { c.http.MaxConnsPerHost = n }
}

func NewClient(baseURL string, wallet Address, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		wallet:         wallet,
		http:           &fasthttp.Client{ReadTimeout: 10 * time.Second, WriteTimeout: 10 * time.Second, MaxConnsPerHost: 64},
		defaultTimeout: 10 * time.Second,
		retryMax:       3,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Wire shapes. The gateway serializes big numerics as decimal strings and
// addresses as hex strings; both are normalized on decode.
type wireGame struct {
	ID             uint64 `json:"id"`
	State          uint8  `json:"state"`
	Outcome        uint8  `json:"outcome"`
	WhitePlayer    string `json:"whitePlayer"`
	BlackPlayer    string `json:"blackPlayer"`
	CurrentMove    string `json:"currentMove"`
	TimePerMove    int64  `json:"timePerMove"`
	TimeOfLastMove int64  `json:"timeOfLastMove"`
	WagerAmount    string `json:"wagerAmount"`
}

func (w *wireGame) toMetadata() (*GameMetadata, error) {
	wager := new(big.Int)
	if s := strings.TrimSpace(w.WagerAmount); s != "" {
		if _, ok := wager.SetString(s, 10); !ok {
			return nil, errors.Errorf("invalid wager amount %q for game %d", w.WagerAmount, w.ID)
		}
	}
	return &GameMetadata{
		ID:             w.ID,
		State:          GameState(w.State),
		Outcome:        GameOutcome(w.Outcome),
		WhitePlayer:    NormalizeAddress(w.WhitePlayer),
		BlackPlayer:    NormalizeAddress(w.BlackPlayer),
		CurrentMove:    NormalizeAddress(w.CurrentMove),
		TimePerMove:    w.TimePerMove,
		TimeOfLastMove: w.TimeOfLastMove,
		WagerAmount:    wager,
	}, nil
}

type wireMoves struct {
	Moves []string `json:"moves"`
}

type wireHead struct {
	BlockNumber uint64 `json:"blockNumber"`
}

type moveRequest struct {
	SAN string `json:"san"`
}

type challengeRequest struct {
	Opponent     string `json:"opponent"`
	StartAsWhite bool   `json:"startAsWhite"`
	TimePerMove  int64  `json:"timePerMove"`
	WagerAmount  string `json:"wagerAmount"`
}

type challengeResponse struct {
	GameID uint64 `json:"gameId"`
}

func (c *Client) Game(ctx context.Context, gameID uint64) (*GameMetadata, error) {
	var wg wireGame
	if err := c.doJSON(ctx, fasthttp.MethodGet, fmt.Sprintf("/games/%d", gameID), nil, &wg, true); err != nil {
		return nil, err
	}
	return wg.toMetadata()
}

func (c *Client) Moves(ctx context.Context, gameID uint64) ([]string, error) {
	var wm wireMoves
	if err := c.doJSON(ctx, fasthttp.MethodGet, fmt.Sprintf("/games/%d/moves", gameID), nil, &wm, true); err != nil {
		return nil, err
	}
	return wm.Moves, nil
}

func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var wh wireHead
	if err := c.doJSON(ctx, fasthttp.MethodGet, "/chain/head", nil, &wh, true); err != nil {
		return 0, err
	}
	return wh.BlockNumber, nil
}

func (c *Client) Move(ctx context.Context, gameID uint64, san string) error {
	return c.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/games/%d/move", gameID), moveRequest{SAN: san}, nil, false)
}

func (c *Client) Resign(ctx context.Context, gameID uint64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/games/%d/resign", gameID), nil, nil, false)
}

func (c *Client) ClaimVictory(ctx context.Context, gameID uint64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/games/%d/claim-victory", gameID), nil, nil, false)
}

func (c *Client) DisputeGame(ctx context.Context, gameID uint64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/games/%d/dispute", gameID), nil, nil, false)
}

func (c *Client) Challenge(ctx context.Context, req ChallengeRequest) (uint64, error) {
	wager := "0"
	if req.WagerAmount != nil {
		wager = req.WagerAmount.String()
	}
	body := challengeRequest{
		Opponent:     string(req.Opponent),
		StartAsWhite: req.StartAsWhite,
		TimePerMove:  req.TimePerMove,
		WagerAmount:  wager,
	}
	var resp challengeResponse
	if err := c.doJSON(ctx, fasthttp.MethodPost, "/challenges", body, &resp, false); err != nil {
		return 0, err
	}
	return resp.GameID, nil
}

func (c *Client) AcceptChallenge(ctx context.Context, gameID uint64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/challenges/%d/accept", gameID), nil, nil, false)
}

func (c *Client) DeclineChallenge(ctx context.Context, gameID uint64) error {
	return c.doJSON(ctx, fasthttp.MethodPost, fmt.Sprintf("/challenges/%d/decline", gameID), nil, nil, false)
}

// doJSON performs one request with optional bounded retry. State-changing
// calls never retry: the gateway broadcasts a transaction on first receipt and
// a blind resubmit could double-spend the action.
func (c *Client) doJSON(ctx context.Context, method, path string, in any, out any, retry bool) error {
	url := c.baseURL + path
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer func() {
		fasthttp.ReleaseRequest(req)
		fasthttp.ReleaseResponse(resp)
	}()

	req.Header.SetMethod(method)
	req.SetRequestURI(url)
	req.Header.SetContentType("application/json")
	if !c.wallet.IsZero() {
		req.Header.Set("X-Wallet-Address", string(c.wallet))
	}

	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "marshal request")
		}
		req.SetBody(payload)
	}

	attempts := 1
	if retry && c.retryMax > 1 {
		attempts = c.retryMax
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := c.http.DoDeadline(req, resp, c.computeDeadline(ctx))
		if err != nil {
			lastErr = errors.Wrapf(err, "%s %s", method, path)
			if attempt == attempts {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		status := resp.StatusCode()
		if status < 200 || status >= 300 {
			lastErr = errors.Errorf("gateway error: %s %s status=%d body=%s", method, path, status, truncate(string(resp.Body()), 512))
			if attempt == attempts || !shouldRetryStatus(status) {
				return lastErr
			}
			if sleepErr := sleepWithContext(ctx, backoffDuration(attempt)); sleepErr != nil {
				return lastErr
			}
			continue
		}

		if out != nil {
			if err := json.Unmarshal(resp.Body(), out); err != nil {
				return errors.Wrapf(err, "decode %s %s response", method, path)
			}
		}
		return nil
	}
	return lastErr
}

func (c *Client) computeDeadline(ctx context.Context) time.Time {
	deadline := time.Now().Add(c.defaultTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	return deadline
}

func sleepWithContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func backoffDuration(attempt int) time.Duration {
	d := time.Duration(attempt*attempt) * 250 * time.Millisecond
	if d > 5*time.Second {
		d = 5 * time.Second
	}
	return d
}

func shouldRetryStatus(status int) bool {
	switch status {
	case fasthttp.StatusTooManyRequests,
		fasthttp.StatusBadGateway,
		fasthttp.StatusServiceUnavailable,
		fasthttp.StatusGatewayTimeout:
		return true
	}
	return status >= 500
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
