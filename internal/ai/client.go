// Package ai calls the external ranking and opener-generation collaborator.
// Callers treat every error as "use the fallback".
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/oggyb/muzz-matchmaking/internal/config"
	"github.com/oggyb/muzz-matchmaking/internal/db"
)

// ErrDisabled is returned when no collaborator URL is configured.
var ErrDisabled = errors.New("ai collaborator disabled")

// Profile is the wire shape of a user sent to the collaborator.
type Profile struct {
	Username  string   `json:"username"`
	Bio       string   `json:"bio"`
	Age       *int     `json:"age"`
	Country   string   `json:"country"`
	City      string   `json:"city"`
	Interests []string `json:"interests,omitempty"`
	Mode      string   `json:"mode,omitempty"`
}

// NewProfile builds the wire profile. prefs may be nil.
func NewProfile(u db.User, prefs *db.MatchmakingPreferences) Profile {
	p := Profile{Username: u.Username, Bio: u.Bio, Age: u.Age, Country: u.Country, City: u.City}
	if prefs != nil {
		p.Interests = prefs.Interests
		p.Mode = prefs.Mode
	}
	return p
}

type ScoreResult struct {
	CandidateUsername string   `json:"candidate_username"`
	Score             float64  `json:"score"`
	SharedInterests   []string `json:"shared_interests"`
}

type batchScoreRequest struct {
	User       Profile   `json:"user"`
	Candidates []Profile `json:"candidates"`
}

type batchScoreResponse struct {
	Results []ScoreResult `json:"results"`
}

type openersRequest struct {
	User            Profile  `json:"user"`
	Match           Profile  `json:"match"`
	SharedInterests []string `json:"shared_interests"`
}

type openersResponse struct {
	Openers []string `json:"openers"`
}

type Client struct {
	baseURL string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a client from config. An empty AI.URL disables it.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.AI.URL, "/"),
		http:    &http.Client{Timeout: cfg.AI.Timeout},
		logger:  logger,
	}
}

func (c *Client) Enabled() bool { return c != nil && c.baseURL != "" }

// BatchScore asks the collaborator to score every candidate against user.
// Any non-2xx status, transport or decode failure is returned as an error.
func (c *Client) BatchScore(ctx context.Context, user Profile, candidates []Profile) ([]ScoreResult, error) {
	var out batchScoreResponse
	if err := c.post(ctx, "/batch-score", batchScoreRequest{User: user, Candidates: candidates}, &out); err != nil {
		return nil, err
	}
	return out.Results, nil
}

// GenerateOpeners returns collaborator openers, or DefaultOpeners on any failure.
func (c *Client) GenerateOpeners(ctx context.Context, user, match Profile, shared []string) []string {
	var out openersResponse
	err := c.post(ctx, "/generate-openers", openersRequest{User: user, Match: match, SharedInterests: shared}, &out)
	if err != nil {
		if !errors.Is(err, ErrDisabled) {
			c.logger.Warn("opener generation failed, using defaults", "err", err)
		}
		return DefaultOpeners(shared)
	}
	if len(out.Openers) == 0 {
		return DefaultOpeners(shared)
	}
	return out.Openers
}

// DefaultOpeners builds templated openers from shared interests, or two
// generic ones when there are none.
func DefaultOpeners(shared []string) []string {
	if len(shared) == 0 {
		return []string{
			"Hey! Nice to meet you. How's your day going?",
			"Hi there! What's something interesting about you?",
		}
	}
	openers := []string{fmt.Sprintf("Hey! I noticed we both like %s. What got you into it?", shared[0])}
	if len(shared) > 1 {
		openers = append(openers, fmt.Sprintf("We have %d interests in common! That's cool.", len(shared)))
	}
	return openers
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	if !c.Enabled() {
		return ErrDisabled
	}
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	c.logger.Debug("calling ai collaborator", "path", path)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("call %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
