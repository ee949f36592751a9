package client

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/nightgrid/event-pipeline/internal/config"
	"github.com/nightgrid/event-pipeline/internal/util"
	"github.com/nightgrid/event-pipeline/pkg/metrics"
	"github.com/nightgrid/event-pipeline/pkg/retry"
)

// ArtistProfile is one candidate returned by the external artist search.
type ArtistProfile struct {
	Name        string `json:"name"`
	ExternalID  string `json:"externalId"`
	Followers   int64  `json:"followers"`
	ProfileURL  string `json:"profileUrl"`
	AvatarURL   string `json:"avatarUrl"`
	Description string `json:"description"`
	Country     string `json:"country"`
	City        string `json:"city"`
}

// ArtistSearch queries the external music platform for artist metadata. The
// platform uses client-credentials OAuth; the token lives in a CredentialCache
// rather than any package-level variable.
type ArtistSearch struct {
	client      *resty.Client
	creds       *retry.CredentialCache
	acceptScore float64
}

func NewArtistSearch(cfg *config.Config) *ArtistSearch {
	client := resty.New().
		SetBaseURL(cfg.Clients.ArtistSearchURL).
		SetTimeout(cfg.Clients.HTTPTimeout)

	tokenURL := cfg.Clients.ArtistSearchTokenURL
	clientID := cfg.Clients.ArtistSearchClientID
	clientSecret := cfg.Clients.ArtistSearchClientSecret
	timeout := cfg.Clients.HTTPTimeout

	refresh := func(ctx context.Context) (retry.Credential, error) {
		return fetchToken(ctx, tokenURL, clientID, clientSecret, timeout)
	}

	return &ArtistSearch{
		client:      client,
		creds:       retry.NewCredentialCache(refresh),
		acceptScore: cfg.Clients.ArtistSearchAcceptScore,
	}
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func fetchToken(ctx context.Context, tokenURL, clientID, clientSecret string, timeout time.Duration) (retry.Credential, error) {
	var out tokenResponse
	resp, err := resty.New().SetTimeout(timeout).R().
		SetContext(ctx).
		SetBasicAuth(clientID, clientSecret).
		SetFormData(map[string]string{"grant_type": "client_credentials"}).
		SetResult(&out).
		Post(tokenURL)
	metrics.IncreaseExternalCallsMetric("artist_search_token", callResult(resp, err))
	if err != nil {
		return retry.Credential{}, retry.Transient(fmt.Errorf("artist search token: %w", err))
	}
	if resp.IsError() {
		return retry.Credential{}, retry.FromStatus(resp.StatusCode(), fmt.Errorf("artist search token: status %d", resp.StatusCode()))
	}
	if out.AccessToken == "" {
		return retry.Credential{}, retry.Permanent(fmt.Errorf("artist search token: empty access_token"))
	}
	return retry.Credential{
		Token:     out.AccessToken,
		ExpiresAt: time.Now().Add(time.Duration(out.ExpiresIn) * time.Second),
	}, nil
}

// Search returns the platform's candidates for name, best first. A token
// rejected mid-lease is invalidated and the call retried once with a fresh
// one.
func (s *ArtistSearch) Search(ctx context.Context, name string) ([]ArtistProfile, error) {
	profiles, status, err := s.search(ctx, name)
	if status == http.StatusUnauthorized {
		s.creds.Invalidate()
		profiles, _, err = s.search(ctx, name)
	}
	return profiles, err
}

func (s *ArtistSearch) search(ctx context.Context, name string) ([]ArtistProfile, int, error) {
	token, err := s.creds.Get(ctx)
	if err != nil {
		return nil, 0, err
	}

	var out []ArtistProfile
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetQueryParam("q", name).
		SetResult(&out).
		Get("/search")
	metrics.IncreaseExternalCallsMetric("artist_search", callResult(resp, err))
	if err != nil {
		return nil, 0, retry.Transient(fmt.Errorf("artist search %q: %w", name, err))
	}
	if resp.IsError() {
		return nil, resp.StatusCode(), retry.FromStatus(resp.StatusCode(), fmt.Errorf("artist search %q: status %d", name, resp.StatusCode()))
	}
	return out, resp.StatusCode(), nil
}

// BestMatch picks the candidate with the highest composite of name
// similarity (0.6), follower popularity (0.3) and result rank (0.1), or nil
// when nothing clears the accept score.
func (s *ArtistSearch) BestMatch(ctx context.Context, name string) (*ArtistProfile, error) {
	profiles, err := s.Search(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(profiles) == 0 {
		return nil, nil
	}

	normalized := util.NormalizeName(name)
	var best *ArtistProfile
	bestScore := 0.0
	for i := range profiles {
		p := &profiles[i]
		score := 0.6*util.BigramSimilarity(normalized, util.NormalizeName(p.Name)) +
			0.3*popularity(p.Followers) +
			0.1*(1-float64(i)/float64(len(profiles)))
		if score > bestScore {
			best, bestScore = p, score
		}
	}
	if bestScore <= s.acceptScore {
		return nil, nil
	}
	return best, nil
}

// popularity maps a follower count onto [0,1]; a million followers saturates
// the scale.
func popularity(followers int64) float64 {
	if followers <= 0 {
		return 0
	}
	return math.Min(1, math.Log10(float64(followers)+1)/6)
}

type tagsResponse struct {
	Tags []string `json:"tags"`
}

// GetTags returns the platform's genre tags for an artist external id.
func (s *ArtistSearch) GetTags(ctx context.Context, externalID string) ([]string, error) {
	token, err := s.creds.Get(ctx)
	if err != nil {
		return nil, err
	}

	var out tagsResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+token).
		SetPathParam("id", externalID).
		SetResult(&out).
		Get("/artists/{id}/tags")
	metrics.IncreaseExternalCallsMetric("artist_tags", callResult(resp, err))
	if err != nil {
		return nil, retry.Transient(fmt.Errorf("artist tags %s: %w", externalID, err))
	}
	if resp.IsError() {
		return nil, retry.FromStatus(resp.StatusCode(), fmt.Errorf("artist tags %s: status %d", externalID, resp.StatusCode()))
	}
	return out.Tags, nil
}
