package publish

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
)

const twitterAPIURL = "https://api.twitter.com"

type TwitterPublisher struct {
	api *socialAPI
}

func NewTwitterPublisher(secretStore *secrets.Store, logger *zap.SugaredLogger, baseURL string) *TwitterPublisher {
	if baseURL == "" {
		baseURL = twitterAPIURL
	}
	return &TwitterPublisher{api: newSocialAPI(model.PlatformTwitter, baseURL, secretStore, logger)}
}

func (p *TwitterPublisher) Publish(ctx context.Context, variant *model.ContentVariant, conn model.ConnectorRef) (*model.PublishResult, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	body := map[string]string{"text": renderContent(variant)}
	if err := p.api.doJSON(ctx, "POST", "/2/tweets", token, body, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("twitter returned no tweet id")
	}
	return &model.PublishResult{
		ExternalID: resp.Data.ID,
		URL:        fmt.Sprintf("https://twitter.com/%s/status/%s", conn.Social.AccountRef, resp.Data.ID),
	}, nil
}

func (p *TwitterPublisher) Delete(ctx context.Context, postID string, conn model.ConnectorRef) (bool, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return false, err
	}
	var resp struct {
		Data struct {
			Deleted bool `json:"deleted"`
		} `json:"data"`
	}
	if err := p.api.doJSON(ctx, "DELETE", "/2/tweets/"+url.PathEscape(postID), token, nil, &resp); err != nil {
		return false, err
	}
	return resp.Data.Deleted, nil
}

func (p *TwitterPublisher) GetMetrics(ctx context.Context, postID string, conn model.ConnectorRef) (map[string]int64, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data struct {
			PublicMetrics map[string]int64 `json:"public_metrics"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/2/tweets/%s?tweet.fields=public_metrics", url.PathEscape(postID))
	if err := p.api.doJSON(ctx, "GET", path, token, nil, &resp); err != nil {
		p.api.logger.Warnw("twitter metrics unavailable", "post_id", postID, "err", err)
		return map[string]int64{}, nil
	}
	if resp.Data.PublicMetrics == nil {
		return map[string]int64{}, nil
	}
	return resp.Data.PublicMetrics, nil
}

func (p *TwitterPublisher) RefreshToken(ctx context.Context, conn *model.SocialConnector) (*TokenData, error) {
	refresh, ok := conn.PlatformSettings["refresh_token"].(string)
	if !ok || refresh == "" {
		return nil, fmt.Errorf("twitter connector %s has no refresh_token", conn.ID)
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	body := map[string]string{
		"grant_type":    "refresh_token",
		"refresh_token": refresh,
	}
	if err := p.api.doJSON(ctx, "POST", "/2/oauth2/token", "", body, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("twitter token refresh returned no token")
	}
	return &TokenData{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
