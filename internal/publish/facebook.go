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

const facebookGraphURL = "https://graph.facebook.com/v19.0"

// FacebookPublisher posts to a brand page via the Graph API. The
// connector's AccountRef is the page id.
type FacebookPublisher struct {
	api *socialAPI
}

func NewFacebookPublisher(secretStore *secrets.Store, logger *zap.SugaredLogger, baseURL string) *FacebookPublisher {
	if baseURL == "" {
		baseURL = facebookGraphURL
	}
	return &FacebookPublisher{api: newSocialAPI(model.PlatformFacebook, baseURL, secretStore, logger)}
}

func (p *FacebookPublisher) Publish(ctx context.Context, variant *model.ContentVariant, conn model.ConnectorRef) (*model.PublishResult, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	var resp struct {
		ID string `json:"id"`
	}
	body := map[string]string{"message": renderContent(variant)}
	path := fmt.Sprintf("/%s/feed", url.PathEscape(conn.Social.AccountRef))
	if err := p.api.doJSON(ctx, "POST", path, token, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("facebook returned no post id")
	}
	return &model.PublishResult{
		ExternalID: resp.ID,
		URL:        "https://www.facebook.com/" + resp.ID,
	}, nil
}

func (p *FacebookPublisher) Delete(ctx context.Context, postID string, conn model.ConnectorRef) (bool, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return false, err
	}
	var resp struct {
		Success bool `json:"success"`
	}
	if err := p.api.doJSON(ctx, "DELETE", "/"+url.PathEscape(postID), token, nil, &resp); err != nil {
		return false, err
	}
	return resp.Success, nil
}

// GetMetrics pulls post insights. A failed call yields an empty map so
// metrics collection never blocks on one missing post.
func (p *FacebookPublisher) GetMetrics(ctx context.Context, postID string, conn model.ConnectorRef) (map[string]int64, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Data []struct {
			Name   string `json:"name"`
			Values []struct {
				Value int64 `json:"value"`
			} `json:"values"`
		} `json:"data"`
	}
	path := fmt.Sprintf("/%s/insights?metric=post_impressions,post_clicks,post_reactions_by_type_total", url.PathEscape(postID))
	if err := p.api.doJSON(ctx, "GET", path, token, nil, &resp); err != nil {
		p.api.logger.Warnw("facebook insights unavailable", "post_id", postID, "err", err)
		return map[string]int64{}, nil
	}

	out := make(map[string]int64, len(resp.Data))
	for _, m := range resp.Data {
		if len(m.Values) > 0 {
			out[m.Name] = m.Values[0].Value
		}
	}
	return out, nil
}

// RefreshToken exchanges the current token for a long-lived one.
func (p *FacebookPublisher) RefreshToken(ctx context.Context, conn *model.SocialConnector) (*TokenData, error) {
	token, err := p.api.token(conn)
	if err != nil {
		return nil, err
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	path := "/oauth/access_token?grant_type=fb_exchange_token&fb_exchange_token=" + url.QueryEscape(token)
	if err := p.api.doJSON(ctx, "GET", path, "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("facebook token exchange returned no token")
	}
	return &TokenData{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
