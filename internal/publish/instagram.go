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

// InstagramPublisher posts via the Graph API content-publishing flow:
// create a media container, then publish it. Instagram requires an
// image; the connector's platform_settings carry a default image URL.
type InstagramPublisher struct {
	api *socialAPI
}

func NewInstagramPublisher(secretStore *secrets.Store, logger *zap.SugaredLogger, baseURL string) *InstagramPublisher {
	if baseURL == "" {
		baseURL = facebookGraphURL
	}
	return &InstagramPublisher{api: newSocialAPI(model.PlatformInstagram, baseURL, secretStore, logger)}
}

func (p *InstagramPublisher) Publish(ctx context.Context, variant *model.ContentVariant, conn model.ConnectorRef) (*model.PublishResult, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	imageURL, _ := conn.Social.PlatformSettings["default_image_url"].(string)
	if imageURL == "" {
		return nil, fmt.Errorf("instagram connector %s has no default_image_url configured", conn.Social.ID)
	}

	account := url.PathEscape(conn.Social.AccountRef)

	var container struct {
		ID string `json:"id"`
	}
	createBody := map[string]string{
		"image_url": imageURL,
		"caption":   renderContent(variant),
	}
	if err := p.api.doJSON(ctx, "POST", "/"+account+"/media", token, createBody, &container); err != nil {
		return nil, err
	}
	if container.ID == "" {
		return nil, fmt.Errorf("instagram returned no media container id")
	}

	var published struct {
		ID string `json:"id"`
	}
	publishBody := map[string]string{"creation_id": container.ID}
	if err := p.api.doJSON(ctx, "POST", "/"+account+"/media_publish", token, publishBody, &published); err != nil {
		return nil, err
	}
	if published.ID == "" {
		return nil, fmt.Errorf("instagram returned no media id")
	}
	return &model.PublishResult{ExternalID: published.ID}, nil
}

// Delete is unsupported by the content-publishing API.
func (p *InstagramPublisher) Delete(ctx context.Context, postID string, conn model.ConnectorRef) (bool, error) {
	return false, fmt.Errorf("instagram media cannot be deleted through the API")
}

func (p *InstagramPublisher) GetMetrics(ctx context.Context, postID string, conn model.ConnectorRef) (map[string]int64, error) {
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
	path := fmt.Sprintf("/%s/insights?metric=impressions,reach,likes,comments,shares", url.PathEscape(postID))
	if err := p.api.doJSON(ctx, "GET", path, token, nil, &resp); err != nil {
		p.api.logger.Warnw("instagram insights unavailable", "post_id", postID, "err", err)
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

// RefreshToken exchanges the current long-lived token for a fresh one.
func (p *InstagramPublisher) RefreshToken(ctx context.Context, conn *model.SocialConnector) (*TokenData, error) {
	token, err := p.api.token(conn)
	if err != nil {
		return nil, err
	}

	var resp struct {
		AccessToken string `json:"access_token"`
		ExpiresIn   int64  `json:"expires_in"`
	}
	path := "/refresh_access_token?grant_type=ig_refresh_token&access_token=" + url.QueryEscape(token)
	if err := p.api.doJSON(ctx, "GET", path, "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" {
		return nil, fmt.Errorf("instagram token refresh returned no token")
	}
	return &TokenData{
		AccessToken: resp.AccessToken,
		ExpiresAt:   time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
	}, nil
}
