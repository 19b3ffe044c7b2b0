package publish

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
)

const linkedinAPIURL = "https://api.linkedin.com"

// LinkedInPublisher posts UGC shares for an organization. The
// connector's AccountRef is the author URN.
type LinkedInPublisher struct {
	api *socialAPI
}

func NewLinkedInPublisher(secretStore *secrets.Store, logger *zap.SugaredLogger, baseURL string) *LinkedInPublisher {
	if baseURL == "" {
		baseURL = linkedinAPIURL
	}
	return &LinkedInPublisher{api: newSocialAPI(model.PlatformLinkedIn, baseURL, secretStore, logger)}
}

func (p *LinkedInPublisher) Publish(ctx context.Context, variant *model.ContentVariant, conn model.ConnectorRef) (*model.PublishResult, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"author":         conn.Social.AccountRef,
		"lifecycleState": "PUBLISHED",
		"specificContent": map[string]any{
			"com.linkedin.ugc.ShareContent": map[string]any{
				"shareCommentary": map[string]string{
					"text": renderContent(variant),
				},
				"shareMediaCategory": "NONE",
			},
		},
		"visibility": map[string]string{
			"com.linkedin.ugc.MemberNetworkVisibility": "PUBLIC",
		},
	}
	var resp struct {
		ID string `json:"id"`
	}
	if err := p.api.doJSON(ctx, "POST", "/v2/ugcPosts", token, body, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		return nil, fmt.Errorf("linkedin returned no share id")
	}
	return &model.PublishResult{
		ExternalID: resp.ID,
		URL:        "https://www.linkedin.com/feed/update/" + resp.ID,
	}, nil
}

func (p *LinkedInPublisher) Delete(ctx context.Context, postID string, conn model.ConnectorRef) (bool, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return false, err
	}
	if err := p.api.doJSON(ctx, "DELETE", "/v2/ugcPosts/"+url.PathEscape(postID), token, nil, nil); err != nil {
		return false, err
	}
	return true, nil
}

func (p *LinkedInPublisher) GetMetrics(ctx context.Context, postID string, conn model.ConnectorRef) (map[string]int64, error) {
	token, err := p.api.token(conn.Social)
	if err != nil {
		return nil, err
	}

	var resp struct {
		LikesSummary struct {
			TotalLikes int64 `json:"totalLikes"`
		} `json:"likesSummary"`
		CommentsSummary struct {
			TotalComments int64 `json:"aggregatedTotalComments"`
		} `json:"commentsSummary"`
	}
	path := "/v2/socialActions/" + url.PathEscape(postID)
	if err := p.api.doJSON(ctx, "GET", path, token, nil, &resp); err != nil {
		p.api.logger.Warnw("linkedin metrics unavailable", "post_id", postID, "err", err)
		return map[string]int64{}, nil
	}
	return map[string]int64{
		"totalLikes":              resp.LikesSummary.TotalLikes,
		"aggregatedTotalComments": resp.CommentsSummary.TotalComments,
	}, nil
}

// RefreshToken is unsupported; LinkedIn tokens are re-issued through
// the interactive OAuth flow, so expiry requires operator action.
func (p *LinkedInPublisher) RefreshToken(ctx context.Context, conn *model.SocialConnector) (*TokenData, error) {
	return nil, fmt.Errorf("linkedin tokens cannot be refreshed programmatically, reconnect the account")
}
