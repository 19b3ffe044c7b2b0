package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mejba13/brandcaster-ai/internal/model"
	"github.com/mejba13/brandcaster-ai/internal/secrets"
)

// socialAPI is the shared HTTP plumbing behind the social publishers.
// BaseURL is overridable so tests can point at a local server.
type socialAPI struct {
	platform model.Platform
	baseURL  string
	http     *http.Client
	secrets  *secrets.Store
	logger   *zap.SugaredLogger
}

func newSocialAPI(platform model.Platform, baseURL string, secretStore *secrets.Store, logger *zap.SugaredLogger) *socialAPI {
	return &socialAPI{
		platform: platform,
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: 30 * time.Second},
		secrets:  secretStore,
		logger:   logger,
	}
}

// token decrypts the connector's access token. Decrypt failures are
// terminal for the connector, not retried.
func (a *socialAPI) token(conn *model.SocialConnector) (string, error) {
	if conn == nil || conn.Platform != a.platform {
		return "", fmt.Errorf("%s publisher needs a %s connector", a.platform, a.platform)
	}
	token, err := a.secrets.Decrypt(conn.EncryptedToken)
	if err != nil {
		return "", fmt.Errorf("decrypt %s token for connector %s: %w", a.platform, conn.ID, err)
	}
	return token, nil
}

// doJSON performs an authenticated JSON request. Non-2xx responses
// come back as *PlatformError.
func (a *socialAPI) doJSON(ctx context.Context, method, path, token string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal %s request: %w", a.platform, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, a.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("create %s request: %w", a.platform, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s API request: %w", a.platform, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &PlatformError{Platform: a.platform, Status: resp.StatusCode, Message: string(detail)}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", a.platform, err)
	}
	return nil
}

// renderContent appends hashtags to the variant body the way social
// posts carry them.
func renderContent(variant *model.ContentVariant) string {
	content := variant.Content
	if len(variant.Formatting.Hashtags) > 0 {
		tags := make([]string, 0, len(variant.Formatting.Hashtags))
		for _, h := range variant.Formatting.Hashtags {
			tags = append(tags, "#"+strings.TrimPrefix(h, "#"))
		}
		content += "\n\n" + strings.Join(tags, " ")
	}
	return content
}
