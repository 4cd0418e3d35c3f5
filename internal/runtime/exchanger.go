package runtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"agentauth/internal/oauth"
)

// DefaultHTTPTimeout is the default timeout for token endpoint requests.
const DefaultHTTPTimeout = 30 * time.Second

// TokenExchanger performs the authorization-code grant against a token
// endpoint. It is the only component in the login path that touches the
// network; the flow state machine stays offline.
type TokenExchanger struct {
	tokenEndpoint string
	clientID      string
	httpClient    *http.Client
}

// NewTokenExchanger creates an exchanger for the given token endpoint.
// A nil httpClient gets a default with a request timeout.
func NewTokenExchanger(tokenEndpoint, clientID string, httpClient *http.Client) *TokenExchanger {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &TokenExchanger{
		tokenEndpoint: tokenEndpoint,
		clientID:      clientID,
		httpClient:    httpClient,
	}
}

// Exchange redeems a validated authorization code for tokens, sending the
// PKCE verifier alongside the code.
func (e *TokenExchanger) Exchange(ctx context.Context, req *oauth.TokenExchangeRequest) (*oauth2.Token, error) {
	data := url.Values{
		"grant_type":    {"authorization_code"},
		"code":          {req.Code},
		"redirect_uri":  {req.RedirectURI},
		"code_verifier": {req.CodeVerifier},
		"client_id":     {e.clientID},
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.tokenEndpoint, strings.NewReader(data.Encode()))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("token exchange failed with status %d: %s", resp.StatusCode, string(body))
	}

	var tokenResp struct {
		AccessToken  string `json:"access_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
		RefreshToken string `json:"refresh_token"`
		IDToken      string `json:"id_token"`
		Scope        string `json:"scope"`
	}

	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return nil, err
	}

	token := &oauth2.Token{
		AccessToken:  tokenResp.AccessToken,
		TokenType:    tokenResp.TokenType,
		RefreshToken: tokenResp.RefreshToken,
	}

	if tokenResp.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(tokenResp.ExpiresIn) * time.Second)
	}

	if tokenResp.IDToken != "" {
		token = token.WithExtra(map[string]interface{}{
			"id_token": tokenResp.IDToken,
		})
	}

	return token, nil
}
