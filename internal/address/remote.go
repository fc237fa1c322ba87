package address

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Remote derives addresses by asking a Jupiter node.
type Remote struct {
	host   string
	client *http.Client
}

func NewRemote(host string, client *http.Client) *Remote {
	if client == nil {
		client = http.DefaultClient
	}
	return &Remote{host: strings.TrimRight(host, "/"), client: client}
}

type accountResponse struct {
	AccountRS        string `json:"accountRS"`
	ErrorCode        int    `json:"errorCode"`
	ErrorDescription string `json:"errorDescription"`
}

func (r *Remote) Derive(ctx context.Context, passphrase string) (string, error) {
	if passphrase == "" {
		return "", ErrEmptyPassphrase
	}

	form := url.Values{
		"requestType":  {"getAccountId"},
		"secretPhrase": {passphrase},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.host+"/nxt", strings.NewReader(form.Encode()))
	if err != nil {
		return "", fmt.Errorf("build account request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", r.host, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("query %s: unexpected status %s", r.host, resp.Status)
	}

	var out accountResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode account response: %w", err)
	}
	if out.ErrorCode != 0 {
		return "", fmt.Errorf("jupiter node error %d: %s", out.ErrorCode, out.ErrorDescription)
	}
	if out.AccountRS == "" {
		return "", fmt.Errorf("jupiter node returned no account")
	}
	return out.AccountRS, nil
}

// New returns a Remote deriver when host is set and a Local one otherwise.
func New(host string, client *http.Client) Deriver {
	if host == "" {
		return NewLocal()
	}
	return NewRemote(host, client)
}
