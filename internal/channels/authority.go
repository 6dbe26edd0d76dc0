package channels

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"safepulse/internal/alert"
)

// AuthorityDispatch posts structured alert payloads to an emergency dispatch
// endpoint. The address on the contact is the endpoint URL.
type AuthorityDispatch struct {
	client *http.Client
}

// NewAuthorityDispatch builds the authority channel.
func NewAuthorityDispatch() *AuthorityDispatch {
	return &AuthorityDispatch{client: &http.Client{}}
}

// Send posts the JSON body composed by the coordinator. The subject travels
// in a header so dispatch systems can route without parsing the body.
func (a *AuthorityDispatch) Send(ctx context.Context, address string, msg alert.Message) error {
	if !strings.HasPrefix(address, "http://") && !strings.HasPrefix(address, "https://") {
		return alert.Permanent(fmt.Errorf("invalid authority endpoint: %s", address))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, address, strings.NewReader(msg.Body))
	if err != nil {
		return alert.Permanent(fmt.Errorf("failed to create dispatch request for %s: %w", address, err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Dispatch-Type", msg.Subject)

	resp, err := a.client.Do(req)
	if err != nil {
		return alert.Transient(fmt.Errorf("failed to reach authority endpoint %s: %w", address, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return alert.Permanent(fmt.Errorf("authority endpoint %s returned status %d", address, resp.StatusCode))
	default:
		return alert.Transient(fmt.Errorf("authority endpoint %s returned status %d", address, resp.StatusCode))
	}
}
