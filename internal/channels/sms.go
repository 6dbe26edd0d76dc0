package channels

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"safepulse/internal/alert"
)

// SMS sends text messages through the Twilio REST API.
type SMS struct {
	accountSID string
	authToken  string
	fromNumber string
	client     *http.Client
	baseURL    string
}

// NewSMS builds the SMS channel with Twilio credentials.
func NewSMS(accountSID, authToken, fromNumber string) *SMS {
	return &SMS{
		accountSID: accountSID,
		authToken:  authToken,
		fromNumber: fromNumber,
		client:     &http.Client{},
		baseURL:    "https://api.twilio.com",
	}
}

// Send posts the message to Twilio. Missing credentials and malformed phone
// numbers are permanent failures; network trouble and 5xx responses are
// transient and get retried by the coordinator.
func (s *SMS) Send(ctx context.Context, address string, msg alert.Message) error {
	if s.accountSID == "" || s.authToken == "" || s.fromNumber == "" {
		return alert.Permanent(fmt.Errorf("missing Twilio configuration: AccountSID, AuthToken, or FromNumber is empty"))
	}
	if !strings.HasPrefix(address, "+") {
		return alert.Permanent(fmt.Errorf("invalid phone number: %s", address))
	}

	urlStr := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.accountSID)
	msgData := url.Values{}
	msgData.Set("To", address)
	msgData.Set("From", s.fromNumber)
	msgData.Set("Body", fmt.Sprintf("%s\n%s", msg.Subject, msg.Body))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, urlStr, strings.NewReader(msgData.Encode()))
	if err != nil {
		return alert.Permanent(fmt.Errorf("failed to create SMS request for %s: %w", address, err))
	}
	req.SetBasicAuth(s.accountSID, s.authToken)
	req.Header.Add("Accept", "application/json")
	req.Header.Add("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return alert.Transient(fmt.Errorf("failed to send SMS to %s: %w", address, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusCreated:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return alert.Permanent(fmt.Errorf("Twilio API returned status %d for %s", resp.StatusCode, address))
	default:
		return alert.Transient(fmt.Errorf("Twilio API returned status %d for %s", resp.StatusCode, address))
	}
}
