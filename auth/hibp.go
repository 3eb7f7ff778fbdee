package auth

import (
	"bufio"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// DefaultHIBPEndpoint is the public Have I Been Pwned range API.
const DefaultHIBPEndpoint = "https://api.pwnedpasswords.com/range/"

// HIBPClient performs k-anonymity breach lookups: only the first five hex
// characters of SHA1(passphrase) are sent, and the suffix is matched locally
// against the returned range.
type HIBPClient struct {
	Endpoint string
	HTTP     *http.Client
}

// NewHIBPClient returns a client for the public HIBP API.
func NewHIBPClient() *HIBPClient {
	return &HIBPClient{
		Endpoint: DefaultHIBPEndpoint,
		HTTP:     &http.Client{Timeout: 4 * time.Second},
	}
}

// BreachCount reports how many breaches the passphrase appears in, zero when
// it is unknown to the dataset.
func (c *HIBPClient) BreachCount(ctx context.Context, passphrase string) (int, error) {
	sum := sha1.Sum([]byte(passphrase))
	digest := strings.ToUpper(hex.EncodeToString(sum[:]))
	prefix, suffix := digest[:5], digest[5:]

	endpoint := c.Endpoint
	if endpoint == "" {
		endpoint = DefaultHIBPEndpoint
	}
	httpClient := c.HTTP
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 4 * time.Second}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+prefix, nil)
	if err != nil {
		return 0, fmt.Errorf("hibp request: %w", err)
	}
	req.Header.Set("User-Agent", "solardash-vault/0.1")

	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("hibp query: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("hibp query: unexpected status %s", resp.Status)
	}

	// The response is one "SUFFIX:COUNT" line per hash in the range.
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		candidate, countField, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(candidate, suffix) {
			continue
		}
		count, err := strconv.Atoi(strings.TrimSpace(countField))
		if err != nil {
			return 0, fmt.Errorf("hibp parse count: %w", err)
		}
		return count, nil
	}
	if err := scanner.Err(); err != nil {
		return 0, fmt.Errorf("hibp read response: %w", err)
	}

	return 0, nil
}
