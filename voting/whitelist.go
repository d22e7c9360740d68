package voting

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/vocdoni/semaphore-aa-vote/log"
)

// maxWhitelistSize bounds the whitelist document read.
const maxWhitelistSize = 8 << 20

// VerifyWhitelist checks that the session account is in the smart account
// whitelist, a JSON array of addresses. The match is case insensitive.
func (s *Service) VerifyWhitelist(ctx context.Context, ss *Session) error {
	if s.conf.WhitelistURL == "" {
		return ErrWhitelistURLNotSet
	}
	addr, err := ss.Address(ctx)
	if err != nil {
		return err
	}
	list, err := s.fetchWhitelist(ctx)
	if err != nil {
		return err
	}
	want := strings.ToLower(addr.Hex())
	for _, entry := range list {
		if strings.ToLower(strings.TrimSpace(entry)) == want {
			log.Debugw("smart account whitelisted", "address", addr.Hex())
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrNotWhitelisted, addr.Hex())
}

func (s *Service) fetchWhitelist(ctx context.Context) ([]string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.conf.WhitelistURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid whitelist request: %w", err)
	}
	res, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch smart account whitelist: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to fetch smart account whitelist: %s", res.Status)
	}
	body, err := io.ReadAll(io.LimitReader(res.Body, maxWhitelistSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read smart account whitelist: %w", err)
	}
	var list []string
	if err := json.Unmarshal(body, &list); err != nil {
		return nil, fmt.Errorf("smart account whitelist is not an array of strings: %w", err)
	}
	return list, nil
}
