package redis

import (
	"context"
	"fmt"
	"time"
)

const revokedKeyPrefix = "plotmanager:revoked:"

// RevocationList stores logged-out token ids in Redis with a TTL matching
// the token's remaining lifetime, so entries expire on their own.
type RevocationList struct {
	client *Client
	now    func() time.Time
}

func NewRevocationList(client *Client) *RevocationList {
	return &RevocationList{client: client, now: time.Now}
}

func (l *RevocationList) Revoke(ctx context.Context, jti string, until time.Time) error {
	ttl := until.Sub(l.now())
	if jti == "" || ttl <= 0 {
		return nil
	}
	if err := l.client.Set(ctx, revokedKeyPrefix+jti, 1, ttl); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (l *RevocationList) IsRevoked(ctx context.Context, jti string) (bool, error) {
	revoked, err := l.client.Exists(ctx, revokedKeyPrefix+jti)
	if err != nil {
		return false, fmt.Errorf("check token revocation: %w", err)
	}
	return revoked, nil
}
