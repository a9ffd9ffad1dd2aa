package identity

import "context"

// StaticProvider synthesizes a minimal profile from the external id alone.
// Deployments with a directory integration replace this with a real client;
// the resolver only needs something to seed the first-login user row.
type StaticProvider struct{}

// NewStaticProvider creates a provider that derives profiles locally.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{}
}

// FetchProfile returns a profile carrying just the external id.
func (p *StaticProvider) FetchProfile(ctx context.Context, externalUserID string) (*Profile, error) {
	return &Profile{ExternalID: externalUserID}, nil
}
