package credentials

import (
	"context"
	"fmt"
	"strings"

	"github.com/andywolf/prpctl/internal/types"
)

// SecretFetcher is the subset of a GCP Secret Manager client a
// SecretResolver needs. Satisfied by *gcp.SecretManagerClient without
// this package importing internal/cloud/gcp directly.
type SecretFetcher interface {
	FetchSecret(ctx context.Context, secretPath string) (string, error)
}

// SecretResolver resolves an AgentAuthentication whose Kind is
// "secret_ref" into the literal secret value a spawned agent process
// needs, per the same secret_ref contract jwt.go's package doc promises.
type SecretResolver struct {
	fetcher SecretFetcher
	prefix  string
}

// NewSecretResolver builds a resolver around fetcher. prefix, if set, is
// prepended to any SecretRef that doesn't already look like a fully
// qualified secret path (no slash), letting a fleet's .prprc name secrets
// by short name under a shared GCP project/prefix.
func NewSecretResolver(fetcher SecretFetcher, prefix string) *SecretResolver {
	return &SecretResolver{fetcher: fetcher, prefix: prefix}
}

// Resolve fetches the literal secret value named by auth.SecretRef. It
// returns an error for any Kind other than "secret_ref" or a missing
// SecretRef, rather than silently returning an empty credential.
func (r *SecretResolver) Resolve(ctx context.Context, auth types.AgentAuthentication) (string, error) {
	if auth.Kind != "secret_ref" {
		return "", fmt.Errorf("credentials: authentication kind %q is not secret_ref", auth.Kind)
	}
	if auth.SecretRef == "" {
		return "", fmt.Errorf("credentials: secret_ref authentication missing secret_ref")
	}
	ref := auth.SecretRef
	if r.prefix != "" && !strings.Contains(ref, "/") {
		ref = r.prefix + ref
	}
	return r.fetcher.FetchSecret(ctx, ref)
}
