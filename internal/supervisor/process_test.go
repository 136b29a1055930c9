package supervisor

import (
	"context"
	"strings"
	"testing"

	"github.com/andywolf/prpctl/internal/credentials"
	"github.com/andywolf/prpctl/internal/discovery"
	"github.com/andywolf/prpctl/internal/types"
)

type fakeSecretFetcher struct{ secret string }

func (f *fakeSecretFetcher) FetchSecret(_ context.Context, _ string) (string, error) {
	return f.secret, nil
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if strings.HasPrefix(kv, key+"=") {
			return strings.TrimPrefix(kv, key+"="), true
		}
	}
	return "", false
}

func TestBuildEnvSecretRefInjectsAgentSecret(t *testing.T) {
	p := NewPool(discovery.NewRegistry(), nil)
	p.SetSecretResolver(credentials.NewSecretResolver(&fakeSecretFetcher{secret: "s3cr3t"}, ""))

	cfg := types.AgentConfiguration{ID: "impl-1", Authentication: types.AgentAuthentication{Kind: "secret_ref", SecretRef: "robo-impl-token"}}
	agent := &types.SpawnedAgent{InstanceID: "inst-1"}
	env := p.buildEnv(context.Background(), cfg, agent, types.SpawnRequest{ID: "spawn-1"})

	got, ok := envValue(env, "AGENT_SECRET")
	if !ok {
		t.Fatal("expected AGENT_SECRET to be set")
	}
	if got != "s3cr3t" {
		t.Fatalf("AGENT_SECRET = %q, want s3cr3t", got)
	}
}

func TestBuildEnvSecretRefWithoutResolverOmitsSecret(t *testing.T) {
	p := NewPool(discovery.NewRegistry(), nil)

	cfg := types.AgentConfiguration{ID: "impl-1", Authentication: types.AgentAuthentication{Kind: "secret_ref", SecretRef: "robo-impl-token"}}
	agent := &types.SpawnedAgent{InstanceID: "inst-1"}
	env := p.buildEnv(context.Background(), cfg, agent, types.SpawnRequest{ID: "spawn-1"})

	if _, ok := envValue(env, "AGENT_SECRET"); ok {
		t.Fatal("expected no AGENT_SECRET without a configured resolver")
	}
}

func TestBuildEnvAlwaysSetsIdentityTriple(t *testing.T) {
	p := NewPool(discovery.NewRegistry(), nil)

	cfg := types.AgentConfiguration{ID: "impl-1"}
	agent := &types.SpawnedAgent{InstanceID: "inst-1"}
	env := p.buildEnv(context.Background(), cfg, agent, types.SpawnRequest{ID: "spawn-1"})

	for _, key := range []string{"AGENT_ID", "SPAWN_ID", "AGENT_CONFIG"} {
		if _, ok := envValue(env, key); !ok {
			t.Fatalf("expected %s to be set", key)
		}
	}
}
