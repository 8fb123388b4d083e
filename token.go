package main

import (
	"context"
	"fmt"
	"os"

	"github.com/locomote-sh/locomote/internal/lococlient"
)

// envTokenEnvVar names the environment variable holding the bearer
// credential used for every repository. Locomote's credential UI and token storage are out of
// scope for this client (spec: "any user-authentication UI" and
// "credential storage" are external collaborators) — the CLI expects
// a token to already be available in the process environment, obtained
// however the operator authenticated out-of-band against
// Settings.URLForAuthentication.
const envTokenEnvVar = "LOCOMOTE_TOKEN"

// envTokenSource reads a bearer token from the environment on every
// call, so a long-running `serve` process picks up a rotated token
// without restarting.
type envTokenSource struct {
	envVar string
}

var _ lococlient.TokenSource = envTokenSource{}

func (e envTokenSource) Token(ctx context.Context) (string, error) {
	tok := os.Getenv(e.envVar)
	if tok == "" {
		return "", fmt.Errorf("%s is not set; authenticate and export a bearer token", e.envVar)
	}

	return tok, nil
}

// tokenSourceFor returns nil when no token is configured, so
// lococlient.Client sends unauthenticated requests rather than failing
// every call outright — some Locomote repositories are served without
// authentication.
func tokenSourceFor() lococlient.TokenSource {
	if os.Getenv(envTokenEnvVar) == "" {
		return nil
	}

	return envTokenSource{envVar: envTokenEnvVar}
}
