// Package secret retrieves credentials (OAuth client secret, session signing
// key, origin secret) from SSM Parameter Store or the environment.
package secret

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
)

// ParamPrefix is the SSM path all scandrive parameters live under.
const ParamPrefix = "/scandrive/"

// Short names of the secrets scandrive reads, relative to ParamPrefix.
const (
	GoogleClientSecret = "google-client-secret"
	JWTSecret          = "jwt-secret"
	APIGatewaySecret   = "api-gateway-secret"
)

// DevJWTSecret signs sessions when no jwt-secret is configured.
const DevJWTSecret = "default-dev-secret"

// ErrNotFound is returned when a secret has no value in the backing store.
var ErrNotFound = errors.New("secret not found")

// Param returns the full parameter name for a short secret name such as "jwt-secret".
func Param(name string) string {
	return ParamPrefix + name
}

// SSMClient is the subset of *ssm.Client methods used by SSMResolver.
type SSMClient interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// Resolver retrieves secret values by full parameter name.
type Resolver interface {
	GetSecret(ctx context.Context, name string) (string, error)
}

// SSMResolver reads SecureString parameters, decrypted, from AWS Systems Manager.
type SSMResolver struct {
	client SSMClient
}

func NewSSMResolver(client SSMClient) Resolver {
	return &SSMResolver{client: client}
}

func (r *SSMResolver) GetSecret(ctx context.Context, name string) (string, error) {
	out, err := r.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	var missing *ssmtypes.ParameterNotFound
	switch {
	case errors.As(err, &missing):
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	case err != nil:
		return "", fmt.Errorf("ssm get parameter %q: %w", name, err)
	}
	if out.Parameter == nil || aws.ToString(out.Parameter.Value) == "" {
		return "", fmt.Errorf("%w: %s is empty", ErrNotFound, name)
	}
	return *out.Parameter.Value, nil
}

// EnvResolver reads secrets in DEV_MODE from environment variables named after
// the last path segment: "/scandrive/google-client-secret" -> GOOGLE_CLIENT_SECRET.
type EnvResolver struct{}

func NewEnvResolver() Resolver {
	return &EnvResolver{}
}

func (r *EnvResolver) GetSecret(_ context.Context, name string) (string, error) {
	envName := EnvVar(name)
	if val := os.Getenv(envName); val != "" {
		return val, nil
	}
	return "", fmt.Errorf("%w: %s (env %s)", ErrNotFound, name, envName)
}

// EnvVar maps a parameter name to the environment variable EnvResolver reads.
func EnvVar(name string) string {
	last := name[strings.LastIndex(name, "/")+1:]
	return strings.ToUpper(strings.ReplaceAll(last, "-", "_"))
}

// Resolve looks up each name in want and returns the values that resolved.
// Names that fail are reported in the returned map of errors rather than aborting,
// so callers can decide which secrets are optional.
func Resolve(ctx context.Context, r Resolver, want ...string) (map[string]string, map[string]error) {
	values := make(map[string]string, len(want))
	var errs map[string]error
	for _, name := range want {
		v, err := r.GetSecret(ctx, name)
		if err != nil {
			if errs == nil {
				errs = make(map[string]error)
			}
			errs[name] = err
			continue
		}
		values[name] = v
	}
	return values, errs
}

// Secrets are the credentials the API and worker need at startup.
type Secrets struct {
	GoogleClientSecret string
	JWTSecret          string
	APIGatewaySecret   string
}

// Load resolves every scandrive secret. Missing secrets stay empty, except the
// JWT secret which falls back to DevJWTSecret; the per-name errors are returned
// for logging.
func Load(ctx context.Context, r Resolver) (Secrets, map[string]error) {
	values, errs := Resolve(ctx, r, Param(GoogleClientSecret), Param(JWTSecret), Param(APIGatewaySecret))
	s := Secrets{
		GoogleClientSecret: values[Param(GoogleClientSecret)],
		JWTSecret:          values[Param(JWTSecret)],
		APIGatewaySecret:   values[Param(APIGatewaySecret)],
	}
	if s.JWTSecret == "" {
		s.JWTSecret = DevJWTSecret
	}
	return s, errs
}
