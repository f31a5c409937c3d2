// Package secrets resolves runtime secrets. The session signing key
// comes from SSM Parameter Store in deployed environments and from
// configuration directly in development.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/RuslanFatikhov/Collections/internal/xerrors"
)

// Source yields named secret values.
type Source interface {
	Get(ctx context.Context, name string) (string, error)
}

// SSMSource reads decrypted parameters from SSM Parameter Store.
type SSMSource struct {
	client *ssm.Client
}

// NewSSMSource builds a source on the default AWS credential chain
// unless awsCfg overrides it.
func NewSSMSource(ctx context.Context, awsCfg *aws.Config) (*SSMSource, error) {
	var cfg aws.Config
	var err error
	if awsCfg != nil {
		cfg = *awsCfg
	} else {
		cfg, err = config.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, xerrors.Wrap(err, "load AWS config")
		}
	}
	return &SSMSource{client: ssm.NewFromConfig(cfg)}, nil
}

func (s *SSMSource) Get(ctx context.Context, name string) (string, error) {
	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(name),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return "", xerrors.Wrapf(err, "get SSM parameter %s", name)
	}
	if out.Parameter == nil || out.Parameter.Value == nil {
		return "", xerrors.Newf("SSM parameter %s has no value", name)
	}
	v := strings.TrimSpace(*out.Parameter.Value)
	if v == "" {
		return "", xerrors.Newf("SSM parameter %s is empty", name)
	}
	return v, nil
}

// Static serves secrets from a fixed map, for development and tests.
type Static map[string]string

func (s Static) Get(_ context.Context, name string) (string, error) {
	v, ok := s[name]
	if !ok || v == "" {
		return "", xerrors.Newf("secret %s not configured", name)
	}
	return v, nil
}
