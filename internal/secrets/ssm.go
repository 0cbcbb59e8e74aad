// Package secrets resolves runtime secrets (session key, CMS API token) that
// are kept out of flags and environment in deployed environments.
package secrets

import (
	"context"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/keithlinneman/storefront/internal/log"
	"github.com/keithlinneman/storefront/internal/xerrors"
)

// ParameterGetter is the part of *ssm.Client the resolver needs.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

type Options struct {
	Logger log.Logger

	// Client overrides the SSM client built from the default AWS config.
	Client ParameterGetter

	// AWS config (uses default if nil); ignored when Client is set
	AWSConfig *aws.Config
}

// SSM reads SecureString parameters from AWS Systems Manager.
type SSM struct {
	client ParameterGetter
	logger log.Logger
}

func NewSSM(ctx context.Context, opts Options) (*SSM, error) {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	client := opts.Client
	if client == nil {
		var awsCfg aws.Config
		if opts.AWSConfig != nil {
			awsCfg = *opts.AWSConfig
		} else {
			var err error
			awsCfg, err = config.LoadDefaultConfig(ctx)
			if err != nil {
				return nil, xerrors.Wrap(err, "load AWS config")
			}
		}
		client = ssm.NewFromConfig(awsCfg)
	}
	return &SSM{client: client, logger: opts.Logger}, nil
}

// Get returns the decrypted value of the named parameter, whitespace trimmed.
func (s *SSM) Get(ctx context.Context, name string) (string, error) {
	if name == "" {
		return "", xerrors.New("ssm parameter name is required")
	}
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
	s.logger.Debug(ctx, "resolved secret from ssm", "param", name, "version", out.Parameter.Version)
	return v, nil
}

// Getter is satisfied by *SSM.
type Getter interface {
	Get(ctx context.Context, name string) (string, error)
}

// Resolve returns the value of param via g when param is set, else fallback.
// It never consults g for an empty param, so local setups need no AWS access.
func Resolve(ctx context.Context, g Getter, param, fallback string) (string, error) {
	if param == "" {
		return fallback, nil
	}
	if g == nil {
		return "", xerrors.Newf("ssm parameter %s configured but no ssm client available", param)
	}
	return g.Get(ctx, param)
}
