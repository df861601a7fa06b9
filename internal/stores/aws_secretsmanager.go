package stores

import (
	"context"
	"errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"

	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// SecretsManagerClientAPI is the subset of the Secrets Manager client used by the store.
type SecretsManagerClientAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
	DescribeSecret(ctx context.Context, params *secretsmanager.DescribeSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error)
	PutSecretValue(ctx context.Context, params *secretsmanager.PutSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error)
	CreateSecret(ctx context.Context, params *secretsmanager.CreateSecretInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error)
	TagResource(ctx context.Context, params *secretsmanager.TagResourceInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error)
	ListSecrets(ctx context.Context, params *secretsmanager.ListSecretsInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error)
}

// AWSSecretsManager stores secrets in AWS Secrets Manager. The content type
// is kept in the reserved "content-type" tag.
type AWSSecretsManager struct {
	name   string
	client SecretsManagerClientAPI
	logger *logging.Logger
}

// SecretsManagerOption is a functional option for configuring the store.
type SecretsManagerOption func(*AWSSecretsManager)

// WithSecretsManagerClient sets a custom Secrets Manager client (for testing).
func WithSecretsManagerClient(client SecretsManagerClientAPI) SecretsManagerOption {
	return func(s *AWSSecretsManager) {
		s.client = client
	}
}

// NewAWSSecretsManager creates a Secrets Manager store.
func NewAWSSecretsManager(name string, cfg AWSConfig, deps Deps, opts ...SecretsManagerOption) (*AWSSecretsManager, error) {
	s := &AWSSecretsManager{name: name, logger: deps.logger()}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsCfg, err := loadAWSConfig(context.Background(), cfg, deps.timeout())
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*secretsmanager.Options)
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			clientOpts = append(clientOpts, func(o *secretsmanager.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = secretsmanager.NewFromConfig(awsCfg, clientOpts...)
	}

	return s, nil
}

// Name returns the store name.
func (s *AWSSecretsManager) Name() string { return s.name }

// Fetch reads the current version of a secret and its tags.
func (s *AWSSecretsManager) Fetch(ctx context.Context, name string) (secretstore.Record, error) {
	s.logger.Debug("Fetching secret %s from Secrets Manager", name)

	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	value := aws.ToString(out.SecretString)
	if out.SecretString == nil && out.SecretBinary != nil {
		value = string(out.SecretBinary)
	}

	desc, err := s.client.DescribeSecret(ctx, &secretsmanager.DescribeSecretInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	tags := make(map[string]string, len(desc.Tags))
	for _, tag := range desc.Tags {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	opts := []secretstore.RecordOption{secretstore.WithVersion(aws.ToString(out.VersionId))}
	return secretstore.NewRecord(name, value, append(opts, splitContentTypeTag(tags)...)...), nil
}

// Upsert stores rec as the new current version, creating the secret when
// it does not exist yet.
func (s *AWSSecretsManager) Upsert(ctx context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	s.logger.Debug("Writing secret %s to Secrets Manager", name)

	tags := joinContentTypeTag(rec)

	var version string
	out, err := s.client.PutSecretValue(ctx, &secretsmanager.PutSecretValueInput{
		SecretId:     aws.String(name),
		SecretString: aws.String(rec.Value()),
	})
	switch {
	case err == nil:
		version = aws.ToString(out.VersionId)
		if len(tags) > 0 {
			if _, err := s.client.TagResource(ctx, &secretsmanager.TagResourceInput{
				SecretId: aws.String(name),
				Tags:     toSecretsManagerTags(tags),
			}); err != nil {
				return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
			}
		}

	case isSecretsManagerNotFound(err):
		created, err := s.client.CreateSecret(ctx, &secretsmanager.CreateSecretInput{
			Name:         aws.String(name),
			SecretString: aws.String(rec.Value()),
			Tags:         toSecretsManagerTags(tags),
		})
		if err != nil {
			return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
		}
		version = aws.ToString(created.VersionId)

	default:
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}

	return secretstore.NewRecord(name, rec.Value(), append(recordMetadata(rec), secretstore.WithVersion(version))...), nil
}

// Validate checks connectivity and permissions with a minimal list call.
func (s *AWSSecretsManager) Validate(ctx context.Context) error {
	_, err := s.client.ListSecrets(ctx, &secretsmanager.ListSecretsInput{MaxResults: aws.Int32(1)})
	if err != nil {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	return nil
}

func (s *AWSSecretsManager) translateError(op, name string, err error) error {
	return translateAWSError(s.name, op, name, err, isSecretsManagerNotFound)
}

func isSecretsManagerNotFound(err error) bool {
	var notFound *smtypes.ResourceNotFoundException
	return errors.As(err, &notFound)
}

func toSecretsManagerTags(tags map[string]string) []smtypes.Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]smtypes.Tag, 0, len(tags))
	for _, k := range sortedKeys(tags) {
		out = append(out, smtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
	}
	return out
}

// NewAWSSecretsManagerFactory creates a Secrets Manager store from config.
func NewAWSSecretsManagerFactory(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	parsed, err := parseAWSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewAWSSecretsManager(name, parsed, deps)
}
