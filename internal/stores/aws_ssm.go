package stores

import (
	"context"
	"errors"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"

	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// SSMClientAPI is the subset of the SSM client used by the store.
type SSMClientAPI interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
	PutParameter(ctx context.Context, params *ssm.PutParameterInput, optFns ...func(*ssm.Options)) (*ssm.PutParameterOutput, error)
	ListTagsForResource(ctx context.Context, params *ssm.ListTagsForResourceInput, optFns ...func(*ssm.Options)) (*ssm.ListTagsForResourceOutput, error)
	AddTagsToResource(ctx context.Context, params *ssm.AddTagsToResourceInput, optFns ...func(*ssm.Options)) (*ssm.AddTagsToResourceOutput, error)
	DescribeParameters(ctx context.Context, params *ssm.DescribeParametersInput, optFns ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error)
}

// AWSSSM stores secrets as SecureString parameters in Parameter Store.
type AWSSSM struct {
	name     string
	client   SSMClientAPI
	logger   *logging.Logger
	prefix   string
	kmsKeyID string
}

// SSMOption is a functional option for configuring the SSM store.
type SSMOption func(*AWSSSM)

// WithSSMClient sets a custom SSM client (for testing).
func WithSSMClient(client SSMClientAPI) SSMOption {
	return func(s *AWSSSM) {
		s.client = client
	}
}

// WithParameterPrefix prepends prefix to every parameter name.
func WithParameterPrefix(prefix string) SSMOption {
	return func(s *AWSSSM) {
		s.prefix = prefix
	}
}

// WithKMSKeyID encrypts written parameters with the given KMS key.
func WithKMSKeyID(keyID string) SSMOption {
	return func(s *AWSSSM) {
		s.kmsKeyID = keyID
	}
}

// NewAWSSSM creates a Parameter Store store.
func NewAWSSSM(name string, cfg AWSConfig, deps Deps, opts ...SSMOption) (*AWSSSM, error) {
	s := &AWSSSM{name: name, logger: deps.logger()}

	for _, opt := range opts {
		opt(s)
	}

	if s.client == nil {
		awsCfg, err := loadAWSConfig(context.Background(), cfg, deps.timeout())
		if err != nil {
			return nil, err
		}
		var clientOpts []func(*ssm.Options)
		if cfg.Endpoint != "" {
			endpoint := cfg.Endpoint
			clientOpts = append(clientOpts, func(o *ssm.Options) {
				o.BaseEndpoint = &endpoint
			})
		}
		s.client = ssm.NewFromConfig(awsCfg, clientOpts...)
	}

	return s, nil
}

// Name returns the store name.
func (s *AWSSSM) Name() string { return s.name }

func (s *AWSSSM) parameterName(name string) string {
	return s.prefix + name
}

// Fetch reads a decrypted parameter and its tags.
func (s *AWSSSM) Fetch(ctx context.Context, name string) (secretstore.Record, error) {
	param := s.parameterName(name)
	s.logger.Debug("Fetching parameter %s from SSM", param)

	out, err := s.client.GetParameter(ctx, &ssm.GetParameterInput{
		Name:           aws.String(param),
		WithDecryption: aws.Bool(true),
	})
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}
	if out.Parameter == nil {
		return secretstore.Record{}, &secretstore.NotFoundError{Store: s.name, Name: name}
	}

	tagsOut, err := s.client.ListTagsForResource(ctx, &ssm.ListTagsForResourceInput{
		ResourceType: ssmtypes.ResourceTypeForTaggingParameter,
		ResourceId:   aws.String(param),
	})
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	tags := make(map[string]string, len(tagsOut.TagList))
	for _, tag := range tagsOut.TagList {
		tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}

	opts := []secretstore.RecordOption{
		secretstore.WithVersion(strconv.FormatInt(out.Parameter.Version, 10)),
	}
	return secretstore.NewRecord(name, aws.ToString(out.Parameter.Value), append(opts, splitContentTypeTag(tags)...)...), nil
}

// Upsert overwrites the parameter with rec and adds its tags.
func (s *AWSSSM) Upsert(ctx context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	param := s.parameterName(name)
	s.logger.Debug("Writing parameter %s to SSM", param)

	input := &ssm.PutParameterInput{
		Name:      aws.String(param),
		Value:     aws.String(rec.Value()),
		Type:      ssmtypes.ParameterTypeSecureString,
		Overwrite: aws.Bool(true),
	}
	if s.kmsKeyID != "" {
		input.KeyId = aws.String(s.kmsKeyID)
	}

	out, err := s.client.PutParameter(ctx, input)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}

	// PutParameter rejects tags together with Overwrite.
	if tags := joinContentTypeTag(rec); len(tags) > 0 {
		ssmTags := make([]ssmtypes.Tag, 0, len(tags))
		for _, k := range sortedKeys(tags) {
			ssmTags = append(ssmTags, ssmtypes.Tag{Key: aws.String(k), Value: aws.String(tags[k])})
		}
		if _, err := s.client.AddTagsToResource(ctx, &ssm.AddTagsToResourceInput{
			ResourceType: ssmtypes.ResourceTypeForTaggingParameter,
			ResourceId:   aws.String(param),
			Tags:         ssmTags,
		}); err != nil {
			return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
		}
	}

	version := secretstore.WithVersion(strconv.FormatInt(out.Version, 10))
	return secretstore.NewRecord(name, rec.Value(), append(recordMetadata(rec), version)...), nil
}

// Validate checks connectivity and permissions with a minimal describe call.
func (s *AWSSSM) Validate(ctx context.Context) error {
	_, err := s.client.DescribeParameters(ctx, &ssm.DescribeParametersInput{MaxResults: aws.Int32(1)})
	if err != nil {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	return nil
}

func (s *AWSSSM) translateError(op, name string, err error) error {
	return translateAWSError(s.name, op, name, err, isParameterNotFound)
}

func isParameterNotFound(err error) bool {
	var notFound *ssmtypes.ParameterNotFound
	return errors.As(err, &notFound)
}

// NewAWSSSMFactory creates a Parameter Store store from config.
func NewAWSSSMFactory(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	parsed, err := parseAWSConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewAWSSSM(name, parsed, deps,
		WithParameterPrefix(stringField(cfg, "parameter_prefix")),
		WithKMSKeyID(stringField(cfg, "kms_key_id")),
	)
}
