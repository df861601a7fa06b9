package stores

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/credentials/stscreds"
	"github.com/aws/aws-sdk-go-v2/service/sts"
	"github.com/aws/smithy-go"

	"github.com/systmms/secretxfer/internal/credential"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// AWSConfig holds settings shared by the AWS stores.
type AWSConfig struct {
	Region          string
	Profile         string
	Endpoint        string // Optional custom endpoint for LocalStack or testing
	AccessKeyID     string
	SecretAccessKey string
	RoleARN         string
	ExternalID      string
}

func parseAWSConfig(cfg map[string]interface{}) (AWSConfig, error) {
	accessKeyID, err := secretField(cfg, "access_key_id")
	if err != nil {
		return AWSConfig{}, err
	}
	secretAccessKey, err := secretField(cfg, "secret_access_key")
	if err != nil {
		return AWSConfig{}, err
	}

	region := stringField(cfg, "region")
	if region == "" {
		region = "us-east-1"
	}

	return AWSConfig{
		Region:          region,
		Profile:         stringField(cfg, "profile"),
		Endpoint:        stringField(cfg, "endpoint"),
		AccessKeyID:     accessKeyID,
		SecretAccessKey: secretAccessKey,
		RoleARN:         stringField(cfg, "role_arn"),
		ExternalID:      stringField(cfg, "external_id"),
	}, nil
}

// loadAWSConfig resolves an aws.Config without contacting AWS. SDK retries
// are disabled.
func loadAWSConfig(ctx context.Context, c AWSConfig, timeout time.Duration) (aws.Config, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(c.Region),
		awsconfig.WithRetryer(func() aws.Retryer { return aws.NopRetryer{} }),
		awsconfig.WithHTTPClient(awshttp.NewBuildableClient().WithTimeout(timeout)),
	}

	if c.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(c.Profile))
	}

	// Use static credentials if provided (for LocalStack/testing)
	if c.AccessKeyID != "" && c.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(c.AccessKeyID, c.SecretAccessKey, ""),
		))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("failed to load AWS config: %w", err)
	}

	if c.RoleARN != "" {
		stsClient := sts.NewFromConfig(cfg)
		provider := stscreds.NewAssumeRoleProvider(stsClient, c.RoleARN, func(o *stscreds.AssumeRoleOptions) {
			o.RoleSessionName = "secretxfer"
			if c.ExternalID != "" {
				o.ExternalID = aws.String(c.ExternalID)
			}
		})
		cfg.Credentials = aws.NewCredentialsCache(provider)
	}

	return cfg, nil
}

// awsErrorStatus maps AWS error codes to HTTP-equivalent statuses. JSON
// protocol services report throttling as 400, so the code wins over the
// transport status.
var awsErrorStatus = map[string]int{
	"ThrottlingException":         http.StatusTooManyRequests,
	"Throttling":                  http.StatusTooManyRequests,
	"TooManyRequestsException":    http.StatusTooManyRequests,
	"RequestLimitExceeded":        http.StatusTooManyRequests,
	"InternalServiceError":        http.StatusInternalServerError,
	"InternalServerError":         http.StatusInternalServerError,
	"InternalFailure":             http.StatusInternalServerError,
	"ServiceUnavailable":          http.StatusServiceUnavailable,
	"AccessDeniedException":       http.StatusForbidden,
	"UnrecognizedClientException": http.StatusUnauthorized,
	"ExpiredTokenException":       http.StatusUnauthorized,
}

// translateAWSError maps AWS SDK errors to secretstore errors. isNotFound
// recognises the service-specific not-found type.
func translateAWSError(store, op, name string, err error, isNotFound func(error) bool) error {
	if op != secretstore.OpValidate && isNotFound(err) {
		return &secretstore.NotFoundError{Store: store, Name: name}
	}

	var credErr *credential.AuthenticationError
	if errors.As(err, &credErr) {
		return credErr
	}

	storeErr := &secretstore.Error{Store: store, Op: op, Name: name, Err: err}

	var respErr *awshttp.ResponseError
	if errors.As(err, &respErr) {
		storeErr.StatusCode = respErr.HTTPStatusCode()
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		storeErr.Code = apiErr.ErrorCode()
		if status, ok := awsErrorStatus[storeErr.Code]; ok {
			storeErr.StatusCode = status
		}
	}

	return storeErr
}
