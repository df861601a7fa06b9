package fakes

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	smtypes "github.com/aws/aws-sdk-go-v2/service/secretsmanager/types"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/aws/smithy-go"
)

// FakeSecretsManagerClient is an in-memory stand-in for the Secrets Manager client.
type FakeSecretsManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret names to their data.
	Secrets map[string]*SecretData
	// Errors maps secret names to errors returned by every call.
	Errors map[string]error
	// ListSecretsErr is returned by ListSecrets when set.
	ListSecretsErr error

	// Calls counts invocations per operation name.
	Calls map[string]int
}

// SecretData holds the data for a fake secret.
type SecretData struct {
	SecretString *string
	SecretBinary []byte
	VersionID    string
	Tags         map[string]string
}

// NewFakeSecretsManagerClient creates an empty fake client.
func NewFakeSecretsManagerClient() *FakeSecretsManagerClient {
	return &FakeSecretsManagerClient{
		Secrets: make(map[string]*SecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecret adds a secret. A missing version ID is filled in.
func (f *FakeSecretsManagerClient) AddSecret(name string, data *SecretData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data.VersionID == "" {
		data.VersionID = "version-1"
	}
	f.Secrets[name] = data
}

// AddSecretString adds a string secret.
func (f *FakeSecretsManagerClient) AddSecretString(name, value string) {
	f.AddSecret(name, &SecretData{SecretString: aws.String(value)})
}

// AddError configures the fake to fail every call for name.
func (f *FakeSecretsManagerClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Secret returns the stored data for name.
func (f *FakeSecretsManagerClient) Secret(name string) (*SecretData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Secrets[name]
	return data, ok
}

// CallCount returns the number of calls made to op.
func (f *FakeSecretsManagerClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// lookup records the call and returns the configured error or the secret.
func (f *FakeSecretsManagerClient) lookup(op string, id *string) (*SecretData, error) {
	f.Calls[op]++
	name := aws.ToString(id)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	data, exists := f.Secrets[name]
	if !exists {
		return nil, &smtypes.ResourceNotFoundException{
			Message: aws.String(fmt.Sprintf("Secrets Manager can't find the specified secret: %s", name)),
		}
	}
	return data, nil
}

// GetSecretValue implements the Secrets Manager GetSecretValue call.
func (f *FakeSecretsManagerClient) GetSecretValue(_ context.Context, params *secretsmanager.GetSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("GetSecretValue", params.SecretId)
	if err != nil {
		return nil, err
	}
	return &secretsmanager.GetSecretValueOutput{
		Name:         params.SecretId,
		SecretString: data.SecretString,
		SecretBinary: data.SecretBinary,
		VersionId:    aws.String(data.VersionID),
	}, nil
}

// DescribeSecret implements the Secrets Manager DescribeSecret call.
func (f *FakeSecretsManagerClient) DescribeSecret(_ context.Context, params *secretsmanager.DescribeSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.DescribeSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("DescribeSecret", params.SecretId)
	if err != nil {
		return nil, err
	}

	out := &secretsmanager.DescribeSecretOutput{Name: params.SecretId}
	keys := make([]string, 0, len(data.Tags))
	for k := range data.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		out.Tags = append(out.Tags, smtypes.Tag{Key: aws.String(k), Value: aws.String(data.Tags[k])})
	}
	return out, nil
}

// PutSecretValue implements the Secrets Manager PutSecretValue call.
func (f *FakeSecretsManagerClient) PutSecretValue(_ context.Context, params *secretsmanager.PutSecretValueInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.PutSecretValueOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("PutSecretValue", params.SecretId)
	if err != nil {
		return nil, err
	}
	data.SecretString = params.SecretString
	data.SecretBinary = params.SecretBinary
	data.VersionID = nextVersion(data.VersionID)
	return &secretsmanager.PutSecretValueOutput{
		Name:      params.SecretId,
		VersionId: aws.String(data.VersionID),
	}, nil
}

// CreateSecret implements the Secrets Manager CreateSecret call.
func (f *FakeSecretsManagerClient) CreateSecret(_ context.Context, params *secretsmanager.CreateSecretInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.CreateSecretOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["CreateSecret"]++
	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}
	if _, exists := f.Secrets[name]; exists {
		return nil, &smtypes.ResourceExistsException{Message: aws.String("secret already exists")}
	}

	data := &SecretData{
		SecretString: params.SecretString,
		SecretBinary: params.SecretBinary,
		VersionID:    "version-1",
		Tags:         map[string]string{},
	}
	for _, tag := range params.Tags {
		data.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	f.Secrets[name] = data

	return &secretsmanager.CreateSecretOutput{
		Name:      params.Name,
		VersionId: aws.String(data.VersionID),
	}, nil
}

// TagResource implements the Secrets Manager TagResource call. Tags merge.
func (f *FakeSecretsManagerClient) TagResource(_ context.Context, params *secretsmanager.TagResourceInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.TagResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("TagResource", params.SecretId)
	if err != nil {
		return nil, err
	}
	if data.Tags == nil {
		data.Tags = map[string]string{}
	}
	for _, tag := range params.Tags {
		data.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return &secretsmanager.TagResourceOutput{}, nil
}

// ListSecrets implements the Secrets Manager ListSecrets call.
func (f *FakeSecretsManagerClient) ListSecrets(_ context.Context, _ *secretsmanager.ListSecretsInput, _ ...func(*secretsmanager.Options)) (*secretsmanager.ListSecretsOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["ListSecrets"]++
	if f.ListSecretsErr != nil {
		return nil, f.ListSecretsErr
	}
	out := &secretsmanager.ListSecretsOutput{}
	for name := range f.Secrets {
		out.SecretList = append(out.SecretList, smtypes.SecretListEntry{Name: aws.String(name)})
	}
	return out, nil
}

// FakeSSMClient is an in-memory stand-in for the SSM client.
type FakeSSMClient struct {
	mu sync.Mutex

	// Parameters maps parameter names to their data.
	Parameters map[string]*ParameterData
	// Errors maps parameter names to errors returned by every call.
	Errors map[string]error
	// DescribeErr is returned by DescribeParameters when set.
	DescribeErr error

	// Calls counts invocations per operation name.
	Calls map[string]int
}

// ParameterData holds the data for a fake parameter.
type ParameterData struct {
	Value   string
	Type    ssmtypes.ParameterType
	KeyID   string
	Version int64
	Tags    map[string]string
}

// NewFakeSSMClient creates an empty fake client.
func NewFakeSSMClient() *FakeSSMClient {
	return &FakeSSMClient{
		Parameters: make(map[string]*ParameterData),
		Errors:     make(map[string]error),
		Calls:      make(map[string]int),
	}
}

// AddSecureStringParameter adds a SecureString parameter.
func (f *FakeSSMClient) AddSecureStringParameter(name, value string) {
	f.AddParameter(name, &ParameterData{Value: value, Type: ssmtypes.ParameterTypeSecureString})
}

// AddParameter adds a parameter. A zero version becomes 1.
func (f *FakeSSMClient) AddParameter(name string, data *ParameterData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if data.Version == 0 {
		data.Version = 1
	}
	f.Parameters[name] = data
}

// AddError configures the fake to fail every call for name.
func (f *FakeSSMClient) AddError(name string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[name] = err
}

// Parameter returns the stored data for name.
func (f *FakeSSMClient) Parameter(name string) (*ParameterData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Parameters[name]
	return data, ok
}

// CallCount returns the number of calls made to op.
func (f *FakeSSMClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

func (f *FakeSSMClient) lookup(op string, name *string) (*ParameterData, error) {
	f.Calls[op]++
	key := aws.ToString(name)
	if err, exists := f.Errors[key]; exists {
		return nil, err
	}
	data, exists := f.Parameters[key]
	if !exists {
		return nil, &ssmtypes.ParameterNotFound{Message: aws.String(key)}
	}
	return data, nil
}

// GetParameter implements the SSM GetParameter call.
func (f *FakeSSMClient) GetParameter(_ context.Context, params *ssm.GetParameterInput, _ ...func(*ssm.Options)) (*ssm.GetParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("GetParameter", params.Name)
	if err != nil {
		return nil, err
	}
	value := data.Value
	if data.Type == ssmtypes.ParameterTypeSecureString && !aws.ToBool(params.WithDecryption) {
		value = "encrypted:" + value
	}
	return &ssm.GetParameterOutput{
		Parameter: &ssmtypes.Parameter{
			Name:    params.Name,
			Value:   aws.String(value),
			Type:    data.Type,
			Version: data.Version,
		},
	}, nil
}

// PutParameter implements the SSM PutParameter call.
func (f *FakeSSMClient) PutParameter(_ context.Context, params *ssm.PutParameterInput, _ ...func(*ssm.Options)) (*ssm.PutParameterOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["PutParameter"]++
	name := aws.ToString(params.Name)
	if err, exists := f.Errors[name]; exists {
		return nil, err
	}

	data, exists := f.Parameters[name]
	switch {
	case exists && !aws.ToBool(params.Overwrite):
		return nil, &ssmtypes.ParameterAlreadyExists{Message: aws.String(name)}
	case exists && len(params.Tags) > 0:
		return nil, &smithy.GenericAPIError{Code: "ValidationException", Message: "tags and overwrite can't be used together"}
	case !exists:
		data = &ParameterData{Tags: map[string]string{}}
		f.Parameters[name] = data
	}

	data.Value = aws.ToString(params.Value)
	data.Type = params.Type
	data.KeyID = aws.ToString(params.KeyId)
	data.Version++
	return &ssm.PutParameterOutput{Version: data.Version, Tier: ssmtypes.ParameterTierStandard}, nil
}

// ListTagsForResource implements the SSM ListTagsForResource call.
func (f *FakeSSMClient) ListTagsForResource(_ context.Context, params *ssm.ListTagsForResourceInput, _ ...func(*ssm.Options)) (*ssm.ListTagsForResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("ListTagsForResource", params.ResourceId)
	if err != nil {
		return nil, err
	}
	out := &ssm.ListTagsForResourceOutput{}
	for k, v := range data.Tags {
		out.TagList = append(out.TagList, ssmtypes.Tag{Key: aws.String(k), Value: aws.String(v)})
	}
	return out, nil
}

// AddTagsToResource implements the SSM AddTagsToResource call. Tags merge.
func (f *FakeSSMClient) AddTagsToResource(_ context.Context, params *ssm.AddTagsToResourceInput, _ ...func(*ssm.Options)) (*ssm.AddTagsToResourceOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("AddTagsToResource", params.ResourceId)
	if err != nil {
		return nil, err
	}
	if data.Tags == nil {
		data.Tags = map[string]string{}
	}
	for _, tag := range params.Tags {
		data.Tags[aws.ToString(tag.Key)] = aws.ToString(tag.Value)
	}
	return &ssm.AddTagsToResourceOutput{}, nil
}

// DescribeParameters implements the SSM DescribeParameters call.
func (f *FakeSSMClient) DescribeParameters(_ context.Context, _ *ssm.DescribeParametersInput, _ ...func(*ssm.Options)) (*ssm.DescribeParametersOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["DescribeParameters"]++
	if f.DescribeErr != nil {
		return nil, f.DescribeErr
	}
	out := &ssm.DescribeParametersOutput{}
	for name := range f.Parameters {
		out.Parameters = append(out.Parameters, ssmtypes.ParameterMetadata{Name: aws.String(name)})
	}
	return out, nil
}

// AWSAPIError creates a generic AWS API error with the given code.
func AWSAPIError(code, message string) error {
	return &smithy.GenericAPIError{Code: code, Message: message}
}

func nextVersion(prev string) string {
	var n int
	_, _ = fmt.Sscanf(strings.TrimPrefix(prev, "version-"), "%d", &n)
	return fmt.Sprintf("version-%d", n+1)
}
