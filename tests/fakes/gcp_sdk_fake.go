package fakes

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FakeGCPSecretManagerClient is an in-memory stand-in for the Secret Manager client.
type FakeGCPSecretManagerClient struct {
	mu sync.Mutex

	// Secrets maps secret IDs to their data.
	Secrets map[string]*GCPSecretData
	// Errors maps secret IDs to errors returned by every call.
	Errors map[string]error

	// Calls counts invocations per operation name.
	Calls map[string]int
	// LastUpdateMask holds the field mask paths of the latest UpdateSecret.
	LastUpdateMask []string
}

// GCPSecretData holds a fake secret with its versions.
type GCPSecretData struct {
	Versions    [][]byte
	Labels      map[string]string
	Annotations map[string]string
}

// NewFakeGCPSecretManagerClient creates an empty fake client.
func NewFakeGCPSecretManagerClient() *FakeGCPSecretManagerClient {
	return &FakeGCPSecretManagerClient{
		Secrets: make(map[string]*GCPSecretData),
		Errors:  make(map[string]error),
		Calls:   make(map[string]int),
	}
}

// AddSecretString adds a secret with one version holding value.
func (f *FakeGCPSecretManagerClient) AddSecretString(id, value string) {
	f.AddSecret(id, &GCPSecretData{Versions: [][]byte{[]byte(value)}})
}

// AddSecret adds a secret.
func (f *FakeGCPSecretManagerClient) AddSecret(id string, data *GCPSecretData) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Secrets[id] = data
}

// AddError configures the fake to fail every call for id.
func (f *FakeGCPSecretManagerClient) AddError(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Errors[id] = err
}

// Secret returns the stored data for id.
func (f *FakeGCPSecretManagerClient) Secret(id string) (*GCPSecretData, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Secrets[id]
	return data, ok
}

// CallCount returns the number of calls made to op.
func (f *FakeGCPSecretManagerClient) CallCount(op string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Calls[op]
}

// secretID extracts the secret ID from projects/P/secrets/ID[/versions/V].
func secretID(resource string) string {
	parts := strings.Split(resource, "/")
	if len(parts) >= 4 && parts[2] == "secrets" {
		return parts[3]
	}
	return ""
}

func (f *FakeGCPSecretManagerClient) lookup(op, resource string) (*GCPSecretData, error) {
	f.Calls[op]++
	id := secretID(resource)
	if err, exists := f.Errors[id]; exists {
		return nil, err
	}
	data, exists := f.Secrets[id]
	if !exists {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] not found", resource)
	}
	return data, nil
}

// AccessSecretVersion implements the Secret Manager AccessSecretVersion call.
func (f *FakeGCPSecretManagerClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("AccessSecretVersion", req.GetName())
	if err != nil {
		return nil, err
	}
	if len(data.Versions) == 0 {
		return nil, status.Errorf(codes.NotFound, "Secret [%s] has no versions", req.GetName())
	}

	n := len(data.Versions)
	base := strings.TrimSuffix(req.GetName(), "/versions/latest")
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    fmt.Sprintf("%s/versions/%d", base, n),
		Payload: &secretmanagerpb.SecretPayload{Data: data.Versions[n-1]},
	}, nil
}

// GetSecret implements the Secret Manager GetSecret call.
func (f *FakeGCPSecretManagerClient) GetSecret(_ context.Context, req *secretmanagerpb.GetSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("GetSecret", req.GetName())
	if err != nil {
		return nil, err
	}
	return &secretmanagerpb.Secret{
		Name:        req.GetName(),
		Labels:      maps.Clone(data.Labels),
		Annotations: maps.Clone(data.Annotations),
	}, nil
}

// CreateSecret implements the Secret Manager CreateSecret call.
func (f *FakeGCPSecretManagerClient) CreateSecret(_ context.Context, req *secretmanagerpb.CreateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Calls["CreateSecret"]++
	id := req.GetSecretId()
	if err, exists := f.Errors[id]; exists {
		return nil, err
	}
	if _, exists := f.Secrets[id]; exists {
		return nil, status.Errorf(codes.AlreadyExists, "Secret [%s] already exists", id)
	}
	if req.GetSecret().GetReplication() == nil {
		return nil, status.Error(codes.InvalidArgument, "replication is required")
	}

	f.Secrets[id] = &GCPSecretData{
		Labels:      maps.Clone(req.GetSecret().GetLabels()),
		Annotations: maps.Clone(req.GetSecret().GetAnnotations()),
	}
	return &secretmanagerpb.Secret{Name: req.GetParent() + "/secrets/" + id}, nil
}

// AddSecretVersion implements the Secret Manager AddSecretVersion call.
func (f *FakeGCPSecretManagerClient) AddSecretVersion(_ context.Context, req *secretmanagerpb.AddSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.SecretVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("AddSecretVersion", req.GetParent())
	if err != nil {
		return nil, err
	}
	data.Versions = append(data.Versions, req.GetPayload().GetData())
	return &secretmanagerpb.SecretVersion{
		Name:  fmt.Sprintf("%s/versions/%d", req.GetParent(), len(data.Versions)),
		State: secretmanagerpb.SecretVersion_ENABLED,
	}, nil
}

// UpdateSecret implements the Secret Manager UpdateSecret call for the
// labels and annotations paths.
func (f *FakeGCPSecretManagerClient) UpdateSecret(_ context.Context, req *secretmanagerpb.UpdateSecretRequest, _ ...gax.CallOption) (*secretmanagerpb.Secret, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := f.lookup("UpdateSecret", req.GetSecret().GetName())
	if err != nil {
		return nil, err
	}
	f.LastUpdateMask = req.GetUpdateMask().GetPaths()
	for _, path := range f.LastUpdateMask {
		switch path {
		case "labels":
			data.Labels = maps.Clone(req.GetSecret().GetLabels())
		case "annotations":
			data.Annotations = maps.Clone(req.GetSecret().GetAnnotations())
		default:
			return nil, status.Errorf(codes.InvalidArgument, "unsupported update path %q", path)
		}
	}
	return req.GetSecret(), nil
}

// GCPStatusError creates a gRPC status error.
func GCPStatusError(code codes.Code, msg string) error {
	return status.Error(code, msg)
}
