package stores

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/impersonate"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/fieldmaskpb"

	dserrors "github.com/systmms/secretxfer/internal/errors"
	"github.com/systmms/secretxfer/internal/logging"
	"github.com/systmms/secretxfer/pkg/secretstore"
)

// GCPSecretManagerClientAPI is the subset of the Secret Manager client used by the store.
type GCPSecretManagerClientAPI interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	GetSecret(ctx context.Context, req *secretmanagerpb.GetSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	CreateSecret(ctx context.Context, req *secretmanagerpb.CreateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
	AddSecretVersion(ctx context.Context, req *secretmanagerpb.AddSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.SecretVersion, error)
	UpdateSecret(ctx context.Context, req *secretmanagerpb.UpdateSecretRequest, opts ...gax.CallOption) (*secretmanagerpb.Secret, error)
}

// GCPSecretManagerConfig holds GCP Secret Manager-specific configuration.
type GCPSecretManagerConfig struct {
	ProjectID             string
	ServiceAccountKeyPath string
	ImpersonateAccount    string
	Endpoint              string
}

// GCPSecretManager stores secrets in Google Cloud Secret Manager. Tags map
// to labels and the content type to the "content-type" annotation.
type GCPSecretManager struct {
	name      string
	projectID string
	logger    *logging.Logger

	clientOnce sync.Once
	client     GCPSecretManagerClientAPI
	clientErr  error
	newClient  func(ctx context.Context) (GCPSecretManagerClientAPI, error)
}

// GCPOption is a functional option for configuring the GCP store.
type GCPOption func(*GCPSecretManager)

// WithGCPSecretManagerClient sets a custom Secret Manager client (for testing).
func WithGCPSecretManagerClient(client GCPSecretManagerClientAPI) GCPOption {
	return func(s *GCPSecretManager) {
		s.newClient = func(context.Context) (GCPSecretManagerClientAPI, error) { return client, nil }
	}
}

// noRetry disables gax retries so the executor's budget is the only one.
var noRetry = gax.WithRetry(func() gax.Retryer { return nil })

// ParseGCPSecretManagerConfig reads a gcp.secretmanager config block.
func ParseGCPSecretManagerConfig(cfg map[string]interface{}) (GCPSecretManagerConfig, error) {
	c := GCPSecretManagerConfig{
		ProjectID:             stringField(cfg, "project_id"),
		ServiceAccountKeyPath: stringField(cfg, "service_account_key_path"),
		ImpersonateAccount:    stringField(cfg, "impersonate_service_account"),
		Endpoint:              stringField(cfg, "endpoint"),
	}
	if c.ProjectID == "" {
		c.ProjectID = getGCPProjectID()
	}
	if c.ProjectID == "" {
		return GCPSecretManagerConfig{}, dserrors.ConfigError{
			Field:      "project_id",
			Message:    "project_id is required for GCP Secret Manager",
			Suggestion: "Set project_id in config or GOOGLE_CLOUD_PROJECT environment variable",
		}
	}
	return c, nil
}

// getGCPProjectID attempts to get the GCP project ID from the environment.
func getGCPProjectID() string {
	for _, env := range []string{"GOOGLE_CLOUD_PROJECT", "GCLOUD_PROJECT", "GCP_PROJECT"} {
		if projectID := os.Getenv(env); projectID != "" {
			return projectID
		}
	}
	return ""
}

// NewGCPSecretManager creates a Secret Manager store. The gRPC client and
// its credentials are set up on first use.
func NewGCPSecretManager(name string, cfg GCPSecretManagerConfig, deps Deps, opts ...GCPOption) *GCPSecretManager {
	s := &GCPSecretManager{
		name:      name,
		projectID: cfg.ProjectID,
		logger:    deps.logger(),
		newClient: func(ctx context.Context) (GCPSecretManagerClientAPI, error) {
			return createGCPSecretManagerClient(ctx, cfg)
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// createGCPSecretManagerClient creates a GCP Secret Manager client
func createGCPSecretManagerClient(ctx context.Context, cfg GCPSecretManagerConfig) (*secretmanager.Client, error) {
	var clientOptions []option.ClientOption

	if cfg.ServiceAccountKeyPath != "" {
		keyPath := cfg.ServiceAccountKeyPath
		if strings.HasPrefix(keyPath, "~/") {
			home, err := os.UserHomeDir()
			if err != nil {
				return nil, fmt.Errorf("failed to get home directory: %w", err)
			}
			keyPath = filepath.Join(home, keyPath[2:])
		}
		clientOptions = append(clientOptions, option.WithCredentialsFile(keyPath))
	}

	if cfg.ImpersonateAccount != "" {
		ts, err := impersonate.CredentialsTokenSource(ctx, impersonate.CredentialsConfig{
			TargetPrincipal: cfg.ImpersonateAccount,
			Scopes:          []string{"https://www.googleapis.com/auth/cloud-platform"},
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create impersonated credentials: %w", err)
		}
		clientOptions = append(clientOptions, option.WithTokenSource(ts))
	}

	if cfg.Endpoint != "" {
		clientOptions = append(clientOptions, option.WithEndpoint(cfg.Endpoint))
	}

	return secretmanager.NewClient(ctx, clientOptions...)
}

func (s *GCPSecretManager) getClient(ctx context.Context) (GCPSecretManagerClientAPI, error) {
	s.clientOnce.Do(func() {
		s.client, s.clientErr = s.newClient(ctx)
	})
	return s.client, s.clientErr
}

// Name returns the store name.
func (s *GCPSecretManager) Name() string { return s.name }

func (s *GCPSecretManager) secretPath(name string) string {
	return fmt.Sprintf("projects/%s/secrets/%s", s.projectID, name)
}

// Fetch reads the latest enabled version of a secret with its labels.
func (s *GCPSecretManager) Fetch(ctx context.Context, name string) (secretstore.Record, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}
	s.logger.Debug("Fetching secret %s from GCP project %s", name, s.projectID)

	resp, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: s.secretPath(name) + "/versions/latest",
	}, noRetry)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	secret, err := client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.secretPath(name)}, noRetry)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpFetch, name, err)
	}

	opts := []secretstore.RecordOption{
		secretstore.WithTags(secret.GetLabels()),
		secretstore.WithVersion(lastSegment(resp.GetName())),
	}
	if ct, ok := secret.GetAnnotations()[contentTypeTag]; ok {
		opts = append(opts, secretstore.WithContentType(ct))
	}
	return secretstore.NewRecord(name, string(resp.GetPayload().GetData()), opts...), nil
}

// Upsert adds rec as a new version, creating the secret when needed.
func (s *GCPSecretManager) Upsert(ctx context.Context, name string, rec secretstore.Record) (secretstore.Record, error) {
	client, err := s.getClient(ctx)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}
	s.logger.Debug("Writing secret %s to GCP project %s", name, s.projectID)

	var annotations map[string]string
	if ct, ok := rec.ContentType(); ok {
		annotations = map[string]string{contentTypeTag: ct}
	}

	_, err = client.GetSecret(ctx, &secretmanagerpb.GetSecretRequest{Name: s.secretPath(name)}, noRetry)
	switch {
	case status.Code(err) == codes.NotFound:
		_, err = client.CreateSecret(ctx, &secretmanagerpb.CreateSecretRequest{
			Parent:   "projects/" + s.projectID,
			SecretId: name,
			Secret: &secretmanagerpb.Secret{
				Replication: &secretmanagerpb.Replication{
					Replication: &secretmanagerpb.Replication_Automatic_{
						Automatic: &secretmanagerpb.Replication_Automatic{},
					},
				},
				Labels:      rec.Tags(),
				Annotations: annotations,
			},
		}, noRetry)
		if err != nil && status.Code(err) != codes.AlreadyExists {
			return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
		}

	case err != nil:
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)

	default:
		var paths []string
		if rec.HasTags() {
			paths = append(paths, "labels")
		}
		if annotations != nil {
			paths = append(paths, "annotations")
		}
		if len(paths) > 0 {
			_, err = client.UpdateSecret(ctx, &secretmanagerpb.UpdateSecretRequest{
				Secret: &secretmanagerpb.Secret{
					Name:        s.secretPath(name),
					Labels:      rec.Tags(),
					Annotations: annotations,
				},
				UpdateMask: &fieldmaskpb.FieldMask{Paths: paths},
			}, noRetry)
			if err != nil {
				return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
			}
		}
	}

	version, err := client.AddSecretVersion(ctx, &secretmanagerpb.AddSecretVersionRequest{
		Parent:  s.secretPath(name),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(rec.Value())},
	}, noRetry)
	if err != nil {
		return secretstore.Record{}, s.translateError(secretstore.OpUpsert, name, err)
	}

	opts := append(recordMetadata(rec), secretstore.WithVersion(lastSegment(version.GetName())))
	return secretstore.NewRecord(name, rec.Value(), opts...), nil
}

// Validate lists one secret to check connectivity and permissions.
// Injected clients are assumed valid.
func (s *GCPSecretManager) Validate(ctx context.Context) error {
	client, err := s.getClient(ctx)
	if err != nil {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	realClient, ok := client.(*secretmanager.Client)
	if !ok {
		return nil
	}
	it := realClient.ListSecrets(ctx, &secretmanagerpb.ListSecretsRequest{
		Parent:   "projects/" + s.projectID,
		PageSize: 1,
	}, noRetry)
	if _, err := it.Next(); err != nil && !errors.Is(err, iterator.Done) {
		return s.translateError(secretstore.OpValidate, "", err)
	}
	return nil
}

// Close releases the gRPC connection if one was opened.
func (s *GCPSecretManager) Close() error {
	if closer, ok := s.client.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

// grpcHTTPStatus maps gRPC codes to HTTP-equivalent statuses.
var grpcHTTPStatus = map[codes.Code]int{
	codes.InvalidArgument:    http.StatusBadRequest,
	codes.FailedPrecondition: http.StatusBadRequest,
	codes.OutOfRange:         http.StatusBadRequest,
	codes.Unauthenticated:    http.StatusUnauthorized,
	codes.PermissionDenied:   http.StatusForbidden,
	codes.NotFound:           http.StatusNotFound,
	codes.AlreadyExists:      http.StatusConflict,
	codes.Aborted:            http.StatusConflict,
	codes.ResourceExhausted:  http.StatusTooManyRequests,
	codes.Unimplemented:      http.StatusNotImplemented,
	codes.Internal:           http.StatusInternalServerError,
	codes.Unknown:            http.StatusInternalServerError,
	codes.DataLoss:           http.StatusInternalServerError,
	codes.Unavailable:        http.StatusServiceUnavailable,
	codes.DeadlineExceeded:   http.StatusGatewayTimeout,
}

// translateError maps gRPC status errors to secretstore errors.
func (s *GCPSecretManager) translateError(op, name string, err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return &secretstore.Error{Store: s.name, Op: op, Name: name, Err: err}
	}

	if st.Code() == codes.NotFound && op != secretstore.OpValidate {
		return &secretstore.NotFoundError{Store: s.name, Name: name}
	}

	return &secretstore.Error{
		Store:      s.name,
		Op:         op,
		Name:       name,
		StatusCode: grpcHTTPStatus[st.Code()],
		Code:       st.Code().String(),
		Err:        err,
	}
}

func lastSegment(resource string) string {
	if i := strings.LastIndex(resource, "/"); i >= 0 {
		return resource[i+1:]
	}
	return resource
}

// NewGCPSecretManagerFactory creates a Secret Manager store from config.
func NewGCPSecretManagerFactory(name string, cfg map[string]interface{}, deps Deps) (secretstore.Store, error) {
	parsed, err := ParseGCPSecretManagerConfig(cfg)
	if err != nil {
		return nil, err
	}
	return NewGCPSecretManager(name, parsed, deps), nil
}
