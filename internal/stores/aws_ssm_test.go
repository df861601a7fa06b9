package stores_test

import (
	"context"
	"net/http"
	"testing"

	ssmtypes "github.com/aws/aws-sdk-go-v2/service/ssm/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systmms/secretxfer/internal/stores"
	"github.com/systmms/secretxfer/pkg/secretstore"
	"github.com/systmms/secretxfer/tests/fakes"
)

func newSSMStore(t *testing.T, fake *fakes.FakeSSMClient, opts ...stores.SSMOption) *stores.AWSSSM {
	t.Helper()
	opts = append([]stores.SSMOption{stores.WithSSMClient(fake)}, opts...)
	s, err := stores.NewAWSSSM("ssm", stores.AWSConfig{Region: "us-east-1"}, stores.Deps{}, opts...)
	require.NoError(t, err)
	return s
}

func TestSSMFetchWithPrefix(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	fake.AddParameter("/app/prod/db-pass", &fakes.ParameterData{
		Value:   "p@ss",
		Type:    ssmtypes.ParameterTypeSecureString,
		Version: 4,
		Tags:    map[string]string{"owner": "teamA", "content-type": "text/plain"},
	})

	rec, err := newSSMStore(t, fake, stores.WithParameterPrefix("/app/prod/")).Fetch(context.Background(), "db-pass")
	require.NoError(t, err)

	assert.Equal(t, "db-pass", rec.Name())
	assert.Equal(t, "p@ss", rec.Value(), "value must be decrypted")
	assert.Equal(t, "4", rec.Version())
	assert.Equal(t, map[string]string{"owner": "teamA"}, rec.Tags())
	ct, _ := rec.ContentType()
	assert.Equal(t, "text/plain", ct)
}

func TestSSMFetchMissing(t *testing.T) {
	t.Parallel()

	_, err := newSSMStore(t, fakes.NewFakeSSMClient()).Fetch(context.Background(), "nope")
	assert.True(t, secretstore.IsNotFound(err))
}

func TestSSMFetchThrottled(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	fake.AddError("db-pass", fakes.AWSAPIError("ThrottlingException", "Rate exceeded"))

	_, err := newSSMStore(t, fake).Fetch(context.Background(), "db-pass")
	assert.Equal(t, http.StatusTooManyRequests, secretstore.StatusFrom(err))
}

func TestSSMUpsertCreatesAndTags(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	s := newSSMStore(t, fake, stores.WithKMSKeyID("alias/secrets"))

	rec := secretstore.NewRecord("src", "p@ss",
		secretstore.WithContentType("text/plain"),
		secretstore.WithTags(map[string]string{"owner": "teamA"}),
	)
	stored, err := s.Upsert(context.Background(), "db-pass", rec)
	require.NoError(t, err)
	assert.Equal(t, "1", stored.Version())

	data, ok := fake.Parameter("db-pass")
	require.True(t, ok)
	assert.Equal(t, "p@ss", data.Value)
	assert.Equal(t, ssmtypes.ParameterTypeSecureString, data.Type)
	assert.Equal(t, "alias/secrets", data.KeyID)
	assert.Equal(t, map[string]string{"owner": "teamA", "content-type": "text/plain"}, data.Tags)

	stored, err = s.Upsert(context.Background(), "db-pass", rec)
	require.NoError(t, err)
	assert.Equal(t, "2", stored.Version())
	assert.Equal(t, 2, fake.CallCount("AddTagsToResource"))
}

func TestSSMUpsertWithoutTags(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	_, err := newSSMStore(t, fake).Upsert(context.Background(), "db-pass", secretstore.NewRecord("db-pass", "v"))
	require.NoError(t, err)
	assert.Zero(t, fake.CallCount("AddTagsToResource"))
}

func TestSSMValidate(t *testing.T) {
	t.Parallel()

	fake := fakes.NewFakeSSMClient()
	s := newSSMStore(t, fake)
	require.NoError(t, s.Validate(context.Background()))

	fake.DescribeErr = fakes.AWSAPIError("UnrecognizedClientException", "bad token")
	assert.Equal(t, http.StatusUnauthorized, secretstore.StatusFrom(s.Validate(context.Background())))
}
