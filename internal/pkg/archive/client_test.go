package archive

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tradorr/tradorr-api/internal/pkg/billing"
	"github.com/tradorr/tradorr-api/internal/pkg/env"
)

type fakeS3 struct {
	puts    []*s3.PutObjectInput
	bodies  []string
	headErr error
	created []*s3.CreateBucketInput
	putErr  error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	body, _ := io.ReadAll(in.Body)
	f.puts = append(f.puts, in)
	f.bodies = append(f.bodies, string(body))
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headErr
}

func (f *fakeS3) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, in)
	return &s3.CreateBucketOutput{}, nil
}

func TestGetObjectKey(t *testing.T) {
	at := time.Date(2025, 3, 7, 23, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))

	cfg := &Config{Prefix: "webhooks"}
	assert.Equal(t, "webhooks/stripe/2025/03/07/evt_1.json", cfg.GetObjectKey("stripe", "evt_1", at))
	assert.Equal(t, "webhooks/nowpayments/2025/03/07/hash:ab%2Fcd.json", cfg.GetObjectKey("nowpayments", "hash:ab/cd", at))

	cfg.Prefix = ""
	assert.Equal(t, "coinbase/2025/03/07/e.json", cfg.GetObjectKey("coinbase", "e", at))
}

func TestArchiveWebhook_PutsRawPayload(t *testing.T) {
	api := &fakeS3{}
	client := newClient(api, &Config{BucketName: "archive", Prefix: "webhooks", Enabled: true})

	payload := `{"event":"payment.captured", "spacing":  "kept"}`
	err := client.ArchiveWebhook(context.Background(), billing.ArchiveRequest{
		Provider:   "razorpay",
		EventID:    "evt_42",
		Payload:    payload,
		ReceivedAt: time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)

	require.Len(t, api.puts, 1)
	put := api.puts[0]
	assert.Equal(t, "archive", aws.ToString(put.Bucket))
	assert.Equal(t, "webhooks/razorpay/2025/06/01/evt_42.json", aws.ToString(put.Key))
	assert.Equal(t, "application/json", aws.ToString(put.ContentType))
	assert.Equal(t, int64(len(payload)), aws.ToInt64(put.ContentLength))
	assert.Equal(t, "evt_42", put.Metadata["event-id"])
	assert.Equal(t, payload, api.bodies[0])
}

func TestArchiveWebhook_UploadError(t *testing.T) {
	api := &fakeS3{putErr: errors.New("access denied")}
	client := newClient(api, &Config{BucketName: "archive", Enabled: true})

	err := client.ArchiveWebhook(context.Background(), billing.ArchiveRequest{Provider: "stripe", EventID: "evt_1"})
	assert.ErrorContains(t, err, "access denied")
}

func TestTestConnection_CreatesMissingBucketOutsideProd(t *testing.T) {
	env.Env = map[string]string{"APP_ENV": "dev"}
	t.Cleanup(func() { env.Env = nil })

	api := &fakeS3{headErr: errors.New("not found")}
	client := newClient(api, &Config{BucketName: "archive", Region: "eu-central-1", Enabled: true})

	require.NoError(t, client.testConnection(context.Background()))
	require.Len(t, api.created, 1)
	require.NotNil(t, api.created[0].CreateBucketConfiguration)
	assert.Equal(t, "eu-central-1", string(api.created[0].CreateBucketConfiguration.LocationConstraint))
}

func TestTestConnection_FailsInProd(t *testing.T) {
	env.Env = map[string]string{"APP_ENV": "prod"}
	t.Cleanup(func() { env.Env = nil })

	api := &fakeS3{headErr: errors.New("not found")}
	client := newClient(api, &Config{BucketName: "archive", Enabled: true})

	assert.Error(t, client.testConnection(context.Background()))
	assert.Empty(t, api.created)
}

func TestLoadConfig_RequiresCredentialsWhenEnabled(t *testing.T) {
	env.Env = map[string]string{"WEBHOOK_ARCHIVE_ENABLED": "true", "S3_ACCESS_KEY_ID": "key"}
	t.Cleanup(func() { env.Env = nil })

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "S3_SECRET_ACCESS_KEY")

	env.Env["S3_SECRET_ACCESS_KEY"] = "secret"
	env.Env["S3_BUCKET_NAME"] = "bucket"
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.True(t, cfg.IsEnabled())
	assert.Equal(t, "webhooks", cfg.Prefix)
}
