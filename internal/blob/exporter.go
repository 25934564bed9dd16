// Package blob mirrors an encrypted markdown representation of each note
// into object storage, one bucket per user, keyed objects/<id>.md. The
// blobs are an export/backup artifact only and are never read back into
// the domain graph at sync time. All operations are best-effort.
package blob

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dkravets/notelock/internal/cryptox"
	"github.com/dkravets/notelock/internal/logging"
	"github.com/dkravets/notelock/internal/models"
)

// Seams for tests.
var (
	loadDefaultAWSConfig = awsconfig.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}
)

// Config holds the object storage endpoint settings. Endpoint override and
// static credentials match a self-hosted minio as well as AWS.
type Config struct {
	Region    string
	Endpoint  string
	AccessKey string
	SecretKey string
	// BucketPrefix namespaces the per-user buckets.
	BucketPrefix string
}

// Exporter uploads encrypted note blobs.
type Exporter struct {
	cfg    Config
	client *s3.Client
	log    logging.Logger
}

func New(ctx context.Context, cfg Config, log logging.Logger) (*Exporter, error) {
	if cfg.BucketPrefix == "" {
		cfg.BucketPrefix = "notelock"
	}

	awsCfg, err := loadDefaultAWSConfig(ctx,
		awsconfig.WithRegion(cfg.Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKey,
			cfg.SecretKey,
			"",
		)))
	if err != nil {
		return nil, fmt.Errorf("aws config failed: %w", err)
	}

	client := newS3ClientFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = true
	})

	return &Exporter{cfg: cfg, client: client, log: log}, nil
}

// Bucket returns the per-user bucket name. User ids can contain characters
// S3 forbids; everything outside [a-z0-9-] is folded to '-'.
func (e *Exporter) Bucket(userID string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(userID) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('-')
		}
	}
	return e.cfg.BucketPrefix + "-" + b.String()
}

func noteKey(id string) string {
	return "objects/" + id + ".md"
}

// EnsureBucket creates the user's bucket if it does not exist yet.
func (e *Exporter) EnsureBucket(ctx context.Context, userID string) error {
	bucket := e.Bucket(userID)
	_, err := e.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: &bucket})
	if err == nil {
		return nil
	}
	_, err = e.client.CreateBucket(ctx, &s3.CreateBucketInput{Bucket: &bucket})
	if err != nil && !strings.Contains(err.Error(), "BucketAlreadyOwnedByYou") {
		return fmt.Errorf("create bucket failed: %w", err)
	}
	return nil
}

// UploadNote upserts the encrypted markdown artifact for one note. The
// body carries the ciphertext and nonce base64-encoded under a small
// plaintext header; nothing sensitive leaves the ciphertext.
func (e *Exporter) UploadNote(ctx context.Context, userID string, rec models.ObjectRecord) error {
	bucket := e.Bucket(userID)
	key := noteKey(rec.ID)

	var body bytes.Buffer
	fmt.Fprintf(&body, "---\n")
	fmt.Fprintf(&body, "id: %s\n", rec.ID)
	fmt.Fprintf(&body, "nonce: %s\n", cryptox.EncodeBinary(rec.Nonce))
	fmt.Fprintf(&body, "updated_at: %s\n", rec.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"))
	fmt.Fprintf(&body, "---\n%s\n", cryptox.EncodeBinary(rec.Ciphertext))

	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: &bucket,
		Key:    &key,
		Body:   bytes.NewReader(body.Bytes()),
	})
	if err != nil {
		return fmt.Errorf("put object failed: %w", err)
	}
	return nil
}

// Delete removes the blob for id. Deleting a key that never existed is a
// no-op.
func (e *Exporter) Delete(ctx context.Context, userID, id string) error {
	bucket := e.Bucket(userID)
	key := noteKey(id)
	_, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key})
	if err != nil {
		return fmt.Errorf("delete object failed: %w", err)
	}
	return nil
}

// Cleanup removes blobs whose object id is no longer live. Best-effort:
// individual failures are logged and skipped.
func (e *Exporter) Cleanup(ctx context.Context, userID string, live map[string]struct{}) {
	bucket := e.Bucket(userID)
	prefix := "objects/"

	var token *string
	for {
		out, err := e.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            &bucket,
			Prefix:            &prefix,
			ContinuationToken: token,
		})
		if err != nil {
			e.log.Warn(ctx, "blob cleanup listing failed", "err", err)
			return
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			id := strings.TrimSuffix(strings.TrimPrefix(key, prefix), ".md")
			if _, ok := live[id]; ok {
				continue
			}
			if _, err := e.client.DeleteObject(ctx, &s3.DeleteObjectInput{Bucket: &bucket, Key: &key}); err != nil {
				e.log.Warn(ctx, "blob cleanup delete failed", "key", key, "err", err)
			}
		}
		if out.NextContinuationToken == nil {
			return
		}
		token = out.NextContinuationToken
	}
}
