package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// expiresAtMetadataKey carries the advisory expiry on S3 objects. S3 has no
// per-object TTL, so reads check it and the maintenance sweeper deletes
// stale objects.
const expiresAtMetadataKey = "stockroom-expires-at"

// hashSuffix distinguishes grouped-collection objects from plain values.
// A hash is stored as one JSON object mapping field names to values.
const hashSuffix = "#hash"

// S3Config configures the S3-compatible adapter. Endpoint is optional and
// points at MinIO/R2-style deployments.
type S3Config struct {
	Bucket         string
	Region         string
	Endpoint       string
	AccessKey      string
	SecretKey      string
	ForcePathStyle bool
}

// S3 is an Adapter backed by an S3-compatible object store: one object per
// key, hashes as a single JSON object.
type S3 struct {
	client *s3.Client
	bucket string
	now    func() time.Time
}

var _ Adapter = (*S3)(nil)
var _ Purger = (*S3)(nil)

// NewS3 builds the adapter. Explicit static credentials are used when
// provided; otherwise the SDK's default chain applies.
func NewS3(ctx context.Context, cfg S3Config) (*S3, error) {
	var loadOpts []func(*awsconfig.LoadOptions) error
	if cfg.Region != "" {
		loadOpts = append(loadOpts, awsconfig.WithRegion(cfg.Region))
	}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, &BackendError{Op: "configure", Err: err}
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		if cfg.ForcePathStyle {
			o.UsePathStyle = true
		}
	})

	return &S3{client: client, bucket: cfg.Bucket, now: time.Now}, nil
}

func (a *S3) Save(key, value string) error {
	return a.put(key, value, nil)
}

func (a *S3) SaveWithTTL(key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return a.Save(key, value)
	}
	meta := map[string]string{
		expiresAtMetadataKey: strconv.FormatInt(a.now().Add(ttl).Unix(), 10),
	}
	return a.put(key, value, meta)
}

func (a *S3) put(key, value string, meta map[string]string) error {
	_, err := a.client.PutObject(context.Background(), &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader([]byte(value)),
		ContentType: aws.String("application/json"),
		Metadata:    meta,
	})
	if err != nil {
		return &BackendError{Op: "save", Key: key, Err: err}
	}
	return nil
}

func (a *S3) Get(key string) (string, bool, error) {
	out, err := a.client.GetObject(context.Background(), &s3.GetObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return "", false, nil
		}
		return "", false, &BackendError{Op: "get", Key: key, Err: err}
	}
	defer out.Body.Close()

	if expiredObject(out.Metadata, a.now()) {
		return "", false, nil
	}

	body, err := io.ReadAll(out.Body)
	if err != nil {
		return "", false, &BackendError{Op: "get", Key: key, Err: err}
	}
	return string(body), true, nil
}

func (a *S3) Delete(key string) (bool, error) {
	existed, err := a.Exists(key)
	if err != nil {
		return false, err
	}
	if !existed {
		return false, nil
	}
	_, err = a.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return false, &BackendError{Op: "delete", Key: key, Err: err}
	}
	return true, nil
}

func (a *S3) Exists(key string) (bool, error) {
	out, err := a.client.HeadObject(context.Background(), &s3.HeadObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, &BackendError{Op: "exists", Key: key, Err: err}
	}
	return !expiredObject(out.Metadata, a.now()), nil
}

func (a *S3) Keys(pattern string) ([]string, error) {
	prefix, hasGlob := strings.CutSuffix(pattern, "*")

	var keys []string
	var continuation *string
	for {
		out, err := a.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			Prefix:            aws.String(prefix),
			ContinuationToken: continuation,
		})
		if err != nil {
			return nil, &BackendError{Op: "keys", Key: pattern, Err: err}
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			if name, isHash := strings.CutSuffix(key, hashSuffix); isHash {
				key = name
			}
			if !hasGlob && key != pattern {
				continue
			}
			keys = append(keys, key)
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	sort.Strings(keys)
	return dedupe(keys), nil
}

func (a *S3) SaveHash(key string, fields map[string]string) error {
	existing, err := a.GetHash(key)
	if err != nil {
		return err
	}
	for field, value := range fields {
		existing[field] = value
	}
	encoded, err := json.Marshal(existing)
	if err != nil {
		return &BackendError{Op: "save_hash", Key: key, Err: err}
	}
	return a.put(key+hashSuffix, string(encoded), nil)
}

func (a *S3) GetHash(key string) (map[string]string, error) {
	raw, ok, err := a.Get(key + hashSuffix)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	if !ok {
		return out, nil
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, &BackendError{Op: "get_hash", Key: key, Err: err}
	}
	return out, nil
}

func (a *S3) DeleteHash(key string) (bool, error) {
	return a.Delete(key + hashSuffix)
}

// PurgeExpired deletes objects whose advisory expiry has passed.
func (a *S3) PurgeExpired(now time.Time) (int, error) {
	purged := 0
	var continuation *string
	for {
		out, err := a.client.ListObjectsV2(context.Background(), &s3.ListObjectsV2Input{
			Bucket:            aws.String(a.bucket),
			ContinuationToken: continuation,
		})
		if err != nil {
			return purged, &BackendError{Op: "purge", Err: err}
		}
		for _, obj := range out.Contents {
			key := aws.ToString(obj.Key)
			head, err := a.client.HeadObject(context.Background(), &s3.HeadObjectInput{
				Bucket: aws.String(a.bucket),
				Key:    aws.String(key),
			})
			if err != nil {
				continue
			}
			if expiredObject(head.Metadata, now) {
				_, err := a.client.DeleteObject(context.Background(), &s3.DeleteObjectInput{
					Bucket: aws.String(a.bucket),
					Key:    aws.String(key),
				})
				if err == nil {
					purged++
				}
			}
		}
		if out.IsTruncated == nil || !*out.IsTruncated {
			break
		}
		continuation = out.NextContinuationToken
	}
	return purged, nil
}

func expiredObject(meta map[string]string, now time.Time) bool {
	raw, ok := meta[expiresAtMetadataKey]
	if !ok {
		return false
	}
	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return false
	}
	return !now.Before(time.Unix(unix, 0))
}

func isNotFound(err error) bool {
	var noKey *types.NoSuchKey
	if errors.As(err, &noKey) {
		return true
	}
	var notFound *types.NotFound
	return errors.As(err, &notFound)
}

func dedupe(sorted []string) []string {
	if len(sorted) == 0 {
		return sorted
	}
	out := sorted[:1]
	for _, key := range sorted[1:] {
		if key != out[len(out)-1] {
			out = append(out, key)
		}
	}
	return out
}
