// Package s3test provides throwaway S3 buckets for tests. Buckets live on an
// in-memory gofakes3 server unless DENKMIT_TEST_S3_ENDPOINT names a real
// endpoint, in which case the AWS_* variables supply credentials and region.
package s3test

import (
	"crypto/rand"
	"math"
	"math/big"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	s3Persist "github.com/denkmit/denkmit/persist/s3"
	"github.com/johannesboyne/gofakes3"
	"github.com/johannesboyne/gofakes3/backend/s3mem"
	"github.com/stretchr/testify/require"
)

const endpointEnv = "DENKMIT_TEST_S3_ENDPOINT"

// Bucket is an empty bucket owned by one test.
type Bucket struct {
	Client *s3.S3
	Name   string
}

// New creates a bucket with a random name. When t finishes, every object in
// it is deleted, then the bucket itself.
func New(t testing.TB) *Bucket {
	t.Helper()
	b := &Bucket{Client: client(t), Name: randBucketName(t)}
	_, err := b.Client.CreateBucket(&s3.CreateBucketInput{Bucket: aws.String(b.Name)})
	require.NoError(t, err, "create bucket %s", b.Name)
	t.Cleanup(func() {
		for _, key := range b.Keys(t, "") {
			_, err := b.Client.DeleteObject(&s3.DeleteObjectInput{Bucket: aws.String(b.Name), Key: aws.String(key)})
			if err != nil {
				t.Logf("delete %s/%s: %v", b.Name, key, err)
			}
		}
		if _, err := b.Client.DeleteBucket(&s3.DeleteBucketInput{Bucket: aws.String(b.Name)}); err != nil {
			t.Logf("delete bucket %s: %v", b.Name, err)
		}
	})
	return b
}

// Persist returns a block store over the bucket that keeps its objects under
// prefix.
func (b *Bucket) Persist(prefix string) *s3Persist.Persist {
	return s3Persist.NewPersist(b.Client, b.Name, prefix)
}

// Keys lists the object keys under prefix.
func (b *Bucket) Keys(t testing.TB, prefix string) []string {
	t.Helper()
	var keys []string
	err := b.Client.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket: aws.String(b.Name),
		Prefix: aws.String(prefix),
	}, func(page *s3.ListObjectsV2Output, _ bool) bool {
		for _, o := range page.Contents {
			keys = append(keys, aws.StringValue(o.Key))
		}
		return true
	})
	require.NoError(t, err, "list %s/%s", b.Name, prefix)
	return keys
}

func client(t testing.TB) *s3.S3 {
	if endpoint := os.Getenv(endpointEnv); endpoint != "" {
		sess, err := session.NewSession(&aws.Config{
			Credentials: credentials.NewStaticCredentials(
				requireEnv(t, "AWS_ACCESS_KEY_ID"),
				requireEnv(t, "AWS_SECRET_ACCESS_KEY"),
				os.Getenv("AWS_SESSION_TOKEN"),
			),
			Endpoint:         aws.String(endpoint),
			Region:           aws.String(requireEnv(t, "AWS_DEFAULT_REGION")),
			S3ForcePathStyle: aws.Bool(true),
		})
		require.NoError(t, err)
		return s3.New(sess)
	}

	ts := httptest.NewServer(gofakes3.New(s3mem.New()).Server())
	t.Cleanup(ts.Close)
	sess, err := session.NewSession(&aws.Config{
		Credentials:      credentials.NewStaticCredentials("denkmit", "denkmit", ""),
		Endpoint:         aws.String(ts.URL),
		Region:           aws.String("eu-central-1"),
		DisableSSL:       aws.Bool(true),
		S3ForcePathStyle: aws.Bool(true),
	})
	require.NoError(t, err)
	return s3.New(sess)
}

func requireEnv(t testing.TB, key string) string {
	v := os.Getenv(key)
	if v == "" {
		t.Fatalf("%s is set but %s is not", endpointEnv, key)
	}
	return v
}

func randBucketName(t testing.TB) string {
	i, err := rand.Int(rand.Reader, big.NewInt(math.MaxUint32))
	require.NoError(t, err)
	return "denkmit-" + i.String()
}
