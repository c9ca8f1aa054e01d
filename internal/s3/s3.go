package s3

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"

	minio "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ReportPrefix is where filtered reports are mirrored in the bucket.
const ReportPrefix = "filtered/"

type Client struct {
	mc *minio.Client
}

func New(endpoint, accessKey, secretKey, region string, useSSL bool) (*Client, error) {
	mc, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}
	return &Client{mc: mc}, nil
}

func (c *Client) DownloadToFile(ctx context.Context, bucket, key, filePath string) error {
	obj, err := c.mc.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	out, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, obj)
	return err
}

func (c *Client) UploadFile(ctx context.Context, bucket, key, filePath string, contentType string) error {
	_, err := c.mc.FPutObject(ctx, bucket, key, filePath, minio.PutObjectOptions{
		ContentType: contentType,
	})
	return err
}

// ListKeys returns every object key under prefix.
func (c *Client) ListKeys(ctx context.Context, bucket, prefix string) ([]string, error) {
	var keys []string
	for obj := range c.mc.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		keys = append(keys, obj.Key)
	}
	return keys, nil
}

// ReportKey is the object key of a mirrored report.
func ReportKey(item, filePath string) string {
	return path.Join(ReportPrefix, item, filepath.Base(filePath))
}

// Mirror copies filtered reports into one bucket.
type Mirror struct {
	c      *Client
	bucket string
}

func NewMirror(c *Client, bucket string) *Mirror {
	return &Mirror{c: c, bucket: bucket}
}

func (m *Mirror) UploadReport(ctx context.Context, item, filePath string) (string, error) {
	key := ReportKey(item, filePath)
	if err := m.c.UploadFile(ctx, m.bucket, key, filePath, "text/plain"); err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return key, nil
}
