package storage

import (
	"bytes"
	"context"
	"fmt"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// ZstdSuffix is appended to every key written by Put.
const ZstdSuffix = ".zst"

type Store struct {
	client     *minio.Client
	bucketName string
	region     string
	encoder    *zstd.Encoder
}

// New buat koneksi MinIO
func New(ctx context.Context, endpoint, region, bucket, accessKey, secretKey string, useSSL bool) (*Store, error) {
	cli, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
		Region: region,
	})
	if err != nil {
		return nil, err
	}

	// pastikan bucket ada
	exists, err := cli.BucketExists(ctx, bucket)
	if err != nil {
		return nil, err
	}
	if !exists {
		if err := cli.MakeBucket(ctx, bucket, minio.MakeBucketOptions{Region: region}); err != nil {
			return nil, err
		}
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, err
	}
	return &Store{client: cli, bucketName: bucket, region: region, encoder: enc}, nil
}

// Put compresses data with zstd and uploads it at key+".zst". Returns the object URL.
func (s *Store) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	payload := Compress(s.encoder, data)
	key += ZstdSuffix
	_, err := s.client.PutObject(ctx, s.bucketName, key, bytes.NewReader(payload), int64(len(payload)), minio.PutObjectOptions{
		ContentType:     contentType,
		ContentEncoding: "zstd",
	})
	if err != nil {
		return "", fmt.Errorf("upload %s: %w", key, err)
	}
	return fmt.Sprintf("%s/%s/%s", s.client.EndpointURL(), s.bucketName, key), nil
}

// Compress encodes data as a single zstd frame.
func Compress(enc *zstd.Encoder, data []byte) []byte {
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2))
}
