// Package storage pushes log pages to and pulls artifacts from OBS.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/huaweicloud/huaweicloud-sdk-go-obs/obs"
)

// Uploader stores the local file under key.
type Uploader interface {
	Upload(ctx context.Context, localPath, key string) error
}

// Downloader fetches key into the local file.
type Downloader interface {
	Download(ctx context.Context, key, localPath string) error
}

type Config struct {
	Endpoint string `json:"endpoint,omitempty"`
	Bucket   string `json:"bucket,omitempty"`
	// Domain is the public prefix of the bucket used in log links.
	Domain string `json:"domain,omitempty"`
}

func (c *Config) SetDefault() {
	if c.Endpoint == "" {
		c.Endpoint = "obs.cn-north-4.myhuaweicloud.com"
	}
	if c.Bucket == "" {
		c.Bucket = "mindstudio-pr-log"
	}
	if c.Domain == "" {
		c.Domain = fmt.Sprintf("https://%s.%s", c.Bucket, c.Endpoint)
	}
}

// PublicURL is the link under which key can be read.
func (c *Config) PublicURL(key string) string {
	return c.Domain + "/" + key
}

type OBS struct {
	cli    *obs.ObsClient
	bucket string
}

// NewOBS returns an Uploader and Downloader backed by the OBS SDK.
func NewOBS(cfg Config, ak, sk string) (*OBS, error) {
	cfg.SetDefault()

	cli, err := obs.New(ak, sk, cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("new obs client, err:%w", err)
	}

	return &OBS{cli: cli, bucket: cfg.Bucket}, nil
}

func (s *OBS) Upload(ctx context.Context, localPath, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := &obs.PutFileInput{}
	input.Bucket = s.bucket
	input.Key = key
	input.SourceFile = localPath

	if _, err := s.cli.PutFile(input); err != nil {
		return fmt.Errorf("upload %s to obs://%s/%s, err:%w", localPath, s.bucket, key, err)
	}

	return nil
}

func (s *OBS) Download(ctx context.Context, key, localPath string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	input := &obs.GetObjectInput{}
	input.Bucket = s.bucket
	input.Key = key

	output, err := s.cli.GetObject(input)
	if err != nil {
		return fmt.Errorf("download obs://%s/%s, err:%w", s.bucket, key, err)
	}
	defer output.Body.Close()

	return writeFile(localPath, output.Body)
}

func (s *OBS) Close() {
	s.cli.Close()
}

func writeFile(localPath string, r io.Reader) error {
	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}

	f, err := os.Create(localPath)
	if err != nil {
		return err
	}

	if _, err := io.Copy(f, r); err != nil {
		f.Close()
		return err
	}

	return f.Close()
}
