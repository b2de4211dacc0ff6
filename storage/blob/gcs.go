// Copyright 2025 gorse Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package blob

import (
	"context"
	"io"
	"os"
	"path"

	"cloud.google.com/go/storage"
	"github.com/gorse-io/mind/config"
	"github.com/juju/errors"
	"google.golang.org/api/option"
)

type GCS struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewGCS(cfg config.GCSConfig, bucket, prefix string) (*GCS, error) {
	var opts []option.ClientOption
	if os.Getenv("GCS_EMULATOR_ENDPOINT") != "" {
		opts = append(opts, option.WithEndpoint(os.Getenv("GCS_EMULATOR_ENDPOINT")))
		opts = append(opts, option.WithoutAuthentication())
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(context.Background(), opts...)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewGCSWithClient(client, bucket, prefix), nil
}

func NewGCSWithClient(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{
		client: client,
		bucket: bucket,
		prefix: prefix,
	}
}

func (g *GCS) Open(name string) (io.ReadCloser, error) {
	return g.client.Bucket(g.bucket).Object(path.Join(g.prefix, name)).NewReader(context.Background())
}
