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
	"io"
	"strings"

	"github.com/gorse-io/mind/config"
	"github.com/juju/errors"
)

const (
	S3Prefix    = "s3://"
	GCSPrefix   = "gs://"
	AzurePrefix = "azblob://"
)

// Store is a read-only source of named files.
type Store interface {
	// Open a file for reading. The caller must close the returned reader.
	Open(name string) (io.ReadCloser, error)
}

// Open creates a store for location. Locations starting with s3://, gs:// or azblob://
// address a bucket (or container) and an optional prefix; anything else is a local directory.
func Open(location string, cfg *config.Config) (Store, error) {
	if cfg == nil {
		cfg = config.GetDefaultConfig()
	}
	switch {
	case strings.HasPrefix(location, S3Prefix):
		bucket, prefix, err := splitLocation(location[len(S3Prefix):])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewS3(cfg.S3, bucket, prefix)
	case strings.HasPrefix(location, GCSPrefix):
		bucket, prefix, err := splitLocation(location[len(GCSPrefix):])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewGCS(cfg.GCS, bucket, prefix)
	case strings.HasPrefix(location, AzurePrefix):
		container, prefix, err := splitLocation(location[len(AzurePrefix):])
		if err != nil {
			return nil, errors.Trace(err)
		}
		return NewAzureBlob(cfg.Azure, container, prefix)
	default:
		return NewPOSIX(location), nil
	}
}

// splitLocation splits "bucket/some/prefix" into bucket and prefix.
func splitLocation(s string) (string, string, error) {
	bucket, prefix, _ := strings.Cut(s, "/")
	if bucket == "" {
		return "", "", errors.NotValidf("bucket in location %q", s)
	}
	return bucket, strings.Trim(prefix, "/"), nil
}
