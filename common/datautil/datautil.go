// Copyright 2024 gorse Project Authors
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

package datautil

import (
	"archive/zip"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/user"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gorse-io/mind/base/log"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

const (
	smallReleaseURL = "https://mind201910small.blob.core.windows.net/release/"
	largeReleaseURL = "https://mind201910.blob.core.windows.net/release/"
)

// mindDatasets maps a dataset name to its archive.
var mindDatasets = map[string]string{
	"MINDsmall_train": smallReleaseURL + "MINDsmall_train.zip",
	"MINDsmall_dev":   smallReleaseURL + "MINDsmall_dev.zip",
	"MINDlarge_train": largeReleaseURL + "MINDlarge_train.zip",
	"MINDlarge_dev":   largeReleaseURL + "MINDlarge_dev.zip",
	"MINDlarge_test":  largeReleaseURL + "MINDlarge_test.zip",
}

var (
	tempDir    string
	datasetDir string
)

func init() {
	usr, err := user.Current()
	if err != nil {
		log.Logger().Fatal("failed to get user directory", zap.Error(err))
	}
	SetCacheDir(filepath.Join(usr.HomeDir, ".mind"))
}

// SetCacheDir changes where archives are downloaded and extracted.
func SetCacheDir(dir string) {
	datasetDir = filepath.Join(dir, "dataset")
	tempDir = filepath.Join(dir, "temp")
}

// Names returns the names of known datasets in order.
func Names() []string {
	names := lo.Keys(mindDatasets)
	sort.Strings(names)
	return names
}

// DownloadAndUnzip returns the local directory of a dataset. The archive is downloaded and
// extracted only if the directory does not exist yet.
func DownloadAndUnzip(name string) (string, error) {
	url, exist := mindDatasets[name]
	if !exist {
		return "", errors.NotFoundf("dataset %s", name)
	}
	path := filepath.Join(datasetDir, name)
	if _, err := os.Stat(path); err == nil {
		return path, nil
	} else if !os.IsNotExist(err) {
		return "", errors.Trace(err)
	}
	zipFileName, err := downloadFromUrl(url, tempDir)
	if err != nil {
		return "", errors.Trace(err)
	}
	if _, err = unzip(zipFileName, path); err != nil {
		// leave no partial directory behind, otherwise it would be treated as cached
		_ = os.RemoveAll(path)
		return "", errors.Trace(err)
	}
	if err = os.Remove(zipFileName); err != nil {
		log.Logger().Warn("failed to remove archive", zap.String("filename", zipFileName), zap.Error(err))
	}
	return path, nil
}

// downloadFromUrl downloads file from URL.
func downloadFromUrl(src, dst string) (string, error) {
	log.Logger().Info("download dataset", zap.String("source", src), zap.String("destination", dst))
	// Extract file name
	tokens := strings.Split(src, "/")
	fileName := filepath.Join(dst, tokens[len(tokens)-1])
	// Create file
	if err := os.MkdirAll(filepath.Dir(fileName), os.ModePerm); err != nil {
		return fileName, errors.Trace(err)
	}
	output, err := os.Create(fileName)
	if err != nil {
		log.Logger().Error("failed to create file", zap.Error(err), zap.String("filename", fileName))
		return fileName, errors.Trace(err)
	}
	defer output.Close()
	// Download file
	response, err := http.Get(src)
	if err != nil {
		log.Logger().Error("failed to download", zap.Error(err), zap.String("source", src))
		return fileName, errors.Trace(err)
	}
	defer response.Body.Close()
	if response.StatusCode != http.StatusOK {
		return fileName, errors.Errorf("failed to download %s: %s", src, response.Status)
	}
	// Save file
	pbReader := progressbar.NewReader(response.Body, progressbar.DefaultBytes(
		response.ContentLength,
		"Downloading "+tokens[len(tokens)-1],
	))
	if _, err = io.Copy(output, &pbReader); err != nil {
		log.Logger().Error("failed to download", zap.Error(err), zap.String("source", src))
		return fileName, errors.Trace(err)
	}
	return fileName, nil
}

// unzip zip file.
func unzip(src, dst string) ([]string, error) {
	var fileNames []string
	// Open zip file
	r, err := zip.OpenReader(src)
	if err != nil {
		return fileNames, errors.Trace(err)
	}
	defer r.Close()
	// Extract files
	for _, f := range r.File {
		// Store filename/path for returning and using later on
		filePath := filepath.Join(dst, f.Name)
		// Check for ZipSlip. More Info: http://bit.ly/2MsjAWE
		if !strings.HasPrefix(filePath, filepath.Clean(dst)+string(os.PathSeparator)) {
			return fileNames, fmt.Errorf("%s: illegal file path", filePath)
		}
		fileNames = append(fileNames, filePath)
		if f.FileInfo().IsDir() {
			if err = os.MkdirAll(filePath, os.ModePerm); err != nil {
				return fileNames, errors.Trace(err)
			}
			continue
		}
		if err = extractFile(f, filePath); err != nil {
			return fileNames, errors.Trace(err)
		}
	}
	return fileNames, nil
}

func extractFile(f *zip.File, filePath string) error {
	if err := os.MkdirAll(filepath.Dir(filePath), os.ModePerm); err != nil {
		return err
	}
	rc, err := f.Open()
	if err != nil {
		return err
	}
	defer rc.Close()
	outFile, err := os.OpenFile(filePath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, f.Mode())
	if err != nil {
		return err
	}
	if _, err = io.Copy(outFile, rc); err != nil {
		_ = outFile.Close()
		return err
	}
	return outFile.Close()
}
