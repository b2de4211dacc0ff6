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

package dataset

import (
	"bufio"
	"fmt"
	"strings"

	"github.com/gorse-io/mind/storage/blob"
	"github.com/juju/errors"
)

// maxLineSize bounds a single line. Histories in MINDlarge run to tens of kilobytes.
const maxLineSize = 16 * 1024 * 1024

// readLines calls handler with every non-blank line of a file. Line numbers start at 1.
func readLines(store blob.Store, name string, handler func(lineNum int, line string) error) error {
	file, err := store.Open(name)
	if err != nil {
		return errors.Annotatef(err, "failed to open %s", name)
	}
	defer file.Close()
	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSuffix(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		if err = handler(lineNum, line); err != nil {
			return err
		}
	}
	if err = scanner.Err(); err != nil {
		return errors.Annotatef(err, "failed to read %s", name)
	}
	return nil
}

// readTSV splits every line on tabs. Cells are kept verbatim, quotes included.
func readTSV(store blob.Store, name string, numColumns int, handler func(fields []string)) error {
	return readLines(store, name, func(lineNum int, line string) error {
		fields := strings.Split(line, "\t")
		if len(fields) != numColumns {
			return invalidLine(name, lineNum, nil, "expected %d columns but got %d", numColumns, len(fields))
		}
		handler(fields)
		return nil
	})
}

func invalidLine(name string, lineNum int, cause error, format string, args ...any) error {
	return errors.NewNotValid(cause, fmt.Sprintf("%s:%d: ", name, lineNum)+fmt.Sprintf(format, args...))
}
