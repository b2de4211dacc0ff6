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
	"strings"

	"github.com/gorse-io/mind/common/util"
	"github.com/gorse-io/mind/storage/blob"
	"github.com/juju/errors"
)

type Option func(*Loader)

// WithDimension requires every embedding vector to have exactly dim values. Zero disables the check.
func WithDimension(dim int) Option {
	return func(l *Loader) {
		l.dimension = dim
	}
}

// Loader reads the files of a MIND dataset directory. The last loaded tables are kept on the
// loader. A Loader must not be used from multiple goroutines without synchronization.
type Loader struct {
	store     blob.Store
	dimension int

	news               []NewsRecord
	behaviors          []BehaviorRecord
	behaviorsLoaded    bool
	entityEmbeddings   Embeddings
	relationEmbeddings Embeddings
}

func NewLoader(store blob.Store, opts ...Option) *Loader {
	l := &Loader{store: store}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// NewLocalLoader creates a loader over a local directory.
func NewLocalLoader(dir string, opts ...Option) *Loader {
	return NewLoader(blob.NewPOSIX(dir), opts...)
}

// News returns the last loaded news table.
func (l *Loader) News() []NewsRecord {
	return l.news
}

// Behaviors returns the last loaded behavior table.
func (l *Loader) Behaviors() []BehaviorRecord {
	return l.behaviors
}

func (l *Loader) LoadNews() ([]NewsRecord, error) {
	var news []NewsRecord
	if err := readTSV(l.store, NewsFile, numNewsColumns, func(fields []string) {
		news = append(news, newNewsRecord(fields))
	}); err != nil {
		return nil, errors.Trace(err)
	}
	l.news = news
	return news, nil
}

func (l *Loader) LoadBehaviors() ([]BehaviorRecord, error) {
	var behaviors []BehaviorRecord
	if err := readTSV(l.store, BehaviorsFile, numBehaviorColumns, func(fields []string) {
		behaviors = append(behaviors, newBehaviorRecord(fields))
	}); err != nil {
		return nil, errors.Trace(err)
	}
	l.behaviors = behaviors
	l.behaviorsLoaded = true
	return behaviors, nil
}

func (l *Loader) LoadEntityEmbeddings() (Embeddings, error) {
	embeddings, err := l.loadEmbeddings(EntityEmbeddingFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	l.entityEmbeddings = embeddings
	return embeddings, nil
}

func (l *Loader) LoadRelationEmbeddings() (Embeddings, error) {
	embeddings, err := l.loadEmbeddings(RelationEmbeddingFile)
	if err != nil {
		return nil, errors.Trace(err)
	}
	l.relationEmbeddings = embeddings
	return embeddings, nil
}

// loadEmbeddings parses lines of "<id> <float> <float> ...". A repeated id keeps its last vector.
func (l *Loader) loadEmbeddings(name string) (Embeddings, error) {
	embeddings := make(Embeddings)
	err := readLines(l.store, name, func(lineNum int, line string) error {
		fields := strings.Fields(line)
		id, values := fields[0], fields[1:]
		if len(values) == 0 {
			return invalidLine(name, lineNum, nil, "embedding of %s is empty", id)
		}
		if l.dimension > 0 && len(values) != l.dimension {
			return invalidLine(name, lineNum, nil, "expected %d dimensions for %s but got %d", l.dimension, id, len(values))
		}
		vector, bad, err := util.ParseFloats[float64](values)
		if err != nil {
			return invalidLine(name, lineNum, err, "invalid value %q in embedding of %s", values[bad], id)
		}
		embeddings[id] = vector
		return nil
	})
	if err != nil {
		return nil, err
	}
	return embeddings, nil
}

func (l *Loader) ensureBehaviors() error {
	if l.behaviorsLoaded {
		return nil
	}
	_, err := l.LoadBehaviors()
	return err
}

// ProcessUserHistory collects the click history of every user. Behaviors are loaded first if
// they were never loaded. Rows with an empty history are skipped and a later row of the same
// user replaces an earlier one.
func (l *Loader) ProcessUserHistory() (UserHistory, error) {
	if err := l.ensureBehaviors(); err != nil {
		return nil, errors.Trace(err)
	}
	userHistory := make(UserHistory)
	for _, behavior := range l.behaviors {
		if history := behavior.HistoryIds(); history != nil {
			userHistory[behavior.UserId] = history
		}
	}
	return userHistory, nil
}

// ProcessImpressions collects the labeled impressions of every user with the same rules as
// ProcessUserHistory.
func (l *Loader) ProcessImpressions() (UserInteractions, error) {
	if err := l.ensureBehaviors(); err != nil {
		return nil, errors.Trace(err)
	}
	userInteractions := make(UserInteractions)
	for _, behavior := range l.behaviors {
		if strings.TrimSpace(behavior.Impressions) == "" {
			continue
		}
		interactions, err := behavior.Interactions()
		if err != nil {
			return nil, errors.Annotatef(err, "impression %s", behavior.ImpressionId)
		}
		userInteractions[behavior.UserId] = interactions
	}
	return userInteractions, nil
}

// LoadAll loads news, behaviors, entity embeddings and relation embeddings in this order.
// Nothing is returned if any of them fails.
func (l *Loader) LoadAll() (*Corpus, error) {
	news, err := l.LoadNews()
	if err != nil {
		return nil, errors.Trace(err)
	}
	behaviors, err := l.LoadBehaviors()
	if err != nil {
		return nil, errors.Trace(err)
	}
	entityEmbeddings, err := l.LoadEntityEmbeddings()
	if err != nil {
		return nil, errors.Trace(err)
	}
	relationEmbeddings, err := l.LoadRelationEmbeddings()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &Corpus{
		News:               news,
		Behaviors:          behaviors,
		EntityEmbeddings:   entityEmbeddings,
		RelationEmbeddings: relationEmbeddings,
	}, nil
}
