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
	"time"

	"github.com/araddon/dateparse"
	"github.com/gorse-io/mind/common/util"
	"github.com/juju/errors"
)

const (
	NewsFile              = "news.tsv"
	BehaviorsFile         = "behaviors.tsv"
	EntityEmbeddingFile   = "entity_embedding.vec"
	RelationEmbeddingFile = "relation_embedding.vec"

	numNewsColumns     = 8
	numBehaviorColumns = 5
)

// NewsRecord is a row of news.tsv. Empty strings stand for missing cells.
type NewsRecord struct {
	NewsId           string
	Category         string
	Subcategory      string
	Title            string
	Abstract         string
	URL              string
	TitleEntities    string
	AbstractEntities string
}

func newNewsRecord(fields []string) NewsRecord {
	return NewsRecord{
		NewsId:           fields[0],
		Category:         fields[1],
		Subcategory:      fields[2],
		Title:            fields[3],
		Abstract:         fields[4],
		URL:              fields[5],
		TitleEntities:    fields[6],
		AbstractEntities: fields[7],
	}
}

// BehaviorRecord is a row of behaviors.tsv.
type BehaviorRecord struct {
	ImpressionId string
	UserId       string
	Time         string
	// History is a space-separated list of news ids clicked before this impression.
	History string
	// Impressions is a space-separated list of news_id-label tokens.
	Impressions string
}

func newBehaviorRecord(fields []string) BehaviorRecord {
	return BehaviorRecord{
		ImpressionId: fields[0],
		UserId:       fields[1],
		Time:         fields[2],
		History:      fields[3],
		Impressions:  fields[4],
	}
}

// Timestamp parses Time as UTC. MIND writes times like "11/15/2019 8:55:22 AM".
func (r BehaviorRecord) Timestamp() (time.Time, error) {
	t, err := dateparse.ParseIn(r.Time, time.UTC)
	if err != nil {
		return time.Time{}, errors.Annotatef(err, "invalid time of impression %s", r.ImpressionId)
	}
	return t, nil
}

// HistoryIds splits History on whitespace. It returns nil for an empty history.
func (r BehaviorRecord) HistoryIds() []string {
	ids := strings.Fields(r.History)
	if len(ids) == 0 {
		return nil
	}
	return ids
}

// Interaction is a news id shown in an impression and whether it was clicked.
type Interaction struct {
	NewsId string
	Label  int
}

// Interactions parses Impressions. Every token is split at its first '-'.
func (r BehaviorRecord) Interactions() ([]Interaction, error) {
	tokens := strings.Fields(r.Impressions)
	interactions := make([]Interaction, 0, len(tokens))
	for _, token := range tokens {
		interaction, err := parseInteraction(token)
		if err != nil {
			return nil, err
		}
		interactions = append(interactions, interaction)
	}
	return interactions, nil
}

func parseInteraction(token string) (Interaction, error) {
	newsId, label, found := strings.Cut(token, "-")
	if !found {
		return Interaction{}, errors.NotValidf("impression %q without label", token)
	}
	value, err := util.ParseInt[int](label)
	if err != nil {
		return Interaction{}, errors.NewNotValid(err, "label of impression "+token)
	}
	return Interaction{NewsId: newsId, Label: value}, nil
}

// Embeddings maps an entity or relation id to its vector.
type Embeddings map[string][]float64

// UserHistory maps a user id to the clicked news ids of the user's last impression with a history.
type UserHistory map[string][]string

// UserInteractions maps a user id to the interactions of the user's last impression.
type UserInteractions map[string][]Interaction

// Corpus holds every table of a MIND dataset directory.
type Corpus struct {
	News               []NewsRecord
	Behaviors          []BehaviorRecord
	EntityEmbeddings   Embeddings
	RelationEmbeddings Embeddings
}
