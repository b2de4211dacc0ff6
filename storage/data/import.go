// Copyright 2022 gorse Project Authors
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

package data

import (
	"context"
	"time"

	"github.com/gorse-io/mind/base/log"
	"github.com/gorse-io/mind/dataset"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"go.uber.org/zap"
)

const batchSize = 1000

// Import writes a loaded corpus and its derived user maps into the data store.
func Import(ctx context.Context, database *SQLDatabase, corpus *dataset.Corpus, history dataset.UserHistory, interactions dataset.UserInteractions) error {
	start := time.Now()
	for i, chunk := range lo.Chunk(corpus.News, batchSize) {
		if err := database.BatchInsertNews(ctx, chunk); err != nil {
			return errors.Annotatef(err, "failed to import news batch %d", i)
		}
	}
	log.Logger().Info("import news", zap.Int("n_news", len(corpus.News)))
	for i, chunk := range lo.Chunk(corpus.Behaviors, batchSize) {
		if err := database.BatchInsertBehaviors(ctx, chunk); err != nil {
			return errors.Annotatef(err, "failed to import behaviors batch %d", i)
		}
	}
	log.Logger().Info("import behaviors", zap.Int("n_behaviors", len(corpus.Behaviors)))
	if err := database.BatchInsertUsers(ctx, history, interactions); err != nil {
		return errors.Annotate(err, "failed to import users")
	}
	if err := database.BatchInsertInteractions(ctx, interactions); err != nil {
		return errors.Annotate(err, "failed to import interactions")
	}
	log.Logger().Info("import users", zap.Int("n_history", len(history)), zap.Int("n_interactions", len(interactions)))
	if err := database.BatchInsertEmbeddings(ctx, EntityEmbedding, corpus.EntityEmbeddings); err != nil {
		return errors.Annotate(err, "failed to import entity embeddings")
	}
	if err := database.BatchInsertEmbeddings(ctx, RelationEmbedding, corpus.RelationEmbeddings); err != nil {
		return errors.Annotate(err, "failed to import relation embeddings")
	}
	log.Logger().Info("import embeddings",
		zap.Int("n_entities", len(corpus.EntityEmbeddings)),
		zap.Int("n_relations", len(corpus.RelationEmbeddings)),
		zap.Duration("used_time", time.Since(start)))
	return nil
}
