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

package main

import (
	"fmt"
	"strings"

	"github.com/gorse-io/mind/base/log"
	"github.com/gorse-io/mind/cmd/version"
	"github.com/gorse-io/mind/common/datautil"
	"github.com/gorse-io/mind/config"
	"github.com/gorse-io/mind/dataset"
	"github.com/gorse-io/mind/storage/blob"
	"github.com/gorse-io/mind/storage/data"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var globalConfig *config.Config

var rootCommand = &cobra.Command{
	Use:           "mind",
	Short:         "Tools for the MIND news recommendation dataset.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		debug, _ := cmd.Flags().GetBool("debug")
		log.SetLogger(cmd.Flags(), debug)
		configPath, _ := cmd.Flags().GetString("config")
		var err error
		if globalConfig, err = config.LoadConfig(configPath); err != nil {
			return errors.Trace(err)
		}
		if globalConfig.Dataset.CacheDir != "" {
			datautil.SetCacheDir(globalConfig.Dataset.CacheDir)
		}
		return nil
	},
}

var versionCommand = &cobra.Command{
	Use:   "version",
	Short: "Show build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprint(cmd.OutOrStdout(), version.BuildInfo())
	},
}

var downloadCommand = &cobra.Command{
	Use:   "download NAME...",
	Short: "Download and extract MIND archives",
	Long:  "Download and extract MIND archives. Available datasets: " + strings.Join(datautil.Names(), ", "),
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		for _, name := range lo.Uniq(args) {
			path, err := datautil.DownloadAndUnzip(name)
			if err != nil {
				return errors.Trace(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
		}
		return nil
	},
}

var checkCommand = &cobra.Command{
	Use:   "check [DIR]",
	Short: "Load every file of a dataset and report malformed input",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		_, _, _, err := loadCorpus(args)
		return err
	},
}

var importCommand = &cobra.Command{
	Use:   "import [DIR]",
	Short: "Load a dataset and write it into the data store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		corpus, history, interactions, err := loadCorpus(args)
		if err != nil {
			return err
		}
		log.Logger().Info("connect data store", zap.String("data_store", log.RedactDBURL(globalConfig.Database.DataStore)))
		database, err := data.Open(globalConfig.Database.DataStore, globalConfig.Database.TablePrefix)
		if err != nil {
			return errors.Trace(err)
		}
		defer func() {
			if err := database.Close(); err != nil {
				log.Logger().Error("failed to close data store", zap.Error(err))
			}
		}()
		if err = database.Init(); err != nil {
			return errors.Trace(err)
		}
		return data.Import(cmd.Context(), database, corpus, history, interactions)
	},
}

// loadCorpus loads the dataset at args[0], or the configured directory if args is empty.
func loadCorpus(args []string) (*dataset.Corpus, dataset.UserHistory, dataset.UserInteractions, error) {
	dir := globalConfig.Dataset.Dir
	if len(args) > 0 {
		dir = args[0]
	}
	store, err := blob.Open(dir, globalConfig)
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	loader := dataset.NewLoader(store, dataset.WithDimension(globalConfig.Dataset.EmbeddingDim))
	corpus, err := loader.LoadAll()
	if err != nil {
		return nil, nil, nil, errors.Annotatef(err, "failed to load %s", dir)
	}
	history, err := loader.ProcessUserHistory()
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	interactions, err := loader.ProcessImpressions()
	if err != nil {
		return nil, nil, nil, errors.Trace(err)
	}
	log.Logger().Info("load corpus",
		zap.String("dir", dir),
		zap.Int("n_news", len(corpus.News)),
		zap.Int("n_behaviors", len(corpus.Behaviors)),
		zap.Int("n_entity_embeddings", len(corpus.EntityEmbeddings)),
		zap.Int("n_relation_embeddings", len(corpus.RelationEmbeddings)),
		zap.Int("n_users_with_history", len(history)),
		zap.Int("n_users_with_impressions", len(interactions)))
	return corpus, history, interactions, nil
}

func init() {
	log.AddFlags(rootCommand.PersistentFlags())
	rootCommand.PersistentFlags().Bool("debug", false, "use debug log mode")
	rootCommand.PersistentFlags().StringP("config", "c", "", "configuration file path")
	rootCommand.AddCommand(versionCommand, downloadCommand, checkCommand, importCommand)
}

func main() {
	if err := rootCommand.Execute(); err != nil {
		log.Logger().Fatal("failed to execute", zap.Error(err))
	}
}
