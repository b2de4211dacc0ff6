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
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fsouza/fake-gcs-server/fakestorage"
	"github.com/gorse-io/mind/storage/blob"
	"github.com/juju/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testNews = "N55528\tlifestyle\tlifestyleroyals\tThe Brands Queen Elizabeth, Prince Charles, and Prince Philip Swear By\tShop the notebooks, jackets, and more that the royals can't live without.\thttps://assets.msn.com/labs/mind/AAGH0ET.html\t[{\"Label\": \"Prince Philip, Duke of Edinburgh\", \"Type\": \"P\"}]\t[]\n" +
		"N19639\thealth\tweightloss\t\"Quoted\" 50 Worst Habits For Belly Fat\t\thttps://assets.msn.com/labs/mind/AAB19MK.html\t[]\t[]\n"
	testBehaviors = "1\tU13740\t11/11/2019 9:05:58 AM\tN55189 N42782 N34694\tN55689-1 N35729-0\n" +
		"2\tU91836\t11/12/2019 6:11:30 PM\t\tN20678-0 N39317-0 N58114-1\n" +
		"3\tU13740\t11/13/2019 10:00:00 AM\tN31739 N6072\tN1-0 N2-1\n" +
		"4\tU73700\t11/14/2019 7:01:48 AM\tN10732\t\n"
	testEntityEmbeddings = "Q41\t-0.063388\t-0.181451\t0.057501\t\n" +
		"Q56\t-0.093147\t-0.223585\t0.052614\t\n"
	testRelationEmbeddings = "P31\t-0.073467\t-0.132227\t0.034173\t\n" +
		"P21\t-0.078436\t0.108589\t-0.049604\t\n"
)

func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
	}
	return dir
}

func writeCorpus(t *testing.T) string {
	return writeFiles(t, map[string]string{
		NewsFile:              testNews,
		BehaviorsFile:         testBehaviors,
		EntityEmbeddingFile:   testEntityEmbeddings,
		RelationEmbeddingFile: testRelationEmbeddings,
	})
}

func TestLoader_LoadNews(t *testing.T) {
	loader := NewLocalLoader(writeCorpus(t))
	assert.Nil(t, loader.News())
	news, err := loader.LoadNews()
	assert.NoError(t, err)
	assert.Equal(t, []NewsRecord{
		{
			NewsId:           "N55528",
			Category:         "lifestyle",
			Subcategory:      "lifestyleroyals",
			Title:            "The Brands Queen Elizabeth, Prince Charles, and Prince Philip Swear By",
			Abstract:         "Shop the notebooks, jackets, and more that the royals can't live without.",
			URL:              "https://assets.msn.com/labs/mind/AAGH0ET.html",
			TitleEntities:    `[{"Label": "Prince Philip, Duke of Edinburgh", "Type": "P"}]`,
			AbstractEntities: "[]",
		},
		{
			NewsId:           "N19639",
			Category:         "health",
			Subcategory:      "weightloss",
			Title:            `"Quoted" 50 Worst Habits For Belly Fat`,
			Abstract:         "",
			URL:              "https://assets.msn.com/labs/mind/AAB19MK.html",
			TitleEntities:    "[]",
			AbstractEntities: "[]",
		},
	}, news)
	assert.Equal(t, news, loader.News())
}

func TestLoader_LoadNewsRowCount(t *testing.T) {
	var builder strings.Builder
	for i := 0; i < 100; i++ {
		builder.WriteString(strings.Join([]string{"N" + strings.Repeat("1", i%5+1), "c", "s", "t", "a", "u", "[]", "[]"}, "\t"))
		builder.WriteString("\r\n")
	}
	builder.WriteString("\n")
	loader := NewLocalLoader(writeFiles(t, map[string]string{NewsFile: builder.String()}))
	news, err := loader.LoadNews()
	assert.NoError(t, err)
	assert.Len(t, news, 100)
	assert.Equal(t, "[]", news[99].AbstractEntities)
}

func TestLoader_LoadNewsColumnMismatch(t *testing.T) {
	loader := NewLocalLoader(writeFiles(t, map[string]string{
		NewsFile: "N1\ta\tb\tc\td\te\tf\tg\nN2\ta\tb\tc\n",
	}))
	news, err := loader.LoadNews()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "news.tsv:2")
	assert.Nil(t, news)
	assert.Nil(t, loader.News())

	loader = NewLocalLoader(writeFiles(t, map[string]string{
		NewsFile: "N1\ta\tb\tc\td\te\tf\tg\th\n",
	}))
	_, err = loader.LoadNews()
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestLoader_LoadNewsMissing(t *testing.T) {
	loader := NewLocalLoader(t.TempDir())
	_, err := loader.LoadNews()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_LoadBehaviors(t *testing.T) {
	loader := NewLocalLoader(writeCorpus(t))
	behaviors, err := loader.LoadBehaviors()
	assert.NoError(t, err)
	assert.Len(t, behaviors, 4)
	assert.Equal(t, BehaviorRecord{
		ImpressionId: "1",
		UserId:       "U13740",
		Time:         "11/11/2019 9:05:58 AM",
		History:      "N55189 N42782 N34694",
		Impressions:  "N55689-1 N35729-0",
	}, behaviors[0])
	assert.Equal(t, "", behaviors[1].History)
	assert.Equal(t, "", behaviors[3].Impressions)
	assert.Equal(t, behaviors, loader.Behaviors())

	loader = NewLocalLoader(writeFiles(t, map[string]string{BehaviorsFile: "1\tU1\ttime\n"}))
	_, err = loader.LoadBehaviors()
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestLoader_LoadBehaviorsLongLine(t *testing.T) {
	history := strings.TrimSpace(strings.Repeat("N123456 ", 20000))
	loader := NewLocalLoader(writeFiles(t, map[string]string{
		BehaviorsFile: "1\tU1\t11/11/2019 9:05:58 AM\t" + history + "\tN1-1\n",
	}))
	behaviors, err := loader.LoadBehaviors()
	assert.NoError(t, err)
	assert.Len(t, behaviors, 1)
	assert.Len(t, behaviors[0].HistoryIds(), 20000)
}

func TestLoader_LoadEmbeddings(t *testing.T) {
	loader := NewLocalLoader(writeFiles(t, map[string]string{
		EntityEmbeddingFile:   "e1 0.1 0.2 0.3\ne2 1.0 2.0\n",
		RelationEmbeddingFile: "r1\t1\t2\t\nr1\t3\t4\t\n",
	}))
	entities, err := loader.LoadEntityEmbeddings()
	assert.NoError(t, err)
	assert.Equal(t, Embeddings{
		"e1": {0.1, 0.2, 0.3},
		"e2": {1.0, 2.0},
	}, entities)

	// last occurrence wins
	relations, err := loader.LoadRelationEmbeddings()
	assert.NoError(t, err)
	assert.Equal(t, Embeddings{"r1": {3, 4}}, relations)
}

func TestLoader_LoadEmbeddingsInvalid(t *testing.T) {
	// id without values
	loader := NewLocalLoader(writeFiles(t, map[string]string{EntityEmbeddingFile: "e1 0.1\ne2\n"}))
	_, err := loader.LoadEntityEmbeddings()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "entity_embedding.vec:2")

	// non-numeric value
	loader = NewLocalLoader(writeFiles(t, map[string]string{RelationEmbeddingFile: "r1 0.1 abc\n"}))
	_, err = loader.LoadRelationEmbeddings()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "abc")

	// missing file
	loader = NewLocalLoader(t.TempDir())
	_, err = loader.LoadEntityEmbeddings()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_WithDimension(t *testing.T) {
	dir := writeFiles(t, map[string]string{EntityEmbeddingFile: "e1 0.1 0.2 0.3\ne2 1.0 2.0\n"})
	_, err := NewLocalLoader(dir, WithDimension(3)).LoadEntityEmbeddings()
	assert.True(t, errors.Is(err, errors.NotValid))
	assert.ErrorContains(t, err, "expected 3 dimensions")

	embeddings, err := NewLocalLoader(dir, WithDimension(0)).LoadEntityEmbeddings()
	assert.NoError(t, err)
	assert.Len(t, embeddings, 2)
}

func TestLoader_ProcessUserHistory(t *testing.T) {
	loader := NewLocalLoader(writeCorpus(t))
	// behaviors are loaded on demand
	history, err := loader.ProcessUserHistory()
	assert.NoError(t, err)
	assert.Len(t, loader.Behaviors(), 4)
	assert.Equal(t, UserHistory{
		"U13740": {"N31739", "N6072"},
		"U73700": {"N10732"},
	}, history)
	_, exist := history["U91836"]
	assert.False(t, exist)
}

func TestLoader_ProcessUserHistoryCached(t *testing.T) {
	dir := writeCorpus(t)
	loader := NewLocalLoader(dir)
	_, err := loader.LoadBehaviors()
	assert.NoError(t, err)
	// cached behaviors are used after the file is gone
	assert.NoError(t, os.Remove(filepath.Join(dir, BehaviorsFile)))
	history, err := loader.ProcessUserHistory()
	assert.NoError(t, err)
	assert.Len(t, history, 2)

	_, err = NewLocalLoader(dir).ProcessUserHistory()
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoader_ProcessImpressions(t *testing.T) {
	loader := NewLocalLoader(writeCorpus(t))
	interactions, err := loader.ProcessImpressions()
	assert.NoError(t, err)
	assert.Equal(t, UserInteractions{
		"U13740": {{NewsId: "N1", Label: 0}, {NewsId: "N2", Label: 1}},
		"U91836": {{NewsId: "N20678", Label: 0}, {NewsId: "N39317", Label: 0}, {NewsId: "N58114", Label: 1}},
	}, interactions)
	_, exist := interactions["U73700"]
	assert.False(t, exist)
}

func TestLoader_ProcessImpressionsInvalid(t *testing.T) {
	// token without separator
	loader := NewLocalLoader(writeFiles(t, map[string]string{BehaviorsFile: "1\tU1\ttime\t\tN1 N2\n"}))
	_, err := loader.ProcessImpressions()
	assert.True(t, errors.Is(err, errors.NotValid))

	// label is not an integer
	loader = NewLocalLoader(writeFiles(t, map[string]string{BehaviorsFile: "1\tU1\ttime\t\tN1-x\n"}))
	_, err = loader.ProcessImpressions()
	assert.True(t, errors.Is(err, errors.NotValid))

	// split at the first separator
	loader = NewLocalLoader(writeFiles(t, map[string]string{BehaviorsFile: "1\tU1\ttime\t\tN1-1-0\n"}))
	_, err = loader.ProcessImpressions()
	assert.True(t, errors.Is(err, errors.NotValid))
}

func TestLoader_LoadAll(t *testing.T) {
	loader := NewLocalLoader(writeCorpus(t))
	corpus, err := loader.LoadAll()
	assert.NoError(t, err)
	assert.Len(t, corpus.News, 2)
	assert.Len(t, corpus.Behaviors, 4)
	assert.Equal(t, []float64{-0.063388, -0.181451, 0.057501}, corpus.EntityEmbeddings["Q41"])
	assert.Equal(t, []float64{-0.078436, 0.108589, -0.049604}, corpus.RelationEmbeddings["P21"])
}

func TestLoader_LoadAllMissingRelations(t *testing.T) {
	dir := writeCorpus(t)
	assert.NoError(t, os.Remove(filepath.Join(dir, RelationEmbeddingFile)))
	corpus, err := NewLocalLoader(dir).LoadAll()
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Nil(t, corpus)
}

func TestLoader_LoadAllFromGCS(t *testing.T) {
	objects := make([]fakestorage.Object, 0, 4)
	for name, content := range map[string]string{
		NewsFile:              testNews,
		BehaviorsFile:         testBehaviors,
		EntityEmbeddingFile:   testEntityEmbeddings,
		RelationEmbeddingFile: testRelationEmbeddings,
	} {
		objects = append(objects, fakestorage.Object{
			ObjectAttrs: fakestorage.ObjectAttrs{BucketName: "mind", Name: "MINDsmall_train/" + name},
			Content:     []byte(content),
		})
	}
	server := fakestorage.NewServer(objects)
	defer server.Stop()

	remote, err := NewLoader(blob.NewGCSWithClient(server.Client(), "mind", "MINDsmall_train")).LoadAll()
	assert.NoError(t, err)
	local, err := NewLocalLoader(writeCorpus(t)).LoadAll()
	assert.NoError(t, err)
	assert.Equal(t, local, remote)
}

func TestBehaviorRecord_Timestamp(t *testing.T) {
	record := BehaviorRecord{ImpressionId: "1", Time: "11/15/2019 8:55:22 AM"}
	timestamp, err := record.Timestamp()
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2019, 11, 15, 8, 55, 22, 0, time.UTC), timestamp)

	record = BehaviorRecord{ImpressionId: "2", Time: "11/15/2019 1:05:00 PM"}
	timestamp, err = record.Timestamp()
	assert.NoError(t, err)
	assert.Equal(t, time.Date(2019, 11, 15, 13, 5, 0, 0, time.UTC), timestamp)

	record = BehaviorRecord{ImpressionId: "3", Time: "not a time"}
	_, err = record.Timestamp()
	assert.Error(t, err)
}

func TestBehaviorRecord_Interactions(t *testing.T) {
	record := BehaviorRecord{Impressions: "N1-0 N2-1"}
	interactions, err := record.Interactions()
	assert.NoError(t, err)
	assert.Equal(t, []Interaction{{"N1", 0}, {"N2", 1}}, interactions)

	record = BehaviorRecord{Impressions: ""}
	interactions, err = record.Interactions()
	assert.NoError(t, err)
	assert.Empty(t, interactions)
}
