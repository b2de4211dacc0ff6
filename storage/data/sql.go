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
	"database/sql/driver"
	"encoding/json"
	"sort"
	"strings"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/glebarez/sqlite"
	"github.com/gorse-io/mind/dataset"
	"github.com/gorse-io/mind/storage"
	"github.com/juju/errors"
	"github.com/samber/lo"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrUserNotExist = errors.NotFoundf("user")

const (
	EntityEmbedding   = "entity"
	RelationEmbedding = "relation"
)

type SQLDriver int

const (
	MySQL SQLDriver = iota
	Postgres
	SQLite
)

// Open connects to a data store. Supported prefixes are mysql://, postgres://, postgresql:// and sqlite://.
func Open(path, tablePrefix string) (*SQLDatabase, error) {
	var err error
	database := new(SQLDatabase)
	database.TablePrefix = storage.TablePrefix(tablePrefix)
	gormConfig := storage.NewGORMConfig(tablePrefix)
	if strings.HasPrefix(path, storage.MySQLPrefix) {
		name := path[len(storage.MySQLPrefix):]
		if name, err = storage.AppendMySQLParams(name, map[string]string{
			"parseTime": "true",
		}); err != nil {
			return nil, errors.Trace(err)
		}
		database.driver = MySQL
		if database.gormDB, err = gorm.Open(mysql.Open(name), gormConfig); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.PostgresPrefix) || strings.HasPrefix(path, storage.PostgreSQLPrefix) {
		database.driver = Postgres
		if database.gormDB, err = gorm.Open(postgres.Open(path), gormConfig); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	} else if strings.HasPrefix(path, storage.SQLitePrefix) {
		// append parameters
		if path, err = storage.AppendURLParams(path, []lo.Tuple2[string, string]{
			{A: "_pragma", B: "busy_timeout(10000)"},
			{A: "_pragma", B: "journal_mode(wal)"},
		}); err != nil {
			return nil, errors.Trace(err)
		}
		name := path[len(storage.SQLitePrefix):]
		database.driver = SQLite
		if database.gormDB, err = gorm.Open(sqlite.Open(name), gormConfig); err != nil {
			return nil, errors.Trace(err)
		}
		return database, nil
	}
	return nil, errors.Errorf("Unknown database: %s", path)
}

type SQLNews struct {
	NewsId           string `gorm:"column:news_id;primaryKey;type:varchar(256)"`
	Category         string `gorm:"column:category;type:varchar(256)"`
	Subcategory      string `gorm:"column:subcategory;type:varchar(256)"`
	Title            string `gorm:"column:title;type:text"`
	Abstract         string `gorm:"column:abstract;type:text"`
	URL              string `gorm:"column:url;type:text"`
	TitleEntities    string `gorm:"column:title_entities;type:text"`
	AbstractEntities string `gorm:"column:abstract_entities;type:text"`
}

type SQLBehavior struct {
	ImpressionId string    `gorm:"column:impression_id;primaryKey;type:varchar(256)"`
	UserId       string    `gorm:"column:user_id;index;type:varchar(256)"`
	Time         string    `gorm:"column:time;type:varchar(256)"`
	Timestamp    time.Time `gorm:"column:time_stamp"`
	History      string    `gorm:"column:history;type:text"`
	Impressions  string    `gorm:"column:impressions;type:text"`
}

type SQLUser struct {
	UserId  string `gorm:"column:user_id;primaryKey;type:varchar(256)"`
	History string `gorm:"column:history;type:text"`
}

type SQLInteraction struct {
	UserId   string `gorm:"column:user_id;primaryKey;type:varchar(256)"`
	Position int    `gorm:"column:pos;primaryKey;autoIncrement:false"`
	NewsId   string `gorm:"column:news_id;index;type:varchar(256)"`
	Label    int    `gorm:"column:label"`
}

type SQLEmbedding struct {
	Kind   string `gorm:"column:kind;primaryKey;type:varchar(16)"`
	Id     string `gorm:"column:id;primaryKey;type:varchar(256)"`
	Vector Vector `gorm:"column:vector;type:text"`
}

// Vector is stored as a JSON array.
type Vector []float64

func (v Vector) Value() (driver.Value, error) {
	data, err := json.Marshal([]float64(v))
	if err != nil {
		return nil, errors.Trace(err)
	}
	return string(data), nil
}

func (v *Vector) Scan(src any) error {
	switch typed := src.(type) {
	case string:
		return json.Unmarshal([]byte(typed), v)
	case []byte:
		return json.Unmarshal(typed, v)
	case nil:
		*v = nil
		return nil
	default:
		return errors.Errorf("unsupported vector type %T", src)
	}
}

type SQLDatabase struct {
	storage.TablePrefix
	gormDB *gorm.DB
	driver SQLDriver
}

func (d *SQLDatabase) Init() error {
	return errors.Trace(d.gormDB.AutoMigrate(&SQLNews{}, &SQLBehavior{}, &SQLUser{}, &SQLInteraction{}, &SQLEmbedding{}))
}

func (d *SQLDatabase) Close() error {
	db, err := d.gormDB.DB()
	if err != nil {
		return errors.Trace(err)
	}
	return db.Close()
}

func (d *SQLDatabase) upsert(ctx context.Context) *gorm.DB {
	return d.gormDB.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true})
}

// BatchInsertNews inserts news or replaces rows with the same news id.
func (d *SQLDatabase) BatchInsertNews(ctx context.Context, news []dataset.NewsRecord) error {
	if len(news) == 0 {
		return nil
	}
	rows := lo.Map(news, func(n dataset.NewsRecord, _ int) SQLNews {
		return SQLNews{
			NewsId:           n.NewsId,
			Category:         n.Category,
			Subcategory:      n.Subcategory,
			Title:            n.Title,
			Abstract:         n.Abstract,
			URL:              n.URL,
			TitleEntities:    n.TitleEntities,
			AbstractEntities: n.AbstractEntities,
		}
	})
	return errors.Trace(d.upsert(ctx).Create(&rows).Error)
}

// BatchInsertBehaviors inserts behaviors or replaces rows with the same impression id.
func (d *SQLDatabase) BatchInsertBehaviors(ctx context.Context, behaviors []dataset.BehaviorRecord) error {
	if len(behaviors) == 0 {
		return nil
	}
	rows := make([]SQLBehavior, 0, len(behaviors))
	for _, b := range behaviors {
		timestamp, err := b.Timestamp()
		if err != nil {
			return errors.Trace(err)
		}
		rows = append(rows, SQLBehavior{
			ImpressionId: b.ImpressionId,
			UserId:       b.UserId,
			Time:         b.Time,
			Timestamp:    timestamp,
			History:      b.History,
			Impressions:  b.Impressions,
		})
	}
	return errors.Trace(d.upsert(ctx).Create(&rows).Error)
}

// BatchInsertUsers inserts every user that has a history or interactions.
func (d *SQLDatabase) BatchInsertUsers(ctx context.Context, history dataset.UserHistory, interactions dataset.UserInteractions) error {
	userIds := mapset.NewSet[string](lo.Keys(history)...)
	userIds.Append(lo.Keys(interactions)...)
	if userIds.Cardinality() == 0 {
		return nil
	}
	ids := userIds.ToSlice()
	sort.Strings(ids)
	rows := lo.Map(ids, func(userId string, _ int) SQLUser {
		return SQLUser{UserId: userId, History: strings.Join(history[userId], " ")}
	})
	return errors.Trace(d.upsert(ctx).Create(&rows).Error)
}

// BatchInsertInteractions replaces the interactions of every user in userInteractions.
func (d *SQLDatabase) BatchInsertInteractions(ctx context.Context, userInteractions dataset.UserInteractions) error {
	if len(userInteractions) == 0 {
		return nil
	}
	userIds := lo.Keys(userInteractions)
	sort.Strings(userIds)
	for _, chunk := range lo.Chunk(userIds, batchSize) {
		if err := d.gormDB.WithContext(ctx).Where("user_id IN ?", chunk).Delete(&SQLInteraction{}).Error; err != nil {
			return errors.Trace(err)
		}
	}
	var rows []SQLInteraction
	for _, userId := range userIds {
		for i, interaction := range userInteractions[userId] {
			rows = append(rows, SQLInteraction{
				UserId:   userId,
				Position: i,
				NewsId:   interaction.NewsId,
				Label:    interaction.Label,
			})
		}
	}
	if len(rows) == 0 {
		return nil
	}
	return errors.Trace(d.gormDB.WithContext(ctx).Create(&rows).Error)
}

// BatchInsertEmbeddings inserts vectors of kind EntityEmbedding or RelationEmbedding.
func (d *SQLDatabase) BatchInsertEmbeddings(ctx context.Context, kind string, embeddings dataset.Embeddings) error {
	if kind != EntityEmbedding && kind != RelationEmbedding {
		return errors.NotValidf("embedding kind %s", kind)
	}
	if len(embeddings) == 0 {
		return nil
	}
	ids := lo.Keys(embeddings)
	sort.Strings(ids)
	rows := lo.Map(ids, func(id string, _ int) SQLEmbedding {
		return SQLEmbedding{Kind: kind, Id: id, Vector: embeddings[id]}
	})
	return errors.Trace(d.upsert(ctx).Create(&rows).Error)
}

func (d *SQLDatabase) CountNews(ctx context.Context) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Model(&SQLNews{}).Count(&count).Error
	return count, errors.Trace(err)
}

func (d *SQLDatabase) CountBehaviors(ctx context.Context) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Model(&SQLBehavior{}).Count(&count).Error
	return count, errors.Trace(err)
}

func (d *SQLDatabase) CountInteractions(ctx context.Context) (int64, error) {
	var count int64
	err := d.gormDB.WithContext(ctx).Model(&SQLInteraction{}).Count(&count).Error
	return count, errors.Trace(err)
}

// GetUserHistory returns the stored history of a user or ErrUserNotExist.
func (d *SQLDatabase) GetUserHistory(ctx context.Context, userId string) ([]string, error) {
	var users []SQLUser
	if err := d.gormDB.WithContext(ctx).Where("user_id = ?", userId).Limit(1).Find(&users).Error; err != nil {
		return nil, errors.Trace(err)
	}
	if len(users) == 0 {
		return nil, errors.Trace(ErrUserNotExist)
	}
	return strings.Fields(users[0].History), nil
}

// GetInteractions returns the stored interactions of a user in impression order.
func (d *SQLDatabase) GetInteractions(ctx context.Context, userId string) ([]dataset.Interaction, error) {
	var rows []SQLInteraction
	if err := d.gormDB.WithContext(ctx).Where("user_id = ?", userId).Order("pos").Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	return lo.Map(rows, func(row SQLInteraction, _ int) dataset.Interaction {
		return dataset.Interaction{NewsId: row.NewsId, Label: row.Label}
	}), nil
}

func (d *SQLDatabase) GetEmbedding(ctx context.Context, kind, id string) ([]float64, error) {
	var rows []SQLEmbedding
	if err := d.gormDB.WithContext(ctx).Where("kind = ? AND id = ?", kind, id).Limit(1).Find(&rows).Error; err != nil {
		return nil, errors.Trace(err)
	}
	if len(rows) == 0 {
		return nil, errors.NotFoundf("%s embedding %s", kind, id)
	}
	return rows[0].Vector, nil
}
