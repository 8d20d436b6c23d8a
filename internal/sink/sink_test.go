package sink

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	gojson "github.com/goccy/go-json"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
	"github.com/rzpsarthak13/vaccinesurvey/internal/table"
)

func testSchema() *core.Schema {
	return &core.Schema{
		Name: "sample-test",
		Fields: []core.FieldDefinition{
			{Name: "sex", Kind: core.KindCategorical},
			{Name: "ama1", Kind: core.KindNumeric, Group: "immunological_data"},
			{Name: "birth_date", Kind: core.KindTemporal},
		},
		Metas: []core.FieldDefinition{
			{Name: "study_code", Kind: core.KindText},
		},
	}
}

func testTable(t *testing.T, records ...core.RawRecord) *core.Table {
	t.Helper()
	tbl, err := table.Build(records, testSchema())
	require.NoError(t, err)
	return tbl
}

func fixtureTable(t *testing.T) *core.Table {
	return testTable(t,
		core.RawRecord{
			"study_code":         "VS-001",
			"sex":                "M",
			"birth_date":         "1980-02-03",
			"immunological_data": map[string]any{"ama1": 12.5},
		},
		core.RawRecord{
			"study_code": "VS-002",
			"sex":        "F",
			"birth_date": "",
		},
	)
}

func TestFactoryRegistry(t *testing.T) {
	assert.Equal(t, []string{"kafka", "memory", "none", "sql"}, GetRegisteredTypes())

	s, err := Create(registry.InternalSinkConfig{}, nil)
	require.NoError(t, err)
	assert.IsType(t, Discard{}, s)

	s, err = Create(registry.InternalSinkConfig{Type: "memory"}, zaptest.NewLogger(t))
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	_, err = Create(registry.InternalSinkConfig{Type: "s3"}, nil)
	assert.ErrorContains(t, err, "unsupported sink type")
}

func TestMemorySink(t *testing.T) {
	m := NewMemory()
	tbl := fixtureTable(t)

	require.NoError(t, m.Publish(context.Background(), tbl))
	require.NoError(t, m.Publish(context.Background(), tbl))

	got, ok := m.Table("sample-test")
	require.True(t, ok)
	assert.Same(t, tbl, got)
	assert.Equal(t, []string{"sample-test"}, m.Names())
	assert.Equal(t, 2, m.Publishes())

	require.NoError(t, m.Close())
	assert.Error(t, m.Publish(context.Background(), tbl))
}

func TestEncodeRow(t *testing.T) {
	tbl := fixtureTable(t)

	raw, err := EncodeRow(tbl, 1)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, gojson.Unmarshal(raw, &got))
	assert.Equal(t, map[string]any{
		"sex":        "F",
		"ama1":       nil,
		"birth_date": nil,
		"study_code": "VS-002",
	}, got)
}

type sqlRow struct {
	index     int64
	sex       sql.NullString
	ama1      sql.NullFloat64
	birthDate sql.NullString
	studyCode sql.NullString
}

func readRows(t *testing.T, s *SQL) []sqlRow {
	t.Helper()
	rows, err := s.DB().Query(`SELECT row_index, sex, ama1, birth_date, study_code FROM "` + s.TableName() + `" ORDER BY row_index`)
	require.NoError(t, err)
	defer rows.Close()

	var out []sqlRow
	for rows.Next() {
		var r sqlRow
		require.NoError(t, rows.Scan(&r.index, &r.sex, &r.ama1, &r.birthDate, &r.studyCode))
		out = append(out, r)
	}
	require.NoError(t, rows.Err())
	return out
}

func newSQLiteSink(t *testing.T) *SQL {
	t.Helper()
	s, err := NewSQL(registry.InternalSQLConfig{
		Driver:   "sqlite",
		Database: filepath.Join(t.TempDir(), "survey.db"),
		Table:    "vaccine_survey",
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteSinkPublish(t *testing.T) {
	s := newSQLiteSink(t)

	require.NoError(t, s.Publish(context.Background(), fixtureTable(t)))

	rows := readRows(t, s)
	require.Len(t, rows, 2)

	assert.Equal(t, int64(0), rows[0].index)
	assert.Equal(t, "M", rows[0].sex.String)
	assert.True(t, rows[0].ama1.Valid)
	assert.InDelta(t, 12.5, rows[0].ama1.Float64, 1e-9)
	assert.Equal(t, "1980-02-03", rows[0].birthDate.String)
	assert.Equal(t, "VS-001", rows[0].studyCode.String)

	assert.Equal(t, "F", rows[1].sex.String)
	assert.False(t, rows[1].ama1.Valid)
	assert.False(t, rows[1].birthDate.Valid)
}

func TestSQLiteSinkRepublishReplacesRows(t *testing.T) {
	s := newSQLiteSink(t)
	ctx := context.Background()

	require.NoError(t, s.Publish(ctx, fixtureTable(t)))
	require.NoError(t, s.Publish(ctx, testTable(t, core.RawRecord{"study_code": "VS-009", "sex": "F"})))

	rows := readRows(t, s)
	require.Len(t, rows, 1)
	assert.Equal(t, "VS-009", rows[0].studyCode.String)
}

func TestSQLSinkClosed(t *testing.T) {
	s := newSQLiteSink(t)
	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Publish(context.Background(), fixtureTable(t)), ErrSQLSinkClosed)
	assert.NoError(t, s.Close())
}

func TestSQLSinkCloseDuringPublish(t *testing.T) {
	s := newSQLiteSink(t)
	tbl := fixtureTable(t)

	errs := make(chan error, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < cap(errs); i++ {
			errs <- s.Publish(context.Background(), tbl)
		}
	}()
	require.NoError(t, s.Close())
	<-done
	close(errs)

	for err := range errs {
		if err != nil {
			assert.ErrorIs(t, err, ErrSQLSinkClosed)
		}
	}
}

func TestSQLStatements(t *testing.T) {
	cols := []core.Column{
		{Name: "sex", Kind: core.KindCategorical},
		{Name: "ama1", Kind: core.KindNumeric},
	}

	pg := &SQL{dialect: dialects["postgres"], table: "survey"}
	assert.Equal(t, `CREATE TABLE IF NOT EXISTS "survey" ("row_index" INTEGER NOT NULL, "sex" TEXT, "ama1" DOUBLE PRECISION)`, pg.createStatement(cols))
	assert.Equal(t, `INSERT INTO "survey" ("row_index", "sex", "ama1") VALUES ($1, $2, $3)`, pg.insertStatement(cols))

	my := &SQL{dialect: dialects["mysql"], table: "survey"}
	assert.Equal(t, "INSERT INTO `survey` (`row_index`, `sex`, `ama1`) VALUES (?, ?, ?)", my.insertStatement(cols))

	d := time.Date(1980, 2, 3, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, d, my.arg(core.KindTemporal, core.NewValue(d)))
	sqlite := &SQL{dialect: dialects["sqlite"]}
	assert.Equal(t, "1980-02-03", sqlite.arg(core.KindTemporal, core.NewValue(d)))
	assert.Equal(t, "true", sqlite.arg(core.KindCategorical, core.NewValue(true)))
	assert.Nil(t, sqlite.arg(core.KindNumeric, core.Missing()))
}

func TestBuildDSN(t *testing.T) {
	assert.Equal(t,
		"host=db port=5432 user=u password=p dbname=survey sslmode=disable",
		buildDSN(registry.InternalSQLConfig{Driver: "postgres", Host: "db", Username: "u", Password: "p", Database: "survey"}))

	mysqlDSN := buildDSN(registry.InternalSQLConfig{Driver: "mysql", Host: "db", Port: 3306, Username: "u", Password: "p", Database: "survey"})
	assert.Contains(t, mysqlDSN, "u:p@tcp(db:3306)/survey")
	assert.Contains(t, mysqlDSN, "parseTime=true")

	assert.Equal(t, "/tmp/s.db?_pragma=busy_timeout(5000)", buildDSN(registry.InternalSQLConfig{Driver: "sqlite", Database: "/tmp/s.db"}))
}

type fakeWriter struct {
	mu       sync.Mutex
	messages []kafka.Message
	err      error
	closed   bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.err != nil {
		return w.err
	}
	w.messages = append(w.messages, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func header(m kafka.Message, key string) string {
	for _, h := range m.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func TestKafkaSinkPublish(t *testing.T) {
	w := &fakeWriter{}
	k := NewKafkaWithWriter(w, "samples", zaptest.NewLogger(t))

	require.NoError(t, k.Publish(context.Background(), fixtureTable(t)))
	require.Len(t, w.messages, 2)

	m := w.messages[0]
	assert.Equal(t, "VS-001", string(m.Key))
	assert.Equal(t, "sample-test", header(m, "schema"))
	assert.Equal(t, "0", header(m, "row"))

	var payload map[string]any
	require.NoError(t, gojson.Unmarshal(m.Value, &payload))
	assert.Equal(t, "M", payload["sex"])
	assert.Equal(t, 12.5, payload["ama1"])
	assert.Equal(t, "1980-02-03", payload["birth_date"])

	assert.Equal(t, "1", header(w.messages[1], "row"))
}

func TestKafkaSinkErrors(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	k := NewKafkaWithWriter(w, "samples", nil)

	err := k.Publish(context.Background(), fixtureTable(t))
	assert.ErrorContains(t, err, "broker down")

	require.NoError(t, k.Publish(context.Background(), testTable(t)))

	require.NoError(t, k.Close())
	assert.True(t, w.closed)
	assert.ErrorIs(t, k.Publish(context.Background(), fixtureTable(t)), ErrKafkaSinkClosed)
}

func TestNewKafkaRequiresBrokersAndTopic(t *testing.T) {
	_, err := NewKafka(registry.InternalKafkaConfig{Topic: "t"}, nil)
	assert.Error(t, err)
	_, err = NewKafka(registry.InternalKafkaConfig{Brokers: []string{"localhost:9092"}}, nil)
	assert.Error(t, err)
}
