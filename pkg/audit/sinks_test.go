package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRecord(id string, ts time.Time) Record {
	return Record{
		Timestamp:   ts,
		Repo:        "mirrornode",
		RepoHash:    "deadbeef",
		CharterHash: Unchartered,
		EventType:   "execution",
		Actor:       "system",
		Verdict:     VerdictSuccess,
		Evidence:    map[string]any{"function": "route_event"},
		AuditID:     id,
	}
}

func TestLedger_ChainAndTamper(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	assert.Equal(t, genesis, l.ChainHead())

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, l.Append(ctx, sampleRecord(id, fixedTime.Add(time.Duration(i)*time.Second))))
	}
	require.Equal(t, 3, l.Len())
	require.NoError(t, l.Verify())

	second, err := l.Get("b")
	require.NoError(t, err)
	first, _ := l.Get("a")
	assert.Equal(t, first.EntryHash, second.PreviousHash)
	assert.True(t, strings.HasPrefix(second.RecordHash, "sha256:"))

	assert.ErrorIs(t, l.Append(ctx, sampleRecord("b", fixedTime)), ErrDuplicateID)

	_, err = l.Get("missing")
	assert.ErrorIs(t, err, ErrRecordNotFound)

	second.Record.Verdict = VerdictFailure
	assert.ErrorIs(t, l.Verify(), ErrChainBroken)
}

func TestVerifyChain_DetectsRelink(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Append(ctx, sampleRecord("a", fixedTime)))
	require.NoError(t, l.Append(ctx, sampleRecord("b", fixedTime)))

	l.entries[1].PreviousHash = genesis
	assert.ErrorIs(t, VerifyChain(l.entries), ErrChainBroken)
	assert.NoError(t, VerifyChain(nil))
}

func TestDossierSink_Roundtrip(t *testing.T) {
	root := t.TempDir()
	sink := NewDossierSink(root)
	g := testGate(sink)

	ids := make([]string, 0, 2)
	for _, v := range []Verdict{VerdictSuccess, VerdictFailure} {
		id, err := g.Emit(context.Background(), Entry{EventType: "execution", Actor: "system", Verdict: v})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	path := filepath.Join(root, "dossiers", "2026-03", "audit-mirrornode-2026-03-04.ndjson")
	assert.FileExists(t, path)

	recs, err := ReadDossiers(filepath.Join(root, "dossiers"))
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, ids[0], recs[0].AuditID)
	assert.Equal(t, VerdictFailure, recs[1].Verdict)
}

func TestReadDossiers_RejectsCorruptLine(t *testing.T) {
	root := t.TempDir()
	sink := NewDossierSink(root)
	require.NoError(t, sink.Append(context.Background(), sampleRecord("a", fixedTime)))

	path := filepath.Join(root, "dossiers", "2026-03", "audit-mirrornode-2026-03-04.ndjson")
	appendLine(t, path, "{not json")

	_, err := ReadDossiers(filepath.Join(root, "dossiers"))
	assert.Error(t, err)
}

func TestSQLSink_SQLite(t *testing.T) {
	ctx := context.Background()
	sink, err := OpenSQLSink(ctx, DialectSQLite, filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	defer func() { _ = sink.Close() }()

	require.NoError(t, sink.Append(ctx, sampleRecord("a", fixedTime)))
	require.NoError(t, sink.Append(ctx, sampleRecord("b", fixedTime.Add(time.Second))))
	assert.Error(t, sink.Append(ctx, sampleRecord("a", fixedTime)), "audit_id is append-only")

	recs, err := sink.List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "a", recs[0].AuditID)
	assert.True(t, fixedTime.Equal(recs[0].Timestamp))
	assert.Equal(t, "route_event", recs[0].Evidence["function"])
}

func TestSQLSink_PostgresDialect(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(regexp.QuoteMeta("CREATE TABLE IF NOT EXISTS audit_records")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).
		WithArgs("a", sqlmock.AnyArg(), "mirrornode", "deadbeef", Unchartered, "execution", "system", "SUCCESS", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO audit_records")).
		WillReturnError(errors.New("connection reset"))

	ctx := context.Background()
	sink, err := NewSQLSink(ctx, db, DialectPostgres)
	require.NoError(t, err)
	assert.Contains(t, sink.insertQuery(), "$9")

	require.NoError(t, sink.Append(ctx, sampleRecord("a", fixedTime)))
	assert.Error(t, sink.Append(ctx, sampleRecord("b", fixedTime)))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisSink_UnreachableFailsClosed(t *testing.T) {
	client := redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 200 * time.Millisecond,
		MaxRetries:  -1,
	})
	defer func() { _ = client.Close() }()

	g := testGate(NewRedisSinkWithClient(client, ""))
	_, err := g.Emit(context.Background(), Entry{Verdict: VerdictSuccess})
	assert.ErrorIs(t, err, ErrEmissionFailed)
}

type fakeS3 struct {
	inputs []*s3.PutObjectInput
	bodies [][]byte
	err    error
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	body, _ := io.ReadAll(in.Body)
	f.inputs = append(f.inputs, in)
	f.bodies = append(f.bodies, body)
	return &s3.PutObjectOutput{}, nil
}

func TestS3Sink_PutsOneObjectPerRecord(t *testing.T) {
	fake := &fakeS3{}
	sink := &S3Sink{client: fake, bucket: "audit", prefix: "prod/"}

	require.NoError(t, sink.Append(context.Background(), sampleRecord("abc", fixedTime)))
	require.Len(t, fake.inputs, 1)
	in := fake.inputs[0]
	assert.Equal(t, "audit", aws.ToString(in.Bucket))
	assert.Equal(t, "prod/dossiers/2026-03/audit-mirrornode-abc.json", aws.ToString(in.Key))
	assert.Equal(t, "*", aws.ToString(in.IfNoneMatch))

	var rec Record
	require.NoError(t, json.Unmarshal(fake.bodies[0], &rec))
	assert.Equal(t, "abc", rec.AuditID)

	fake.err = errors.New("precondition failed")
	assert.Error(t, sink.Append(context.Background(), sampleRecord("abc", fixedTime)))
}

func TestMultiSink_AllOrNothing(t *testing.T) {
	ctx := context.Background()
	assert.ErrorIs(t, MultiSink{}.Append(ctx, sampleRecord("a", fixedTime)), ErrSinkNotConfigured)

	first := NewLedger()
	failing := SinkFunc(func(context.Context, Record) error { return errors.New("down") })
	g := testGate(MultiSink{first, failing})

	_, err := g.Emit(ctx, Entry{Verdict: VerdictSuccess})
	assert.ErrorIs(t, err, ErrEmissionFailed)
	assert.Equal(t, 1, first.Len())

	second := NewLedger()
	_, err = testGate(MultiSink{first, second}).Emit(ctx, Entry{Verdict: VerdictSuccess})
	require.NoError(t, err)
	assert.Equal(t, 1, second.Len())
}

func TestExporter_GeneratePack(t *testing.T) {
	ctx := context.Background()
	l := NewLedger()
	require.NoError(t, l.Append(ctx, sampleRecord("a", fixedTime)))
	other := sampleRecord("b", fixedTime.Add(time.Hour))
	other.Repo = "elsewhere"
	require.NoError(t, l.Append(ctx, other))

	pack, checksum, err := NewExporter(l).GeneratePack(ctx, ExportRequest{Repo: "mirrornode"})
	require.NoError(t, err)
	assert.Len(t, checksum, 64)

	zr, err := zip.NewReader(bytes.NewReader(pack), int64(len(pack)))
	require.NoError(t, err)
	files := map[string][]byte{}
	for _, f := range zr.File {
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		require.NoError(t, err)
		_ = rc.Close()
		files[f.Name] = data
	}
	require.Contains(t, files, "entries.json")
	require.Contains(t, files, "manifest.json")

	var manifest map[string]any
	require.NoError(t, json.Unmarshal(files["manifest.json"], &manifest))
	assert.Equal(t, float64(1), manifest["record_count"])
	assert.Equal(t, l.ChainHead(), manifest["chain_head"])

	_, _, err = NewExporter(l).GeneratePack(ctx, ExportRequest{StartTime: fixedTime.Add(time.Hour), EndTime: fixedTime})
	assert.ErrorIs(t, err, ErrInvalidTimeRange)
	_, _, err = NewExporter(nil).GeneratePack(ctx, ExportRequest{})
	assert.ErrorIs(t, err, ErrLedgerNotConfigured)
}
