package merging

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/gatherhq/laurel/internal/platform/database"
	"github.com/gatherhq/laurel/internal/repositories/identitylink"
	"github.com/gatherhq/laurel/internal/repositories/mergeevent"
	"github.com/gatherhq/laurel/internal/repositories/person"
	"github.com/gatherhq/laurel/pkg/models"
)

func testLogger() ectologger.Logger {
	zapLogger, _ := zap.NewDevelopment()
	return zapadapter.NewZapEctoLogger(zapLogger, nil)
}

func testDB(t *testing.T) (database.DB, *sqlx.DB) {
	t.Helper()

	dbHost := os.Getenv("DB_HOST")
	if dbHost == "" {
		dbHost = "localhost"
	}
	dbUser := os.Getenv("DB_USER_NAME")
	if dbUser == "" {
		dbUser = "user"
	}
	dbPass := os.Getenv("DB_PASSWORD")
	if dbPass == "" {
		dbPass = "password"
	}
	dbName := os.Getenv("DB_NAME")
	if dbName == "" {
		dbName = "laurel"
	}

	dsn := "host=" + dbHost + " user=" + dbUser + " password=" + dbPass + " dbname=" + dbName + " sslmode=disable"
	raw, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	driver, err := postgres.WithInstance(raw.DB, &postgres.Config{})
	require.NoError(t, err)
	migrations := database.NewMigrationService(testLogger(), &database.MigrationConfig{
		MigrationFolderPath: "../../db/pg",
	})
	require.NoError(t, migrations.Migrate(dbName, driver))

	return database.NewDatabaseInstance(raw, testLogger()), raw
}

type testFixture struct {
	db       database.DB
	raw      *sqlx.DB
	tenantID string
	engine   *Engine
	people   *person.Repository
	links    *identitylink.Repository
	events   *mergeevent.Repository
}

func newTestFixture(t *testing.T) *testFixture {
	t.Helper()

	db, raw := testDB(t)
	logger := testLogger()

	people := person.NewRepository(db, logger)
	links := identitylink.NewRepository(db, logger)
	events := mergeevent.NewRepository(db, logger)

	return &testFixture{
		db:       db,
		raw:      raw,
		tenantID: uuid.New().String(),
		engine:   NewEngine(logger, people, links, events, nil),
		people:   people,
		links:    links,
		events:   events,
	}
}

func (f *testFixture) createPerson(t *testing.T, firstName, lastName string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := f.raw.Exec(
		`INSERT INTO people (id, tenant_id, first_name, last_name) VALUES ($1, $2, $3, $4)`,
		id, f.tenantID, firstName, lastName,
	)
	require.NoError(t, err)
	return id
}

func (f *testFixture) addContact(t *testing.T, personID, contactType, value string) {
	t.Helper()
	_, err := f.raw.Exec(
		`INSERT INTO contact_methods (id, tenant_id, person_id, type, value) VALUES ($1, $2, $3, $4, $5)`,
		uuid.New().String(), f.tenantID, personID, contactType, value,
	)
	require.NoError(t, err)
}

func (f *testFixture) countContacts(t *testing.T, personID string) int {
	t.Helper()
	var n int
	require.NoError(t, f.raw.Get(&n,
		`SELECT COUNT(*) FROM contact_methods WHERE tenant_id = $1 AND person_id = $2`,
		f.tenantID, personID,
	))
	return n
}

func TestMergeAndUndo(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	survivorID := f.createPerson(t, "Robert", "Smith")
	mergedID := f.createPerson(t, "Bob", "Smith")
	f.addContact(t, survivorID, "email", "bob@example.org")
	f.addContact(t, mergedID, "email", "bob@example.org")
	f.addContact(t, mergedID, "phone", "5551234567")

	result, err := f.engine.Merge(ctx, f.tenantID, nil, &models.MergeRequest{
		SurvivorID: survivorID,
		MergedID:   mergedID,
	}, "test-user")
	require.NoError(t, err)

	assert.Equal(t, survivorID, result.SurvivorID)
	assert.Equal(t, mergedID, result.MergedID)
	require.Len(t, result.FieldResolutions, 1)
	assert.Equal(t, "first_name", result.FieldResolutions[0].Field)

	merged, err := f.people.Get(ctx, f.tenantID, mergedID)
	require.NoError(t, err)
	assert.True(t, merged.IsMerged())
	assert.False(t, merged.IsActive)
	require.NotNil(t, merged.CanonicalID)
	assert.Equal(t, survivorID, *merged.CanonicalID)

	// duplicate email dropped, unique phone moved over
	assert.Equal(t, 2, f.countContacts(t, survivorID))
	assert.Equal(t, 0, f.countContacts(t, mergedID))

	// the duplicate's name lives on as a survivor alias
	var aliasCount int
	require.NoError(t, f.raw.Get(&aliasCount,
		`SELECT COUNT(*) FROM person_aliases WHERE tenant_id = $1 AND person_id = $2 AND source = $3`,
		f.tenantID, survivorID, "merge:"+mergedID,
	))
	assert.Equal(t, 1, aliasCount)

	undoResult, err := f.engine.Undo(ctx, f.tenantID, result.MergeEvent.ID, &models.UndoRequest{}, "test-user")
	require.NoError(t, err)
	assert.Equal(t, []string{mergedID}, undoResult.RestoredIDs)
	assert.Equal(t, TransfersNotReversedWarning, undoResult.Warning)

	restored, err := f.people.Get(ctx, f.tenantID, mergedID)
	require.NoError(t, err)
	assert.False(t, restored.IsMerged())
	assert.True(t, restored.IsActive)
	assert.Nil(t, restored.CanonicalID)
	require.NotNil(t, restored.FirstName)
	assert.Equal(t, "Bob", *restored.FirstName)

	// transfers stay with the survivor after undo
	assert.Equal(t, 2, f.countContacts(t, survivorID))
	assert.Equal(t, 0, f.countContacts(t, mergedID))

	require.NoError(t, f.raw.Get(&aliasCount,
		`SELECT COUNT(*) FROM person_aliases WHERE tenant_id = $1 AND person_id = $2 AND source = $3`,
		f.tenantID, survivorID, "merge:"+mergedID,
	))
	assert.Equal(t, 0, aliasCount)
}

func TestMergeThroughLinkLifecycle(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	survivorID := f.createPerson(t, "Robert", "Smith")
	mergedID := f.createPerson(t, "Bob", "Smith")

	aID, bID := survivorID, mergedID
	if bID < aID {
		aID, bID = bID, aID
	}
	link := &models.IdentityLink{
		TenantID:        f.tenantID,
		PersonAID:       aID,
		PersonBID:       bID,
		ConfidenceScore: 63,
		MatchReasons:    database.NewJSONB([]string{"phone_match", "nickname:bob↔robert"}),
		DetectedBy:      "scan",
	}
	created, err := f.links.UpsertCandidate(ctx, link)
	require.NoError(t, err)
	require.True(t, created)

	result, err := f.engine.Merge(ctx, f.tenantID, &link.ID, &models.MergeRequest{
		SurvivorID: survivorID,
		MergedID:   mergedID,
	}, "test-user")
	require.NoError(t, err)

	afterMerge, err := f.links.Get(ctx, f.tenantID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusMerged, afterMerge.Status)

	_, err = f.engine.Undo(ctx, f.tenantID, result.MergeEvent.ID, &models.UndoRequest{}, "test-user")
	require.NoError(t, err)

	// undo brings the pair back as a reviewed match, not a fresh suggestion
	afterUndo, err := f.links.Get(ctx, f.tenantID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusConfirmed, afterUndo.Status)
}

func TestMergeRejectsAlreadyMerged(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	survivorID := f.createPerson(t, "Robert", "Smith")
	mergedID := f.createPerson(t, "Bob", "Smith")

	_, err := f.engine.Merge(ctx, f.tenantID, nil, &models.MergeRequest{
		SurvivorID: survivorID,
		MergedID:   mergedID,
	}, "test-user")
	require.NoError(t, err)

	_, err = f.engine.Merge(ctx, f.tenantID, nil, &models.MergeRequest{
		SurvivorID: survivorID,
		MergedID:   mergedID,
	}, "test-user")
	require.Error(t, err)
}

func TestMergeRollsBackOnLateFailure(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	survivorID := f.createPerson(t, "Robert", "Smith")
	mergedID := f.createPerson(t, "Bob", "Smith")
	f.addContact(t, mergedID, "phone", "5551234567")

	f.engine.beforeEventInsert = func(ctx context.Context) error {
		return errors.New("induced failure")
	}

	_, err := f.engine.Merge(ctx, f.tenantID, nil, &models.MergeRequest{
		SurvivorID: survivorID,
		MergedID:   mergedID,
	}, "test-user")
	require.Error(t, err)

	// everything the merge touched before the failure was rolled back
	merged, err := f.people.Get(ctx, f.tenantID, mergedID)
	require.NoError(t, err)
	assert.False(t, merged.IsMerged())
	assert.True(t, merged.IsActive)
	assert.Equal(t, 1, f.countContacts(t, mergedID))
	assert.Equal(t, 0, f.countContacts(t, survivorID))

	_, total, err := f.events.List(ctx, f.tenantID, true, 1, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
}

func TestUndoTwiceConflicts(t *testing.T) {
	f := newTestFixture(t)
	ctx := context.Background()

	survivorID := f.createPerson(t, "Robert", "Smith")
	mergedID := f.createPerson(t, "Bob", "Smith")

	result, err := f.engine.Merge(ctx, f.tenantID, nil, &models.MergeRequest{
		SurvivorID: survivorID,
		MergedID:   mergedID,
	}, "test-user")
	require.NoError(t, err)

	_, err = f.engine.Undo(ctx, f.tenantID, result.MergeEvent.ID, &models.UndoRequest{}, "test-user")
	require.NoError(t, err)

	_, err = f.engine.Undo(ctx, f.tenantID, result.MergeEvent.ID, &models.UndoRequest{}, "test-user")
	require.Error(t, err)
}
