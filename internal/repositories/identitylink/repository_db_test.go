package identitylink

import (
	"context"
	"os"
	"testing"
	"time"

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
		MigrationFolderPath: "../../../db/pg",
	})
	require.NoError(t, migrations.Migrate(dbName, driver))

	return database.NewDatabaseInstance(raw, testLogger()), raw
}

func createPerson(t *testing.T, raw *sqlx.DB, tenantID, firstName, lastName string) string {
	t.Helper()
	id := uuid.New().String()
	_, err := raw.Exec(
		`INSERT INTO people (id, tenant_id, first_name, last_name) VALUES ($1, $2, $3, $4)`,
		id, tenantID, firstName, lastName,
	)
	require.NoError(t, err)
	return id
}

func candidateLink(tenantID, personA, personB string) *models.IdentityLink {
	if personB < personA {
		personA, personB = personB, personA
	}
	return &models.IdentityLink{
		TenantID:        tenantID,
		PersonAID:       personA,
		PersonBID:       personB,
		ConfidenceScore: 63,
		MatchReasons:    database.NewJSONB([]string{"phone_match"}),
		DetectedBy:      "scan",
	}
}

func TestUpsertCandidateReproposesAfterSuppressionExpires(t *testing.T) {
	db, raw := testDB(t)
	repo := NewRepository(db, testLogger())
	ctx := context.Background()
	tenantID := uuid.New().String()

	personA := createPerson(t, raw, tenantID, "Robert", "Smith")
	personB := createPerson(t, raw, tenantID, "Bob", "Smith")

	link := candidateLink(tenantID, personA, personB)
	created, err := repo.UpsertCandidate(ctx, link)
	require.NoError(t, err)
	require.True(t, created)

	suppressedUntil := time.Now().UTC().Add(time.Hour)
	notes := "same name, different people"
	_, err = repo.Review(ctx, tenantID, link.ID, models.LinkStatusNotMatch, "reviewer", &notes, &suppressedUntil)
	require.NoError(t, err)

	// inside the suppression window a rescan must not touch the verdict
	created, err = repo.UpsertCandidate(ctx, candidateLink(tenantID, personA, personB))
	require.NoError(t, err)
	assert.False(t, created)

	suppressed, err := repo.Get(ctx, tenantID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusNotMatch, suppressed.Status)

	// age the window out instead of waiting for it
	_, err = raw.Exec(
		`UPDATE identity_links SET suppressed_until = NOW() - INTERVAL '1 day' WHERE id = $1`,
		link.ID,
	)
	require.NoError(t, err)

	created, err = repo.UpsertCandidate(ctx, candidateLink(tenantID, personA, personB))
	require.NoError(t, err)
	assert.False(t, created) // same row, flipped back rather than inserted

	reopened, err := repo.Get(ctx, tenantID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusSuggested, reopened.Status)
	assert.Nil(t, reopened.SuppressedUntil)
	assert.Nil(t, reopened.ReviewedAt)
}

func TestUpsertCandidateLeavesConfirmedLinksAlone(t *testing.T) {
	db, raw := testDB(t)
	repo := NewRepository(db, testLogger())
	ctx := context.Background()
	tenantID := uuid.New().String()

	personA := createPerson(t, raw, tenantID, "Robert", "Smith")
	personB := createPerson(t, raw, tenantID, "Bob", "Smith")

	link := candidateLink(tenantID, personA, personB)
	_, err := repo.UpsertCandidate(ctx, link)
	require.NoError(t, err)

	_, err = repo.Review(ctx, tenantID, link.ID, models.LinkStatusConfirmed, "reviewer", nil, nil)
	require.NoError(t, err)

	created, err := repo.UpsertCandidate(ctx, candidateLink(tenantID, personA, personB))
	require.NoError(t, err)
	assert.False(t, created)

	confirmed, err := repo.Get(ctx, tenantID, link.ID)
	require.NoError(t, err)
	assert.Equal(t, models.LinkStatusConfirmed, confirmed.Status)
}
