package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/hsdfat8/fieldops/internal/domain/models"
	"github.com/hsdfat8/fieldops/internal/domain/ports"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(mockDB, "sqlmock")
	return sqlxDB, mock
}

func TestNewRecordRepository(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)
	assert.NotNil(t, repo)
	assert.Equal(t, ports.BackendStructured, repo.Type())
}

func TestNextID_UsesHighestOfScanAndSequence(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)

	mock.ExpectQuery(`SELECT id FROM resources WHERE id LIKE \?`).
		WithArgs("RES-%").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("RES-001").AddRow("RES-004").AddRow("RES-custom"))
	mock.ExpectQuery(`SELECT last_value FROM id_sequences WHERE collection = \?`).
		WithArgs("resources").
		WillReturnRows(sqlmock.NewRows([]string{"last_value"}).AddRow(7))
	mock.ExpectExec(`INSERT INTO id_sequences`).
		WithArgs("resources", int64(8)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.NextID(context.Background(), models.CollectionResources)
	require.NoError(t, err)
	assert.Equal(t, "RES-008", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestNextID_EmptyCollection(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)

	mock.ExpectQuery(`SELECT id FROM emergency_contacts`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectQuery(`SELECT last_value FROM id_sequences`).
		WillReturnError(sql.ErrNoRows)
	mock.ExpectExec(`INSERT INTO id_sequences`).
		WithArgs("contacts", int64(1)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	id, err := repo.NextID(context.Background(), models.CollectionContacts)
	require.NoError(t, err)
	assert.Equal(t, "CON-001", id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestInsert_Error(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)
	now := time.Now()
	res := &models.Resource{ID: "RES-001", Type: "vehicle", Name: "Truck", Status: models.ResourceAvailable, CreatedAt: now, UpdatedAt: now}

	mock.ExpectExec(`INSERT INTO resources \(id, type, name, status`).
		WillReturnError(errors.New("disk I/O error"))

	err := repo.Insert(context.Background(), res)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert into resources")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelect_BuildsFilterAndOrder(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "name", "organization", "role", "phone", "phone_alt", "email", "address",
		"latitude", "longitude", "contact_type", "priority", "notes", "is_active",
		"created_at", "updated_at",
	}).AddRow("CON-001", "Dispatch", "City", nil, "911", nil, nil, nil, nil, nil, "emergency", "high", nil, true, now, now)

	mock.ExpectQuery(`SELECT .* FROM emergency_contacts WHERE contact_type = \? AND \(LOWER\(organization\) LIKE \?\) AND is_active = \? ORDER BY priority DESC, name`).
		WithArgs("emergency", "%city%", true).
		WillReturnRows(rows)

	filter := models.ContactFilter{ContactType: "emergency", Organization: "City"}.Filter()

	var contacts []models.Contact
	err := repo.Select(context.Background(), models.CollectionContacts, filter, &contacts)
	require.NoError(t, err)
	require.Len(t, contacts, 1)
	assert.Equal(t, "CON-001", contacts[0].ID)
	assert.Equal(t, "City", *contacts[0].Organization)
	assert.True(t, contacts[0].IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSelect_UnknownColumn(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)
	filter := models.Filter{Equals: map[string]string{"status; DROP TABLE resources": "x"}}

	var out []models.Resource
	err := repo.Select(context.Background(), models.CollectionResources, filter, &out)
	assert.Error(t, err)
}

func TestGet_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)

	mock.ExpectQuery(`SELECT .* FROM resources WHERE id = \?`).
		WithArgs("RES-404").
		WillReturnError(sql.ErrNoRows)

	var res models.Resource
	err := repo.Get(context.Background(), models.CollectionResources, "RES-404", &res)
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_Success(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)
	now := time.Now()

	mock.ExpectExec(`UPDATE resources SET assigned_to = \?, status = \?, updated_at = \? WHERE id = \?`).
		WithArgs(nil, "available", now, "RES-001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Update(context.Background(), models.CollectionResources, "RES-001", models.Changes{
		"status":      "available",
		"assigned_to": nil,
		"updated_at":  now,
	})
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_NotFound(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)

	mock.ExpectExec(`UPDATE resources SET name = \? WHERE id = \?`).
		WithArgs("New", "RES-404").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), models.CollectionResources, "RES-404", models.Changes{"name": "New"})
	assert.ErrorIs(t, err, ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdate_RejectsIDAndEmptyChanges(t *testing.T) {
	db, _ := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)

	assert.Error(t, repo.Update(context.Background(), models.CollectionResources, "RES-001", models.Changes{}))
	assert.Error(t, repo.Update(context.Background(), models.CollectionResources, "RES-001", models.Changes{"id": "RES-999"}))
}

func TestUpdateWhere_OpenAssignments(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)
	now := time.Now()

	mock.ExpectExec(`UPDATE resource_assignments SET returned_at = \? WHERE resource_id = \? AND returned_at IS NULL`).
		WithArgs(now, "RES-001").
		WillReturnResult(sqlmock.NewResult(0, 1))

	n, err := repo.UpdateWhere(context.Background(), models.CollectionAssignments,
		models.AssignmentFilter{ResourceID: "RES-001", OpenOnly: true}.Filter(),
		models.Changes{"returned_at": now})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDelete(t *testing.T) {
	db, mock := setupTestDB(t)
	defer db.Close()

	repo := NewRecordRepository(db)

	mock.ExpectExec(`DELETE FROM resources WHERE id = \?`).
		WithArgs("RES-001").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`DELETE FROM resources WHERE id = \?`).
		WithArgs("RES-001").
		WillReturnResult(sqlmock.NewResult(0, 0))

	assert.NoError(t, repo.Delete(context.Background(), models.CollectionResources, "RES-001"))
	assert.ErrorIs(t, repo.Delete(context.Background(), models.CollectionResources, "RES-001"), ports.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBuildWhere_Ranges(t *testing.T) {
	spec, err := models.CollectionLocations.Spec()
	require.NoError(t, err)

	where, args, err := buildWhere(spec, models.Filter{
		Equals:     map[string]string{"type": "hospital"},
		Ranges:     []models.Range{{Column: "latitude", Min: 40, Max: 41}, {Column: "longitude", Min: -75, Max: -73}},
		ActiveOnly: true,
	})
	require.NoError(t, err)
	assert.Equal(t, " WHERE type = ? AND latitude BETWEEN ? AND ? AND longitude BETWEEN ? AND ? AND is_active = ?", where)
	assert.Equal(t, []any{"hospital", 40.0, 41.0, -75.0, -73.0, true}, args)
}

func TestBuildWhere_ActiveOnlyRequiresColumn(t *testing.T) {
	spec, err := models.CollectionResources.Spec()
	require.NoError(t, err)

	_, _, err = buildWhere(spec, models.Filter{ActiveOnly: true})
	assert.Error(t, err)
}
