// Package testutil provides a migrated in-memory SQLite database and row
// builders for package tests.
package testutil

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/pm-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/pm-approval/migrations"
	"github.com/garyjia/pm-approval/pkg/database"
)

// Fixture is a fresh database with the full schema applied
type Fixture struct {
	DB *sql.DB
	Tx *sqlite.DB
}

// NewFixture opens and migrates an in-memory database that lives for the test
func NewFixture(t testing.TB) *Fixture {
	t.Helper()

	logger := zap.NewNop()
	db, err := database.New(database.Config{Path: ":memory:"}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.NewMigrator(db, logger).RunMigrations(migrations.FS))

	return &Fixture{
		DB: db.DB,
		Tx: sqlite.NewDB(db.DB, logger),
	}
}

// Exec runs a statement and fails the test on error
func (f *Fixture) Exec(t testing.TB, query string, args ...interface{}) {
	t.Helper()
	_, err := f.DB.Exec(query, args...)
	require.NoError(t, err)
}

// User inserts an active user holding the given roles
func (f *Fixture) User(t testing.TB, id int64, roles ...string) {
	t.Helper()
	f.insertUser(t, id, false, true)
	for _, role := range roles {
		f.Grant(t, id, role)
	}
}

// Superuser inserts an active superuser
func (f *Fixture) Superuser(t testing.TB, id int64) {
	t.Helper()
	f.insertUser(t, id, true, true)
}

// InactiveUser inserts a deactivated user holding the given roles
func (f *Fixture) InactiveUser(t testing.TB, id int64, roles ...string) {
	t.Helper()
	f.insertUser(t, id, false, false)
	for _, role := range roles {
		f.Grant(t, id, role)
	}
}

// Grant gives the user a role, creating the role if needed
func (f *Fixture) Grant(t testing.TB, userID int64, roleCode string) {
	t.Helper()
	f.Exec(t, `INSERT OR IGNORE INTO roles (role_code, role_name) VALUES (?, ?)`, roleCode, roleCode)
	f.Exec(t, `INSERT INTO user_roles (user_id, role_id) SELECT ?, id FROM roles WHERE role_code = ?`, userID, roleCode)
}

// SetLarkOpenID sets the Lark identity of a user
func (f *Fixture) SetLarkOpenID(t testing.TB, userID int64, openID string) {
	t.Helper()
	f.Exec(t, `UPDATE users SET lark_open_id = ? WHERE id = ?`, openID, userID)
}

func (f *Fixture) insertUser(t testing.TB, id int64, superuser, active bool) {
	t.Helper()
	f.Exec(t, `INSERT INTO users (id, username, real_name, is_superuser, is_active) VALUES (?, ?, ?, ?, ?)`,
		id, fmt.Sprintf("user%d", id), fmt.Sprintf("User %d", id), superuser, active)
}

// ECN inserts an engineering change notice
func (f *Fixture) ECN(t testing.TB, id, costImpactCents int64, status string) {
	t.Helper()
	f.Exec(t, `INSERT INTO ecns (id, ecn_no, title, project_id, change_type, cost_impact_cents,
		schedule_impact_days, status, applicant_id) VALUES (?, ?, ?, 1, 'DESIGN', ?, 3, ?, 1)`,
		id, fmt.Sprintf("ECN-%03d", id), fmt.Sprintf("Change %d", id), costImpactCents, status)
}

// Quote inserts a sales quote
func (f *Fixture) Quote(t testing.TB, id, priceCents, costCents int64, status string) {
	t.Helper()
	f.Exec(t, `INSERT INTO sales_quotes (id, quote_code, customer_id, total_price_cents, total_cost_cents,
		status, owner_id) VALUES (?, ?, 1, ?, ?, ?, 1)`,
		id, fmt.Sprintf("QT-%03d", id), priceCents, costCents, status)
}

// Milestone inserts a project milestone
func (f *Fixture) Milestone(t testing.TB, id, projectID int64, status string) {
	t.Helper()
	f.Exec(t, `INSERT INTO project_milestones (id, project_id, milestone_code, milestone_name, status)
		VALUES (?, ?, ?, ?, ?)`,
		id, projectID, fmt.Sprintf("MS-%03d", id), fmt.Sprintf("Milestone %d", id), status)
}

// Acceptance inserts an acceptance order; milestoneID 0 leaves it unlinked
func (f *Fixture) Acceptance(t testing.TB, id, milestoneID int64, status string) {
	t.Helper()
	var milestone interface{}
	if milestoneID != 0 {
		milestone = milestoneID
	}
	f.Exec(t, `INSERT INTO acceptance_orders (id, order_no, project_id, milestone_id, acceptance_type,
		overall_result, pass_rate, status) VALUES (?, ?, 1, ?, 'FAT', 'PASSED', 98.5, ?)`,
		id, fmt.Sprintf("AO-%03d", id), milestone, status)
}

// PaymentPlan inserts a PENDING payment plan for a milestone
func (f *Fixture) PaymentPlan(t testing.TB, id, projectID, milestoneID, amountCents int64) {
	t.Helper()
	f.Exec(t, `INSERT INTO payment_plans (id, project_id, contract_id, milestone_id, payment_name,
		planned_amount_cents, status) VALUES (?, ?, 5, ?, ?, ?, 'PENDING')`,
		id, projectID, milestoneID, fmt.Sprintf("Payment %d", id), amountCents)
}

// Count returns the result of a COUNT(*) query
func (f *Fixture) Count(t testing.TB, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, f.DB.QueryRow(query, args...).Scan(&n))
	return n
}
