package merging

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"

	"github.com/gatherhq/laurel/internal/platform/database"
	"github.com/gatherhq/laurel/pkg/models"
)

// transferTable describes one related-entity table the merge must move from
// the merged person to the survivor. EquivalenceKeys are the column
// expressions that make a row "the same" across the two people; a merged row
// whose key already exists on the survivor is deleted instead of moved.
// Adding a table to the merge means adding an entry here, not new code.
type transferTable struct {
	Table           string
	TenantScoped    bool
	EquivalenceKeys []string
}

var transferPlan = []transferTable{
	{Table: "service_assignments", TenantScoped: true, EquivalenceKeys: []string{"service_instance_id", "role_id"}},
	{Table: "person_role_capabilities", TenantScoped: true, EquivalenceKeys: []string{"role_id"}},
	{Table: "family_members", TenantScoped: true, EquivalenceKeys: []string{"family_id"}},
	{Table: "contact_methods", TenantScoped: true, EquivalenceKeys: []string{"type", "LOWER(value)"}},
	{Table: "addresses", TenantScoped: true},
}

// transferRelatedRecords runs the transfer plan inside the caller's
// transaction: for each table, re-point non-conflicting rows to the survivor
// and delete the leftovers that would duplicate a survivor row.
func transferRelatedRecords(ctx context.Context, tx database.Tx, tenantID, survivorID, mergedID string) ([]models.TransferredRecords, error) {
	results := make([]models.TransferredRecords, 0, len(transferPlan))

	for _, plan := range transferPlan {
		transferred, deleted, err := transferTableRows(ctx, tx, plan, tenantID, survivorID, mergedID)
		if err != nil {
			return nil, err
		}
		results = append(results, models.TransferredRecords{
			Table:       plan.Table,
			Transferred: transferred,
			Deleted:     deleted,
		})
	}

	return results, nil
}

func transferTableRows(ctx context.Context, tx database.Tx, plan transferTable, tenantID, survivorID, mergedID string) (int, int, error) {
	tenantCond := ""
	updateArgs := []any{survivorID, mergedID}
	if plan.TenantScoped {
		tenantCond = " AND tenant_id = $3"
		updateArgs = append(updateArgs, tenantID)
	}

	update := fmt.Sprintf("UPDATE %s SET person_id = $1 WHERE person_id = $2%s", plan.Table, tenantCond)
	if len(plan.EquivalenceKeys) > 0 {
		keys := strings.Join(plan.EquivalenceKeys, ", ")
		update += fmt.Sprintf(" AND (%s) NOT IN (SELECT %s FROM %s WHERE person_id = $1)", keys, keys, plan.Table)
	}

	result, err := tx.ExecContext(ctx, update, updateArgs...)
	if err != nil {
		return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to transfer %s", plan.Table))
	}
	transferred, _ := result.RowsAffected()

	// rows left behind are duplicates of something the survivor already has
	deleted := int64(0)
	if len(plan.EquivalenceKeys) > 0 {
		deleteArgs := []any{mergedID}
		deleteTenantCond := ""
		if plan.TenantScoped {
			deleteTenantCond = " AND tenant_id = $2"
			deleteArgs = append(deleteArgs, tenantID)
		}
		deleteQuery := fmt.Sprintf("DELETE FROM %s WHERE person_id = $1%s", plan.Table, deleteTenantCond)
		result, err := tx.ExecContext(ctx, deleteQuery, deleteArgs...)
		if err != nil {
			return 0, 0, httperror.NewHTTPError(http.StatusInternalServerError, fmt.Sprintf("failed to clean up %s", plan.Table))
		}
		deleted, _ = result.RowsAffected()
	}

	return int(transferred), int(deleted), nil
}
