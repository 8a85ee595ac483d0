package workflowtest_test

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/vetcall/libs/db"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/model"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow"
	"github.com/md-rashed-zaman/vetcall/services/booking-service/internal/workflow/workflowtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeleteAppointmentRespectsClinicalReportKey(t *testing.T) {
	store := workflowtest.New()
	ctx := context.Background()

	var appt model.Appointment
	require.NoError(t, store.InTx(ctx, func(tx workflow.Tx) error {
		var err error
		if appt, err = tx.UpsertDraft(ctx, "owner-1", "usd"); err != nil {
			return err
		}
		_, err = tx.InsertClinicalReport(ctx, model.ClinicalReport{AppointmentID: appt.ID, Diagnosis: "otitis"})
		return err
	}))

	err := store.InTx(ctx, func(tx workflow.Tx) error {
		return tx.DeleteAppointment(ctx, appt.ID, appt.Version)
	})
	require.ErrorContains(t, err, "clinical_reports")
	_, err = store.GetAppointment(ctx, appt.ID)
	require.NoError(t, err)

	require.NoError(t, store.InTx(ctx, func(tx workflow.Tx) error {
		if err := tx.DeleteClinicalReports(ctx, appt.ID); err != nil {
			return err
		}
		return tx.DeleteAppointment(ctx, appt.ID, appt.Version)
	}))
	_, err = store.GetAppointment(ctx, appt.ID)
	assert.ErrorIs(t, err, pgx.ErrNoRows)
	assert.Equal(t, []string{"clinical_reports", "appointments"}, store.Deletes())
}

func TestMalformedIDsReportInvalidInput(t *testing.T) {
	store := workflowtest.New()
	_, err := store.GetAppointment(context.Background(), "not-a-uuid")
	assert.True(t, db.IsInvalidInput(err))
	assert.False(t, db.IsNotFound(err))
}
