package service

import (
	"context"
	"testing"
	"time"

	"formflow/internal/apperr"
	"formflow/internal/config"
	"formflow/internal/model"
	"formflow/internal/testutil"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnalytics_Aggregate(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	alice := env.member(t, "alice", model.RoleEmployee)
	testutil.CreateUser(t, env.db, "boss", model.RoleAdmin)

	s1 := env.submit(t, alice, "SN-1", "Acme", 100, "Ink")
	s2 := env.submit(t, alice, "SN-2", "Acme", 60, "Ink", "Quality")
	s3 := env.submit(t, alice, "SN-3", "Acme", 30)
	p4 := testutil.Payload("SN-4", "Acme", 0, "Sales")
	p4["totalDiscount"] = "50.25"
	s4, err := env.submissions.Create(ctx, alice, model.CustomerRejectionSlug, p4)
	require.NoError(t, err)

	setCreated := func(id string, at time.Time) {
		require.NoError(t, env.db.Model(&model.Submission{}).Where("id = ?", id).Update("created_at", at).Error)
	}
	setCreated(s1.ID, time.Date(2024, 1, 15, 9, 0, 0, 0, time.UTC))
	setCreated(s2.ID, time.Date(2024, 2, 10, 9, 0, 0, 0, time.UTC))
	setCreated(s3.ID, time.Date(2024, 2, 28, 23, 30, 0, 0, time.UTC))
	setCreated(s4.ID, time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC))

	res, err := env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, AnalyticsQuery{})
	require.NoError(t, err)
	assert.Equal(t, 4, res.TotalSubmissions)
	assert.Equal(t, "240.25", res.GrandTotal.String())
	assert.Equal(t, []string{"Ink", "Quality", "Sales"}, res.Departments)

	ink := res.DepartmentTotals["Ink"]
	require.NotNil(t, ink)
	assert.Equal(t, "160", ink.Total.String())
	assert.Equal(t, "130", ink.SplitTotal.String())
	assert.Equal(t, 2, ink.Count)
	assert.ElementsMatch(t, []string{s1.ID, s2.ID}, ink.Submissions)
	assert.Equal(t, "60", res.DepartmentTotals["Quality"].Total.String())
	assert.Equal(t, "30", res.DepartmentTotals["Quality"].SplitTotal.String())
	assert.Equal(t, "50.25", res.DepartmentTotals["Sales"].Total.String())

	assert.Len(t, res.MonthlyData, 3)
	assert.Equal(t, "100", res.MonthlyData["2024-01"].String())
	assert.Equal(t, "90", res.MonthlyData["2024-02"].String())
	assert.Equal(t, "50.25", res.MonthlyData["2024-03"].String())

	// toDate is inclusive of the whole day
	res, err = env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, AnalyticsQuery{FromDate: "2024-02-01", ToDate: "2024-02-28"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.TotalSubmissions)
	assert.Equal(t, "90", res.GrandTotal.String())
	assert.Equal(t, "2024-02-01", res.DateRange.FromDate)
	assert.NotContains(t, res.DepartmentTotals, "Sales")

	res, err = env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, AnalyticsQuery{FromDate: "2024-03-01"})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSubmissions)

	_, err = env.signing.Sign(ctx, alice, uuid.MustParse(s2.ID), SignRequest{SignerUsername: "boss", SignerPassword: testutil.Password, Signature: pngSignature})
	require.NoError(t, err)
	res, err = env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, AnalyticsQuery{SignedOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSubmissions)
	assert.Equal(t, "60", res.GrandTotal.String())
}

func TestAnalytics_Mine(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	ctx := context.Background()
	alice := env.member(t, "alice", model.RoleEmployee)
	bob := env.member(t, "bob", model.RoleEmployee)

	env.submit(t, alice, "SN-1", "Acme", 100, "Sales")
	env.submit(t, bob, "SN-2", "Acme", 40, "Sales", "Ink")

	res, err := env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, AnalyticsQuery{Mine: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalSubmissions)
	assert.Equal(t, "100", res.GrandTotal.String())
	assert.Equal(t, []string{"Sales"}, res.Departments)

	res, err = env.analytics.Aggregate(ctx, bob, model.CustomerRejectionSlug, AnalyticsQuery{Mine: true})
	require.NoError(t, err)
	assert.Equal(t, "40", res.GrandTotal.String())
	assert.Equal(t, "20", res.DepartmentTotals["Ink"].SplitTotal.String())

	res, err = env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, AnalyticsQuery{})
	require.NoError(t, err)
	assert.Equal(t, "140", res.GrandTotal.String())
}

func TestAnalytics_Empty(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	alice := env.member(t, "alice", model.RoleEmployee)

	res, err := env.analytics.Aggregate(context.Background(), alice, model.CustomerRejectionSlug, AnalyticsQuery{})
	require.NoError(t, err)
	assert.Zero(t, res.TotalSubmissions)
	assert.True(t, res.GrandTotal.IsZero())
	assert.Empty(t, res.Departments)
	assert.Empty(t, res.MonthlyData)
}

func TestAnalytics_InvalidDates(t *testing.T) {
	env := newEnv(t, config.WorkflowChain{})
	alice := env.member(t, "alice", model.RoleEmployee)
	ctx := context.Background()

	for _, q := range []AnalyticsQuery{
		{FromDate: "01/02/2024"},
		{ToDate: "tomorrow"},
		{FromDate: "2024-03-02", ToDate: "2024-03-01"},
	} {
		_, err := env.analytics.Aggregate(ctx, alice, model.CustomerRejectionSlug, q)
		assert.ErrorIs(t, err, apperr.ErrValidation, "%+v", q)
	}

	outsider := callerOf(testutil.CreateUser(t, env.db, "mallory", model.RoleEmployee))
	_, err := env.analytics.Aggregate(ctx, outsider, model.CustomerRejectionSlug, AnalyticsQuery{})
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
