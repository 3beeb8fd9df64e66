package service

import (
	"context"

	"formflow/internal/apperr"
	"formflow/internal/model"
	"formflow/internal/repository"
)

// accessChecker decides who may read a single submission: privileged users, the
// submitter, holders of the form permission and the approvers on its chain.
type accessChecker struct {
	forms FormService
	steps repository.WorkflowRepository
}

func (a accessChecker) canView(ctx context.Context, caller Caller, sub *model.Submission) error {
	if caller.Privileged() || sub.UserID == caller.ID {
		return nil
	}
	ok, err := a.forms.CanAccess(ctx, caller, sub.FormID)
	if err != nil {
		return err
	}
	if ok {
		return nil
	}
	steps, err := a.steps.ListBySubmission(ctx, sub.ID)
	if err != nil {
		return err
	}
	for _, st := range steps {
		if st.UserID == caller.ID {
			return nil
		}
	}
	return apperr.Forbidden("you do not have access to this submission")
}
