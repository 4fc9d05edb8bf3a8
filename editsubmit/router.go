package editsubmit

import (
	"context"

	"github.com/jamesrr39/camsync-app/camsyncdal"
	"github.com/jamesrr39/goutil/errorsx"
)

// Router sends each edit to the submitter for its upload mode
type Router struct {
	submitters map[camsyncdal.UploadMode]camsyncdal.Submitter
}

var _ camsyncdal.Submitter = &Router{}

func NewRouter(production, sandbox, simulate camsyncdal.Submitter) *Router {
	return &Router{
		submitters: map[camsyncdal.UploadMode]camsyncdal.Submitter{
			camsyncdal.UploadModeProduction: production,
			camsyncdal.UploadModeSandbox:    sandbox,
			camsyncdal.UploadModeSimulate:   simulate,
		},
	}
}

func (r *Router) Submit(ctx context.Context, edit camsyncdal.QueuedEdit, accessToken string) (int64, errorsx.Error) {
	submitter, ok := r.submitters[edit.Mode]
	if !ok || submitter == nil {
		return 0, errorsx.Errorf("no submitter for upload mode %q", edit.Mode)
	}

	return submitter.Submit(ctx, edit, accessToken)
}
