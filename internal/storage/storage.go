package storage

import (
	"context"

	"github.com/moose-code/snubb/internal/model"
)

// Sink persists a finished approval report.
type Sink interface {
	PutApprovals(ctx context.Context, approvals []model.ReconciledApproval) error
}
