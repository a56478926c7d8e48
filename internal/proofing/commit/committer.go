// Package commit attaches a verified NIN to the user record. Both proofing
// engines hand off here once their protocol has confirmed the candidate.
package commit

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"

	"idproof/internal/amrelay"
	"idproof/internal/proofing/metrics"
	"idproof/internal/proofing/models"
	"idproof/internal/user/directory"
	userstore "idproof/internal/user/store"
	dErrors "idproof/pkg/domain-errors"
	"idproof/pkg/requestcontext"
)

var tracer = otel.Tracer("idproof/commit")

// Committer performs the shared final step of every proofing flow: mark the
// candidate verified, decide primary precedence, persist the aggregate, and
// request synchronization to the system of record.
type Committer struct {
	directory directory.Directory
	users     userstore.Store
	relay     amrelay.SyncRelay
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

// New builds a committer.
func New(dir directory.Directory, users userstore.Store, relay amrelay.SyncRelay, logger *slog.Logger, m *metrics.Metrics) *Committer {
	return &Committer{
		directory: dir,
		users:     users,
		relay:     relay,
		logger:    logger,
		metrics:   m,
	}
}

// Commit attaches the candidate as a verified NIN on the owner's aggregate.
//
// The first NIN verified for a user with no primary becomes primary; later
// ones attach non-primary. What should happen when a user ends up with more
// than one verified NIN is an unresolved product question, so no ownership
// transfer is attempted here.
//
// The local write is authoritative for the proofing subsystem and is saved
// without a sync check. A failed sync request surfaces as CodeSyncFailed
// together with the committed NIN: the local verification stands, only the
// propagation to the system of record is pending.
func (c *Committer) Commit(ctx context.Context, eppn string, candidate models.NinCandidate, method models.Method) (models.VerifiedNin, error) {
	ctx, span := tracer.Start(ctx, "commit")
	defer span.End()

	now := requestcontext.Now(ctx)

	user, err := c.directory.GetByEppn(ctx, eppn)
	if err != nil {
		return models.VerifiedNin{}, dErrors.Wrap(err, dErrors.CodeUnavailable, "could not load user aggregate")
	}

	nin := models.VerifiedNin{
		Number:     candidate.Number,
		Verified:   true,
		VerifiedBy: method,
		VerifiedAt: now,
	}
	if user.PrimaryNin() == nil {
		nin.Primary = true
	}
	user.AddNin(nin)
	user.ModifiedAt = now

	// The aggregate just came from the directory, so the write skips the
	// sync check.
	if err := c.users.Save(ctx, user, false); err != nil {
		span.RecordError(err)
		return models.VerifiedNin{}, dErrors.Wrap(err, dErrors.CodeInternal, "could not save user aggregate")
	}

	c.logger.InfoContext(ctx, "nin verified",
		"eppn", eppn,
		"method", string(method),
		"primary", nin.Primary,
	)
	c.metrics.IncVerifications(string(method))

	if err := c.relay.RequestSync(ctx, eppn); err != nil {
		span.RecordError(err)
		c.logger.ErrorContext(ctx, "sync request failed after local commit", "eppn", eppn, "error", err)
		c.metrics.IncSyncFailures()
		return nin, dErrors.Wrap(err, dErrors.CodeSyncFailed, "verified locally, sync to system of record pending")
	}

	return nin, nil
}
