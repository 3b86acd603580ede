// Package enrich runs batch jobs over stored prospects, decoupled from
// the run pipeline.
package enrich

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/scoutline-dev/scoutline/pkg/emailx"
	"github.com/scoutline-dev/scoutline/pkg/prospect"
)

// Store is the persistence surface the email job needs.
type Store interface {
	ProspectsMissingEmail(ctx context.Context) ([]*prospect.Prospect, error)
	FindProspectsByIdentity(ctx context.Context, fields []string) ([]*prospect.Prospect, error)
	SetProspectEmail(ctx context.Context, id, email string) error
}

// Result summarizes one enrichment pass.
type Result struct {
	Scanned   int
	Extracted int
}

// Emails scans prospects that have a bio but no email, extracts contact
// addresses from the bios and stores them. The pass is idempotent: a
// prospect either gains an email and leaves the candidate set, or stays
// unchanged.
func Emails(ctx context.Context, st Store, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.Default()
	}

	candidates, err := st.ProspectsMissingEmail(ctx)
	if err != nil {
		return nil, fmt.Errorf("load enrichment candidates: %w", err)
	}

	result := &Result{Scanned: len(candidates)}
	for _, p := range candidates {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		email, ok := emailx.Extract(p.Bio)
		if !ok {
			continue
		}

		// An email that already identifies another prospect must not be
		// copied onto this one; that would create two rows claiming the
		// same identity.
		owners, err := st.FindProspectsByIdentity(ctx, []string{"email:" + email})
		if err != nil {
			return result, fmt.Errorf("check email ownership: %w", err)
		}
		if claimed(owners, p.ID) {
			logger.DebugContext(ctx, "email already identifies another prospect",
				"prospect_id", p.ID, "email", email)
			continue
		}

		if err := st.SetProspectEmail(ctx, p.ID, email); err != nil {
			return result, fmt.Errorf("store email for prospect %s: %w", p.ID, err)
		}
		result.Extracted++
		logger.DebugContext(ctx, "email extracted", "prospect_id", p.ID)
	}

	logger.InfoContext(ctx, "email enrichment pass finished",
		"scanned", result.Scanned, "extracted", result.Extracted)
	return result, nil
}

func claimed(owners []*prospect.Prospect, selfID string) bool {
	for _, o := range owners {
		if o.ID != selfID {
			return true
		}
	}
	return false
}
