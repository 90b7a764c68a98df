package backlog

import (
	"fmt"
	"log/slog"
	"sort"

	"libbydl/internal/libby"
	"libbydl/internal/logging"
	"libbydl/internal/services"
	"libbydl/internal/shelf"
)

// Sites is the set of library site identifiers the downloader can serve.
type Sites map[int]struct{}

// NewSites builds a site set.
func NewSites(ids ...int) Sites {
	sites := make(Sites, len(ids))
	for _, id := range ids {
		sites[id] = struct{}{}
	}
	return sites
}

// Has reports whether id is configured.
func (s Sites) Has(id int) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the identifiers in ascending order.
func (s Sites) Sorted() []int {
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Plan is the outcome of one reconciliation.
type Plan struct {
	// Pending books need a download attempt, in loan order.
	Pending []libby.Book
	// Unrecognized books belong to libraries missing from the configuration.
	Unrecognized []libby.Book
	// Completed books already have audio in their final directory.
	Completed []libby.Book
	// Bad lists pending books carrying the bad marker. They stay in Pending;
	// the supervisor narrates the skip.
	Bad []libby.Book
	// Orphans are scratch directories with no active loan.
	Orphans []string
}

// Empty reports whether nothing needs downloading.
func (p Plan) Empty() bool { return len(p.Pending) == 0 }

// Reconciler computes work lists against a download root.
type Reconciler struct {
	layout shelf.Layout
	logger *slog.Logger
}

// New constructs a reconciler.
func New(layout shelf.Layout, logger *slog.Logger) *Reconciler {
	return &Reconciler{layout: layout, logger: logging.NewComponentLogger(logger, "backlog")}
}

// Reconcile classifies every loan. It returns services.ErrNoRecognizedSites
// when loans exist but none belongs to a configured library; the plan is
// still populated in that case so callers can report the details.
func (r *Reconciler) Reconcile(loans []libby.Book, sites Sites) (Plan, error) {
	var plan Plan
	active := make(map[string]struct{}, len(loans))

	for _, book := range loans {
		active[book.ID] = struct{}{}
		if !sites.Has(book.SiteID) {
			plan.Unrecognized = append(plan.Unrecognized, book)
			logging.WarnWithContext(r.logger, "library not configured for loan", "unrecognized_site",
				logging.String(logging.FieldBookID, book.ID),
				logging.Int(logging.FieldSiteID, book.SiteID),
				logging.String("title", book.Title),
				logging.String(logging.FieldErrorHint, "run 'libbydl configure' and set the card pin"),
			)
			continue
		}
		done, err := r.layout.HasCompletedAudio(book.ID)
		if err != nil {
			return Plan{}, services.Wrap(services.ErrValidation, "backlog", "scan final dir", book.ID, err)
		}
		if done {
			plan.Completed = append(plan.Completed, book)
			continue
		}
		plan.Pending = append(plan.Pending, book)
		if bad, err := r.layout.IsBad(book.ID); err == nil && bad {
			plan.Bad = append(plan.Bad, book)
		}
	}

	entries, err := r.layout.TempEntries()
	if err != nil {
		return Plan{}, services.Wrap(services.ErrValidation, "backlog", "list temp dir", r.layout.TempRoot(), err)
	}
	for _, id := range entries {
		if _, ok := active[id]; !ok {
			plan.Orphans = append(plan.Orphans, id)
		}
	}
	if len(plan.Orphans) > 0 {
		r.logger.Info("scratch directories without an active loan",
			logging.Int("count", len(plan.Orphans)),
			logging.Any("book_ids", plan.Orphans),
		)
	}

	if len(loans) > 0 && len(plan.Unrecognized) == len(loans) {
		return plan, fmt.Errorf("%d loans, configured sites %v: %w", len(loans), sites.Sorted(), services.ErrNoRecognizedSites)
	}
	return plan, nil
}
