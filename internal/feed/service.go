package feed

import (
	"context"
	"sort"
	"time"

	"github.com/angelmondragon/surfacemarket-backend/internal/orders"
	"github.com/angelmondragon/surfacemarket-backend/internal/profiles"
	"github.com/angelmondragon/surfacemarket-backend/pkg/db/models"
	"github.com/angelmondragon/surfacemarket-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/surfacemarket-backend/pkg/errors"
	"github.com/angelmondragon/surfacemarket-backend/pkg/logger"
	"github.com/angelmondragon/surfacemarket-backend/pkg/pagination"
	"github.com/angelmondragon/surfacemarket-backend/pkg/types"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Bucket groups feed items by what is left to do.
type Bucket string

const (
	BucketWaiting Bucket = "wartet"
	BucketActive  Bucket = "aktiv"
	BucketDone    Bucket = "fertig"
)

// IsValid reports whether b is a known bucket.
func (b Bucket) IsValid() bool {
	switch b {
	case BucketWaiting, BucketActive, BucketDone:
		return true
	}
	return false
}

type orderLister interface {
	ListForViewer(ctx context.Context, viewerID uuid.UUID, side orders.Side) ([]models.Order, error)
}

type jobReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Job, error)
}

type profileReader interface {
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Profile, error)
}

// Query selects a viewer's feed page.
type Query struct {
	ViewerID   uuid.UUID
	Side       orders.Side
	Bucket     Bucket
	Pagination pagination.Params
}

// JobSummary is the job metadata shown next to an order.
type JobSummary struct {
	ID                    uuid.UUID `json:"id"`
	Title                 string    `json:"title"`
	TreatmentProcess      string    `json:"treatment_process,omitempty"`
	Quantity              int       `json:"quantity"`
	ExpectedGoodsOutDate  string    `json:"expected_goods_out_date"`
	ExpectedGoodsBackDate string    `json:"expected_goods_back_date"`
}

// LiveProfile is the counterpart's current profile, fetched on every read.
// It is labeled separately from the snapshot frozen at order creation.
type LiveProfile struct {
	ID          uuid.UUID       `json:"id"`
	Handle      string          `json:"handle"`
	CompanyName string          `json:"company_name"`
	Rating      profiles.Rating `json:"rating"`
}

// Item is one order in the feed.
type Item struct {
	Bucket       Bucket                     `json:"bucket"`
	Side         orders.Side                `json:"side"`
	Order        orders.OrderView           `json:"order"`
	Job          *JobSummary                `json:"job,omitempty"`
	Counterparty types.CounterpartySnapshot `json:"counterparty_snapshot"`
	Profile      *LiveProfile               `json:"profile,omitempty"`
}

// Page is a slice of the feed plus badge counts over the whole feed.
type Page struct {
	Items            []Item         `json:"items"`
	NeedsActionCount int            `json:"needs_action_count"`
	Counts           map[Bucket]int `json:"counts"`
	NextCursor       string         `json:"next_cursor,omitempty"`
}

// Service composes the account order feed.
type Service interface {
	List(ctx context.Context, query Query) (*Page, error)
}

// ServiceParams wires the feed service.
type ServiceParams struct {
	Orders           orderLister
	Jobs             jobReader
	Profiles         profileReader
	Policy           orders.WindowPolicy
	IntentStaleAfter time.Duration
	Logger           *logger.Logger
	Clock            func() time.Time
}

type service struct {
	orders     orderLister
	jobs       jobReader
	profiles   profileReader
	policy     orders.WindowPolicy
	staleAfter time.Duration
	logg       *logger.Logger
	clock      func() time.Time
}

// NewService builds a feed service.
func NewService(params ServiceParams) (Service, error) {
	if params.Orders == nil || params.Jobs == nil || params.Profiles == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orders, jobs and profiles readers are required")
	}
	clock := params.Clock
	if clock == nil {
		clock = time.Now
	}
	staleAfter := params.IntentStaleAfter
	if staleAfter <= 0 {
		staleAfter = 5 * time.Minute
	}
	return &service{
		orders:     params.Orders,
		jobs:       params.Jobs,
		profiles:   params.Profiles,
		policy:     params.Policy,
		staleAfter: staleAfter,
		logg:       params.Logger,
		clock:      clock,
	}, nil
}

// Classify assigns order to its bucket at now.
func Classify(policy orders.WindowPolicy, order *models.Order, now time.Time) Bucket {
	if order.PayoutStatus == enums.PayoutStatusRefunded || policy.Settled(order, now) {
		return BucketDone
	}
	if order.FulfillmentStatus == enums.FulfillmentStatusInProgress && now.Before(order.ExpectedGoodsOutDate) {
		return BucketWaiting
	}
	return BucketActive
}

func (s *service) List(ctx context.Context, query Query) (*Page, error) {
	if query.ViewerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "viewer required")
	}
	switch query.Side {
	case orders.SideAll, orders.SidePlaced, orders.SideFulfilled:
	default:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "side must be placed or fulfilled")
	}
	if query.Bucket != "" && !query.Bucket.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bucket must be wartet, aktiv or fertig")
	}
	cursor, err := pagination.Decode(query.Pagination.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}

	rows, err := s.orders.ListForViewer(ctx, query.ViewerID, query.Side)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID.String() > rows[j].ID.String()
	})

	now := s.clock().UTC()
	page := &Page{Items: []Item{}, Counts: map[Bucket]int{BucketWaiting: 0, BucketActive: 0, BucketDone: 0}}
	var selected []Item
	for i := range rows {
		order := &rows[i]
		bucket := Classify(s.policy, order, now)
		view := s.policy.View(order, query.ViewerID, now, s.staleAfter)
		page.Counts[bucket]++
		if view.NeedsAction {
			page.NeedsActionCount++
		}
		if query.Bucket != "" && bucket != query.Bucket {
			continue
		}
		if cursor != nil && !cursor.Follows(order.CreatedAt, order.ID) {
			continue
		}
		item := Item{Bucket: bucket, Order: view, Side: orders.SidePlaced, Counterparty: order.VendorSnapshot}
		if order.VendorID == query.ViewerID {
			item.Side = orders.SideFulfilled
			item.Counterparty = order.BuyerSnapshot
		}
		selected = append(selected, item)
	}

	limit := pagination.Clamp(query.Pagination.Limit)
	if len(selected) > limit {
		last := selected[limit-1].Order
		page.NextCursor = pagination.Cursor{CreatedAt: last.CreatedAt, ID: last.ID}.Encode()
		selected = selected[:limit]
	}
	if err := s.enrich(ctx, selected); err != nil {
		return nil, err
	}
	page.Items = append(page.Items, selected...)
	return page, nil
}

// enrich joins job metadata and live counterpart profiles. A failed profile
// lookup drops the live enrichment but keeps the snapshots.
func (s *service) enrich(ctx context.Context, items []Item) error {
	if len(items) == 0 {
		return nil
	}
	jobIDs := make([]uuid.UUID, 0, len(items))
	profileIDs := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		jobIDs = append(jobIDs, item.Order.JobID)
		if item.Side == orders.SideFulfilled {
			profileIDs = append(profileIDs, item.Order.BuyerID)
		} else {
			profileIDs = append(profileIDs, item.Order.VendorID)
		}
	}

	var jobs map[uuid.UUID]models.Job
	var live map[uuid.UUID]models.Profile
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		found, err := s.jobs.FindByIDs(gctx, jobIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load jobs")
		}
		jobs = found
		return nil
	})
	g.Go(func() error {
		found, err := s.profiles.FindByIDs(gctx, profileIDs)
		if err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "error", err.Error()), "live profile enrichment skipped")
			}
			return nil
		}
		live = found
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	for i := range items {
		if job, ok := jobs[items[i].Order.JobID]; ok {
			items[i].Job = &JobSummary{
				ID:                    job.ID,
				Title:                 job.Title,
				TreatmentProcess:      job.TreatmentProcess,
				Quantity:              job.Quantity,
				ExpectedGoodsOutDate:  job.ExpectedGoodsOutDate.UTC().Format("2006-01-02"),
				ExpectedGoodsBackDate: job.ExpectedGoodsBackDate.UTC().Format("2006-01-02"),
			}
		}
		counterpart := items[i].Order.VendorID
		if items[i].Side == orders.SideFulfilled {
			counterpart = items[i].Order.BuyerID
		}
		if profile, ok := live[counterpart]; ok {
			items[i].Profile = &LiveProfile{
				ID:          profile.ID,
				Handle:      profile.Handle,
				CompanyName: profile.CompanyName,
				Rating:      profiles.RatingOf(&profile),
			}
		}
	}
	return nil
}
