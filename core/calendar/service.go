package calendar

import (
	"context"
	"errors"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"

	"github.com/arjuunns/Smart-hostel/core"
)

var (
	ErrNotFound       = errors.New("calendar event not found")
	ErrMalformedEvent = errors.New("malformed calendar event")
)

type (
	Repository interface {
		CreateEvent(ctx context.Context, evt Event) (Event, error)
		GetEvent(ctx context.Context, id string) (Event, error)
		QueryEvents(ctx context.Context, filter *QueryFilter) ([]Event, error)
		UpdateEvent(ctx context.Context, evt Event) (Event, error)
		DeleteEvent(ctx context.Context, id string) error
	}

	Service struct {
		repo     Repository
		validate *validator.Validate
	}
)

func NewService(repo Repository, validate *validator.Validate) *Service {
	return &Service{repo: repo, validate: validate}
}

// InitValidators registers the calendar validators and their translations.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	core.RegisterOneOf(validate, translator, "eventtype", "invalid event type", EventTypes...)
	core.RegisterOneOf(validate, translator, "policy", "invalid leave policy", Policies...)
}

func (svc *Service) parse(in EventInput) (Event, error) {
	in.clean()
	if err := svc.validate.Struct(in); err != nil {
		return Event{}, err
	}
	start, err := time.Parse("2006-01-02", in.StartDate)
	if err != nil {
		return Event{}, core.NewFieldValidationError("start_date", "invalid date")
	}
	end, err := time.Parse("2006-01-02", in.EndDate)
	if err != nil {
		return Event{}, core.NewFieldValidationError("end_date", "invalid date")
	}
	if end.Before(start) {
		return Event{}, core.NewFieldValidationError("end_date", "end date must not be before start date")
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	return Event{
		Title:        in.Title,
		Description:  in.Description,
		Type:         in.Type,
		StartDate:    start.UTC(),
		EndDate:      end.UTC(),
		LeavePolicy:  in.LeavePolicy,
		RiskModifier: in.RiskModifier,
		HostelBlocks: in.HostelBlocks,
		Courses:      in.Courses,
		Years:        in.Years,
		Priority:     in.Priority,
		IsActive:     active,
	}, nil
}

func (svc *Service) Create(ctx context.Context, createdBy string, in EventInput) (Event, error) {
	evt, err := svc.parse(in)
	if err != nil {
		return Event{}, err
	}
	now := core.NowFunc()
	evt.CreatedBy = createdBy
	evt.CreatedAt = now
	evt.UpdatedAt = now
	evt, err = svc.repo.CreateEvent(ctx, evt)
	return evt, pkgerrors.Wrap(err, "creating event")
}

func (svc *Service) Get(ctx context.Context, id string) (Event, error) {
	return svc.repo.GetEvent(ctx, id)
}

func (svc *Service) Query(ctx context.Context, filter *QueryFilter) ([]Event, error) {
	return svc.repo.QueryEvents(ctx, filter)
}

// Update replaces every editable field of the event.
func (svc *Service) Update(ctx context.Context, id string, in EventInput) (Event, error) {
	orig, err := svc.repo.GetEvent(ctx, id)
	if err != nil {
		return Event{}, err
	}
	evt, err := svc.parse(in)
	if err != nil {
		return Event{}, err
	}
	evt.ID = orig.ID
	evt.CreatedBy = orig.CreatedBy
	evt.CreatedAt = orig.CreatedAt
	evt.UpdatedAt = core.NowFunc()
	evt, err = svc.repo.UpdateEvent(ctx, evt)
	return evt, pkgerrors.Wrap(err, "updating event")
}

func (svc *Service) Delete(ctx context.Context, id string) error {
	return svc.repo.DeleteEvent(ctx, id)
}
