package coupons

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/PancyStudios/DirectorioGo/pkg/logger"
	"github.com/PancyStudios/DirectorioGo/pkg/models"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// ErrUsesExceedCap is returned by Store.UpdateCoupon when the new
// maxUses would fall below the stored currentUses
var ErrUsesExceedCap = errors.New("maxUses below currentUses")

// CreateInput is the payload to create a coupon
type CreateInput struct {
	Code        string    `json:"code" validate:"required,max=32"`
	Title       string    `json:"title" validate:"required,max=120"`
	Description string    `json:"description" validate:"required,max=1000"`
	Discount    int       `json:"discount" validate:"min=1,max=100"`
	MaxUses     int       `json:"maxUses" validate:"min=1"`
	StartDate   time.Time `json:"startDate" validate:"required"`
	EndDate     time.Time `json:"endDate" validate:"required,gtfield=StartDate"`
	IsActive    *bool     `json:"isActive"`
}

// UpdateInput is the payload to edit a coupon. Absent fields are kept.
type UpdateInput struct {
	Title       *string    `json:"title" validate:"omitempty,max=120"`
	Description *string    `json:"description" validate:"omitempty,max=1000"`
	Discount    *int       `json:"discount" validate:"omitempty,min=1,max=100"`
	MaxUses     *int       `json:"maxUses" validate:"omitempty,min=1"`
	StartDate   *time.Time `json:"startDate"`
	EndDate     *time.Time `json:"endDate"`
}

var fieldNames = map[string]string{
	"Code":        "code",
	"Title":       "title",
	"Description": "description",
	"Discount":    "discount",
	"MaxUses":     "maxUses",
	"StartDate":   "startDate",
	"EndDate":     "endDate",
}

var fieldMessages = map[string]string{
	"code":        "El código es obligatorio",
	"title":       "El título es obligatorio",
	"description": "La descripción es obligatoria",
	"discount":    "El descuento debe estar entre 1 y 100",
	"maxUses":     "El número máximo de usos debe ser al menos 1",
	"startDate":   "La fecha de inicio es obligatoria",
	"endDate":     "La fecha de fin debe ser posterior a la de inicio",
}

// validationError turns the first validator failure into a coupon error
func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return invalid("payload", err.Error())
	}
	field, ok := fieldNames[verrs[0].StructField()]
	if !ok {
		field = verrs[0].Field()
	}
	msg, ok := fieldMessages[field]
	if !ok {
		msg = fmt.Sprintf("Dato inválido: %s", field)
	}
	return invalid(field, msg)
}

// Create validates and stores a coupon for businessID. The coupon and
// one notification per user that favorited the business are written in
// the same transaction.
func (s *Service) Create(ctx context.Context, actor Actor, businessID string, in CreateInput) (*models.Coupon, error) {
	if actor.UserID == "" {
		return nil, &Error{Kind: KindUnauthenticated}
	}
	if !actor.CanManage(businessID) {
		return nil, &Error{Kind: KindForbidden}
	}

	in.Code = models.NormalizeCode(in.Code)
	in.Title = strings.TrimSpace(in.Title)
	in.Description = strings.TrimSpace(in.Description)
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	now := s.now()
	if !in.EndDate.After(now) {
		return nil, invalid("endDate", "La fecha de fin debe estar en el futuro")
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	coupon := &models.Coupon{
		ID:          uuid.NewString(),
		BusinessID:  businessID,
		Code:        in.Code,
		Title:       in.Title,
		Description: in.Description,
		Discount:    in.Discount,
		MaxUses:     in.MaxUses,
		StartDate:   in.StartDate,
		EndDate:     in.EndDate,
		IsActive:    active,
		CreatedAt:   now,
		CreatedBy:   actor.UserID,
	}

	var notified int
	err := s.store.RunInTransaction(ctx, func(ctx context.Context, tx Tx) error {
		notified = 0
		if err := tx.InsertCoupon(ctx, coupon); err != nil {
			return err
		}

		followers, err := tx.FavoriteUsers(ctx, businessID)
		if err != nil {
			return err
		}
		if len(followers) == 0 {
			return nil
		}

		notifications := make([]*models.Notification, 0, len(followers))
		for _, userID := range followers {
			notifications = append(notifications, &models.Notification{
				ID:         uuid.NewString(),
				UserID:     userID,
				Type:       models.NotificationTypeNewCoupon,
				BusinessID: businessID,
				CouponID:   coupon.ID,
				Title:      "¡Nuevo cupón disponible!",
				Message:    fmt.Sprintf("%s: %d%% de descuento con el código %s", coupon.Title, coupon.Discount, coupon.Code),
				CreatedAt:  now,
			})
		}
		if err := tx.InsertNotifications(ctx, notifications); err != nil {
			return err
		}
		notified = len(notifications)
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrConflict) {
			return nil, &Error{Kind: KindTransactionConflict, Err: err}
		}
		logger.Error(fmt.Sprintf("Error al crear el cupón %s: %v", coupon.Code, err), logPrefix)
		return nil, fmt.Errorf("create coupon: %w", err)
	}

	logger.Success(fmt.Sprintf("Cupón %s creado para %s (%d notificaciones)", coupon.Code, businessID, notified), logPrefix)
	s.publish(CreatedTopic(businessID), CreatedEvent{
		CouponID:      coupon.ID,
		BusinessID:    businessID,
		Code:          coupon.Code,
		Title:         coupon.Title,
		Discount:      coupon.Discount,
		EndDate:       coupon.EndDate,
		Notifications: notified,
	})
	return coupon, nil
}

// managed loads a coupon and checks the actor may administer it
func (s *Service) managed(ctx context.Context, actor Actor, couponID string) (*models.Coupon, error) {
	if actor.UserID == "" {
		return nil, &Error{Kind: KindUnauthenticated}
	}
	c, err := s.Get(ctx, couponID)
	if err != nil {
		return nil, err
	}
	if !actor.CanManage(c.BusinessID) {
		return nil, &Error{Kind: KindForbidden}
	}
	return c, nil
}

// Update edits the descriptive fields, discount, cap and window of a
// coupon. currentUses is never written here.
func (s *Service) Update(ctx context.Context, actor Actor, couponID string, in UpdateInput) (*models.Coupon, error) {
	current, err := s.managed(ctx, actor, couponID)
	if err != nil {
		return nil, err
	}
	if err := s.validate.Struct(in); err != nil {
		return nil, validationError(err)
	}

	update := CouponUpdate{
		Discount:  in.Discount,
		MaxUses:   in.MaxUses,
		StartDate: in.StartDate,
		EndDate:   in.EndDate,
	}
	if in.Title != nil {
		title := strings.TrimSpace(*in.Title)
		if title == "" {
			return nil, invalid("title", fieldMessages["title"])
		}
		update.Title = &title
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return nil, invalid("description", fieldMessages["description"])
		}
		update.Description = &desc
	}

	start, end := current.StartDate, current.EndDate
	if in.StartDate != nil {
		start = *in.StartDate
	}
	if in.EndDate != nil {
		end = *in.EndDate
	}
	if !end.After(start) {
		return nil, invalid("endDate", fieldMessages["endDate"])
	}
	if in.MaxUses != nil && *in.MaxUses < current.CurrentUses {
		return nil, invalid("maxUses", fmt.Sprintf("El cupón ya tiene %d usos", current.CurrentUses))
	}

	return s.applyUpdate(ctx, couponID, update)
}

// SetActive toggles whether a coupon can be redeemed
func (s *Service) SetActive(ctx context.Context, actor Actor, couponID string, active bool) (*models.Coupon, error) {
	if _, err := s.managed(ctx, actor, couponID); err != nil {
		return nil, err
	}
	updated, err := s.applyUpdate(ctx, couponID, CouponUpdate{IsActive: &active})
	if err != nil {
		return nil, err
	}
	logger.Info(fmt.Sprintf("Cupón %s activo=%t", updated.Code, active), logPrefix)
	return updated, nil
}

func (s *Service) applyUpdate(ctx context.Context, couponID string, update CouponUpdate) (*models.Coupon, error) {
	updated, err := s.store.UpdateCoupon(ctx, couponID, update)
	if err != nil {
		if errors.Is(err, ErrUsesExceedCap) {
			return nil, invalid("maxUses", "El máximo de usos no puede ser menor que los usos actuales")
		}
		return nil, err
	}
	if updated == nil {
		return nil, &Error{Kind: KindNotFound}
	}
	return updated, nil
}

// Delete removes a coupon. Its redemption history is kept.
func (s *Service) Delete(ctx context.Context, actor Actor, couponID string) error {
	c, err := s.managed(ctx, actor, couponID)
	if err != nil {
		return err
	}
	if err := s.store.DeleteCoupon(ctx, couponID); err != nil {
		return err
	}
	logger.Warn(fmt.Sprintf("Cupón %s eliminado por %s", c.Code, actor.UserID), logPrefix)
	return nil
}
