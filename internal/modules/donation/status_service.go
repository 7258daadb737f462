package donation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"funding/internal/domain"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// StatusService owns every donation state transition. Each method runs in
// one database transaction and locks the rows it mutates.
type StatusService struct {
	db          *gorm.DB
	maxAttempts int
	notifier    StatusNotifier
	loggerf     func(format string, args ...interface{})
	now         func() time.Time
}

func NewStatusService(db *gorm.DB, maxAttempts int, notifier StatusNotifier, loggerf func(format string, args ...interface{})) *StatusService {
	if loggerf == nil {
		loggerf = func(string, ...interface{}) {}
	}
	if notifier == nil {
		notifier = noopNotifier{}
	}
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &StatusService{
		db:          db,
		maxAttempts: maxAttempts,
		notifier:    notifier,
		loggerf:     loggerf,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *StatusService) MaxPaymentAttempts() int { return s.maxAttempts }

// HandlePaymentStatusChange reconciles the parent donation of a payment with
// the payment's new status. Repeated calls with the same input are no-ops.
func (s *StatusService) HandlePaymentStatusChange(ctx context.Context, paymentID int64, newStatus domain.PaymentStatus) error {
	var change *domain.DonationStatusChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var p domain.Payment
		if err := tx.First(&p, paymentID).Error; err != nil {
			return wrapNotFound(err, "payment", paymentID)
		}
		var err error
		change, err = s.reconcile(tx, &p, newStatus)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, change)
	return nil
}

// ApplyPaymentUpdate writes a payment status observation and reconciles the
// donation in the same transaction. changed is false when the stored status
// already matched and nothing was written.
func (s *StatusService) ApplyPaymentUpdate(ctx context.Context, upd domain.PaymentUpdate) (*domain.Payment, bool, error) {
	var (
		payment domain.Payment
		changed bool
		change  *domain.DonationStatusChange
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE"})
		var err error
		switch {
		case upd.PaymentID != 0:
			err = q.First(&payment, upd.PaymentID).Error
		case upd.ExternalID != "":
			err = q.Where("external_id = ?", upd.ExternalID).First(&payment).Error
		default:
			return fmt.Errorf("payment update without id: %w", domain.ErrValidation)
		}
		if err != nil {
			return wrapNotFound(err, "payment", firstNonEmpty(upd.ExternalID, upd.PaymentID))
		}

		status := upd.Status
		refunded := payment.RefundedAmount
		if upd.RefundAmount.IsPositive() {
			refunded = refunded.Add(upd.RefundAmount)
			if refunded.GreaterThanOrEqual(payment.Amount) {
				refunded = payment.Amount
				status = domain.PaymentRefunded
			} else {
				status = domain.PaymentPartiallyRefunded
			}
		} else if status == domain.PaymentRefunded {
			refunded = payment.Amount
		}

		if status == payment.Status && refunded.Equal(payment.RefundedAmount) {
			return nil
		}
		if !payment.CanTransitionTo(status) {
			s.loggerf("level=warn msg=ignoring out of order payment status payment_id=%d current=%s reported=%s", payment.ID, payment.Status, status)
			return nil
		}

		updates := map[string]interface{}{
			"status":          status,
			"refunded_amount": refunded,
			"updated_at":      s.now(),
		}
		if upd.FailureReason != "" {
			updates["failure_reason"] = upd.FailureReason
		}
		if upd.FailureCode != "" {
			updates["failure_code"] = upd.FailureCode
		}
		res := tx.Model(&domain.Payment{}).Where("id = ?", payment.ID).Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return errors.New("payment row not updated")
		}

		prev := payment.Status
		payment.Status = status
		payment.RefundedAmount = refunded
		if upd.FailureReason != "" {
			payment.FailureReason = upd.FailureReason
		}
		if upd.FailureCode != "" {
			payment.FailureCode = upd.FailureCode
		}
		changed = true
		s.loggerf("level=info msg=payment status changed payment_id=%d external_id=%s from=%s to=%s", payment.ID, payment.ExternalID, prev, status)

		if prev == status {
			return nil
		}
		change, err = s.reconcile(tx, &payment, status)
		return err
	})
	if err != nil {
		return nil, false, err
	}
	s.publish(ctx, change)
	return &payment, changed, nil
}

// RecordPaymentAttempt stores a freshly opened payment and bumps the
// donation's attempt counter. The donation is re-checked under lock so two
// concurrent attempts cannot both become active. A processor that settles
// synchronously reports a terminal status here; the donation is reconciled
// against it in the same transaction.
func (s *StatusService) RecordPaymentAttempt(ctx context.Context, p *domain.Payment) error {
	var change *domain.DonationStatusChange
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var d domain.Donation
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, p.DonationID).Error; err != nil {
			return wrapNotFound(err, "donation", p.DonationID)
		}

		var active int64
		if err := tx.Model(&domain.Payment{}).
			Where("donation_id = ? AND status IN ?", d.ID, []domain.PaymentStatus{domain.PaymentPending, domain.PaymentProcessing}).
			Count(&active).Error; err != nil {
			return err
		}
		if d.Status != domain.DonationPending || active > 0 || d.HasReachedMaxPaymentAttempts(s.maxAttempts) {
			return fmt.Errorf("donation %d status=%s attempts=%d active=%d: %w", d.ID, d.Status, d.PaymentAttempts, active, domain.ErrPaymentNotAllowed)
		}

		if p.Status == "" {
			p.Status = domain.PaymentPending
		}
		if err := tx.Create(p).Error; err != nil {
			return err
		}
		if err := tx.Model(&domain.Donation{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
			"payment_attempts": gorm.Expr("payment_attempts + ?", 1),
			"updated_at":       s.now(),
		}).Error; err != nil {
			return err
		}
		if !p.IsTerminal() {
			return nil
		}
		s.loggerf("level=info msg=payment opened in settled state payment_id=%d external_id=%s status=%s", p.ID, p.ExternalID, p.Status)
		var err error
		change, err = s.reconcile(tx, p, p.Status)
		return err
	})
	if err != nil {
		return err
	}
	s.publish(ctx, change)
	return nil
}

// CancelDonation moves a pending donation without settled or in-flight
// payments to CANCELLED.
func (s *StatusService) CancelDonation(ctx context.Context, donationID int64) (*domain.Donation, error) {
	var d domain.Donation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).Preload("Payments").First(&d, donationID).Error; err != nil {
			return wrapNotFound(err, "donation", donationID)
		}
		if !d.CanBeCancelled() {
			return fmt.Errorf("donation %d cannot be cancelled in status %s: %w", d.ID, d.Status, domain.ErrInvalidTransition)
		}
		now := s.now()
		if err := tx.Model(&domain.Donation{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
			"status":       domain.DonationCancelled,
			"cancelled_at": now,
			"updated_at":   now,
		}).Error; err != nil {
			return err
		}
		d.Status = domain.DonationCancelled
		d.CancelledAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, &domain.DonationStatusChange{
		DonationID:    d.ID,
		ShelterID:     d.ShelterID,
		DonorUsername: d.DonorUsername,
		From:          domain.DonationPending,
		To:            domain.DonationCancelled,
		At:            *d.CancelledAt,
	})
	return &d, nil
}

func (s *StatusService) reconcile(tx *gorm.DB, p *domain.Payment, newStatus domain.PaymentStatus) (*domain.DonationStatusChange, error) {
	switch newStatus {
	case domain.PaymentSucceeded, domain.PaymentFailed, domain.PaymentCancelled, domain.PaymentRefunded:
	default:
		return nil, nil
	}

	var d domain.Donation
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, p.DonationID).Error; err != nil {
		return nil, wrapNotFound(err, "donation", p.DonationID)
	}
	now := s.now()

	switch newStatus {
	case domain.PaymentSucceeded:
		if d.Status == domain.DonationCompleted {
			return nil, nil
		}
		if d.Status != domain.DonationPending {
			s.loggerf("level=warn msg=payment succeeded on closed donation donation_id=%d status=%s payment_id=%d", d.ID, d.Status, p.ID)
			return nil, nil
		}
		updates := map[string]interface{}{
			"status":     domain.DonationCompleted,
			"updated_at": now,
		}
		if d.CompletedAt == nil {
			updates["completed_at"] = now
		}
		if err := tx.Model(&domain.Donation{}).Where("id = ?", d.ID).Updates(updates).Error; err != nil {
			return nil, err
		}
		s.loggerf("level=info msg=donation completed donation_id=%d payment_id=%d", d.ID, p.ID)
		return statusChange(&d, p.ID, newStatus, domain.DonationCompleted, now), nil

	case domain.PaymentFailed, domain.PaymentCancelled:
		if d.Status != domain.DonationPending {
			return nil, nil
		}
		var succeeded int64
		if err := tx.Model(&domain.Payment{}).
			Where("donation_id = ? AND status = ?", d.ID, domain.PaymentSucceeded).
			Count(&succeeded).Error; err != nil {
			return nil, err
		}
		if succeeded > 0 || !d.HasReachedMaxPaymentAttempts(s.maxAttempts) {
			s.loggerf("level=info msg=donation stays pending donation_id=%d attempts=%d max_attempts=%d", d.ID, d.PaymentAttempts, s.maxAttempts)
			return nil, nil
		}
		if err := tx.Model(&domain.Donation{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
			"status":     domain.DonationFailed,
			"updated_at": now,
		}).Error; err != nil {
			return nil, err
		}
		s.loggerf("level=info msg=donation failed after max attempts donation_id=%d attempts=%d", d.ID, d.PaymentAttempts)
		return statusChange(&d, p.ID, newStatus, domain.DonationFailed, now), nil

	case domain.PaymentRefunded:
		if d.RefundedAt != nil {
			return nil, nil
		}
		if err := tx.Model(&domain.Donation{}).Where("id = ?", d.ID).Updates(map[string]interface{}{
			"refunded_at": now,
			"updated_at":  now,
		}).Error; err != nil {
			return nil, err
		}
		s.loggerf("level=info msg=donation refunded donation_id=%d payment_id=%d", d.ID, p.ID)
	}
	return nil, nil
}

func (s *StatusService) publish(ctx context.Context, change *domain.DonationStatusChange) {
	if change == nil {
		return
	}
	s.notifier.DonationStatusChanged(ctx, *change)
}

func statusChange(d *domain.Donation, paymentID int64, ps domain.PaymentStatus, to domain.DonationStatus, at time.Time) *domain.DonationStatusChange {
	return &domain.DonationStatusChange{
		DonationID:    d.ID,
		ShelterID:     d.ShelterID,
		DonorUsername: d.DonorUsername,
		PaymentID:     paymentID,
		PaymentStatus: ps,
		From:          d.Status,
		To:            to,
		At:            at,
	}
}

func wrapNotFound(err error, what string, id interface{}) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s %v: %w", what, id, domain.ErrNotFound)
	}
	return err
}

func firstNonEmpty(ext string, id int64) interface{} {
	if ext != "" {
		return ext
	}
	return id
}
