package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/charadev96/wtclient/internal/client/domain"
	"github.com/charadev96/wtclient/internal/client/wtcrypto"
	"github.com/charadev96/wtclient/internal/shared/log"
)

const (
	// DefaultToSelfDelay is sent with every appointment until towers make
	// use of the real channel delay.
	DefaultToSelfDelay = 42

	DefaultWorkers = 8

	// errCodeSubscription is the tower's "invalid signature or subscription
	// error" code: the user has no usable subscription with it.
	errCodeSubscription = 36
)

type Outcome int

const (
	OutcomePending Outcome = iota
	OutcomeDelivered
	OutcomeRejected
	OutcomeUnreachable
)

func (o Outcome) String() string {
	switch o {
	case OutcomePending:
		return "pending"
	case OutcomeDelivered:
		return "delivered"
	case OutcomeRejected:
		return "rejected"
	case OutcomeUnreachable:
		return "unreachable"
	default:
		return fmt.Sprintf("Outcome(%d)", int(o))
	}
}

// Delivery is the result of sending one appointment to one tower. Err is set
// for every outcome but Delivered, and for Delivered when the registry could
// not be updated afterwards.
type Delivery struct {
	TowerID domain.TowerID
	Locator domain.Locator
	Outcome Outcome
	Err     error
}

type DispatchReport struct {
	Round      uuid.UUID
	Deliveries []Delivery
}

func (r DispatchReport) ByTower() map[domain.TowerID][]Delivery {
	out := map[domain.TowerID][]Delivery{}
	for _, d := range r.Deliveries {
		out[d.TowerID] = append(out[d.TowerID], d)
	}
	return out
}

func (r DispatchReport) Count(o Outcome) int {
	n := 0
	for _, d := range r.Deliveries {
		if d.Outcome == o {
			n++
		}
	}
	return n
}

// Dispatcher turns revocable outputs into appointments and sends one to every
// tower known when the round starts. Deliveries run concurrently and never
// affect each other; only their registry updates are serialized.
type Dispatcher struct {
	Towers      domain.TowerRegistry
	Transport   domain.TowerTransport
	Identity    domain.UserIdentity
	ToSelfDelay uint32
	Workers     int
	Logger      *zerolog.Logger
}

type signedAppointment struct {
	appt      domain.Appointment
	signature string
	err       error
}

// OnChannelEvent fails only when the tower snapshot cannot be taken; delivery
// failures are reported per tower in the returned report.
func (d *Dispatcher) OnChannelEvent(ctx context.Context, outputs []domain.RevokeableOutputData) (DispatchReport, error) {
	report := DispatchReport{Round: uuid.New()}
	logger := log.OrNop(d.Logger).With().Str("round", report.Round.String()).Logger()

	if len(outputs) == 0 {
		return report, nil
	}

	towers, err := d.Towers.List(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to snapshot towers: %w", err)
	}
	if len(towers) == 0 {
		logger.Warn().
			Int("outputs", len(outputs)).
			Msg("no towers registered, appointments not sent")
		return report, nil
	}

	appts := make([]signedAppointment, len(outputs))
	for i, out := range outputs {
		appts[i] = d.buildAppointment(out)
	}

	ids := make([]domain.TowerID, 0, len(towers))
	for id := range towers {
		ids = append(ids, id)
	}

	report.Deliveries = make([]Delivery, 0, len(outputs)*len(ids))
	for i := range outputs {
		for _, id := range ids {
			report.Deliveries = append(report.Deliveries, Delivery{
				TowerID: id,
				Locator: appts[i].appt.Locator,
				Outcome: OutcomePending,
			})
		}
	}

	// Towers are served in parallel, outputs for one tower in order, so its
	// receipts reach the registry in the order the tower issued them.
	g := new(errgroup.Group)
	g.SetLimit(d.workers())
	for t, id := range ids {
		rec := towers[id]
		g.Go(func() error {
			for i, sa := range appts {
				del := &report.Deliveries[i*len(ids)+t]
				del.Outcome, del.Err = d.deliver(ctx, &logger, id, rec, sa)
			}
			return nil
		})
	}
	_ = g.Wait()

	logger.Info().
		Int("outputs", len(outputs)).
		Int("towers", len(towers)).
		Int("delivered", report.Count(OutcomeDelivered)).
		Int("rejected", report.Count(OutcomeRejected)).
		Int("unreachable", report.Count(OutcomeUnreachable)).
		Msg("dispatch round finished")
	return report, nil
}

func (d *Dispatcher) buildAppointment(out domain.RevokeableOutputData) signedAppointment {
	sa := signedAppointment{}
	sa.appt.Locator = domain.NewLocator(out.CommitmentTxid)
	sa.appt.ToSelfDelay = d.toSelfDelay()
	if out.JusticeTx == nil {
		sa.err = fmt.Errorf("missing justice transaction for %s", out.CommitmentTxid)
		return sa
	}
	blob, err := wtcrypto.Encrypt(out.JusticeTx, out.CommitmentTxid)
	if err != nil {
		sa.err = err
		return sa
	}
	sa.appt.EncryptedBlob = blob
	sa.signature, sa.err = wtcrypto.Sign(sa.appt.Serialize(), d.Identity.SecretKey)
	return sa
}

func (d *Dispatcher) deliver(ctx context.Context, logger *zerolog.Logger, id domain.TowerID, rec domain.TowerRecord, sa signedAppointment) (Outcome, error) {
	if sa.err != nil {
		return OutcomeRejected, fmt.Errorf("failed to build appointment: %w", sa.err)
	}

	if err := validateAddress(rec.NetAddr); err != nil {
		d.setStatus(ctx, logger, id, domain.StatusUnreachable)
		return OutcomeUnreachable, err
	}

	receipt, err := d.Transport.AddAppointment(ctx, id, rec.NetAddr, sa.appt, sa.signature)
	if err != nil {
		logger.Warn().
			Err(err).
			Str("tower", id.String()).
			Str("locator", sa.appt.Locator.String()).
			Msg("failed to deliver appointment")
		if domain.IsConnectionError(err) {
			d.setStatus(ctx, logger, id, domain.StatusTemporaryUnreachable)
			return OutcomeUnreachable, err
		}
		if code, ok := domain.APIErrorCode(err); ok && code == errCodeSubscription {
			d.setStatus(ctx, logger, id, domain.StatusSubscriptionError)
		}
		return OutcomeRejected, err
	}

	if err := verifyTowerSignature(id, receipt.Serialize(), receipt.Signature); err != nil {
		logger.Warn().
			Err(err).
			Str("tower", id.String()).
			Msg("appointment receipt rejected")
		return OutcomeRejected, fmt.Errorf("%w: %w", domain.ErrInvalidReceipt, err)
	}

	_, err = d.Towers.Update(ctx, id, func(current *domain.TowerRecord) (*domain.TowerRecord, error) {
		if current == nil {
			return nil, nil
		}
		next := *current
		if !staleReceipt(*current, receipt) {
			next.AvailableSlots = receipt.AvailableSlots
		}
		next.Status = domain.StatusReachable
		return &next, nil
	})
	if err != nil && !errors.Is(err, domain.ErrTowerNotFound) {
		logger.Error().
			Err(err).
			Str("tower", id.String()).
			Msg("failed to record appointment receipt")
		return OutcomeDelivered, err
	}
	return OutcomeDelivered, nil
}

// staleReceipt reports whether receipt was issued before the terms already
// stored: a tower only lowers its slot count within one subscription, so a
// higher count under the same expiry, or an older expiry, is out of date.
// Concurrent rounds may deliver to the same tower.
func staleReceipt(current domain.TowerRecord, receipt domain.AppointmentReceipt) bool {
	switch {
	case receipt.SubscriptionExpiry == 0:
		return receipt.AvailableSlots > current.AvailableSlots
	case receipt.SubscriptionExpiry < current.SubscriptionExpiry:
		return true
	case receipt.SubscriptionExpiry == current.SubscriptionExpiry:
		return receipt.AvailableSlots > current.AvailableSlots
	default:
		return false
	}
}

func (d *Dispatcher) setStatus(ctx context.Context, logger *zerolog.Logger, id domain.TowerID, status domain.TowerStatus) {
	if err := d.Towers.SetStatus(ctx, id, status); err != nil {
		logger.Error().
			Err(err).
			Str("tower", id.String()).
			Stringer("status", status).
			Msg("failed to update tower status")
	}
}

func (d *Dispatcher) toSelfDelay() uint32 {
	if d.ToSelfDelay == 0 {
		return DefaultToSelfDelay
	}
	return d.ToSelfDelay
}

func (d *Dispatcher) workers() int {
	if d.Workers <= 0 {
		return DefaultWorkers
	}
	return d.Workers
}
