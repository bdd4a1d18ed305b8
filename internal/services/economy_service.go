package services

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"sync"
	"time"

	"shopbot/internal/db"
	"shopbot/internal/lock"
	"shopbot/internal/models"
	"shopbot/internal/store"
	"shopbot/internal/websocket"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// Work pays a salary and, when the spread allows, a bonus on top.
const minBonusSpread = 5

// MaxWorkIncome bounds a single work payout so repeated payouts cannot
// overflow a balance.
const MaxWorkIncome int64 = 1_000_000_000

type WorkStore interface {
	Settings(ctx context.Context, guildID string) (models.WorkSettings, error)
	SetSettings(ctx context.Context, settings models.WorkSettings) error
	LastWorkedForUpdate(ctx context.Context, tx store.Getter, guildID, userID string) (time.Time, error)
	SetLastWorked(ctx context.Context, tx store.Execer, guildID, userID string, at time.Time) error
}

type EconomyBalanceStore interface {
	BalanceStore
	Get(ctx context.Context, guildID, userID string) (int64, error)
}

type EconomyService struct {
	txRunner db.TxRunner
	locker   lock.Locker
	balances EconomyBalanceStore
	work     WorkStore
	audit    AuditStore
	hub      BalanceHub
	now      func() time.Time
	log      logrus.FieldLogger

	randMu sync.Mutex
	rand   *rand.Rand
}

func NewEconomyService(txRunner db.TxRunner, locker lock.Locker, balances EconomyBalanceStore, work WorkStore, audit AuditStore, hub BalanceHub, log logrus.FieldLogger) *EconomyService {
	return &EconomyService{
		txRunner: txRunner,
		locker:   locker,
		balances: balances,
		work:     work,
		audit:    audit,
		hub:      hub,
		now:      time.Now,
		log:      log,
		rand:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (s *EconomyService) WithClock(now func() time.Time) *EconomyService {
	s.now = now
	return s
}

func (s *EconomyService) WithRand(r *rand.Rand) *EconomyService {
	s.rand = r
	return s
}

func (s *EconomyService) Balance(ctx context.Context, guildID, userID string) (int64, error) {
	return s.balances.Get(ctx, guildID, userID)
}

type PayRequest struct {
	GuildID    string
	FromUserID string
	ToUserID   string
	ToIsBot    bool
	Amount     int64
}

type PayResult struct {
	FromBalance int64
	ToBalance   int64
}

func (s *EconomyService) Pay(ctx context.Context, req PayRequest) (PayResult, error) {
	if req.Amount <= 0 {
		return PayResult{}, ErrInvalidAmount
	}
	if req.ToIsBot {
		return PayResult{}, ErrBotTarget
	}
	if req.FromUserID == req.ToUserID {
		return PayResult{}, ErrSelfTransfer
	}
	unlock, err := s.locker.Lock(ctx, lock.AccountKey(req.GuildID, req.FromUserID), lock.AccountKey(req.GuildID, req.ToUserID))
	if err != nil {
		return PayResult{}, err
	}
	defer unlock()

	var result PayResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		from, _, err := lockTwoBalances(ctx, tx, s.balances, req.GuildID, req.FromUserID, req.ToUserID)
		if err != nil {
			return err
		}
		if from < req.Amount {
			return &InsufficientError{Resource: ResourceBalance, Required: req.Amount, Available: from}
		}
		fromAfter, err := s.balances.Adjust(ctx, tx, req.GuildID, req.FromUserID, -req.Amount)
		if err != nil {
			return commitFailed(err)
		}
		toAfter, err := s.balances.Adjust(ctx, tx, req.GuildID, req.ToUserID, req.Amount)
		if err != nil {
			return commitFailed(err)
		}
		data, err := json.Marshal(map[string]string{"to_user_id": req.ToUserID})
		if err != nil {
			return commitFailed(err)
		}
		if err := s.audit.Log(ctx, tx, models.AuditEntry{
			GuildID: req.GuildID,
			ActorID: req.FromUserID,
			Action:  store.AuditPayment,
			Amount:  req.Amount,
			Data:    string(data),
		}); err != nil {
			return commitFailed(err)
		}
		result = PayResult{FromBalance: fromAfter, ToBalance: toAfter}
		return nil
	})
	if err != nil {
		return PayResult{}, normalizeCommitError(err)
	}
	s.hub.BroadcastBalance(req.GuildID, websocket.BalanceUpdate{GuildID: req.GuildID, UserID: req.FromUserID, Reason: store.AuditPayment, Balance: result.FromBalance})
	s.hub.BroadcastBalance(req.GuildID, websocket.BalanceUpdate{GuildID: req.GuildID, UserID: req.ToUserID, Reason: store.AuditPayment, Balance: result.ToBalance})
	return result, nil
}

type WorkResult struct {
	Earned  int64
	Salary  int64
	Bonus   int64
	Balance int64
	Next    time.Time
}

func (s *EconomyService) Work(ctx context.Context, guildID, userID string) (WorkResult, error) {
	settings, err := s.work.Settings(ctx, guildID)
	if err != nil {
		return WorkResult{}, err
	}
	unlock, err := s.locker.Lock(ctx, lock.AccountKey(guildID, userID))
	if err != nil {
		return WorkResult{}, err
	}
	defer unlock()

	now := s.now().UTC()
	var result WorkResult
	err = s.txRunner.WithTx(ctx, func(tx *sqlx.Tx) error {
		last, err := s.work.LastWorkedForUpdate(ctx, tx, guildID, userID)
		if err != nil {
			return err
		}
		if !last.IsZero() {
			if next := last.Add(settings.Cooldown); now.Before(next) {
				return &CooldownError{Remaining: next.Sub(now)}
			}
		}
		salary, bonus := s.rollIncome(settings.MinIncome, settings.MaxIncome)
		earned := salary + bonus
		balance, err := s.balances.Adjust(ctx, tx, guildID, userID, earned)
		if err != nil {
			return commitFailed(err)
		}
		if err := s.work.SetLastWorked(ctx, tx, guildID, userID, now); err != nil {
			return commitFailed(err)
		}
		if err := s.audit.Log(ctx, tx, models.AuditEntry{
			GuildID: guildID,
			ActorID: userID,
			Action:  store.AuditWork,
			Amount:  earned,
		}); err != nil {
			return commitFailed(err)
		}
		result = WorkResult{Earned: earned, Salary: salary, Bonus: bonus, Balance: balance, Next: now.Add(settings.Cooldown)}
		return nil
	})
	if err != nil {
		return WorkResult{}, normalizeCommitError(err)
	}
	s.hub.BroadcastBalance(guildID, websocket.BalanceUpdate{GuildID: guildID, UserID: userID, Reason: store.AuditWork, Balance: result.Balance})
	return result, nil
}

func (s *EconomyService) WorkSettings(ctx context.Context, guildID string) (models.WorkSettings, error) {
	return s.work.Settings(ctx, guildID)
}

// SetWorkSettings stores the guild's work range; a reversed range is swapped.
func (s *EconomyService) SetWorkSettings(ctx context.Context, settings models.WorkSettings) (models.WorkSettings, error) {
	if settings.MinIncome < 0 || settings.MaxIncome < 0 || settings.Cooldown < 0 {
		return models.WorkSettings{}, ErrInvalidAmount
	}
	if settings.MinIncome > MaxWorkIncome || settings.MaxIncome > MaxWorkIncome {
		return models.WorkSettings{}, ErrInvalidAmount
	}
	if settings.MinIncome > settings.MaxIncome {
		settings.MinIncome, settings.MaxIncome = settings.MaxIncome, settings.MinIncome
	}
	settings.Cooldown = settings.Cooldown.Truncate(time.Second)
	if err := s.work.SetSettings(ctx, settings); err != nil {
		return models.WorkSettings{}, err
	}
	return settings, nil
}

// rollIncome draws the total from [lo, hi], both clamped to
// [0, MaxWorkIncome]. When it exceeds lo by at least minBonusSpread, a
// salary is drawn from [lo, max(lo, 60% of total)] and the rest is the bonus.
func (s *EconomyService) rollIncome(lo, hi int64) (salary, bonus int64) {
	lo, hi = clampIncome(lo), clampIncome(hi)
	if lo > hi {
		lo, hi = hi, lo
	}
	s.randMu.Lock()
	defer s.randMu.Unlock()
	earned := lo + s.rand.Int63n(hi-lo+1)
	if earned-lo < minBonusSpread {
		return earned, 0
	}
	top := earned / 10 * 6
	if top < lo {
		top = lo
	}
	salary = lo + s.rand.Int63n(top-lo+1)
	return salary, earned - salary
}

// clampIncome keeps settings stored before MaxWorkIncome existed usable.
func clampIncome(v int64) int64 {
	if v < 0 {
		return 0
	}
	if v > MaxWorkIncome {
		return MaxWorkIncome
	}
	return v
}

func lockTwoBalances(ctx context.Context, tx store.Getter, balances BalanceStore, guildID, firstID, secondID string) (int64, int64, error) {
	leftID, rightID := orderedIDs(firstID, secondID)
	left, err := balances.GetForUpdate(ctx, tx, guildID, leftID)
	if err != nil {
		return 0, 0, err
	}
	right, err := balances.GetForUpdate(ctx, tx, guildID, rightID)
	if err != nil {
		return 0, 0, err
	}
	if firstID == leftID {
		return left, right, nil
	}
	return right, left, nil
}

func orderedIDs(firstID, secondID string) (string, string) {
	if firstID <= secondID {
		return firstID, secondID
	}
	return secondID, firstID
}

func normalizeCommitError(err error) error {
	if errors.Is(err, db.ErrRetryLimit) || errors.Is(err, ErrCommitFailed) || db.IsRetryable(err) {
		return ErrCommitFailed
	}
	return err
}
