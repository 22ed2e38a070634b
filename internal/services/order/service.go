package order

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"sagra-pos/internal/cache"
	"sagra-pos/internal/catalog"
	"sagra-pos/internal/ledger"
	"sagra-pos/internal/logger"
	"sagra-pos/internal/models"
)

// MenuLoader loads the catalog of the session.
type MenuLoader interface {
	Load(ctx context.Context, requestID string) (catalog.Result, error)
}

// Publisher delivers confirmed orders to the kitchen and scarcity alerts to
// the staff.
type Publisher interface {
	PublishKitchenTicket(ctx context.Context, msg *models.KitchenTicketMessage) error
	PublishScarcity(ctx context.Context, msg *models.ScarcityMessage) error
}

// Printer prints tickets on a printer attached to the till.
type Printer interface {
	Print(ctx context.Context, ticket models.OrderTicket, copies int) error
}

// Pinger reports remote store reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PendingCounter reports how many writes wait in the outbox.
type PendingCounter interface {
	Pending(ctx context.Context) (int, error)
}

// Deps groups the collaborators of the service. Publisher and Printer are
// optional.
type Deps struct {
	Store     *Store
	Menu      MenuLoader
	Portions  *PortionSync
	Counter   *CounterIssuer
	History   HistoryStore
	Outbox    Outbox
	Pending   PendingCounter
	Remote    Pinger
	Publisher Publisher
	Printer   Printer
	Clock     func() time.Time
}

// Options holds the event settings the service needs.
type Options struct {
	EventID       string
	KitchenCopies int
	PrintLocally  bool
}

// Service is the order-taking surface of one till.
type Service struct {
	deps   Deps
	opts   Options
	logger *logger.Logger
}

func NewService(deps Deps, opts Options, log *logger.Logger) *Service {
	if deps.Clock == nil {
		deps.Clock = time.Now
	}
	if opts.KitchenCopies < 1 {
		opts.KitchenCopies = 1
	}
	return &Service{
		deps:   deps,
		opts:   opts,
		logger: log,
	}
}

// LoadMenu loads the catalog, replaces the order lines and loads the portion
// counters of the current business day.
func (s *Service) LoadMenu(ctx context.Context, requestID string) (catalog.Result, error) {
	res, err := s.deps.Menu.Load(ctx, requestID)
	if err != nil {
		return catalog.Result{}, err
	}

	err = s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		l.Initialize(res.Catalog)
		return nil
	})
	if err != nil {
		return catalog.Result{}, err
	}

	if _, err := s.LoadPortions(ctx, requestID); err != nil {
		return catalog.Result{}, err
	}
	return res, nil
}

// LoadPortions resolves the counters of the current business day and hands
// them to the ledger.
func (s *Service) LoadPortions(ctx context.Context, requestID string) (models.DailyPortions, error) {
	var current models.Catalog
	if err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		current = l.Catalog()
		return nil
	}); err != nil {
		return models.DailyPortions{}, err
	}

	portions, source := s.deps.Portions.LoadOrCreateDailyPortions(ctx, s.deps.Clock(), current, requestID)

	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		l.SetDailyPortions(portions)
		return nil
	})
	if err != nil {
		return models.DailyPortions{}, err
	}

	s.logger.Info("portions_loaded", fmt.Sprintf("Loaded portions for %s", portions.BusinessDay), requestID, map[string]interface{}{
		"business_day": portions.BusinessDay,
		"source":       source,
	})
	return portions, nil
}

// ensureBusinessDay reloads the counters when the rollover hour passed since
// they were loaded.
func (s *Service) ensureBusinessDay(ctx context.Context, requestID string) error {
	var loaded string
	if err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		loaded = l.DailyPortions().BusinessDay
		return nil
	}); err != nil {
		return err
	}

	if loaded == s.deps.Portions.BusinessDay(s.deps.Clock()) {
		return nil
	}
	_, err := s.LoadPortions(ctx, requestID)
	return err
}

func (s *Service) mutateLine(ctx context.Context, key string, fn func(l ledger.Ledger)) (ledger.View, error) {
	var view ledger.View
	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		if !l.HasLine(key) {
			return fmt.Errorf("%w: %q", models.ErrUnknownItem, key)
		}
		fn(l)
		view = l.View()
		return nil
	})
	return view, err
}

func (s *Service) Increment(ctx context.Context, key string) (ledger.View, error) {
	return s.mutateLine(ctx, key, func(l ledger.Ledger) { l.IncrementQuantity(key) })
}

func (s *Service) Decrement(ctx context.Context, key string) (ledger.View, error) {
	return s.mutateLine(ctx, key, func(l ledger.Ledger) { l.DecrementQuantity(key) })
}

func (s *Service) EditNote(ctx context.Context, key, note string) (ledger.View, error) {
	return s.mutateLine(ctx, key, func(l ledger.Ledger) { l.EditNote(key, note) })
}

func (s *Service) ResetOrder(ctx context.Context) (ledger.View, error) {
	var view ledger.View
	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		l.ResetOrder()
		view = l.View()
		return nil
	})
	return view, err
}

func (s *Service) View(ctx context.Context) (ledger.View, error) {
	var view ledger.View
	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		view = l.View()
		return nil
	})
	return view, err
}

func (s *Service) Catalog(ctx context.Context) (models.Catalog, error) {
	var c models.Catalog
	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		c = l.Catalog()
		return nil
	})
	return c, err
}

// Checkout confirms the current order: it builds the ticket, decrements the
// portions and clears the order in one step, then assigns the display
// number, records the sale and sends the ticket to the kitchen.
func (s *Service) Checkout(ctx context.Context, req *models.CheckoutRequest, requestID string) (models.OrderTicket, error) {
	if err := req.Validate(); err != nil {
		return models.OrderTicket{}, err
	}
	mode, err := models.ParsePaymentMode(req.PaymentMode)
	if err != nil {
		return models.OrderTicket{}, err
	}

	if err := s.ensureBusinessDay(ctx, requestID); err != nil {
		return models.OrderTicket{}, err
	}

	// the cart is claimed in one ledger step: a concurrent checkout finds it
	// empty and a later line change belongs to the next order
	var (
		ticket models.OrderTicket
		dec    models.PortionDecrement
		after  models.DailyPortions
		taken  = make(map[string]int)
	)
	err = s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		if l.View().ItemCount == 0 {
			return models.ErrEmptyOrder
		}
		t, err := l.BuildTicket(req.AmountTenderedCents, mode)
		if err != nil {
			return err
		}
		ticket = t
		before := l.DailyPortions()
		dec = l.ConfirmAndDecrementPortions(ticket)
		after = l.DailyPortions()
		for key := range dec.Quantities {
			taken[key] = before.Items[key].Remaining - after.Items[key].Remaining
		}
		l.ResetOrder()
		return nil
	})
	if err != nil {
		return models.OrderTicket{}, err
	}

	number, err := s.deps.Counter.Next(ctx, requestID)
	if err != nil {
		s.releasePortions(dec.BusinessDay, taken, requestID)
		return models.OrderTicket{}, fmt.Errorf("failed to issue order number: %w", err)
	}

	ticket.ID = newTicketID()
	ticket.Number = number
	ticket.Table = req.Table
	ticket.Covers = req.Covers

	s.logger.Info("order_confirmed", fmt.Sprintf("Order %s confirmed", ticket.Number), requestID, map[string]interface{}{
		"order_id":     ticket.ID,
		"order_number": ticket.Number.String(),
		"total_cents":  ticket.TotalCents,
		"payment_mode": ticket.PaymentMode,
		"items":        ticket.ItemCount(),
		"offline":      ticket.Number.Offline(),
	})

	s.recordHistory(ctx, ticket, requestID)
	s.deps.Portions.ApplyDecrement(ctx, dec, after, requestID)
	s.notifyKitchen(ctx, ticket, requestID)
	s.alertScarcity(ctx, after, dec, requestID)

	return ticket, nil
}

// releasePortions gives back the portions of a claimed order that could not
// be numbered. The order itself is not restored.
func (s *Service) releasePortions(businessDay string, taken map[string]int, requestID string) {
	if len(taken) == 0 {
		return
	}
	err := s.deps.Store.Do(context.Background(), func(l ledger.Ledger) error {
		if l.DailyPortions().BusinessDay != businessDay {
			return nil
		}
		for key, qty := range taken {
			l.AdjustPortionManually(key, qty)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("portions_release_failed", "Failed to give back portions of an unnumbered order", requestID, err, nil)
	}
}

func (s *Service) recordHistory(ctx context.Context, ticket models.OrderTicket, requestID string) {
	rec := models.NewHistoryRecord(ticket)
	err := s.deps.History.AppendHistory(ctx, rec)
	if err == nil {
		s.deps.Outbox.Kick()
		return
	}
	s.logger.Error("history_append_failed", "Failed to record order remotely", requestID, err, map[string]interface{}{
		"order_id": ticket.ID,
	})

	payload, err := json.Marshal(rec)
	if err != nil {
		s.logger.Error("outbox_encode_failed", "Failed to encode history record", requestID, err, nil)
		return
	}
	if err := s.deps.Outbox.Enqueue(ctx, cache.KindOrderHistory, payload, requestID); err != nil {
		s.logger.Error("outbox_enqueue_failed", "Failed to queue history record, it is lost", requestID, err, nil)
	}
}

// notifyKitchen publishes the ticket and prints it locally when configured.
// Failures never undo the sale.
func (s *Service) notifyKitchen(ctx context.Context, ticket models.OrderTicket, requestID string) {
	if s.deps.Publisher != nil {
		msg := models.NewKitchenTicketMessage(s.opts.EventID, ticket, s.opts.KitchenCopies)
		if err := s.deps.Publisher.PublishKitchenTicket(ctx, msg); err != nil {
			s.logger.Error("kitchen_publish_failed", "Failed to send ticket to the kitchen", requestID, err, map[string]interface{}{
				"order_number": ticket.Number.String(),
			})
		}
	}

	if s.opts.PrintLocally && s.deps.Printer != nil {
		if err := s.deps.Printer.Print(ctx, ticket, s.opts.KitchenCopies); err != nil {
			s.logger.Error("print_failed", "Failed to print ticket", requestID, err, map[string]interface{}{
				"order_number": ticket.Number.String(),
			})
		}
	}
}

func (s *Service) alertScarcity(ctx context.Context, portions models.DailyPortions, dec models.PortionDecrement, requestID string) {
	if s.deps.Publisher == nil || dec.Empty() {
		return
	}

	keys := make([]string, 0, len(dec.Quantities))
	for key := range dec.Quantities {
		keys = append(keys, key)
	}

	for _, msg := range models.NewScarcityMessages(s.opts.EventID, portions, keys) {
		if err := s.deps.Publisher.PublishScarcity(ctx, msg); err != nil {
			s.logger.Error("scarcity_publish_failed", "Failed to publish scarcity alert", requestID, err, map[string]interface{}{
				"item_key": msg.ItemKey,
			})
		}
	}
}

func (s *Service) Portions(ctx context.Context) (models.DailyPortions, error) {
	var p models.DailyPortions
	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		p = l.DailyPortions()
		return nil
	})
	return p, err
}

func (s *Service) mutatePortions(ctx context.Context, requestID string, fn func(l ledger.Ledger) error) (models.DailyPortions, error) {
	var after models.DailyPortions
	err := s.deps.Store.Do(ctx, func(l ledger.Ledger) error {
		// no counters are loaded until the menu is
		if l.DailyPortions().BusinessDay == "" {
			return fmt.Errorf("%w: no portions loaded", models.ErrMenuUnavailable)
		}
		if err := fn(l); err != nil {
			return err
		}
		after = l.DailyPortions()
		return nil
	})
	if err != nil {
		return models.DailyPortions{}, err
	}

	s.deps.Portions.Persist(ctx, after, requestID)
	return after, nil
}

// AdjustPortion corrects one counter by delta and overwrites the remote document.
func (s *Service) AdjustPortion(ctx context.Context, key string, delta int, requestID string) (models.DailyPortions, error) {
	return s.mutatePortions(ctx, requestID, func(l ledger.Ledger) error {
		if _, ok := l.DailyPortions().Items[key]; !ok {
			return fmt.Errorf("%w: %q", models.ErrUnknownItem, key)
		}
		l.AdjustPortionManually(key, delta)
		return nil
	})
}

// ResetPortion restores one counter to its catalog limit.
func (s *Service) ResetPortion(ctx context.Context, key string, requestID string) (models.DailyPortions, error) {
	return s.mutatePortions(ctx, requestID, func(l ledger.Ledger) error {
		c := l.Catalog()
		if _, ok := c.Find(key); !ok {
			return fmt.Errorf("%w: %q", models.ErrUnknownItem, key)
		}
		l.ResetSinglePortion(key, c)
		return nil
	})
}

// ReloadPortions restores every counter to its catalog limit.
func (s *Service) ReloadPortions(ctx context.Context, requestID string) (models.DailyPortions, error) {
	return s.mutatePortions(ctx, requestID, func(l ledger.Ledger) error {
		l.ForceReloadAllPortions(l.Catalog())
		return nil
	})
}

func (s *Service) SetOfflinePrefix(ctx context.Context, prefix string) error {
	return s.deps.Counter.SetOfflinePrefix(ctx, prefix)
}

func (s *Service) OfflinePrefix(ctx context.Context) (string, error) {
	return s.deps.Counter.OfflinePrefix(ctx)
}

// Health is the state reported by the health endpoint.
type Health struct {
	RemoteReachable bool `json:"remote_reachable"`
	PendingWrites   int  `json:"pending_writes"`
	MenuLoaded      bool `json:"menu_loaded"`
}

// HealthCheck reports whether the till can take orders. A missing remote
// store only degrades it.
func (s *Service) HealthCheck(ctx context.Context) (Health, bool) {
	var h Health

	if s.deps.Remote != nil {
		h.RemoteReachable = s.deps.Remote.Ping(ctx) == nil
	}
	if s.deps.Pending != nil {
		if n, err := s.deps.Pending.Pending(ctx); err == nil {
			h.PendingWrites = n
		}
	}

	c, err := s.Catalog(ctx)
	if err != nil {
		return h, false
	}
	h.MenuLoaded = len(c) > 0
	return h, h.MenuLoaded
}

func newTicketID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
