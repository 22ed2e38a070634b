package kitchen

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sagra-pos/internal/logger"
	"sagra-pos/internal/messaging"
	"sagra-pos/internal/models"
	"sagra-pos/internal/ticket"
)

func testTicket() models.OrderTicket {
	return models.OrderTicket{
		ID:          "0190f1b2-7c1e-7d3a-9f00-5a1b2c3d4e5f",
		Number:      models.OrderNumber{Value: 17},
		BusinessDay: "2026-08-14",
		Lines: []models.TicketLine{
			{Key: "pizza", Name: "Pizza", UnitPriceCents: 700, Quantity: 2, Note: "una senza mozzarella"},
		},
		TotalCents:          1400,
		AmountTenderedCents: 2000,
		PaymentMode:         models.PaymentCash,
		ChangeDueCents:      600,
		CreatedAt:           time.Date(2026, 8, 14, 18, 30, 0, 0, time.UTC),
	}
}

func TestSpoolPrinter_WritesJob(t *testing.T) {
	dir := t.TempDir()
	renderer := ticket.Renderer{EventName: "Sagra"}
	p := NewSpoolPrinter(dir, renderer, logger.Discard())

	tk := testTicket()
	require.NoError(t, p.Print(context.Background(), tk, 2))

	path := filepath.Join(dir, "2026-08-14", "0017-2c3d4e5f.txt")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, renderer.KitchenJob(tk, 2), data)
	assert.Len(t, strings.Split(string(data), ticket.PageBreak), 2)

	entries, err := os.ReadDir(filepath.Join(dir, "2026-08-14"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJobName(t *testing.T) {
	tk := testTicket()
	tk.ID = ""
	tk.Number = models.OrderNumber{Prefix: "B", Value: 7}
	assert.Equal(t, "B0007.txt", JobName(tk))
}

type fakePrinter struct {
	printed []models.OrderTicket
	copies  []int
	err     error
}

func (f *fakePrinter) Print(ctx context.Context, t models.OrderTicket, copies int) error {
	if f.err != nil {
		return f.err
	}
	f.printed = append(f.printed, t)
	f.copies = append(f.copies, copies)
	return nil
}

type fakeConsumer struct {
	bodies [][]byte
	errs   []error
	closed bool
}

func (f *fakeConsumer) StartConsuming(ctx context.Context, handler messaging.MessageHandler) error {
	for _, body := range f.bodies {
		f.errs = append(f.errs, handler(ctx, body))
	}
	return nil
}

func (f *fakeConsumer) Close() error {
	f.closed = true
	return nil
}

func encode(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return data
}

func TestWorker_HandleMessage(t *testing.T) {
	printer := &fakePrinter{}
	w := NewWorker("kitchen-1", &fakeConsumer{}, printer, logger.Discard())
	ctx := context.Background()

	msg := models.NewKitchenTicketMessage("sagra-2026", testTicket(), 0)
	require.NoError(t, w.HandleMessage(ctx, encode(t, msg)))
	require.Len(t, printer.printed, 1)
	assert.Equal(t, "0017", printer.printed[0].Number.String())
	assert.Equal(t, []int{1}, printer.copies)

	err := w.HandleMessage(ctx, []byte("{not json"))
	assert.ErrorIs(t, err, messaging.ErrMalformed)

	empty := testTicket()
	empty.Lines = nil
	err = w.HandleMessage(ctx, encode(t, models.NewKitchenTicketMessage("sagra-2026", empty, 2)))
	assert.ErrorIs(t, err, messaging.ErrMalformed)

	printer.err = errors.New("paper out")
	err = w.HandleMessage(ctx, encode(t, msg))
	require.Error(t, err)
	assert.NotErrorIs(t, err, messaging.ErrMalformed)
}

func TestWorker_Start(t *testing.T) {
	printer := &fakePrinter{}
	consumer := &fakeConsumer{bodies: [][]byte{
		encode(t, models.NewKitchenTicketMessage("sagra-2026", testTicket(), 3)),
	}}
	w := NewWorker("kitchen-1", consumer, printer, logger.Discard())

	require.NoError(t, w.Start(context.Background()))
	assert.True(t, consumer.closed)
	assert.Equal(t, []error{nil}, consumer.errs)
	assert.Equal(t, []int{3}, printer.copies)
}
