package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/ispcare/internal/domain"
)

type sentMessage struct{ to, text string }

type fakeMessenger struct {
	mu   sync.Mutex
	sent []sentMessage
	fail bool
}

func (m *fakeMessenger) SendText(_ context.Context, to, text string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("not connected")
	}
	m.sent = append(m.sent, sentMessage{to, text})
	return nil
}

func (m *fakeMessenger) to(phone string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, s := range m.sent {
		if s.to == phone {
			out = append(out, s.text)
		}
	}
	return out
}

func TestDirectoryLookupPrecedence(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	require.NoError(t, db.Create(&domain.SysOpr{ID: 1, Username: "boss", Realname: "Bos", Mobile: "6281299999999", Level: domain.OprLevelAdmin}).Error)
	dir := NewDirectory(db, []string{"0811000000"})

	id, err := dir.Lookup(bg, "6281234567890@s.whatsapp.net")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleCustomer, id.Role)
	assert.Equal(t, "Budi", id.Name)
	require.NotNil(t, id.Customer)

	id, err = dir.Lookup(bg, s.tech.Phone)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleTechnician, id.Role)

	id, err = dir.Lookup(bg, "6281299999999")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, id.Role)
	assert.Equal(t, "Bos", id.Name)

	id, err = dir.Lookup(bg, "62811000000")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, id.Role)

	id, err = dir.Lookup(bg, "6289999")
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUnknown, id.Role)

	phones, err := dir.AdminPhones(bg)
	require.NoError(t, err)
	sort.Strings(phones)
	assert.Equal(t, []string{"62811000000", "6281299999999"}, phones)
}

func TestNotifierRoutesEvents(t *testing.T) {
	db := newTestDB(t)
	s := seedData(t, db)
	require.NoError(t, db.Create(&domain.SysOpr{ID: 1, Username: "boss", Mobile: "6281299999999", Level: domain.OprLevelAdmin}).Error)

	events := NewEvents()
	msgr := &fakeMessenger{}
	n, err := NewNotifier(msgr, NewDirectory(db, nil), 2)
	require.NoError(t, err)
	defer n.Close()
	require.NoError(t, n.Subscribe(events))

	tickets := NewTicketService(db, newTestLocker(), events, time.Second)
	requests := NewRequestService(db, newTestLocker(), events, time.Second)

	tk, err := tickets.Create(bg, s.customer, "Internet mati", "LOS merah")
	require.NoError(t, err)
	n.Flush()
	techMsgs := msgr.to(s.tech.Phone)
	require.Len(t, techMsgs, 1)
	assert.Contains(t, techMsgs[0], "proses 1")

	_, err = tickets.MarkInProgress(bg, tk.ID, s.tech)
	require.NoError(t, err)
	_, err = tickets.Resolve(bg, tk.ID, s.tech, "ganti kabel", 2)
	require.NoError(t, err)

	r, err := requests.CreateSpeedBoost(bg, s.customer, s.boost, 24)
	require.NoError(t, err)
	_, err = requests.Decide(bg, r.ID, false, "boss")
	require.NoError(t, err)
	n.Flush()

	adminMsgs := msgr.to("6281299999999")
	require.Len(t, adminMsgs, 1)
	assert.Contains(t, adminMsgs[0], "approve 1")

	custMsgs := msgr.to(s.customer.Phone)
	require.Len(t, custMsgs, 3)
	all := strings.Join(custMsgs, "\n---\n")
	assert.Contains(t, all, "sedang ditangani")
	assert.Contains(t, all, "Catatan teknisi: ganti kabel")
	assert.Contains(t, all, "ditolak")
}

func TestNotifierSurvivesSendFailure(t *testing.T) {
	msgr := &fakeMessenger{fail: true}
	db := newTestDB(t)
	s := seedData(t, db)
	n, err := NewNotifier(msgr, NewDirectory(db, nil), 1)
	require.NoError(t, err)
	defer n.Close()

	n.ticketCreated(TicketEvent{Ticket: domain.Ticket{ID: 5, CustomerPhone: s.customer.Phone}})
	n.Flush()
	assert.Empty(t, msgr.to(s.tech.Phone))
}
