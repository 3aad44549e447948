package conversation

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"github.com/talkincode/ispcare/internal/service"
)

const (
	customerPhone = "6281234567890"
	techPhone     = "6281200000011"
	adminPhone    = "6281299999999"
)

type fakeDirectory map[string]*domain.Identity

func (d fakeDirectory) Lookup(_ context.Context, sender string) (*domain.Identity, error) {
	if id, ok := d[sender]; ok {
		return id, nil
	}
	return &domain.Identity{Phone: sender, Role: domain.RoleUnknown}, nil
}

type fakeTickets struct {
	mu       sync.Mutex
	tickets  map[int64]*domain.Ticket
	next     int64
	markErr  error
	resolved []string
}

func newFakeTickets() *fakeTickets {
	return &fakeTickets{tickets: map[int64]*domain.Ticket{}}
}

func (f *fakeTickets) add(t domain.Ticket) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tickets[t.ID] = &t
	if t.ID > f.next {
		f.next = t.ID
	}
}

func (f *fakeTickets) Create(_ context.Context, c *domain.Customer, category, desc string) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	t := &domain.Ticket{ID: f.next, CustomerId: c.ID, CustomerName: c.Name, CustomerPhone: c.Phone, Category: category, Description: desc, Status: domain.TicketNew}
	f.tickets[t.ID] = t
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) Get(_ context.Context, id int64) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.tickets[id]
	if !ok {
		return nil, fmt.Errorf("%w: ticket %d", service.ErrNotFound, id)
	}
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) ListOpen(_ context.Context) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for i := int64(1); i <= f.next; i++ {
		if t, ok := f.tickets[i]; ok && (t.Status == domain.TicketNew || t.Status == domain.TicketInProgress) {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTickets) ListByCustomer(_ context.Context, customerID int64, _ int) ([]domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Ticket
	for _, t := range f.tickets {
		if t.CustomerId == customerID {
			out = append(out, *t)
		}
	}
	return out, nil
}

func (f *fakeTickets) MarkInProgress(_ context.Context, id int64, tech *domain.Technician) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return nil, f.markErr
	}
	t := f.tickets[id]
	if t.Status != domain.TicketNew {
		return nil, fmt.Errorf("%w: ticket %d is %s", service.ErrInvalidTransition, id, t.Status)
	}
	t.Status = domain.TicketInProgress
	t.TechnicianId = tech.ID
	cp := *t
	return &cp, nil
}

func (f *fakeTickets) Resolve(_ context.Context, id int64, _ *domain.Technician, notes string, photos int) (*domain.Ticket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	t := f.tickets[id]
	t.Status = domain.TicketResolved
	t.Notes = notes
	t.PhotoCount = photos
	f.resolved = append(f.resolved, notes)
	cp := *t
	return &cp, nil
}

type fakeRequests struct {
	mu        sync.Mutex
	packages  []domain.Package
	requests  map[int64]*domain.CustomerRequest
	next      int64
	decideErr error
	created   []int
	payments  []float64
}

func newFakeRequests() *fakeRequests {
	return &fakeRequests{
		packages: []domain.Package{{ID: 5, Name: "Boost 50M", Type: domain.PackageSpeedBoost, UpRate: 25600, DownRate: 51200, Price: 24000}},
		requests: map[int64]*domain.CustomerRequest{},
	}
}

func (f *fakeRequests) BoostPackages(context.Context) ([]domain.Package, error) {
	return f.packages, nil
}

func (f *fakeRequests) CreateSpeedBoost(_ context.Context, c *domain.Customer, p *domain.Package, hours int) (*domain.CustomerRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	r := &domain.CustomerRequest{ID: f.next, CustomerId: c.ID, Type: domain.RequestSpeedBoost, PackageId: p.ID, DurationHours: hours, Status: domain.RequestPending}
	f.requests[r.ID] = r
	f.created = append(f.created, hours)
	return r, nil
}

func (f *fakeRequests) CreatePayment(_ context.Context, c *domain.Customer, amount float64, note string) (*domain.CustomerRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.next++
	r := &domain.CustomerRequest{ID: f.next, CustomerId: c.ID, Type: domain.RequestPayment, Amount: amount, Note: note, Status: domain.RequestPending}
	f.requests[r.ID] = r
	f.payments = append(f.payments, amount)
	return r, nil
}

func (f *fakeRequests) Get(_ context.Context, id int64) (*domain.CustomerRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.requests[id]
	if !ok {
		return nil, fmt.Errorf("%w: request %d", service.ErrNotFound, id)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeRequests) ListPending(context.Context, int) ([]domain.CustomerRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.CustomerRequest
	for _, r := range f.requests {
		if r.Status == domain.RequestPending {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (f *fakeRequests) ListByCustomer(context.Context, int64, int) ([]domain.CustomerRequest, error) {
	return nil, nil
}

func (f *fakeRequests) Decide(_ context.Context, id int64, approve bool, actor string) (*domain.CustomerRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.decideErr != nil {
		return nil, f.decideErr
	}
	r := f.requests[id]
	r.Status = domain.RequestRejected
	if approve {
		r.Status = domain.RequestApproved
	}
	r.DecidedBy = actor
	cp := *r
	return &cp, nil
}

type fakePhotos struct {
	mu       sync.Mutex
	pending  map[string][]photoqueue.AddRequest
	sessions map[string]photoqueue.Session
	cleared  []string
}

func newFakePhotos() *fakePhotos {
	return &fakePhotos{pending: map[string][]photoqueue.AddRequest{}, sessions: map[string]photoqueue.Session{}}
}

func (f *fakePhotos) AddPhoto(_ context.Context, req photoqueue.AddRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending[req.Sender] = append(f.pending[req.Sender], req)
	return nil
}

func (f *fakePhotos) ForceProcess(_ context.Context, sender string) (photoqueue.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	reqs := f.pending[sender]
	delete(f.pending, sender)
	sess := f.sessions[sender]
	if len(reqs) > 0 {
		sess.TicketID = reqs[0].TicketID
	}
	sess.TotalPhotosUploaded += len(reqs)
	f.sessions[sender] = sess
	return photoqueue.Result{TicketID: sess.TicketID, Saved: make([]photoqueue.SavedPhoto, len(reqs)), SessionTotal: sess.TotalPhotosUploaded}, nil
}

func (f *fakePhotos) ClearQueue(sender string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.pending[sender])
	delete(f.pending, sender)
	delete(f.sessions, sender)
	f.cleared = append(f.cleared, sender)
	return n
}

func (f *fakePhotos) SessionFor(sender string) (photoqueue.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sender]
	return s, ok
}

func (f *fakePhotos) Pending(sender string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pending[sender])
}

type fakeNetwork struct {
	calls    []string
	sessions int
	panics   bool
}

func (f *fakeNetwork) RestartSession(_ context.Context, nasID int64, user string) (int, error) {
	if f.panics {
		panic("routeros: connection reset")
	}
	f.calls = append(f.calls, fmt.Sprintf("%d/%s", nasID, user))
	return f.sessions, nil
}

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type harness struct {
	engine   *Engine
	dir      fakeDirectory
	clock    *clock
	tickets  *fakeTickets
	requests *fakeRequests
	photos   *fakePhotos
	network  *fakeNetwork
}

func newHarness() *harness {
	tech := &domain.Technician{ID: 11, Name: "Andi", Phone: techPhone}
	dir := fakeDirectory{
		customerPhone: {Phone: customerPhone, Name: "Budi", Role: domain.RoleCustomer,
			Customer: &domain.Customer{ID: 7, Name: "Budi", Phone: customerPhone, PppoeUser: "budi", NasId: 1, PackageId: 2}},
		techPhone: {Phone: techPhone, Name: "Andi", Role: domain.RoleTechnician, Technician: tech},
		adminPhone: {Phone: adminPhone, Name: "Bos", Role: domain.RoleAdmin, Technician: &domain.Technician{ID: 12, Phone: adminPhone},
			Operator: &domain.SysOpr{Username: "boss"}},
	}
	h := &harness{
		dir:      dir,
		clock:    &clock{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)},
		tickets:  newFakeTickets(),
		requests: newFakeRequests(),
		photos:   newFakePhotos(),
		network:  &fakeNetwork{sessions: 1},
	}
	h.engine = New(DefaultConfig(), NewCacheStore(time.Hour), Deps{
		Directory: dir,
		Tickets:   h.tickets,
		Requests:  h.requests,
		Photos:    h.photos,
		Network:   h.network,
	})
	h.engine.now = h.clock.Now
	return h
}

func (h *harness) say(sender, text string) string {
	return h.engine.Handle(context.Background(), Inbound{Sender: sender, Text: text})
}

func (h *harness) step(sender string) Step {
	st, ok := h.engine.StateOf(sender)
	if !ok {
		return ""
	}
	return st.Step()
}

func TestReportFlowCreatesTicket(t *testing.T) {
	h := newHarness()

	assert.Contains(t, h.say(customerPhone, "lapor"), "kategori")
	assert.Equal(t, StepReportCategory, h.step(customerPhone))

	assert.Contains(t, h.say(customerPhone, "9"), "Pilihan tidak valid")
	assert.Equal(t, StepReportCategory, h.step(customerPhone))

	assert.Contains(t, h.say(customerPhone, "2"), "Jelaskan")
	assert.Equal(t, StepReportDescription, h.step(customerPhone))

	assert.Contains(t, h.say(customerPhone, "lemot"), "terlalu singkat")
	assert.Equal(t, StepReportDescription, h.step(customerPhone))

	reply := h.say(customerPhone, "internet lemot sejak pagi")
	assert.Contains(t, reply, "Internet lambat")
	assert.Equal(t, StepReportConfirm, h.step(customerPhone))

	assert.Contains(t, h.say(customerPhone, "Ya!"), "#1")
	assert.Equal(t, Step(""), h.step(customerPhone))

	tk, err := h.tickets.Get(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Internet lambat", tk.Category)
	assert.Equal(t, "internet lemot sejak pagi", tk.Description)
}

func TestUnrecognizedInputKeepsState(t *testing.T) {
	h := newHarness()
	h.say(customerPhone, "reboot")
	before, ok := h.engine.StateOf(customerPhone)
	require.True(t, ok)

	h.clock.Advance(time.Minute)
	assert.Equal(t, msgYesNo, h.say(customerPhone, "mungkin"))

	after, ok := h.engine.StateOf(customerPhone)
	require.True(t, ok)
	assert.Same(t, before, after)
	assert.Equal(t, before.Started(), after.Started())
	assert.Empty(t, h.network.calls)
}

func TestRebootConfirmRestartsSession(t *testing.T) {
	h := newHarness()
	assert.Equal(t, msgConfirmReboot, h.say(customerPhone, "reboot"))
	assert.Equal(t, msgRebootDone, h.say(customerPhone, "ya"))
	assert.Equal(t, []string{"1/budi"}, h.network.calls)

	h.network.sessions = 0
	h.say(customerPhone, "reboot")
	assert.Equal(t, msgRebootNoSession, h.say(customerPhone, "y"))

	h.say(customerPhone, "reboot")
	assert.Contains(t, h.say(customerPhone, "tidak"), "dibatalkan")
	assert.Len(t, h.network.calls, 2)
}

func TestExpiredStateAsksToRestart(t *testing.T) {
	h := newHarness()
	h.say(customerPhone, "reboot")
	h.clock.Advance(11 * time.Minute)

	assert.Equal(t, msgExpired, h.say(customerPhone, "ya"))
	assert.Empty(t, h.network.calls)
	assert.Equal(t, Step(""), h.step(customerPhone))
}

func TestPhotoStepsUseLongTimeout(t *testing.T) {
	h := newHarness()
	h.tickets.add(domain.Ticket{ID: 3, Status: domain.TicketInProgress, TechnicianId: 11})
	assert.Contains(t, h.say(techPhone, "selesai 3"), "tiket #3")

	h.clock.Advance(20 * time.Minute)
	assert.Equal(t, msgNoPhotosYet, h.say(techPhone, "selesai"))
	assert.Equal(t, StepTicketAwaitingPhotos, h.step(techPhone))

	h.clock.Advance(31 * time.Minute)
	assert.Equal(t, msgExpired, h.say(techPhone, "selesai"))
	assert.Contains(t, h.photos.cleared, techPhone)
}

func TestTechnicianResolveFlow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	h.tickets.add(domain.Ticket{ID: 1, CustomerName: "Budi", CustomerPhone: customerPhone, Category: "Internet mati", Status: domain.TicketNew})

	assert.Contains(t, h.say(techPhone, "tiket"), "#1 Internet mati")
	assert.Contains(t, h.say(techPhone, "proses #1"), "Proses tiket ini?")
	assert.Equal(t, StepTicketConfirmProcess, h.step(techPhone))
	assert.Contains(t, h.say(techPhone, "ya"), "sekarang Anda tangani")

	assert.Contains(t, h.say(techPhone, "selesai 1"), "Kirim foto")
	jpeg := photoqueue.Photo{Data: []byte{0xFF, 0xD8, 0xFF}}
	assert.Empty(t, h.engine.HandlePhoto(ctx, techPhone, jpeg))
	assert.Empty(t, h.engine.HandlePhoto(ctx, techPhone, jpeg))
	assert.Equal(t, msgPhotosReminder, h.say(techPhone, "foto kurang jelas?"))

	assert.Contains(t, h.say(techPhone, "selesai"), "2 foto tersimpan")
	st, ok := h.engine.StateOf(techPhone)
	require.True(t, ok)
	notes := st.(*TicketResolveNotes)
	assert.Equal(t, 2, notes.PhotoCount)

	assert.Contains(t, h.say(techPhone, "ok"), "terlalu singkat")
	assert.Contains(t, h.say(techPhone, "ganti konektor fiber"), "Tutup tiket ini?")
	assert.Contains(t, h.say(techPhone, "tidak"), "tulis ulang")
	assert.Equal(t, StepTicketResolveNotes, h.step(techPhone))
	h.say(techPhone, "ganti konektor fiber dan patchcord")
	assert.Contains(t, h.say(techPhone, "ya"), "ditutup dengan 2 foto")

	assert.Equal(t, Step(""), h.step(techPhone))
	assert.Equal(t, []string{"ganti konektor fiber dan patchcord"}, h.tickets.resolved)
	assert.Contains(t, h.photos.cleared, techPhone)
}

func TestResolveRejectsOtherTechniciansTicket(t *testing.T) {
	h := newHarness()
	h.tickets.add(domain.Ticket{ID: 4, Status: domain.TicketInProgress, TechnicianId: 99})
	assert.Contains(t, h.say(techPhone, "selesai 4"), "tidak sedang Anda tangani")
	assert.Contains(t, h.say(techPhone, "selesai 40"), "tidak ditemukan")
	assert.Contains(t, h.say(techPhone, "proses abc"), "Format")
}

func TestCancelDropsQueuedPhotos(t *testing.T) {
	h := newHarness()
	h.tickets.add(domain.Ticket{ID: 2, Status: domain.TicketInProgress, TechnicianId: 11})
	h.say(techPhone, "selesai 2")
	h.engine.HandlePhoto(context.Background(), techPhone, photoqueue.Photo{Data: []byte{1}})

	assert.Equal(t, msgCancelled, h.say(techPhone, "batal"))
	assert.Equal(t, Step(""), h.step(techPhone))
	assert.Equal(t, []string{techPhone}, h.photos.cleared)
	assert.Zero(t, h.photos.Pending(techPhone))
}

func TestPhotoOutsideFlowIsRejected(t *testing.T) {
	h := newHarness()
	assert.Equal(t, msgPhotoNotExpect, h.engine.HandlePhoto(context.Background(), customerPhone, photoqueue.Photo{}))
	h.say(customerPhone, "reboot")
	assert.Equal(t, msgPhotoNotExpect, h.engine.HandlePhoto(context.Background(), customerPhone, photoqueue.Photo{}))
	assert.Equal(t, StepConfirmReboot, h.step(customerPhone))
}

func TestMidFlowReplyWithoutState(t *testing.T) {
	h := newHarness()
	assert.Equal(t, msgStateLost, h.say(customerPhone, "ya"))
	assert.Equal(t, msgStateLost, h.say(techPhone, "selesai"))
	assert.Contains(t, h.say(customerPhone, "halo"), "*lapor*")
}

func TestLockTimeoutKeepsStateForRetry(t *testing.T) {
	h := newHarness()
	h.tickets.add(domain.Ticket{ID: 1, Status: domain.TicketNew})
	h.say(techPhone, "proses 1")

	h.tickets.markErr = fmt.Errorf("%w: ticket-1", lock.ErrLockTimeout)
	assert.Equal(t, msgBusy, h.say(techPhone, "ya"))
	assert.Equal(t, StepTicketConfirmProcess, h.step(techPhone))

	h.tickets.markErr = nil
	assert.Contains(t, h.say(techPhone, "ya"), "sekarang Anda tangani")
	assert.Equal(t, Step(""), h.step(techPhone))
}

func TestEffectErrorEndsFlowWithMessage(t *testing.T) {
	h := newHarness()
	h.tickets.add(domain.Ticket{ID: 1, Status: domain.TicketNew})
	h.say(techPhone, "proses 1")
	// another technician took it meanwhile
	h.tickets.tickets[1].Status = domain.TicketInProgress

	assert.Contains(t, h.say(techPhone, "ya"), "Status tiket sudah berubah")
	assert.Equal(t, Step(""), h.step(techPhone))
}

func TestSpeedBoostFlow(t *testing.T) {
	h := newHarness()
	assert.Contains(t, h.say(customerPhone, "speedboost"), "Boost 50M (50M/25M) - Rp24.000/hari")
	assert.Contains(t, h.say(customerPhone, "1"), "Pilih durasi")
	reply := h.say(customerPhone, "2")
	assert.Contains(t, reply, "3 hari")
	assert.Contains(t, reply, "Rp72.000")
	assert.Contains(t, h.say(customerPhone, "iya"), "#1")
	assert.Equal(t, []int{72}, h.requests.created)
}

func TestAdminDecideFlow(t *testing.T) {
	h := newHarness()
	ctx := context.Background()
	r, err := h.requests.CreateSpeedBoost(ctx, &domain.Customer{ID: 7}, &h.requests.packages[0], 24)
	require.NoError(t, err)

	assert.Contains(t, h.say(adminPhone, "requests"), fmt.Sprintf("#%d", r.ID))
	assert.Contains(t, h.say(adminPhone, fmt.Sprintf("approve %d", r.ID)), "Setujui permintaan ini?")
	assert.Contains(t, h.say(adminPhone, "ya"), "disetujui")

	got, err := h.requests.Get(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestApproved, got.Status)
	assert.Equal(t, "boss", got.DecidedBy)

	assert.Contains(t, h.say(adminPhone, fmt.Sprintf("tolak %d", r.ID)), "sudah *approved*")
}

func TestAdminDecideRaceReportsAlreadyProcessed(t *testing.T) {
	h := newHarness()
	r, err := h.requests.CreateSpeedBoost(context.Background(), &domain.Customer{ID: 7}, &h.requests.packages[0], 24)
	require.NoError(t, err)
	h.say(adminPhone, fmt.Sprintf("approve %d", r.ID))

	h.requests.decideErr = fmt.Errorf("%w: request %d is approved", service.ErrAlreadyProcessed, r.ID)
	assert.Contains(t, h.say(adminPhone, "ya"), "sudah diproses")
	assert.Equal(t, Step(""), h.step(adminPhone))
}

func TestUnknownSenderIsNotRegistered(t *testing.T) {
	h := newHarness()
	assert.Equal(t, msgNotRegistered, h.say("628000", "menu"))
}

func TestMenuFollowsRoles(t *testing.T) {
	h := newHarness()
	menu := h.say(adminPhone, "menu")
	assert.Contains(t, menu, "*Admin*")
	assert.Contains(t, menu, "*Teknisi*")
	assert.NotContains(t, menu, "*Pelanggan*")

	menu = h.say(customerPhone, "menu")
	assert.Contains(t, menu, "*Pelanggan*")
	assert.NotContains(t, menu, "*Admin*")
}

func TestRemovedCustomerCannotFinishFlow(t *testing.T) {
	h := newHarness()
	assert.Equal(t, msgConfirmReboot, h.say(customerPhone, "reboot"))
	h.dir[customerPhone] = &domain.Identity{Phone: customerPhone, Role: domain.RoleUnknown}

	var reply string
	assert.NotPanics(t, func() { reply = h.say(customerPhone, "ya") })
	assert.Equal(t, msgStateLost, reply)
	assert.Empty(t, h.network.calls)
	assert.Equal(t, Step(""), h.step(customerPhone))
}

func TestDisabledTechnicianCannotResolve(t *testing.T) {
	h := newHarness()
	h.tickets.add(domain.Ticket{ID: 5, Status: domain.TicketInProgress, TechnicianId: 11})
	h.say(techPhone, "selesai 5")
	h.engine.HandlePhoto(context.Background(), techPhone, photoqueue.Photo{Data: []byte{0xFF, 0xD8, 0xFF}})
	h.say(techPhone, "selesai")
	h.say(techPhone, "ganti konektor fiber dan patchcord")
	require.Equal(t, StepTicketResolveConfirm, h.step(techPhone))

	h.dir[techPhone] = &domain.Identity{Phone: techPhone, Role: domain.RoleUnknown}
	assert.Equal(t, msgStateLost, h.say(techPhone, "ya"))
	assert.Empty(t, h.tickets.resolved)
	assert.Equal(t, Step(""), h.step(techPhone))
	assert.Contains(t, h.photos.cleared, techPhone)
}

func TestDemotedAdminCannotDecide(t *testing.T) {
	h := newHarness()
	r, err := h.requests.CreateSpeedBoost(context.Background(), &domain.Customer{ID: 7}, &h.requests.packages[0], 24)
	require.NoError(t, err)
	h.say(adminPhone, fmt.Sprintf("approve %d", r.ID))

	h.dir[adminPhone] = &domain.Identity{Phone: adminPhone, Role: domain.RoleTechnician,
		Technician: &domain.Technician{ID: 12, Phone: adminPhone}}
	assert.Equal(t, msgStateLost, h.say(adminPhone, "ya"))

	got, err := h.requests.Get(context.Background(), r.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RequestPending, got.Status)
}

func TestPanicInEffectIsContained(t *testing.T) {
	h := newHarness()
	h.say(customerPhone, "reboot")
	h.network.panics = true

	var reply string
	assert.NotPanics(t, func() { reply = h.say(customerPhone, "ya") })
	assert.Equal(t, msgInternalError, reply)
	assert.Equal(t, Step(""), h.step(customerPhone))

	h.network.panics = false
	assert.Equal(t, msgConfirmReboot, h.say(customerPhone, "reboot"))
}

func TestPaymentFlow(t *testing.T) {
	h := newHarness()
	assert.Equal(t, msgAmountPrompt, h.say(customerPhone, "bayar"))
	assert.Equal(t, StepPaymentAmount, h.step(customerPhone))
	assert.Contains(t, h.say(customerPhone, "seratus ribu"), "Nominal tidak valid")
	assert.Contains(t, h.say(customerPhone, "Rp 166.500"), "Rp166.500")
	assert.Equal(t, StepPaymentConfirm, h.step(customerPhone))
	assert.Contains(t, h.say(customerPhone, "ya"), "#1")
	assert.Equal(t, []float64{166500}, h.requests.payments)
	assert.Equal(t, Step(""), h.step(customerPhone))

	assert.Contains(t, h.say(customerPhone, "bayar 222000"), "Rp222.000")
	assert.Contains(t, h.say(customerPhone, "tidak"), "dibatalkan")
	assert.Len(t, h.requests.payments, 1)

	assert.Contains(t, h.say(techPhone, "bayar 1000"), "*Teknisi*")
}
