package conversation

import (
	"context"
	"errors"
	"hash/fnv"
	"strconv"
	"sync"
	"time"

	"github.com/talkincode/ispcare/internal/domain"
	"github.com/talkincode/ispcare/internal/lock"
	"github.com/talkincode/ispcare/internal/photoqueue"
	"go.uber.org/zap"
)

type Directory interface {
	Lookup(ctx context.Context, sender string) (*domain.Identity, error)
}

type Tickets interface {
	Create(ctx context.Context, customer *domain.Customer, category, description string) (*domain.Ticket, error)
	Get(ctx context.Context, id int64) (*domain.Ticket, error)
	ListOpen(ctx context.Context) ([]domain.Ticket, error)
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.Ticket, error)
	MarkInProgress(ctx context.Context, id int64, tech *domain.Technician) (*domain.Ticket, error)
	Resolve(ctx context.Context, id int64, tech *domain.Technician, notes string, photoCount int) (*domain.Ticket, error)
}

type Requests interface {
	BoostPackages(ctx context.Context) ([]domain.Package, error)
	CreateSpeedBoost(ctx context.Context, customer *domain.Customer, pkg *domain.Package, hours int) (*domain.CustomerRequest, error)
	CreatePayment(ctx context.Context, customer *domain.Customer, amount float64, note string) (*domain.CustomerRequest, error)
	Get(ctx context.Context, id int64) (*domain.CustomerRequest, error)
	ListPending(ctx context.Context, limit int) ([]domain.CustomerRequest, error)
	ListByCustomer(ctx context.Context, customerID int64, limit int) ([]domain.CustomerRequest, error)
	Decide(ctx context.Context, id int64, approve bool, actor string) (*domain.CustomerRequest, error)
}

type Photos interface {
	AddPhoto(ctx context.Context, req photoqueue.AddRequest) error
	ForceProcess(ctx context.Context, sender string) (photoqueue.Result, error)
	ClearQueue(sender string) int
	SessionFor(sender string) (photoqueue.Session, bool)
	Pending(sender string) int
}

// Network restarts a customer's PPPoE session on its NAS.
type Network interface {
	RestartSession(ctx context.Context, nasID int64, user string) (int, error)
}

type Deps struct {
	Directory Directory
	Tickets   Tickets
	Requests  Requests
	Photos    Photos
	Network   Network
}

type Config struct {
	// ShortTimeout applies to confirmations and menu selections.
	ShortTimeout time.Duration
	// LongTimeout applies to steps where the sender is doing field work or
	// writing text.
	LongTimeout    time.Duration
	MinDescription int
	MinNotes       int
	ListLimit      int
}

func DefaultConfig() Config {
	return Config{
		ShortTimeout:   10 * time.Minute,
		LongTimeout:    30 * time.Minute,
		MinDescription: 10,
		MinNotes:       5,
		ListLimit:      10,
	}
}

type Inbound struct {
	Sender string
	Text   string
}

// Outcome of one step. Next nil ends the flow; Next equal to the current
// state re-prompts without changing anything. Effect runs before Next is
// stored and its non-empty reply replaces Reply.
type Outcome struct {
	Reply  string
	Next   State
	Effect func(ctx context.Context) (string, error)
}

type transition func(ctx context.Context, t *turn, st State, input string) Outcome

var transitions = map[Step]transition{
	StepConfirmReboot:        confirmReboot,
	StepReportCategory:       reportCategory,
	StepReportDescription:    reportDescription,
	StepReportConfirm:        reportConfirm,
	StepSpeedBoostPackage:    speedBoostPackage,
	StepSpeedBoostDuration:   speedBoostDuration,
	StepSpeedBoostConfirm:    speedBoostConfirm,
	StepTicketConfirmProcess: ticketConfirmProcess,
	StepTicketAwaitingPhotos: ticketAwaitingPhotos,
	StepTicketResolveNotes:   ticketResolveNotes,
	StepTicketResolveConfirm: ticketResolveConfirm,
	StepRequestDecideConfirm: requestDecideConfirm,
	StepPaymentAmount:        paymentAmount,
	StepPaymentConfirm:       paymentConfirm,
}

// Engine drives per-sender conversations. Messages from one sender are
// handled one at a time in arrival order.
type Engine struct {
	cfg   Config
	store Store
	deps  Deps
	now   func() time.Time
	locks [64]sync.Mutex
}

func New(cfg Config, store Store, deps Deps) *Engine {
	def := DefaultConfig()
	if cfg.ShortTimeout <= 0 {
		cfg.ShortTimeout = def.ShortTimeout
	}
	if cfg.LongTimeout <= 0 {
		cfg.LongTimeout = def.LongTimeout
	}
	if cfg.MinDescription <= 0 {
		cfg.MinDescription = def.MinDescription
	}
	if cfg.MinNotes <= 0 {
		cfg.MinNotes = def.MinNotes
	}
	if cfg.ListLimit <= 0 {
		cfg.ListLimit = def.ListLimit
	}
	return &Engine{cfg: cfg, store: store, deps: deps, now: time.Now}
}

// turn is the context of one inbound message.
type turn struct {
	*Engine
	sender string
	who    *domain.Identity
	now    time.Time
}

func (t *turn) at() base { return base{StartedAt: t.now} }

func (t *turn) set(st State) { t.store.Set(t.sender, st) }

func (e *Engine) senderLock(sender string) *sync.Mutex {
	h := fnv.New32a()
	_, _ = h.Write([]byte(sender))
	return &e.locks[h.Sum32()%uint32(len(e.locks))]
}

func (e *Engine) timeoutFor(step Step) time.Duration {
	switch step {
	case StepTicketAwaitingPhotos, StepTicketResolveNotes, StepTicketResolveConfirm, StepReportDescription:
		return e.cfg.LongTimeout
	default:
		return e.cfg.ShortTimeout
	}
}

func (e *Engine) expired(st State, now time.Time) bool {
	return now.Sub(st.Started()) > e.timeoutFor(st.Step())
}

// end drops the sender's state and any photos queued for it.
func (e *Engine) end(sender string, st State) {
	e.store.Delete(sender)
	if st != nil && usesPhotoQueue(st) && e.deps.Photos != nil {
		if n := e.deps.Photos.ClearQueue(sender); n > 0 {
			zap.L().Info("conversation: dropped queued photos", zap.String("sender", sender), zap.Int("photos", n))
		}
	}
}

// StateOf exposes the current step for a sender.
func (e *Engine) StateOf(sender string) (State, bool) {
	return e.store.Get(sender)
}

// Handle processes one text message and returns the reply to send. An empty
// reply means nothing should be sent.
func (e *Engine) Handle(ctx context.Context, in Inbound) (reply string) {
	mu := e.senderLock(in.Sender)
	mu.Lock()
	defer mu.Unlock()
	defer func() {
		if r := recover(); r != nil {
			zap.L().Error("conversation: handler panic",
				zap.String("sender", in.Sender),
				zap.Any("panic", r),
				zap.Stack("stack"))
			e.store.Delete(in.Sender)
			reply = msgInternalError
		}
	}()

	who, err := e.deps.Directory.Lookup(ctx, in.Sender)
	if err != nil {
		zap.L().Error("conversation: identity lookup failed", zap.String("sender", in.Sender), zap.Error(err))
		return msgInternalError
	}
	t := &turn{Engine: e, sender: in.Sender, who: who, now: e.now()}

	st, ok := e.store.Get(in.Sender)
	if !ok {
		return e.route(ctx, t, in.Text)
	}
	if e.expired(st, t.now) {
		zap.L().Info("conversation: state expired", zap.String("sender", in.Sender), zap.String("step", string(st.Step())))
		e.end(in.Sender, st)
		return msgExpired
	}
	if isCancel(in.Text) {
		e.end(in.Sender, st)
		return msgCancelled
	}
	if !permits(st, who) {
		zap.L().Warn("conversation: sender no longer fits step",
			zap.String("sender", in.Sender),
			zap.String("step", string(st.Step())),
			zap.String("role", string(who.Role)))
		e.end(in.Sender, st)
		return msgStateLost
	}
	tr, ok := transitions[st.Step()]
	if !ok {
		e.end(in.Sender, st)
		return msgStateLost
	}
	return e.apply(ctx, t, st, tr(ctx, t, st, in.Text))
}

func (e *Engine) apply(ctx context.Context, t *turn, cur State, out Outcome) string {
	reply := out.Reply
	if out.Effect != nil {
		r, err := out.Effect(ctx)
		switch {
		case errors.Is(err, lock.ErrLockTimeout):
			zap.L().Warn("conversation: resource busy",
				zap.String("sender", t.sender),
				zap.String("step", string(cur.Step())),
				zap.Error(err))
			return msgBusy
		case err != nil:
			zap.L().Error("conversation: effect failed",
				zap.String("sender", t.sender),
				zap.String("step", string(cur.Step())),
				zap.Error(err))
			e.end(t.sender, cur)
			return userMessage(err)
		case r != "":
			reply = r
		}
	}
	switch {
	case out.Next == nil:
		e.end(t.sender, cur)
	case out.Next != cur:
		e.store.Set(t.sender, out.Next)
	}
	return reply
}

func stay(st State, reply string) Outcome {
	return Outcome{Reply: reply, Next: st}
}

// midFlowReply reports whether text only makes sense as an answer to a
// question asked earlier in a flow.
func midFlowReply(text string) bool {
	return isYes(text) || isNo(text) || isDone(text)
}

func (e *Engine) route(ctx context.Context, t *turn, text string) string {
	who := t.who
	if who.Role == domain.RoleUnknown {
		return msgNotRegistered
	}
	verb, arg := command(text)
	if who.Role == domain.RoleAdmin {
		switch verb {
		case "approve", "setuju", "acc":
			return startDecide(ctx, t, arg, true)
		case "tolak", "reject":
			return startDecide(ctx, t, arg, false)
		case "requests", "permintaan":
			return listPending(ctx, t)
		}
	}
	if who.Technician != nil {
		switch verb {
		case "tiket", "tickets":
			return listTickets(ctx, t)
		case "proses":
			return startProcess(ctx, t, arg)
		case "selesai":
			if arg != "" {
				return startResolve(ctx, t, arg)
			}
		}
	}
	if who.Customer != nil {
		switch verb {
		case "reboot", "restart":
			return startReboot(ctx, t)
		case "lapor", "gangguan":
			return startReport(ctx, t)
		case "speedboost", "boost":
			return startSpeedBoost(ctx, t)
		case "bayar", "payment":
			return startPayment(ctx, t, arg)
		case "status":
			return customerStatus(ctx, t)
		}
	}
	if midFlowReply(text) {
		return msgStateLost
	}
	return menuFor(who)
}

// HandlePhoto accepts an image while the sender is documenting a ticket.
func (e *Engine) HandlePhoto(ctx context.Context, sender string, p photoqueue.Photo) string {
	mu := e.senderLock(sender)
	mu.Lock()
	defer mu.Unlock()

	st, ok := e.store.Get(sender)
	if !ok {
		return msgPhotoNotExpect
	}
	now := e.now()
	if e.expired(st, now) {
		e.end(sender, st)
		return msgExpired
	}
	aw, ok := st.(*TicketAwaitingPhotos)
	if !ok {
		return msgPhotoNotExpect
	}
	if p.Uploader == "" {
		p.Uploader = sender
	}
	err := e.deps.Photos.AddPhoto(ctx, photoqueue.AddRequest{
		Sender:   sender,
		TicketID: strconv.FormatInt(aw.TicketID, 10),
		Photo:    p,
	})
	if err != nil {
		zap.L().Error("conversation: queue photo failed", zap.String("sender", sender), zap.Int64("ticket", aw.TicketID), zap.Error(err))
		return msgPhotoFailed
	}
	// the upload window runs from the latest photo
	e.store.Set(sender, &TicketAwaitingPhotos{base: base{StartedAt: now}, TicketID: aw.TicketID})
	return ""
}
